package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	AgentsAdded   []string
	AgentsRemoved []string
	AgentsChanged []string

	FlocksChanged    bool
	SwarmsChanged    bool
	ProvidersChanged bool
	ParamsChanged    bool

	PricingChanged bool
	NewPricingPath string

	SchedulerChanged bool
	NewScheduler     SchedulerConfig

	NotifyChanged bool
	NewNotify     NotifyConfig

	// Non-reloadable fields that changed (log warnings only)
	NonReloadable []string
}

// HasChanges reports whether any reloadable field changed.
func (d *ConfigDiff) HasChanges() bool {
	return len(d.AgentsAdded) > 0 ||
		len(d.AgentsRemoved) > 0 ||
		len(d.AgentsChanged) > 0 ||
		d.FlocksChanged ||
		d.SwarmsChanged ||
		d.ProvidersChanged ||
		d.ParamsChanged ||
		d.PricingChanged ||
		d.SchedulerChanged ||
		d.NotifyChanged
}

// Diff compares two configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	// Agent diffs
	for name := range new.Agents {
		if _, ok := old.Agents[name]; !ok {
			d.AgentsAdded = append(d.AgentsAdded, name)
		}
	}
	for name := range old.Agents {
		if _, ok := new.Agents[name]; !ok {
			d.AgentsRemoved = append(d.AgentsRemoved, name)
		}
	}
	for name, newDef := range new.Agents {
		if oldDef, ok := old.Agents[name]; ok {
			if !reflect.DeepEqual(oldDef, newDef) {
				d.AgentsChanged = append(d.AgentsChanged, name)
			}
		}
	}

	if !reflect.DeepEqual(old.Flocks, new.Flocks) {
		d.FlocksChanged = true
	}
	if !reflect.DeepEqual(old.Swarms, new.Swarms) {
		d.SwarmsChanged = true
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.ProvidersChanged = true
	}
	if !reflect.DeepEqual(old.Params, new.Params) {
		d.ParamsChanged = true
	}

	if old.Pricing.Path != new.Pricing.Path {
		d.PricingChanged = true
		d.NewPricingPath = new.Pricing.Path
	}

	if old.Scheduler.PollInterval != new.Scheduler.PollInterval {
		d.SchedulerChanged = true
		d.NewScheduler = new.Scheduler
	}

	if !reflect.DeepEqual(old.Notify, new.Notify) {
		d.NotifyChanged = true
		d.NewNotify = new.Notify
	}

	// Non-reloadable warnings
	if old.Web.Port != new.Web.Port {
		d.NonReloadable = append(d.NonReloadable, "web.port")
	}
	if old.NATS.Port != new.NATS.Port {
		d.NonReloadable = append(d.NonReloadable, "nats.port")
	}
	if old.Store.Path != new.Store.Path {
		d.NonReloadable = append(d.NonReloadable, "store.path")
	}
	if old.Vault.Passphrase != new.Vault.Passphrase {
		d.NonReloadable = append(d.NonReloadable, "vault.passphrase")
	}

	return d
}
