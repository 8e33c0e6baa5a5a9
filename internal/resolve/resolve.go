// Package resolve expands a selection of agents, flocks, swarms and raw
// provider/model picks into the ordered worklist of a report run.
package resolve

import (
	"fmt"

	"github.com/aviary-ai/aviary/internal/model"
)

// Settings is the configured world the resolver expands against.
type Settings interface {
	Agent(id string) (*model.Agent, error)
	Flock(id string) (*model.Flock, error)
	Swarm(id string) (*model.Swarm, error)
	ProviderActive(id string) bool
}

// ExpandAgent returns the unit for one agent, or nil when the agent is
// unknown or its provider is disabled. A stale reference is a gap, not an
// error; the settings source logs it.
func ExpandAgent(s Settings, id string) (*model.ReportModel, error) {
	a, err := s.Agent(id)
	if err != nil {
		return nil, err
	}
	if a == nil || !s.ProviderActive(a.Provider) {
		return nil, nil
	}
	return &model.ReportModel{
		Provider: a.Provider,
		Model:    a.Model,
		AgentID:  a.ID,
		ParamsID: a.ParamsID,
	}, nil
}

// ExpandFlock returns the units for every agent in a flock, in flock order.
// An unknown flock expands to nothing; stale or disabled members are
// dropped without invalidating the rest. A flock-level params id applies to
// members that carry none of their own.
func ExpandFlock(s Settings, id string) ([]model.ReportModel, error) {
	f, err := s.Flock(id)
	if err != nil || f == nil {
		return nil, err
	}

	var units []model.ReportModel
	for _, agentID := range f.AgentIDs {
		u, err := ExpandAgent(s, agentID)
		if err != nil {
			return nil, fmt.Errorf("flock %s: %w", id, err)
		}
		if u == nil {
			continue
		}
		if u.ParamsID == "" {
			u.ParamsID = f.ParamsID
		}
		units = append(units, *u)
	}
	return units, nil
}

// ExpandSwarm returns an anonymous unit per swarm member; an unknown swarm
// expands to nothing. Members are not filtered by provider state; an
// unconfigured provider surfaces later as a failed result rather than a
// silently shrunken worklist.
func ExpandSwarm(s Settings, id string) ([]model.ReportModel, error) {
	sw, err := s.Swarm(id)
	if err != nil || sw == nil {
		return nil, err
	}

	units := make([]model.ReportModel, 0, len(sw.Members))
	for _, m := range sw.Members {
		units = append(units, FromPair(m))
	}
	return units, nil
}

// FromPair returns the anonymous unit for a raw provider/model pick.
func FromPair(ref model.ModelRef) model.ReportModel {
	return model.ReportModel{Provider: ref.Provider, Model: ref.Model}
}

// Resolve expands a whole selection into a deduplicated worklist. Expansion
// order is agents, flocks, swarms, then raw picks; within each kind the
// caller's order is kept. References that resolve to nothing are skipped;
// the error return carries only settings-source failures.
func Resolve(s Settings, sel model.Selection) ([]model.ReportModel, error) {
	var units []model.ReportModel

	for _, id := range sel.Agents {
		u, err := ExpandAgent(s, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			units = append(units, *u)
		}
	}

	for _, id := range sel.Flocks {
		fu, err := ExpandFlock(s, id)
		if err != nil {
			return nil, err
		}
		units = append(units, fu...)
	}

	for _, id := range sel.Swarms {
		su, err := ExpandSwarm(s, id)
		if err != nil {
			return nil, err
		}
		units = append(units, su...)
	}

	for _, ref := range sel.Models {
		units = append(units, FromPair(ref))
	}

	return Dedup(units), nil
}

// ApplyParams sets a run-level params override on every unit. The override
// wins over whatever the unit carried from its agent or flock.
func ApplyParams(units []model.ReportModel, paramsID string) []model.ReportModel {
	if paramsID == "" {
		return units
	}
	for i := range units {
		units[i].ParamsID = paramsID
	}
	return units
}

// Dedup removes later units that share a key with an earlier one. The first
// occurrence keeps its position and its configuration.
func Dedup(units []model.ReportModel) []model.ReportModel {
	seen := make(map[string]struct{}, len(units))
	out := units[:0:0]
	for _, u := range units {
		key := u.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}
