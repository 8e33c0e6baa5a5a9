// Package registry is the configured world of the gateway: it mirrors the
// config's agents, flocks and swarms into the store, resolves per-unit
// parameters and credentials, and answers the resolver's lookups.
package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aviary-ai/aviary/internal/config"
	"github.com/aviary-ai/aviary/internal/model"
	"github.com/aviary-ai/aviary/internal/provider"
	"github.com/aviary-ai/aviary/internal/store"
	"github.com/aviary-ai/aviary/internal/vault"
)

const secretPrefix = "secret:"

type Registry struct {
	cfg       *config.Config
	store     *store.Store
	vault     *vault.Vault
	providers *provider.Registry
	logger    *slog.Logger
}

func New(cfg *config.Config, st *store.Store, v *vault.Vault, providers *provider.Registry, logger *slog.Logger) *Registry {
	return &Registry{
		cfg:       cfg,
		store:     st,
		vault:     v,
		providers: providers,
		logger:    logger,
	}
}

// Sync mirrors the config's agents, flocks and swarms into the store and
// removes rows the config no longer declares. Config is the source of
// truth; the store is the queryable copy.
func (r *Registry) Sync() error {
	agentIDs := make([]string, 0, len(r.cfg.Agents))
	for id, a := range r.cfg.Agents {
		agentIDs = append(agentIDs, id)
		err := r.store.SaveAgent(&store.Agent{
			ID:          id,
			Name:        a.Name,
			Description: a.Description,
			Provider:    a.Provider,
			Model:       a.Model,
			Endpoint:    a.Endpoint,
			ParamsID:    a.Params,
		})
		if err != nil {
			return fmt.Errorf("sync agent %s: %w", id, err)
		}
	}
	if err := r.store.DeleteAgentsNotIn(agentIDs); err != nil {
		return err
	}

	flockIDs := make([]string, 0, len(r.cfg.Flocks))
	for id, f := range r.cfg.Flocks {
		flockIDs = append(flockIDs, id)
		err := r.store.SaveFlock(&store.Flock{
			ID:       id,
			Name:     f.Name,
			AgentIDs: f.Agents,
			ParamsID: f.Params,
		})
		if err != nil {
			return fmt.Errorf("sync flock %s: %w", id, err)
		}
	}
	if err := r.store.DeleteFlocksNotIn(flockIDs); err != nil {
		return err
	}

	swarmIDs := make([]string, 0, len(r.cfg.Swarms))
	for id, sw := range r.cfg.Swarms {
		swarmIDs = append(swarmIDs, id)
		members := make([]model.ModelRef, 0, len(sw.Members))
		for _, m := range sw.Members {
			members = append(members, model.ModelRef{Provider: m.Provider, Model: m.Model})
		}
		err := r.store.SaveSwarm(&store.Swarm{ID: id, Name: sw.Name, Members: members})
		if err != nil {
			return fmt.Errorf("sync swarm %s: %w", id, err)
		}
	}
	if err := r.store.DeleteSwarmsNotIn(swarmIDs); err != nil {
		return err
	}

	r.logger.Info("registry synced",
		"agents", len(agentIDs), "flocks", len(flockIDs), "swarms", len(swarmIDs))
	return nil
}

// Agent implements resolve.Settings. Unknown ids are logged here and
// resolve to nothing.
func (r *Registry) Agent(id string) (*model.Agent, error) {
	a, err := r.store.GetAgent(id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		r.logger.Warn("selection references unknown agent", "agent", id)
		return nil, nil
	}
	out := &model.Agent{
		ID:       a.ID,
		Name:     a.Name,
		Provider: a.Provider,
		Model:    a.Model,
		Endpoint: a.Endpoint,
		ParamsID: a.ParamsID,
	}
	if cfg, ok := r.cfg.Agents[id]; ok {
		out.APIKey = r.resolveKey(cfg.APIKey)
	}
	return out, nil
}

// Flock implements resolve.Settings.
func (r *Registry) Flock(id string) (*model.Flock, error) {
	f, err := r.store.GetFlock(id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		r.logger.Warn("selection references unknown flock", "flock", id)
		return nil, nil
	}
	return &model.Flock{ID: f.ID, Name: f.Name, AgentIDs: f.AgentIDs, ParamsID: f.ParamsID}, nil
}

// Swarm implements resolve.Settings.
func (r *Registry) Swarm(id string) (*model.Swarm, error) {
	sw, err := r.store.GetSwarm(id)
	if err != nil {
		return nil, err
	}
	if sw == nil {
		r.logger.Warn("selection references unknown swarm", "swarm", id)
		return nil, nil
	}
	return &model.Swarm{ID: sw.ID, Name: sw.Name, Members: sw.Members}, nil
}

// ProviderActive implements resolve.Settings.
func (r *Registry) ProviderActive(id string) bool {
	return r.providers.Active(id)
}

// ResolveParams returns the parameters for one unit: the unit's own params
// id first, then the provider's, then the global default.
func (r *Registry) ResolveParams(unit model.ReportModel) model.Parameters {
	for _, id := range []string{
		unit.ParamsID,
		r.cfg.Providers[unit.Provider].Params,
		r.cfg.Defaults.Params,
	} {
		if id == "" {
			continue
		}
		p, ok := r.cfg.Params[id]
		if !ok {
			r.logger.Warn("unknown params id", "params", id)
			continue
		}
		return model.Parameters{
			Temperature:  p.Temperature,
			MaxTokens:    p.MaxTokens,
			SystemPrompt: p.SystemPrompt,
		}
	}
	return model.Parameters{}
}

// RequestFor implements report.RequestBuilder. Agent-backed units carry
// their own credentials and endpoint; anonymous units use the provider's.
func (r *Registry) RequestFor(unit model.ReportModel, prompt string) provider.Request {
	req := provider.Request{
		Unit:   unit,
		Prompt: prompt,
		Params: r.ResolveParams(unit),
	}
	if unit.AgentID != "" {
		if a, ok := r.cfg.Agents[unit.AgentID]; ok {
			req.APIKey = r.resolveKey(a.APIKey)
			req.BaseURL = a.Endpoint
		}
	}
	return req
}

// resolveKey dereferences "secret:<name>" values through the store and
// vault. Anything else passes through unchanged.
func (r *Registry) resolveKey(raw string) string {
	name, ok := strings.CutPrefix(raw, secretPrefix)
	if !ok {
		return raw
	}
	if r.vault == nil {
		r.logger.Warn("secret reference without a vault passphrase", "secret", name)
		return ""
	}
	sec, err := r.store.GetSecret(name)
	if err != nil || sec == nil {
		r.logger.Warn("secret not found", "secret", name, "error", err)
		return ""
	}
	plain, err := r.vault.Decrypt(sec.Value, sec.Nonce)
	if err != nil {
		r.logger.Warn("failed to decrypt secret", "secret", name, "error", err)
		return ""
	}
	return string(plain)
}

// StoreSecret seals a value and saves it under a name.
func (r *Registry) StoreSecret(name, value string) error {
	if r.vault == nil {
		return fmt.Errorf("no vault passphrase configured")
	}
	ciphertext, nonce, err := r.vault.Encrypt([]byte(value))
	if err != nil {
		return err
	}
	return r.store.SaveSecret(&store.Secret{Name: name, Value: ciphertext, Nonce: nonce})
}
