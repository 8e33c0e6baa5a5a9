// Package provider dispatches one unit of work to the AI provider backing
// it and normalizes the outcome into a result.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aviary-ai/aviary/internal/config"
	"github.com/aviary-ai/aviary/internal/model"
)

// Request is one completion call: the unit being run, the shared prompt and
// the parameters and credentials resolved for it. APIKey and BaseURL, when
// set, override the provider's configured ones.
type Request struct {
	Unit    model.ReportModel
	Prompt  string
	Params  model.Parameters
	APIKey  string
	BaseURL string
}

// Client is one provider backend.
type Client interface {
	Complete(ctx context.Context, req Request) (response string, usage *model.TokenUsage, err error)
}

// Caller runs a request end to end and always produces a result, failed or
// not. The report engine depends on this, not on concrete backends.
type Caller interface {
	Call(ctx context.Context, req Request) model.AgentResult
}

// Registry maps provider ids to clients and implements Caller.
type Registry struct {
	clients map[string]Client
	logger  *slog.Logger
}

// NewRegistry builds clients for every enabled provider in the config.
// Unsupported kinds are skipped with a warning.
func NewRegistry(providers map[string]config.ProviderConfig, logger *slog.Logger) *Registry {
	r := &Registry{
		clients: make(map[string]Client),
		logger:  logger,
	}
	for id, p := range providers {
		if p.Disabled {
			continue
		}
		switch p.Kind {
		case "openai", "openai-compatible":
			r.clients[id] = &OpenAI{apiKey: p.APIKey, baseURL: p.BaseURL}
		case "anthropic":
			r.clients[id] = &Anthropic{apiKey: p.APIKey}
		default:
			logger.Warn("skipping provider with unsupported kind", "provider", id, "kind", p.Kind)
		}
	}
	return r
}

// Register adds or replaces a client. Used by tests and config reload.
func (r *Registry) Register(id string, c Client) {
	r.clients[id] = c
}

// Active reports whether a provider id has a usable client.
func (r *Registry) Active(id string) bool {
	_, ok := r.clients[id]
	return ok
}

// Call dispatches the request and wraps the outcome. An unconfigured
// provider or a failed call becomes a failed result, never an error.
func (r *Registry) Call(ctx context.Context, req Request) model.AgentResult {
	client, ok := r.clients[req.Unit.Provider]
	if !ok {
		return Failed(req.Unit, fmt.Errorf("provider not configured: %s", req.Unit.Provider))
	}

	start := time.Now()
	response, usage, err := client.Complete(ctx, req)
	duration := time.Since(start)

	if err != nil {
		r.logger.Warn("provider call failed",
			"provider", req.Unit.Provider, "model", req.Unit.Model, "error", err)
		res := Failed(req.Unit, err)
		res.Duration = duration
		return res
	}

	return model.AgentResult{
		Key:      req.Unit.Key(),
		Provider: req.Unit.Provider,
		Model:    req.Unit.Model,
		OK:       true,
		Response: response,
		Usage:    usage,
		Duration: duration,
	}
}

// Failed returns the failed result for a unit.
func Failed(unit model.ReportModel, err error) model.AgentResult {
	return model.AgentResult{
		Key:      unit.Key(),
		Provider: unit.Provider,
		Model:    unit.Model,
		Err:      err.Error(),
	}
}
