// Package model holds the shared domain types for report runs: the unit of
// work, the configured entities it is resolved from, and the per-unit result.
package model

import (
	"fmt"
	"time"
)

// ModelRef is a bare (provider, model) pair with no agent identity.
type ModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ReportModel is one unit of work in a report run. AgentID is set when the
// unit comes from a configured agent (own API key, endpoint, parameters);
// empty when it comes from a swarm member or a raw provider/model pick.
type ReportModel struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	AgentID  string `json:"agent_id,omitempty"`
	ParamsID string `json:"params_id,omitempty"`
}

// Key returns the identity used for worklist deduplication and result
// routing. Agent-backed units are keyed by agent id; anonymous units by
// provider and model.
func (m ReportModel) Key() string {
	if m.AgentID != "" {
		return m.AgentID
	}
	return fmt.Sprintf("swarm:%s:%s", m.Provider, m.Model)
}

// Parameters are the sampling parameters applied to one provider call.
type Parameters struct {
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
}

// TokenUsage is the billing-relevant usage reported for one call. APICost is
// set only when the provider reports a billed amount itself; otherwise cost
// is derived from token counts and the pricing table.
type TokenUsage struct {
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	APICost      *float64 `json:"api_cost,omitempty"`
}

// AgentResult is the outcome of exactly one worklist unit. Immutable once
// published into a run.
type AgentResult struct {
	Key      string        `json:"key"`
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	OK       bool          `json:"ok"`
	Response string        `json:"response,omitempty"`
	Err      string        `json:"error,omitempty"`
	Usage    *TokenUsage   `json:"usage,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Agent is a fully-configured unit: provider, model, credentials, parameters.
type Agent struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"-"`
	Endpoint string `json:"endpoint,omitempty"`
	ParamsID string `json:"params_id,omitempty"`
}

// Flock is a named, ordered group of agents.
type Flock struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	AgentIDs []string `json:"agent_ids"`
	ParamsID string   `json:"params_id,omitempty"`
}

// Swarm is a named set of provider/model pairs without agent identity.
type Swarm struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Members []ModelRef `json:"members"`
}

// Selection is what a caller asks to run a report against. Any combination
// of the four kinds may be present.
type Selection struct {
	Agents []string   `json:"agents,omitempty"`
	Flocks []string   `json:"flocks,omitempty"`
	Swarms []string   `json:"swarms,omitempty"`
	Models []ModelRef `json:"models,omitempty"`
}

// Empty reports whether the selection names nothing at all.
func (s Selection) Empty() bool {
	return len(s.Agents) == 0 && len(s.Flocks) == 0 && len(s.Swarms) == 0 && len(s.Models) == 0
}
