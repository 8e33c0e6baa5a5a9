// Package pricing derives USD cost from token usage. Prices are per million
// tokens, keyed by "provider/model". A builtin table covers common models; a
// yaml file can override or extend it.
package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aviary-ai/aviary/internal/model"
)

// Price is the per-million-token rate for one model.
type Price struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Adapter converts one result into a dollar amount. Estimated is true when
// the amount was derived from token counts rather than reported by the API.
type Adapter interface {
	Cost(res model.AgentResult) (usd float64, estimated bool)
}

// Approximate rates, used for estimation, not billing.
var builtin = map[string]Price{
	// Anthropic
	"anthropic/claude-opus-4-1":            {Input: 15.0, Output: 75.0},
	"anthropic/claude-sonnet-4-20250514":   {Input: 3.0, Output: 15.0},
	"anthropic/claude-3-5-haiku-20241022":  {Input: 0.8, Output: 4.0},
	// OpenAI
	"openai/o3":          {Input: 10.0, Output: 40.0},
	"openai/gpt-4o":      {Input: 2.5, Output: 10.0},
	"openai/gpt-4o-mini": {Input: 0.15, Output: 0.6},
	// DeepSeek
	"deepseek/deepseek-reasoner": {Input: 0.55, Output: 2.19},
	"deepseek/deepseek-chat":     {Input: 0.14, Output: 0.28},
}

var defaultPrice = Price{Input: 3.0, Output: 15.0}

// Table resolves model prices with a fallback default. Immutable after load.
type Table struct {
	prices map[string]Price
	def    Price
}

// New returns a table with the builtin rates.
func New() *Table {
	prices := make(map[string]Price, len(builtin))
	for k, v := range builtin {
		prices[k] = v
	}
	return &Table{prices: prices, def: defaultPrice}
}

type tableFile struct {
	Default *Price           `yaml:"default"`
	Models  map[string]Price `yaml:"models"`
}

// Load returns the builtin table overlaid with rates from a yaml file.
// An empty path returns the builtin table unchanged.
func Load(path string) (*Table, error) {
	t := New()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}

	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pricing file: %w", err)
	}

	if f.Default != nil {
		t.def = *f.Default
	}
	for k, v := range f.Models {
		t.prices[k] = v
	}
	return t, nil
}

// Lookup returns the price for a provider/model pair. The bool is false when
// the pair is not in the table and the default rate was returned.
func (t *Table) Lookup(provider, mdl string) (Price, bool) {
	if p, ok := t.prices[provider+"/"+mdl]; ok {
		return p, true
	}
	return t.def, false
}

// Cost returns the dollar amount for one result. A cost reported by the API
// is taken as-is; otherwise the amount is computed from token counts and the
// table, and marked estimated. Results without usage cost nothing.
func (t *Table) Cost(res model.AgentResult) (float64, bool) {
	if res.Usage == nil {
		return 0, false
	}
	if res.Usage.APICost != nil {
		return *res.Usage.APICost, false
	}
	p, _ := t.Lookup(res.Provider, res.Model)
	usd := float64(res.Usage.InputTokens)/1_000_000*p.Input +
		float64(res.Usage.OutputTokens)/1_000_000*p.Output
	return usd, true
}

// Totals recomputes the run total from scratch. It depends only on the
// results passed in, so repeated calls over the same set give the same
// answer. Estimated is true when any contributing result was estimated.
func Totals(adapter Adapter, results map[string]model.AgentResult) (float64, bool) {
	var total float64
	var estimated bool
	for _, res := range results {
		usd, est := adapter.Cost(res)
		total += usd
		if est {
			estimated = true
		}
	}
	return total, estimated
}
