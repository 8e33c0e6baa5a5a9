package resolve

import (
	"reflect"
	"testing"

	"github.com/aviary-ai/aviary/internal/model"
)

// fakeSettings is an in-memory Settings for resolver tests.
type fakeSettings struct {
	agents    map[string]*model.Agent
	flocks    map[string]*model.Flock
	swarms    map[string]*model.Swarm
	inactives map[string]bool
}

func (f *fakeSettings) Agent(id string) (*model.Agent, error) { return f.agents[id], nil }
func (f *fakeSettings) Flock(id string) (*model.Flock, error) { return f.flocks[id], nil }
func (f *fakeSettings) Swarm(id string) (*model.Swarm, error) { return f.swarms[id], nil }
func (f *fakeSettings) ProviderActive(id string) bool         { return !f.inactives[id] }

func newFakeSettings() *fakeSettings {
	return &fakeSettings{
		agents: map[string]*model.Agent{
			"reviewer": {ID: "reviewer", Provider: "anthropic", Model: "claude-sonnet-4-20250514", ParamsID: "careful"},
			"coder":    {ID: "coder", Provider: "openai", Model: "gpt-4o"},
			"poet":     {ID: "poet", Provider: "mistral", Model: "mistral-large"},
		},
		flocks: map[string]*model.Flock{
			"critics": {ID: "critics", AgentIDs: []string{"reviewer", "coder", "ghost"}, ParamsID: "strict"},
		},
		swarms: map[string]*model.Swarm{
			"cheap": {ID: "cheap", Members: []model.ModelRef{
				{Provider: "openai", Model: "gpt-4o-mini"},
				{Provider: "openai", Model: "gpt-4o"},
			}},
		},
		inactives: map[string]bool{"mistral": true},
	}
}

func TestExpandAgent(t *testing.T) {
	s := newFakeSettings()

	u, err := ExpandAgent(s, "reviewer")
	if err != nil {
		t.Fatalf("expand agent: %v", err)
	}
	if u.AgentID != "reviewer" || u.Provider != "anthropic" || u.ParamsID != "careful" {
		t.Errorf("unexpected unit: %+v", u)
	}
	if u.Key() != "reviewer" {
		t.Errorf("expected key 'reviewer', got '%s'", u.Key())
	}

	// Disabled provider drops the agent without error.
	u, err = ExpandAgent(s, "poet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Errorf("expected nil unit for disabled provider, got %+v", u)
	}

	// Unknown agents resolve to nothing rather than failing the selection.
	u, err = ExpandAgent(s, "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Errorf("expected nil unit for unknown agent, got %+v", u)
	}
}

func TestExpandFlock(t *testing.T) {
	s := newFakeSettings()

	// The stale "ghost" member is skipped, not fatal.
	units, err := ExpandFlock(s, "critics")
	if err != nil {
		t.Fatalf("expand flock: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	// Agent's own params win; the flock's apply to agents without any.
	if units[0].ParamsID != "careful" {
		t.Errorf("expected agent params to win, got '%s'", units[0].ParamsID)
	}
	if units[1].ParamsID != "strict" {
		t.Errorf("expected flock params fallback, got '%s'", units[1].ParamsID)
	}

	units, err = ExpandFlock(s, "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 0 {
		t.Errorf("expected unknown flock to expand to nothing, got %d units", len(units))
	}
}

func TestExpandSwarmKeepsInactiveProviders(t *testing.T) {
	s := newFakeSettings()
	s.swarms["mixed"] = &model.Swarm{ID: "mixed", Members: []model.ModelRef{
		{Provider: "mistral", Model: "mistral-large"},
	}}

	units, err := ExpandSwarm(s, "mixed")
	if err != nil {
		t.Fatalf("expand swarm: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected disabled provider to stay in swarm expansion, got %d units", len(units))
	}
	if units[0].Key() != "swarm:mistral:mistral-large" {
		t.Errorf("unexpected key: %s", units[0].Key())
	}
}

func TestResolveDedup(t *testing.T) {
	s := newFakeSettings()

	// reviewer appears directly and via the flock; gpt-4o appears as an
	// agent, a swarm member and a raw pick. Agent-backed and anonymous
	// units never collapse into each other.
	sel := model.Selection{
		Agents: []string{"reviewer"},
		Flocks: []string{"critics"},
		Swarms: []string{"cheap"},
		Models: []model.ModelRef{{Provider: "openai", Model: "gpt-4o"}},
	}

	units, err := Resolve(s, sel)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	keys := make([]string, len(units))
	for i, u := range units {
		keys[i] = u.Key()
	}
	want := []string{"reviewer", "coder", "swarm:openai:gpt-4o-mini", "swarm:openai:gpt-4o"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("unexpected worklist keys:\n got %v\nwant %v", keys, want)
	}

	// First occurrence keeps its configuration.
	if units[0].ParamsID != "careful" {
		t.Errorf("expected direct expansion to win, got '%s'", units[0].ParamsID)
	}
}

func TestResolveEmptySelection(t *testing.T) {
	units, err := Resolve(newFakeSettings(), model.Selection{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(units) != 0 {
		t.Errorf("expected empty worklist, got %d units", len(units))
	}
}

func TestApplyParams(t *testing.T) {
	units := []model.ReportModel{
		{Provider: "openai", Model: "gpt-4o", AgentID: "coder", ParamsID: "careful"},
		{Provider: "openai", Model: "gpt-4o-mini"},
	}

	// The run-level override replaces per-unit params.
	units = ApplyParams(units, "strict")
	for _, u := range units {
		if u.ParamsID != "strict" {
			t.Errorf("expected override on %s, got '%s'", u.Key(), u.ParamsID)
		}
	}

	// No override leaves units untouched.
	units = ApplyParams(units, "")
	if units[0].ParamsID != "strict" {
		t.Errorf("expected params untouched, got '%s'", units[0].ParamsID)
	}
}

func TestDedupIdempotent(t *testing.T) {
	units := []model.ReportModel{
		{Provider: "openai", Model: "gpt-4o", AgentID: "coder"},
		{Provider: "openai", Model: "gpt-4o"},
		{Provider: "openai", Model: "gpt-4o"},
	}

	once := Dedup(units)
	if len(once) != 2 {
		t.Fatalf("expected 2 units, got %d", len(once))
	}
	twice := Dedup(once)
	if !reflect.DeepEqual(once, twice) {
		t.Error("dedup is not idempotent")
	}
}
