package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/aviary-ai/aviary/internal/config"
	"github.com/aviary-ai/aviary/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(config.StoreConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAgentCRUD(t *testing.T) {
	s := newTestStore(t)

	a := &Agent{ID: "reviewer", Name: "Reviewer", Provider: "anthropic", Model: "claude-sonnet-4-20250514", ParamsID: "careful"}
	if err := s.SaveAgent(a); err != nil {
		t.Fatalf("save agent: %v", err)
	}

	got, err := s.GetAgent("reviewer")
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if got == nil {
		t.Fatal("expected agent, got nil")
	}
	if got.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic', got '%s'", got.Provider)
	}
	if got.ParamsID != "careful" {
		t.Errorf("expected params_id 'careful', got '%s'", got.ParamsID)
	}

	// Update
	a.Model = "claude-opus-4-1"
	if err := s.SaveAgent(a); err != nil {
		t.Fatalf("update agent: %v", err)
	}
	got, _ = s.GetAgent("reviewer")
	if got.Model != "claude-opus-4-1" {
		t.Errorf("expected updated model, got '%s'", got.Model)
	}

	// Not found
	got, err = s.GetAgent("nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent agent")
	}

	// DeleteAgentsNotIn
	_ = s.SaveAgent(&Agent{ID: "coder", Name: "Coder", Provider: "openai", Model: "gpt-4o"})
	_ = s.SaveAgent(&Agent{ID: "poet", Name: "Poet", Provider: "openai", Model: "gpt-4o-mini"})
	if err := s.DeleteAgentsNotIn([]string{"reviewer", "coder"}); err != nil {
		t.Fatalf("delete agents not in: %v", err)
	}
	agents, _ := s.ListAgents()
	if len(agents) != 2 {
		t.Errorf("expected 2 agents after delete, got %d", len(agents))
	}
}

func TestFlockCRUD(t *testing.T) {
	s := newTestStore(t)

	f := &Flock{ID: "critics", Name: "Critics", AgentIDs: []string{"reviewer", "coder"}}
	if err := s.SaveFlock(f); err != nil {
		t.Fatalf("save flock: %v", err)
	}

	got, err := s.GetFlock("critics")
	if err != nil {
		t.Fatalf("get flock: %v", err)
	}
	if got == nil {
		t.Fatal("expected flock, got nil")
	}
	if len(got.AgentIDs) != 2 || got.AgentIDs[0] != "reviewer" {
		t.Errorf("unexpected agent ids: %v", got.AgentIDs)
	}

	flocks, _ := s.ListFlocks()
	if len(flocks) != 1 {
		t.Errorf("expected 1 flock, got %d", len(flocks))
	}

	if err := s.DeleteFlock("critics"); err != nil {
		t.Fatalf("delete flock: %v", err)
	}
	got, _ = s.GetFlock("critics")
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestSwarmCRUD(t *testing.T) {
	s := newTestStore(t)

	sw := &Swarm{ID: "cheap", Name: "Cheap models", Members: []model.ModelRef{
		{Provider: "openai", Model: "gpt-4o-mini"},
		{Provider: "anthropic", Model: "claude-haiku-3-5"},
	}}
	if err := s.SaveSwarm(sw); err != nil {
		t.Fatalf("save swarm: %v", err)
	}

	got, err := s.GetSwarm("cheap")
	if err != nil {
		t.Fatalf("get swarm: %v", err)
	}
	if got == nil {
		t.Fatal("expected swarm, got nil")
	}
	if len(got.Members) != 2 || got.Members[1].Provider != "anthropic" {
		t.Errorf("unexpected members: %v", got.Members)
	}
}

func TestReportCRUD(t *testing.T) {
	s := newTestStore(t)

	models, _ := json.Marshal([]model.ReportModel{{Provider: "openai", Model: "gpt-4o"}})
	r := &Report{
		ID:     "rep-1",
		Prompt: "compare yourselves",
		Status: "running",
		Total:  3,
		Models: models,
	}
	if err := s.SaveReport(r); err != nil {
		t.Fatalf("save report: %v", err)
	}

	got, err := s.GetReport("rep-1")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if got.Status != "running" || got.Total != 3 {
		t.Errorf("unexpected report: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Error("expected nil completed_at while running")
	}

	// Complete
	results, _ := json.Marshal(map[string]model.AgentResult{"a1": {Key: "a1", OK: true}})
	r.Status = "completed"
	r.Completed = 3
	r.Results = results
	r.TotalCost = 0.0123
	if err := s.SaveReport(r); err != nil {
		t.Fatalf("update report: %v", err)
	}

	got, _ = s.GetReport("rep-1")
	if got.Status != "completed" || got.Completed != 3 {
		t.Errorf("unexpected completed report: %+v", got)
	}
	if got.TotalCost != 0.0123 {
		t.Errorf("expected total cost 0.0123, got %v", got.TotalCost)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	// List + delete
	reports, _ := s.ListReports()
	if len(reports) != 1 {
		t.Errorf("expected 1 report, got %d", len(reports))
	}
	if err := s.DeleteReport("rep-1"); err != nil {
		t.Fatalf("delete report: %v", err)
	}
	got, _ = s.GetReport("rep-1")
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestScheduledReportCRUD(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	nextRun := now.Add(-1 * time.Minute) // Due now
	r := &ScheduledReport{
		ID:        "sched-1",
		Name:      "Nightly digest",
		Schedule:  `{"kind":"interval","interval_ms":60000}`,
		Prompt:    "summarize the day",
		Selection: model.Selection{Flocks: []string{"critics"}},
		Status:    "active",
		NextRunAt: &nextRun,
	}
	if err := s.SaveScheduledReport(r); err != nil {
		t.Fatalf("save scheduled report: %v", err)
	}

	got, err := s.GetScheduledReport("sched-1")
	if err != nil {
		t.Fatalf("get scheduled report: %v", err)
	}
	if got.Name != "Nightly digest" {
		t.Errorf("expected 'Nightly digest', got '%s'", got.Name)
	}
	if len(got.Selection.Flocks) != 1 || got.Selection.Flocks[0] != "critics" {
		t.Errorf("unexpected selection: %+v", got.Selection)
	}

	// Due
	due, err := s.GetDueScheduledReports(time.Now())
	if err != nil {
		t.Fatalf("get due: %v", err)
	}
	if len(due) != 1 {
		t.Errorf("expected 1 due schedule, got %d", len(due))
	}

	// Pause
	_ = s.UpdateScheduledReportStatus("sched-1", "paused")
	due, _ = s.GetDueScheduledReports(time.Now())
	if len(due) != 0 {
		t.Errorf("expected 0 due schedules after pause, got %d", len(due))
	}

	// Run bookkeeping
	future := now.Add(time.Hour)
	if err := s.UpdateScheduledReportRun("sched-1", "success", "", &future); err != nil {
		t.Fatalf("update run: %v", err)
	}
	got, _ = s.GetScheduledReport("sched-1")
	if got.LastStatus != "success" {
		t.Errorf("expected last_status success, got '%s'", got.LastStatus)
	}
	if got.LastRunAt == nil {
		t.Error("expected last_run_at to be set")
	}
}

func TestSecretCRUD(t *testing.T) {
	s := newTestStore(t)

	sec := &Secret{Name: "openai-key", Value: []byte{1, 2, 3}, Nonce: []byte{4, 5, 6}}
	if err := s.SaveSecret(sec); err != nil {
		t.Fatalf("save secret: %v", err)
	}

	got, err := s.GetSecret("openai-key")
	if err != nil {
		t.Fatalf("get secret: %v", err)
	}
	if got == nil || len(got.Value) != 3 {
		t.Fatalf("unexpected secret: %+v", got)
	}

	names, _ := s.ListSecretNames()
	if len(names) != 1 || names[0] != "openai-key" {
		t.Errorf("unexpected names: %v", names)
	}

	if err := s.DeleteSecret("openai-key"); err != nil {
		t.Fatalf("delete secret: %v", err)
	}
	got, _ = s.GetSecret("openai-key")
	if got != nil {
		t.Error("expected nil after delete")
	}
}
