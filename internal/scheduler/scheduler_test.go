package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/aviary-ai/aviary/internal/config"
	"github.com/aviary-ai/aviary/internal/model"
	"github.com/aviary-ai/aviary/internal/pricing"
	"github.com/aviary-ai/aviary/internal/provider"
	"github.com/aviary-ai/aviary/internal/report"
	"github.com/aviary-ai/aviary/internal/store"
)

type okCaller struct{}

func (okCaller) Call(_ context.Context, req provider.Request) model.AgentResult {
	return model.AgentResult{
		Key: req.Unit.Key(), Provider: req.Unit.Provider, Model: req.Unit.Model,
		OK: true, Response: "done",
	}
}

type emptySettings struct{}

func (emptySettings) Agent(string) (*model.Agent, error) { return nil, nil }
func (emptySettings) Flock(string) (*model.Flock, error) { return nil, nil }
func (emptySettings) Swarm(string) (*model.Swarm, error) { return nil, nil }
func (emptySettings) ProviderActive(string) bool         { return true }

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store, *report.Engine) {
	t.Helper()
	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder := report.RequestBuilderFunc(func(unit model.ReportModel, prompt string) provider.Request {
		return provider.Request{Unit: unit, Prompt: prompt}
	})
	engine := report.NewEngine(st, okCaller{}, pricing.New(), builder, nil, logger)

	s := New(st, engine, emptySettings{}, nil, config.SchedulerConfig{PollInterval: 10 * time.Millisecond})
	return s, st, engine
}

func dueAt(t time.Time) *time.Time { return &t }

func TestExecuteLaunchesRun(t *testing.T) {
	s, st, engine := newTestScheduler(t)

	sr := store.ScheduledReport{
		ID:        "sched-1",
		Name:      "Nightly digest",
		Schedule:  `{"kind":"interval","interval_ms":60000}`,
		Prompt:    "summarize",
		Selection: model.Selection{Models: []model.ModelRef{{Provider: "openai", Model: "gpt-4o"}}},
		Status:    "active",
		NextRunAt: dueAt(time.Now().Add(-time.Second)),
	}
	if err := st.SaveScheduledReport(&sr); err != nil {
		t.Fatalf("save: %v", err)
	}

	s.execute(sr)

	runs := engine.Runs()
	if len(runs) != 1 {
		t.Fatalf("expected 1 run launched, got %d", len(runs))
	}
	<-runs[0].Done()
	if runs[0].Snapshot().Status != report.StatusCompleted {
		t.Errorf("expected completed run, got %s", runs[0].Snapshot().Status)
	}

	got, _ := st.GetScheduledReport("sched-1")
	if got.LastStatus != "success" {
		t.Errorf("expected last_status success, got '%s' (%s)", got.LastStatus, got.LastError)
	}
	if got.NextRunAt == nil || !got.NextRunAt.After(time.Now()) {
		t.Errorf("expected future next run, got %v", got.NextRunAt)
	}
	if got.Status != "active" {
		t.Errorf("expected schedule to stay active, got '%s'", got.Status)
	}
}

func TestExecuteEmptySelectionRecordsError(t *testing.T) {
	s, st, engine := newTestScheduler(t)

	sr := store.ScheduledReport{
		ID:        "sched-2",
		Name:      "Empty",
		Schedule:  `{"kind":"interval","interval_ms":60000}`,
		Prompt:    "nothing to do",
		Status:    "active",
		NextRunAt: dueAt(time.Now().Add(-time.Second)),
	}
	if err := st.SaveScheduledReport(&sr); err != nil {
		t.Fatalf("save: %v", err)
	}

	s.execute(sr)

	if len(engine.Runs()) != 0 {
		t.Error("expected no run for empty selection")
	}
	got, _ := st.GetScheduledReport("sched-2")
	if got.LastStatus != "error" || got.LastError == "" {
		t.Errorf("expected recorded error, got '%s' / '%s'", got.LastStatus, got.LastError)
	}
}

func TestExecuteOnceScheduleCompletes(t *testing.T) {
	s, st, _ := newTestScheduler(t)

	// A once schedule in the past has no next run after it fires.
	past := time.Now().Add(-time.Hour).UnixMilli()
	sr := store.ScheduledReport{
		ID:        "sched-3",
		Name:      "One shot",
		Schedule:  fmt.Sprintf(`{"kind":"once","at_ms":%d}`, past),
		Prompt:    "run once",
		Selection: model.Selection{Models: []model.ModelRef{{Provider: "openai", Model: "gpt-4o"}}},
		Status:    "active",
		NextRunAt: dueAt(time.Now().Add(-time.Second)),
	}
	if err := st.SaveScheduledReport(&sr); err != nil {
		t.Fatalf("save: %v", err)
	}

	s.execute(sr)

	got, _ := st.GetScheduledReport("sched-3")
	if got.Status != "completed" {
		t.Errorf("expected completed schedule, got '%s'", got.Status)
	}
	if got.NextRunAt != nil {
		t.Errorf("expected no next run, got %v", got.NextRunAt)
	}
}

func TestStartPollsDueSchedules(t *testing.T) {
	s, st, engine := newTestScheduler(t)

	sr := store.ScheduledReport{
		ID:        "sched-4",
		Name:      "Polled",
		Schedule:  `{"kind":"interval","interval_ms":3600000}`,
		Prompt:    "poll me",
		Selection: model.Selection{Models: []model.ModelRef{{Provider: "openai", Model: "gpt-4o"}}},
		Status:    "active",
		NextRunAt: dueAt(time.Now().Add(-time.Second)),
	}
	if err := st.SaveScheduledReport(&sr); err != nil {
		t.Fatalf("save: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(engine.Runs()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	if len(engine.Runs()) != 1 {
		t.Fatalf("expected 1 run from polling, got %d", len(engine.Runs()))
	}
}
