package report

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aviary-ai/aviary/internal/config"
	"github.com/aviary-ai/aviary/internal/model"
	"github.com/aviary-ai/aviary/internal/pricing"
	"github.com/aviary-ai/aviary/internal/provider"
	"github.com/aviary-ai/aviary/internal/store"
)

// fakeCaller returns canned results and can hold selected keys until
// released, to exercise stop semantics.
type fakeCaller struct {
	block map[string]chan struct{}
}

func (c *fakeCaller) Call(ctx context.Context, req provider.Request) model.AgentResult {
	key := req.Unit.Key()
	if ch := c.block[key]; ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return provider.Failed(req.Unit, ctx.Err())
		}
	}
	return model.AgentResult{
		Key:      key,
		Provider: req.Unit.Provider,
		Model:    req.Unit.Model,
		OK:       true,
		Response: "response from " + key,
		Usage:    &model.TokenUsage{InputTokens: 100, OutputTokens: 200},
	}
}

func passthroughBuilder() RequestBuilder {
	return RequestBuilderFunc(func(unit model.ReportModel, prompt string) provider.Request {
		return provider.Request{Unit: unit, Prompt: prompt}
	})
}

func newTestEngine(t *testing.T, caller provider.Caller) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(st, caller, pricing.New(), passthroughBuilder(), nil, logger), st
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func testWorklist() []model.ReportModel {
	return []model.ReportModel{
		{Provider: "openai", Model: "gpt-4o", AgentID: "coder"},
		{Provider: "anthropic", Model: "claude-sonnet-4-20250514", AgentID: "reviewer"},
		{Provider: "openai", Model: "gpt-4o-mini"},
	}
}

func TestRunCompletes(t *testing.T) {
	e, st := newTestEngine(t, &fakeCaller{})

	run, err := e.Start("compare yourselves", testWorklist())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	<-run.Done()

	snap := run.Snapshot()
	if snap.Status != StatusCompleted {
		t.Errorf("expected completed, got '%s'", snap.Status)
	}
	if snap.Completed != 3 || snap.Total != 3 {
		t.Errorf("expected 3/3, got %d/%d", snap.Completed, snap.Total)
	}
	if res, ok := run.Result("swarm:openai:gpt-4o-mini"); !ok || !res.OK {
		t.Errorf("expected ok result for anonymous unit, got %+v", res)
	}

	// The persisted report reaches the terminal state with its results.
	waitFor(t, func() bool {
		r, _ := st.GetReport(run.ID)
		return r != nil && r.Status == StatusCompleted
	})
	r, _ := st.GetReport(run.ID)
	if r.Completed != 3 || len(r.Results) == 0 {
		t.Errorf("unexpected persisted report: %+v", r)
	}
	if r.TotalCost <= 0 || !r.CostEstimated {
		t.Errorf("expected estimated nonzero cost, got %v estimated=%v", r.TotalCost, r.CostEstimated)
	}
}

func TestStartValidation(t *testing.T) {
	e, _ := newTestEngine(t, &fakeCaller{})

	if _, err := e.Start("prompt", nil); err != ErrEmptyWorklist {
		t.Errorf("expected ErrEmptyWorklist, got %v", err)
	}

	dup := []model.ReportModel{
		{Provider: "openai", Model: "gpt-4o"},
		{Provider: "openai", Model: "gpt-4o"},
	}
	if _, err := e.Start("prompt", dup); err == nil {
		t.Error("expected error for duplicate worklist keys")
	}
}

func TestStopDiscardsLateResults(t *testing.T) {
	release := make(chan struct{})
	caller := &fakeCaller{block: map[string]chan struct{}{"reviewer": release}}
	e, st := newTestEngine(t, caller)

	worklist := testWorklist()
	run, err := e.Start("prompt", worklist)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Two fast units land, the third stays in flight.
	waitFor(t, func() bool { return run.Snapshot().Completed == 2 })

	if err := e.Stop(run.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(release)

	snap := run.Snapshot()
	if snap.Status != StatusStopped {
		t.Errorf("expected stopped, got '%s'", snap.Status)
	}

	// The late result is discarded, progress never moves again.
	waitFor(t, func() bool {
		r, _ := st.GetReport(run.ID)
		return r != nil && r.Status == StatusStopped
	})
	if got := run.Snapshot().Completed; got != 2 {
		t.Errorf("expected progress frozen at 2, got %d", got)
	}
	if _, ok := run.Result("reviewer"); ok {
		t.Error("expected no result for the in-flight unit after stop")
	}
}

// eventRecorder captures published progress events.
type eventRecorder struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *eventRecorder) PublishJSON(_ string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := v.(ProgressEvent); ok {
		r.events = append(r.events, ev)
	}
	return nil
}

func (r *eventRecorder) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for _, ev := range r.events {
		if ev.Key != "" {
			keys = append(keys, ev.Key)
		}
	}
	return keys
}

func TestDiscardedResultEmitsNoEvent(t *testing.T) {
	release := make(chan struct{})
	caller := &fakeCaller{block: map[string]chan struct{}{"reviewer": release}}

	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rec := &eventRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(st, caller, pricing.New(), passthroughBuilder(), rec, logger)

	run, err := e.Start("prompt", testWorklist())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return run.Snapshot().Completed == 2 })

	if err := e.Stop(run.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(release)

	// The stopped row keeps the pre-stop progress; wait for the workers to
	// drain, then check the discarded key never surfaced.
	waitFor(t, func() bool {
		r, _ := st.GetReport(run.ID)
		return r != nil && r.Status == StatusStopped
	})
	time.Sleep(20 * time.Millisecond)

	for _, key := range rec.keys() {
		if key == "reviewer" {
			t.Error("discarded result surfaced as a progress event")
		}
	}
	r, _ := st.GetReport(run.ID)
	if r.Completed != 2 {
		t.Errorf("expected persisted progress frozen at 2, got %d", r.Completed)
	}
}

func TestStopUnknownRun(t *testing.T) {
	e, _ := newTestEngine(t, &fakeCaller{})
	if err := e.Stop("no-such-run"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestPublishDuplicate(t *testing.T) {
	run := newRun("r1", "prompt", testWorklist(), func() {})

	res := model.AgentResult{Key: "coder", OK: true}
	if ok, err := run.publish(res); !ok || err != nil {
		t.Fatalf("first publish: ok=%v err=%v", ok, err)
	}
	if ok, err := run.publish(res); ok || err != ErrDuplicateResult {
		t.Errorf("expected rejected duplicate, got ok=%v err=%v", ok, err)
	}
	if run.Snapshot().Completed != 1 {
		t.Errorf("duplicate moved progress: %d", run.Snapshot().Completed)
	}
}

func TestPublishAfterStopRejected(t *testing.T) {
	run := newRun("r1", "prompt", testWorklist(), func() {})
	run.stop()

	ok, err := run.publish(model.AgentResult{Key: "coder", OK: true})
	if ok || err != nil {
		t.Errorf("expected silent rejection after stop, got ok=%v err=%v", ok, err)
	}
	if run.Snapshot().Completed != 0 {
		t.Errorf("rejected publish moved progress: %d", run.Snapshot().Completed)
	}
}

func TestPublishConcurrentSameKey(t *testing.T) {
	run := newRun("r1", "prompt", testWorklist(), func() {})

	const attempts = 50
	var wg sync.WaitGroup
	var accepted atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := run.publish(model.AgentResult{Key: "coder", OK: true}); ok {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Errorf("expected exactly 1 accepted publish, got %d", accepted.Load())
	}
	if run.Snapshot().Completed != 1 {
		t.Errorf("expected progress 1, got %d", run.Snapshot().Completed)
	}
}

func TestOnCompleteFiresOnce(t *testing.T) {
	e, _ := newTestEngine(t, &fakeCaller{})

	var calls atomic.Int32
	var last Snapshot
	var mu sync.Mutex
	e.OnComplete(func(s Snapshot) {
		calls.Add(1)
		mu.Lock()
		last = s
		mu.Unlock()
	})

	run, err := e.Start("prompt", testWorklist())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-run.Done()

	waitFor(t, func() bool { return calls.Load() == 1 })
	mu.Lock()
	defer mu.Unlock()
	if last.ID != run.ID || last.Status != StatusCompleted {
		t.Errorf("unexpected listener snapshot: %+v", last)
	}
}

func TestOnCompleteSkippedWhenStopped(t *testing.T) {
	release := make(chan struct{})
	caller := &fakeCaller{block: map[string]chan struct{}{
		"coder":    release,
		"reviewer": release,
		"swarm:openai:gpt-4o-mini": release,
	}}
	e, st := newTestEngine(t, caller)

	var calls atomic.Int32
	e.OnComplete(func(Snapshot) { calls.Add(1) })

	run, err := e.Start("prompt", testWorklist())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Stop(run.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(release)

	waitFor(t, func() bool {
		r, _ := st.GetReport(run.ID)
		return r != nil && r.Status == StatusStopped
	})
	if calls.Load() != 0 {
		t.Errorf("expected no completion listener calls for a stopped run, got %d", calls.Load())
	}
}
