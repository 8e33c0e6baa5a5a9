// Package report runs one prompt against a worklist of models concurrently
// and aggregates the results into a single report.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aviary-ai/aviary/internal/model"
	"github.com/aviary-ai/aviary/internal/natsbus"
	"github.com/aviary-ai/aviary/internal/pricing"
	"github.com/aviary-ai/aviary/internal/provider"
	"github.com/aviary-ai/aviary/internal/store"
)

// RequestBuilder turns a worklist unit into the provider request for it,
// with parameters and credentials resolved.
type RequestBuilder interface {
	RequestFor(unit model.ReportModel, prompt string) provider.Request
}

// RequestBuilderFunc adapts a function to RequestBuilder.
type RequestBuilderFunc func(unit model.ReportModel, prompt string) provider.Request

func (f RequestBuilderFunc) RequestFor(unit model.ReportModel, prompt string) provider.Request {
	return f(unit, prompt)
}

// Events receives progress updates. The NATS client satisfies it.
type Events interface {
	PublishJSON(subject string, v any) error
}

// ProgressEvent is published on every result and on terminal transitions.
type ProgressEvent struct {
	RunID     string  `json:"run_id"`
	Key       string  `json:"key,omitempty"`
	Status    string  `json:"status"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	TotalCost float64 `json:"total_cost"`
}

// Engine starts report runs, fans their worklists out to providers and
// keeps the terminal bookkeeping. Store and events may be nil.
type Engine struct {
	store   *store.Store
	caller  provider.Caller
	prices  pricing.Adapter
	builder RequestBuilder
	events  Events
	logger  *slog.Logger

	mu        sync.Mutex
	runs      map[string]*Run
	listeners []func(Snapshot)
}

func NewEngine(st *store.Store, caller provider.Caller, prices pricing.Adapter, builder RequestBuilder, events Events, logger *slog.Logger) *Engine {
	return &Engine{
		store:   st,
		caller:  caller,
		prices:  prices,
		builder: builder,
		events:  events,
		logger:  logger,
		runs:    make(map[string]*Run),
	}
}

// OnComplete registers a listener called with the final snapshot of every
// run that completes. Stopped runs do not fire listeners.
func (e *Engine) OnComplete(fn func(Snapshot)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// Start launches a run over an already resolved worklist. The run detaches
// from the caller's context; it is stopped explicitly or runs to the end.
func (e *Engine) Start(prompt string, worklist []model.ReportModel) (*Run, error) {
	if len(worklist) == 0 {
		return nil, ErrEmptyWorklist
	}
	seen := make(map[string]struct{}, len(worklist))
	for _, u := range worklist {
		key := u.Key()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate worklist key: %s", key)
		}
		seen[key] = struct{}{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := newRun(uuid.NewString(), prompt, worklist, cancel)

	e.mu.Lock()
	e.runs[run.ID] = run
	e.mu.Unlock()

	e.persist(run)
	e.logger.Info("report run started", "run", run.ID, "models", len(worklist))

	go e.execute(ctx, run)
	return run, nil
}

// Run returns a run by id.
func (e *Engine) Run(id string) (*Run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.runs[id]
	return run, ok
}

// Runs returns all runs the engine knows about.
func (e *Engine) Runs() []*Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Run, 0, len(e.runs))
	for _, r := range e.runs {
		out = append(out, r)
	}
	return out
}

// Stop moves a run to stopped, cancels its outstanding calls and persists
// whatever results have landed.
func (e *Engine) Stop(id string) error {
	run, ok := e.Run(id)
	if !ok {
		return fmt.Errorf("unknown run: %s", id)
	}
	run.stop()
	e.persist(run)
	e.publishProgress(run, "")
	e.logger.Info("report run stopped", "run", run.ID)
	return nil
}

func (e *Engine) execute(ctx context.Context, run *Run) {
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)

	for _, unit := range run.Worklist {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			req := e.builder.RequestFor(unit, run.Prompt)
			res := e.caller.Call(ctx, req)
			ok, err := run.publish(res)
			if err != nil {
				e.logger.Warn("result dropped", "run", run.ID, "key", res.Key, "error", err)
				return nil
			}
			// A result discarded after stop is not part of the run;
			// neither the row nor the event stream should see it.
			if !ok {
				return nil
			}
			e.persist(run)
			e.publishProgress(run, res.Key)
			return nil
		})
	}
	g.Wait()

	snap := run.Snapshot()
	e.persist(run)
	e.publishProgress(run, "")

	if snap.Status != StatusCompleted {
		return
	}

	total, _ := pricing.Totals(e.prices, snap.Results)
	e.logger.Info("report run completed",
		"run", run.ID, "models", snap.Total, "cost_usd", total, "took", time.Since(start))

	e.mu.Lock()
	listeners := make([]func(Snapshot), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// persist recomputes the totals from the current results and upserts the
// report row. The recompute depends only on published results, so saving at
// any point in the run is safe.
func (e *Engine) persist(run *Run) {
	if e.store == nil {
		return
	}
	snap := run.Snapshot()

	models, err := json.Marshal(run.Worklist)
	if err != nil {
		e.logger.Error("failed to marshal worklist", "run", run.ID, "error", err)
		return
	}
	var results json.RawMessage
	if len(snap.Results) > 0 {
		results, err = json.Marshal(snap.Results)
		if err != nil {
			e.logger.Error("failed to marshal results", "run", run.ID, "error", err)
			return
		}
	}
	total, estimated := pricing.Totals(e.prices, snap.Results)

	err = e.store.SaveReport(&store.Report{
		ID:            snap.ID,
		Prompt:        snap.Prompt,
		Status:        snap.Status,
		Total:         snap.Total,
		Completed:     snap.Completed,
		Models:        models,
		Results:       results,
		TotalCost:     total,
		CostEstimated: estimated,
	})
	if err != nil {
		e.logger.Error("failed to save report", "run", run.ID, "error", err)
	}
}

func (e *Engine) publishProgress(run *Run, key string) {
	if e.events == nil {
		return
	}
	snap := run.Snapshot()
	total, _ := pricing.Totals(e.prices, snap.Results)
	err := e.events.PublishJSON(natsbus.TopicEventsReport(run.ID), ProgressEvent{
		RunID:     snap.ID,
		Key:       key,
		Status:    snap.Status,
		Completed: snap.Completed,
		Total:     snap.Total,
		TotalCost: total,
	})
	if err != nil {
		e.logger.Warn("failed to publish progress", "run", run.ID, "error", err)
	}
}
