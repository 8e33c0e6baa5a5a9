package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aviary-ai/aviary/internal/model"
)

// Run statuses. A run leaves "running" exactly once and never comes back.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
)

var (
	// ErrEmptyWorklist is returned when a selection resolves to nothing.
	ErrEmptyWorklist = errors.New("report worklist is empty")
	// ErrDuplicateResult is returned when a second result arrives for a key.
	ErrDuplicateResult = errors.New("duplicate result for worklist key")
)

// Run is one report in flight. All mutable state sits behind the mutex;
// the done channel closes when the run reaches a terminal status.
type Run struct {
	ID        string
	Prompt    string
	Worklist  []model.ReportModel
	StartedAt time.Time

	mu        sync.Mutex
	status    string
	results   map[string]model.AgentResult
	completed int
	stopped   bool

	done   chan struct{}
	cancel context.CancelFunc
}

// Snapshot is a consistent copy of a run's progress.
type Snapshot struct {
	ID        string                       `json:"id"`
	Prompt    string                       `json:"prompt"`
	Status    string                       `json:"status"`
	Completed int                          `json:"completed"`
	Total     int                          `json:"total"`
	Results   map[string]model.AgentResult `json:"results"`
	StartedAt time.Time                    `json:"started_at"`
}

func newRun(id, prompt string, worklist []model.ReportModel, cancel context.CancelFunc) *Run {
	return &Run{
		ID:        id,
		Prompt:    prompt,
		Worklist:  worklist,
		StartedAt: time.Now(),
		status:    StatusRunning,
		results:   make(map[string]model.AgentResult, len(worklist)),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

// publish records one result and reports whether it was accepted. Results
// arriving after the run left the running state are discarded without
// error. A second result for the same key is ErrDuplicateResult. When the
// last outstanding key lands the run completes and done closes.
func (r *Run) publish(res model.AgentResult) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusRunning {
		return false, nil
	}
	if _, dup := r.results[res.Key]; dup {
		return false, ErrDuplicateResult
	}

	r.results[res.Key] = res
	r.completed++
	if r.completed == len(r.Worklist) {
		r.status = StatusCompleted
		close(r.done)
	}
	return true, nil
}

// stop moves the run to stopped and cancels outstanding calls. Safe to call
// more than once; a no-op after completion.
func (r *Run) stop() {
	r.mu.Lock()
	if r.status == StatusRunning {
		r.status = StatusStopped
		r.stopped = true
		close(r.done)
	}
	r.mu.Unlock()
	r.cancel()
}

// Snapshot returns a consistent copy of the run's progress.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	results := make(map[string]model.AgentResult, len(r.results))
	for k, v := range r.results {
		results[k] = v
	}
	return Snapshot{
		ID:        r.ID,
		Prompt:    r.Prompt,
		Status:    r.status,
		Completed: r.completed,
		Total:     len(r.Worklist),
		Results:   results,
		StartedAt: r.StartedAt,
	}
}

// Status returns the run's current status.
func (r *Run) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Result returns the published result for a key, if any.
func (r *Run) Result(key string) (model.AgentResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[key]
	return res, ok
}

// Done closes when the run reaches completed or stopped.
func (r *Run) Done() <-chan struct{} {
	return r.done
}
