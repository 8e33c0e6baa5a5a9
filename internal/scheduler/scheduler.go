// Package scheduler polls for due scheduled reports and launches their runs.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/aviary-ai/aviary/internal/config"
	"github.com/aviary-ai/aviary/internal/natsbus"
	"github.com/aviary-ai/aviary/internal/report"
	"github.com/aviary-ai/aviary/internal/resolve"
	"github.com/aviary-ai/aviary/internal/schedule"
	"github.com/aviary-ai/aviary/internal/store"
)

type Scheduler struct {
	store        *store.Store
	engine       *report.Engine
	settings     resolve.Settings
	events       report.Events
	pollInterval time.Duration
	reloadCh     chan struct{}
}

func New(s *store.Store, engine *report.Engine, settings resolve.Settings, events report.Events, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:        s,
		engine:       engine,
		settings:     settings,
		events:       events,
		pollInterval: cfg.PollInterval,
		reloadCh:     make(chan struct{}, 1),
	}
}

// UpdateConfig changes the poll interval and signals the run loop to reset
// its ticker.
func (s *Scheduler) UpdateConfig(pollInterval time.Duration) {
	s.pollInterval = pollInterval
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.pollInterval == 0 {
		s.pollInterval = 30 * time.Second
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-s.reloadCh:
			ticker.Reset(s.pollInterval)
			slog.Info("scheduler config reloaded", "poll_interval", s.pollInterval)
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *Scheduler) poll() {
	due, err := s.store.GetDueScheduledReports(time.Now())
	if err != nil {
		slog.Error("failed to get due scheduled reports", "error", err)
		return
	}
	for _, sr := range due {
		s.execute(sr)
	}
}

func (s *Scheduler) execute(sr store.ScheduledReport) {
	slog.Info("launching scheduled report", "id", sr.ID, "name", sr.Name)

	lastStatus := "success"
	var lastError string
	var runID string

	worklist, err := resolve.Resolve(s.settings, sr.Selection)
	if err == nil {
		worklist = resolve.ApplyParams(worklist, sr.ParamsID)
		var run *report.Run
		run, err = s.engine.Start(sr.Prompt, worklist)
		if run != nil {
			runID = run.ID
		}
	}
	if err != nil {
		lastStatus = "error"
		lastError = err.Error()
		slog.Error("scheduled report failed to launch", "id", sr.ID, "error", err)
	}

	nextRun := schedule.NextRun(sr.Schedule, time.Now())
	if err := s.store.UpdateScheduledReportRun(sr.ID, lastStatus, lastError, nextRun); err != nil {
		slog.Error("failed to update scheduled report", "id", sr.ID, "error", err)
	}

	s.publishExecuted(sr, runID, lastStatus)

	// One-off schedules with no next run are done.
	if nextRun == nil {
		slog.Info("no next run, marking scheduled report completed", "id", sr.ID, "name", sr.Name)
		if err := s.store.UpdateScheduledReportStatus(sr.ID, "completed"); err != nil {
			slog.Error("failed to complete scheduled report", "id", sr.ID, "error", err)
		}
	}
}

func (s *Scheduler) publishExecuted(sr store.ScheduledReport, runID, status string) {
	if s.events == nil {
		return
	}
	event := map[string]any{
		"type":      "schedule_executed",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"id":     sr.ID,
			"name":   sr.Name,
			"run_id": runID,
			"status": status,
		},
	}
	if err := s.events.PublishJSON(natsbus.TopicEventsScheduleExecuted, event); err != nil {
		slog.Error("failed to publish schedule event", "id", sr.ID, "error", err)
	}
}
