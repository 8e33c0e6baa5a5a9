package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aviary-ai/aviary/internal/model"
	"github.com/aviary-ai/aviary/internal/report"
	"github.com/aviary-ai/aviary/internal/resolve"
	"github.com/aviary-ai/aviary/internal/schedule"
	"github.com/aviary-ai/aviary/internal/store"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Reports
	mux.HandleFunc("GET /api/reports", s.listReports)
	mux.HandleFunc("POST /api/reports", s.createReport)
	mux.HandleFunc("GET /api/reports/{id}", s.getReport)
	mux.HandleFunc("POST /api/reports/{id}/stop", s.stopReport)
	mux.HandleFunc("DELETE /api/reports/{id}", s.deleteReport)

	// Configured entities (read-only, config is the source of truth)
	mux.HandleFunc("GET /api/agents", s.listAgents)
	mux.HandleFunc("GET /api/agents/{id}", s.getAgent)
	mux.HandleFunc("GET /api/flocks", s.listFlocks)
	mux.HandleFunc("GET /api/swarms", s.listSwarms)

	// Scheduled reports
	mux.HandleFunc("GET /api/schedules", s.listSchedules)
	mux.HandleFunc("POST /api/schedules", s.createSchedule)
	mux.HandleFunc("PUT /api/schedules/{id}", s.updateSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.deleteSchedule)

	// Secrets
	mux.HandleFunc("GET /api/secrets", s.listSecrets)
	mux.HandleFunc("POST /api/secrets", s.createSecret)
	mux.HandleFunc("DELETE /api/secrets/{name}", s.deleteSecret)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListReports()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, reports)
}

func (s *Server) createReport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt    string          `json:"prompt"`
		Selection model.Selection `json:"selection"`
		Params    string          `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Prompt == "" {
		jsonError(w, "prompt is required", http.StatusBadRequest)
		return
	}
	if body.Selection.Empty() {
		jsonError(w, "selection is required", http.StatusBadRequest)
		return
	}

	worklist, err := resolve.Resolve(s.registry, body.Selection)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	worklist = resolve.ApplyParams(worklist, body.Params)

	run, err := s.engine.Start(body.Prompt, worklist)
	if err == report.ErrEmptyWorklist {
		jsonError(w, "selection resolved to no runnable models", http.StatusBadRequest)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, run.Snapshot())
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Live runs answer from memory, finished ones from the store.
	if run, ok := s.engine.Run(id); ok {
		jsonResponse(w, run.Snapshot())
		return
	}

	rep, err := s.store.GetReport(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rep == nil {
		jsonError(w, "report not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, rep)
}

func (s *Server) stopReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Stop(id); err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	jsonResponse(w, map[string]string{"status": "stopped"})
}

func (s *Server) deleteReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if run, ok := s.engine.Run(id); ok && run.Status() == report.StatusRunning {
		jsonError(w, "report is still running", http.StatusConflict)
		return
	}
	if err := s.store.DeleteReport(id); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		out = append(out, map[string]any{
			"id":          a.ID,
			"name":        a.Name,
			"description": a.Description,
			"provider":    a.Provider,
			"model":       a.Model,
			"active":      s.registry.ProviderActive(a.Provider),
		})
	}
	jsonResponse(w, out)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := s.store.GetAgent(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if a == nil {
		jsonError(w, "agent not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, a)
}

func (s *Server) listFlocks(w http.ResponseWriter, r *http.Request) {
	flocks, err := s.store.ListFlocks()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, flocks)
}

func (s *Server) listSwarms(w http.ResponseWriter, r *http.Request) {
	swarms, err := s.store.ListSwarms()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, swarms)
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.store.ListScheduledReports()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(schedules))
	for _, sr := range schedules {
		out = append(out, scheduleToAPI(sr))
	}
	jsonResponse(w, out)
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name      string          `json:"name"`
		Schedule  string          `json:"schedule"`
		Prompt    string          `json:"prompt"`
		Selection model.Selection `json:"selection"`
		Params    string          `json:"params"`
		Enabled   *bool           `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Name == "" || body.Schedule == "" || body.Prompt == "" {
		jsonError(w, "name, schedule, and prompt are required", http.StatusBadRequest)
		return
	}
	if body.Selection.Empty() {
		jsonError(w, "selection is required", http.StatusBadRequest)
		return
	}

	normalized, err := schedule.Normalize(body.Schedule)
	if err != nil {
		jsonError(w, fmt.Sprintf("invalid schedule: %v", err), http.StatusBadRequest)
		return
	}

	status := "active"
	if body.Enabled != nil && !*body.Enabled {
		status = "paused"
	}

	sr := store.ScheduledReport{
		ID:        uuid.New().String(),
		Name:      body.Name,
		Schedule:  normalized,
		Prompt:    body.Prompt,
		Selection: body.Selection,
		ParamsID:  body.Params,
		Status:    status,
	}
	if status == "active" {
		sr.NextRunAt = schedule.NextRun(normalized, time.Now())
	}

	if err := s.store.SaveScheduledReport(&sr); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, scheduleToAPI(sr))
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := s.store.GetScheduledReport(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing == nil {
		jsonError(w, "schedule not found", http.StatusNotFound)
		return
	}

	var body struct {
		Name      *string          `json:"name"`
		Schedule  *string          `json:"schedule"`
		Prompt    *string          `json:"prompt"`
		Selection *model.Selection `json:"selection"`
		Params    *string          `json:"params"`
		Enabled   *bool            `json:"enabled"`
		Status    *string          `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if body.Name != nil {
		existing.Name = *body.Name
	}
	if body.Prompt != nil {
		existing.Prompt = *body.Prompt
	}
	if body.Selection != nil {
		existing.Selection = *body.Selection
	}
	if body.Params != nil {
		existing.ParamsID = *body.Params
	}

	if body.Enabled != nil {
		if *body.Enabled {
			existing.Status = "active"
		} else if existing.Status != "completed" {
			existing.Status = "paused"
		}
	} else if body.Status != nil {
		existing.Status = *body.Status
	}

	if body.Schedule != nil {
		normalized, err := schedule.Normalize(*body.Schedule)
		if err != nil {
			jsonError(w, fmt.Sprintf("invalid schedule: %v", err), http.StatusBadRequest)
			return
		}
		existing.Schedule = normalized
	}

	if existing.Status == "active" {
		existing.NextRunAt = schedule.NextRun(existing.Schedule, time.Now())
	} else {
		existing.NextRunAt = nil
	}

	if err := s.store.SaveScheduledReport(existing); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, scheduleToAPI(*existing))
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteScheduledReport(id); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListSecretNames()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, names)
}

func (s *Server) createSecret(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Name == "" || body.Value == "" {
		jsonError(w, "name and value are required", http.StatusBadRequest)
		return
	}
	if err := s.registry.StoreSecret(body.Name, body.Value); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "saved"})
}

func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.store.DeleteSecret(name); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	agents, _ := s.store.ListAgents()
	flocks, _ := s.store.ListFlocks()
	swarms, _ := s.store.ListSwarms()
	reports, _ := s.store.ListReports()

	running := 0
	for _, run := range s.engine.Runs() {
		if run.Status() == report.StatusRunning {
			running++
		}
	}

	jsonResponse(w, map[string]any{
		"version":        s.version,
		"uptime":         formatUptime(time.Since(s.startedAt)),
		"agents":         len(agents),
		"flocks":         len(flocks),
		"swarms":         len(swarms),
		"reports":        len(reports),
		"running_runs":   running,
		"nats_connected": s.nats != nil,
	})
}

func scheduleToAPI(sr store.ScheduledReport) map[string]any {
	m := map[string]any{
		"id":               sr.ID,
		"name":             sr.Name,
		"schedule":         sr.Schedule,
		"schedule_display": schedule.Describe(sr.Schedule),
		"prompt":           sr.Prompt,
		"selection":        sr.Selection,
		"enabled":          sr.Status == "active",
		"status":           sr.Status,
	}
	if sr.ParamsID != "" {
		m["params"] = sr.ParamsID
	}
	if sr.LastRunAt != nil {
		m["last_run"] = sr.LastRunAt.Local().Format(time.RFC3339)
	}
	if sr.NextRunAt != nil {
		m["next_run"] = sr.NextRunAt.Local().Format(time.RFC3339)
	}
	if sr.LastStatus != "" {
		m["last_status"] = sr.LastStatus
	}
	if sr.LastError != "" {
		m["last_error"] = sr.LastError
	}
	return m
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
