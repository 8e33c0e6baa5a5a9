package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aviary-ai/aviary/internal/model"
)

type ScheduledReport struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Schedule   string          `json:"schedule"`
	Prompt     string          `json:"prompt"`
	Selection  model.Selection `json:"selection"`
	ParamsID   string          `json:"params_id,omitempty"`
	Status     string          `json:"status"`
	NextRunAt  *time.Time      `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time      `json:"last_run_at,omitempty"`
	LastStatus string          `json:"last_status,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

const scheduleColumns = `id, name, schedule, prompt, selection, params_id, status, next_run_at, last_run_at, last_status, last_error, created_at`

func (s *Store) SaveScheduledReport(r *ScheduledReport) error {
	selection, err := json.Marshal(r.Selection)
	if err != nil {
		return fmt.Errorf("marshal selection: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO scheduled_reports (id, name, schedule, prompt, selection, params_id, status, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			schedule = excluded.schedule,
			prompt = excluded.prompt,
			selection = excluded.selection,
			params_id = excluded.params_id,
			status = excluded.status,
			next_run_at = excluded.next_run_at`,
		r.ID, r.Name, r.Schedule, r.Prompt, string(selection), r.ParamsID, r.Status, r.NextRunAt)
	if err != nil {
		return fmt.Errorf("save scheduled report: %w", err)
	}
	return nil
}

func (s *Store) GetScheduledReport(id string) (*ScheduledReport, error) {
	row := s.db.QueryRow(`SELECT `+scheduleColumns+` FROM scheduled_reports WHERE id = ?`, id)
	r, err := scanScheduledReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scheduled report: %w", err)
	}
	return r, nil
}

func (s *Store) ListScheduledReports() ([]ScheduledReport, error) {
	rows, err := s.db.Query(`SELECT ` + scheduleColumns + ` FROM scheduled_reports ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled reports: %w", err)
	}
	defer rows.Close()
	return collectScheduledReports(rows)
}

// GetDueScheduledReports returns active schedules whose next run time has passed.
func (s *Store) GetDueScheduledReports(now time.Time) ([]ScheduledReport, error) {
	rows, err := s.db.Query(`
		SELECT `+scheduleColumns+` FROM scheduled_reports
		WHERE status = 'active' AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at`, now)
	if err != nil {
		return nil, fmt.Errorf("get due scheduled reports: %w", err)
	}
	defer rows.Close()
	return collectScheduledReports(rows)
}

func (s *Store) UpdateScheduledReportRun(id, lastStatus, lastError string, nextRun *time.Time) error {
	_, err := s.db.Exec(`
		UPDATE scheduled_reports
		SET last_run_at = CURRENT_TIMESTAMP, last_status = ?, last_error = ?, next_run_at = ?
		WHERE id = ?`, lastStatus, lastError, nextRun, id)
	return err
}

func (s *Store) UpdateScheduledReportStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE scheduled_reports SET status = ? WHERE id = ?`, status, id)
	return err
}

func (s *Store) DeleteScheduledReport(id string) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_reports WHERE id = ?`, id)
	return err
}

func collectScheduledReports(rows *sql.Rows) ([]ScheduledReport, error) {
	var reports []ScheduledReport
	for rows.Next() {
		r, err := scanScheduledReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func scanScheduledReport(scanner interface {
	Scan(dest ...any) error
}) (*ScheduledReport, error) {
	r := &ScheduledReport{}
	var selection string
	var paramsID, lastStatus, lastError sql.NullString
	err := scanner.Scan(&r.ID, &r.Name, &r.Schedule, &r.Prompt, &selection, &paramsID, &r.Status,
		&r.NextRunAt, &r.LastRunAt, &lastStatus, &lastError, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(selection), &r.Selection); err != nil {
		return nil, fmt.Errorf("unmarshal selection: %w", err)
	}
	r.ParamsID = paramsID.String
	r.LastStatus = lastStatus.String
	r.LastError = lastError.String
	return r, nil
}
