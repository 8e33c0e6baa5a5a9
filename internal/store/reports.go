package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Report struct {
	ID            string          `json:"id"`
	Prompt        string          `json:"prompt"`
	Status        string          `json:"status"`
	Total         int             `json:"total"`
	Completed     int             `json:"completed"`
	Models        json.RawMessage `json:"models"`
	Results       json.RawMessage `json:"results,omitempty"`
	TotalCost     float64         `json:"total_cost"`
	CostEstimated bool            `json:"cost_estimated"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

const reportColumns = `id, prompt, status, total, completed, models, results, total_cost, cost_estimated, started_at, completed_at`

func (s *Store) SaveReport(r *Report) error {
	_, err := s.db.Exec(`
		INSERT INTO reports (id, prompt, status, total, completed, models, results, total_cost, cost_estimated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed = excluded.completed,
			results = excluded.results,
			total_cost = excluded.total_cost,
			cost_estimated = excluded.cost_estimated,
			completed_at = CASE WHEN excluded.status IN ('completed', 'stopped') THEN CURRENT_TIMESTAMP ELSE completed_at END`,
		r.ID, r.Prompt, r.Status, r.Total, r.Completed, string(r.Models), nullableJSON(r.Results), r.TotalCost, boolToInt(r.CostEstimated))
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (s *Store) GetReport(id string) (*Report, error) {
	row := s.db.QueryRow(`SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

func (s *Store) ListReports() ([]Report, error) {
	rows, err := s.db.Query(`SELECT ` + reportColumns + ` FROM reports ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func (s *Store) DeleteReport(id string) error {
	_, err := s.db.Exec(`DELETE FROM reports WHERE id = ?`, id)
	return err
}

func scanReport(scanner interface {
	Scan(dest ...any) error
}) (*Report, error) {
	r := &Report{}
	var models string
	var results *string
	var estimated int
	err := scanner.Scan(&r.ID, &r.Prompt, &r.Status, &r.Total, &r.Completed, &models, &results, &r.TotalCost, &estimated, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	r.Models = json.RawMessage(models)
	if results != nil {
		r.Results = json.RawMessage(*results)
	}
	r.CostEstimated = estimated != 0
	return r, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
