package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Flock struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AgentIDs  []string  `json:"agent_ids"`
	ParamsID  string    `json:"params_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Store) SaveFlock(f *Flock) error {
	agentIDs, err := json.Marshal(f.AgentIDs)
	if err != nil {
		return fmt.Errorf("marshal agent ids: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO flocks (id, name, agent_ids, params_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			agent_ids = excluded.agent_ids,
			params_id = excluded.params_id,
			updated_at = CURRENT_TIMESTAMP`,
		f.ID, f.Name, string(agentIDs), f.ParamsID)
	if err != nil {
		return fmt.Errorf("save flock: %w", err)
	}
	return nil
}

func (s *Store) GetFlock(id string) (*Flock, error) {
	row := s.db.QueryRow(`SELECT id, name, agent_ids, params_id, created_at, updated_at FROM flocks WHERE id = ?`, id)
	f, err := scanFlock(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get flock: %w", err)
	}
	return f, nil
}

func (s *Store) ListFlocks() ([]Flock, error) {
	rows, err := s.db.Query(`SELECT id, name, agent_ids, params_id, created_at, updated_at FROM flocks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list flocks: %w", err)
	}
	defer rows.Close()

	var flocks []Flock
	for rows.Next() {
		f, err := scanFlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flock: %w", err)
		}
		flocks = append(flocks, *f)
	}
	return flocks, rows.Err()
}

func (s *Store) DeleteFlock(id string) error {
	_, err := s.db.Exec(`DELETE FROM flocks WHERE id = ?`, id)
	return err
}

func (s *Store) DeleteFlocksNotIn(ids []string) error {
	return s.deleteNotIn("flocks", ids)
}

func scanFlock(scanner interface {
	Scan(dest ...any) error
}) (*Flock, error) {
	f := &Flock{}
	var agentIDs string
	var paramsID sql.NullString
	if err := scanner.Scan(&f.ID, &f.Name, &agentIDs, &paramsID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(agentIDs), &f.AgentIDs); err != nil {
		return nil, fmt.Errorf("unmarshal agent ids: %w", err)
	}
	f.ParamsID = paramsID.String
	return f, nil
}
