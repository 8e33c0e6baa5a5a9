package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Endpoint    string    `json:"endpoint,omitempty"`
	ParamsID    string    `json:"params_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Store) SaveAgent(a *Agent) error {
	_, err := s.db.Exec(`
		INSERT INTO agents (id, name, description, provider, model, endpoint, params_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			provider = excluded.provider,
			model = excluded.model,
			endpoint = excluded.endpoint,
			params_id = excluded.params_id,
			updated_at = CURRENT_TIMESTAMP`,
		a.ID, a.Name, a.Description, a.Provider, a.Model, a.Endpoint, a.ParamsID)
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

func (s *Store) GetAgent(id string) (*Agent, error) {
	a := &Agent{}
	var description, endpoint, paramsID sql.NullString
	err := s.db.QueryRow(`SELECT id, name, description, provider, model, endpoint, params_id, created_at, updated_at FROM agents WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &description, &a.Provider, &a.Model, &endpoint, &paramsID, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	a.Description = description.String
	a.Endpoint = endpoint.String
	a.ParamsID = paramsID.String
	return a, nil
}

func (s *Store) ListAgents() ([]Agent, error) {
	rows, err := s.db.Query(`SELECT id, name, description, provider, model, endpoint, params_id, created_at, updated_at FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var a Agent
		var description, endpoint, paramsID sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &description, &a.Provider, &a.Model, &endpoint, &paramsID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Description = description.String
		a.Endpoint = endpoint.String
		a.ParamsID = paramsID.String
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *Store) DeleteAgent(id string) error {
	_, err := s.db.Exec(`DELETE FROM agents WHERE id = ?`, id)
	return err
}

func (s *Store) DeleteAgentsNotIn(ids []string) error {
	return s.deleteNotIn("agents", ids)
}

func (s *Store) deleteNotIn(table string, ids []string) error {
	if len(ids) == 0 {
		_, err := s.db.Exec(`DELETE FROM ` + table)
		return err
	}
	query := `DELETE FROM ` + table + ` WHERE id NOT IN (`
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ")"
	_, err := s.db.Exec(query, args...)
	return err
}
