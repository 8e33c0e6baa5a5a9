package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aviary-ai/aviary/internal/model"
)

type Swarm struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Members   []model.ModelRef `json:"members"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (s *Store) SaveSwarm(sw *Swarm) error {
	members, err := json.Marshal(sw.Members)
	if err != nil {
		return fmt.Errorf("marshal members: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO swarms (id, name, members, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			members = excluded.members,
			updated_at = CURRENT_TIMESTAMP`,
		sw.ID, sw.Name, string(members))
	if err != nil {
		return fmt.Errorf("save swarm: %w", err)
	}
	return nil
}

func (s *Store) GetSwarm(id string) (*Swarm, error) {
	row := s.db.QueryRow(`SELECT id, name, members, created_at, updated_at FROM swarms WHERE id = ?`, id)
	sw, err := scanSwarm(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get swarm: %w", err)
	}
	return sw, nil
}

func (s *Store) ListSwarms() ([]Swarm, error) {
	rows, err := s.db.Query(`SELECT id, name, members, created_at, updated_at FROM swarms ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list swarms: %w", err)
	}
	defer rows.Close()

	var swarms []Swarm
	for rows.Next() {
		sw, err := scanSwarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swarm: %w", err)
		}
		swarms = append(swarms, *sw)
	}
	return swarms, rows.Err()
}

func (s *Store) DeleteSwarm(id string) error {
	_, err := s.db.Exec(`DELETE FROM swarms WHERE id = ?`, id)
	return err
}

func (s *Store) DeleteSwarmsNotIn(ids []string) error {
	return s.deleteNotIn("swarms", ids)
}

func scanSwarm(scanner interface {
	Scan(dest ...any) error
}) (*Swarm, error) {
	sw := &Swarm{}
	var members string
	if err := scanner.Scan(&sw.ID, &sw.Name, &members, &sw.CreatedAt, &sw.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(members), &sw.Members); err != nil {
		return nil, fmt.Errorf("unmarshal members: %w", err)
	}
	return sw, nil
}
