// Package store keeps the history of terminal sessions in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sweeney/sos-trigger/internal/logic"
)

// ErrNotFound is returned when an incident does not exist.
var ErrNotFound = errors.New("store: incident not found")

const schema = `
CREATE TABLE IF NOT EXISTS incidents (
    id                  TEXT PRIMARY KEY,
    source              TEXT NOT NULL,
    status              TEXT NOT NULL,
    level               INTEGER NOT NULL,
    additional_presses  INTEGER NOT NULL,
    started_at_ns       INTEGER NOT NULL,
    ended_at_ns         INTEGER NOT NULL,
    reason              TEXT NOT NULL,
    responses           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_incidents_ended ON incidents(ended_at_ns);
`

// Incident is one terminal session.
type Incident struct {
	ID                string
	Source            string
	Status            logic.Status
	Level             int
	AdditionalPresses int
	StartedAt         time.Time
	EndedAt           time.Time
	Reason            string
	Responses         []logic.Response
}

// FromTerminal converts a terminal notification.
func FromTerminal(ev logic.TerminalEvent) Incident {
	return Incident{
		ID:                ev.SessionID,
		Source:            ev.Source,
		Status:            ev.Status,
		Level:             ev.Level,
		AdditionalPresses: ev.AdditionalPresses,
		StartedAt:         ev.StartedAt,
		EndedAt:           ev.EndedAt,
		Reason:            ev.Reason,
		Responses:         ev.Responses,
	}
}

// Store represents the SQLite incident store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and applies the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record inserts an incident, replacing any row with the same id.
func (s *Store) Record(ctx context.Context, in Incident) error {
	if in.ID == "" {
		return errors.New("store: incident id is required")
	}
	responses, err := json.Marshal(nonNilResponses(in.Responses))
	if err != nil {
		return fmt.Errorf("encode responses: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO incidents (id, source, status, level, additional_presses, started_at_ns, ended_at_ns, reason, responses)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Source, string(in.Status), in.Level, in.AdditionalPresses,
		in.StartedAt.UnixNano(), in.EndedAt.UnixNano(), in.Reason, string(responses),
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// Get returns the incident with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, status, level, additional_presses, started_at_ns, ended_at_ns, reason, responses
		FROM incidents WHERE id = ?`, id)

	in, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return in, nil
}

// Recent returns up to limit incidents, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Incident, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, status, level, additional_presses, started_at_ns, ended_at_ns, reason, responses
		FROM incidents ORDER BY ended_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		in, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, *in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(sc scanner) (*Incident, error) {
	var (
		in                 Incident
		status, responses  string
		startedNs, endedNs int64
	)
	err := sc.Scan(&in.ID, &in.Source, &status, &in.Level, &in.AdditionalPresses,
		&startedNs, &endedNs, &in.Reason, &responses)
	if err != nil {
		return nil, err
	}
	in.Status = logic.Status(status)
	in.StartedAt = time.Unix(0, startedNs).UTC()
	in.EndedAt = time.Unix(0, endedNs).UTC()
	if err := json.Unmarshal([]byte(responses), &in.Responses); err != nil {
		return nil, fmt.Errorf("decode responses: %w", err)
	}
	if len(in.Responses) == 0 {
		in.Responses = nil
	}
	return &in, nil
}

func nonNilResponses(r []logic.Response) []logic.Response {
	if r == nil {
		return []logic.Response{}
	}
	return r
}
