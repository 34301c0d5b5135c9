package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"swissdamed/internal/domain"
)

// RunStore implements domain.BuildRunStore.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

var _ domain.BuildRunStore = (*RunStore)(nil)

// ── Build runs ─────────────────────────────────────────────

func (s *RunStore) CreateRun(r *domain.BuildRun) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Trigger == "" {
		r.Trigger = domain.BuildTriggerManual
	}
	artifacts, err := json.Marshal(r.Artifacts)
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}
	_, err = s.db.conn.Exec(
		`INSERT INTO build_runs (id, trigger_type, source, status, started_at, finished_at,
		 records, rows_written, columns, artifacts, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Trigger), r.Source, string(r.Status), r.StartedAt, r.FinishedAt,
		r.Records, r.Rows, r.Columns, string(artifacts), r.Error,
	)
	return err
}

const runColumns = `id, trigger_type, source, status, started_at, finished_at,
	records, rows_written, columns, artifacts, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (*domain.BuildRun, error) {
	var (
		r         domain.BuildRun
		trigger   string
		status    string
		artifacts string
	)
	if err := sc.Scan(
		&r.ID, &trigger, &r.Source, &status, &r.StartedAt, &r.FinishedAt,
		&r.Records, &r.Rows, &r.Columns, &artifacts, &r.Error,
	); err != nil {
		return nil, err
	}
	r.Trigger = domain.BuildTrigger(trigger)
	r.Status = domain.BuildStatus(status)
	json.Unmarshal([]byte(artifacts), &r.Artifacts)
	return &r, nil
}

func (s *RunStore) GetRun(id string) (*domain.BuildRun, error) {
	r, err := scanRun(s.db.conn.QueryRow(`SELECT `+runColumns+` FROM build_runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("build run not found: %s", id)
	}
	return r, err
}

// ListRuns returns the latest runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]domain.BuildRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(
		`SELECT `+runColumns+` FROM build_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.BuildRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}
