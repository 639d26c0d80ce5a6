package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/state"
)

// Store implements [state.Store] backed by SQLite. Each record is one row
// whose version column guards updates.
type Store struct {
	DB       *sql.DB
	Attempts int
}

var _ state.Store = (*Store)(nil)

// New opens the database at dsn and returns a store on it.
func New(dsn string, attempts int) (*Store, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db, Attempts: attempts}, nil
}

func (s *Store) Create(ctx context.Context, rec deployment.Record) error {
	rec.Version = 1
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal deployment: %w", err)
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO deployments (id, scenario, status, created_at, version, data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ScenarioName, string(rec.Status), formatTime(rec.CreatedAt), rec.Version, string(data),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("deployment %q: %w", rec.ID, deployment.ErrConflict)
		}
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (deployment.Record, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT data FROM deployments WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return deployment.Record{}, fmt.Errorf("deployment %q: %w", id, deployment.ErrNotFound)
	}
	return rec, err
}

func (s *Store) Update(ctx context.Context, id string, mutate state.MutateFunc) (deployment.Record, error) {
	return state.CompareAndSwap(ctx, s, s.Attempts, id, mutate)
}

// LoadRecord implements [state.CASBackend].
func (s *Store) LoadRecord(ctx context.Context, id string) (deployment.Record, error) {
	return s.Get(ctx, id)
}

// CommitRecord implements [state.CASBackend] with a version-guarded UPDATE.
func (s *Store) CommitRecord(ctx context.Context, expected int64, next deployment.Record) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("marshal deployment: %w", err)
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE deployments SET scenario = ?, status = ?, created_at = ?, version = ?, data = ?
		 WHERE id = ? AND version = ?`,
		next.ScenarioName, string(next.Status), formatTime(next.CreatedAt), next.Version, string(data),
		next.ID, expected,
	)
	if err != nil {
		return false, fmt.Errorf("update deployment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update deployment: %w", err)
	}
	return n == 1, nil
}

func (s *Store) List(ctx context.Context, f state.Filter) ([]deployment.Record, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	if len(f.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if f.Scenario != "" {
		where = append(where, "scenario = ?")
		args = append(args, f.Scenario)
	}
	if !f.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(f.CreatedBefore))
	}

	query := `SELECT data FROM deployments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var recs []deployment.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM deployments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete deployment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete deployment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("deployment %q: %w", id, deployment.ErrNotFound)
	}
	return nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (deployment.Record, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return deployment.Record{}, err
		}
		return deployment.Record{}, fmt.Errorf("scan deployment: %w", err)
	}
	var rec deployment.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return deployment.Record{}, fmt.Errorf("unmarshal deployment: %w", err)
	}
	return rec, nil
}

// formatTime renders times so lexical order matches chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
