package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/ports"
)

const defaultListLimit = 20

// Store keeps finished runs in a SQLite database.
type Store struct {
	db *sql.DB
}

var _ ports.RunHistory = (*Store)(nil)

// New opens (and creates if needed) a run history database.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS runs(
		id TEXT PRIMARY KEY,
		image TEXT NOT NULL,
		container TEXT NOT NULL,
		outcome TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		payload TEXT NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);`)
	return err
}

// Record upserts a run.
func (s *Store) Record(ctx context.Context, run *domain.LifecycleRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs(id, image, container, outcome, attempts, error, started_at, finished_at, payload)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		run.ID, run.Config.ImageTag, run.Config.ContainerName, string(run.Outcome), len(run.Trail),
		nullString(run.Error), run.StartedAt.UTC(), run.FinishedAt.UTC(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// List returns up to limit runs, newest first. limit <= 0 uses a default.
func (s *Store) List(ctx context.Context, limit int) ([]domain.LifecycleRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.LifecycleRun
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var run domain.LifecycleRun
		if err := json.Unmarshal([]byte(payload), &run); err != nil {
			return nil, fmt.Errorf("failed to decode run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run or domain.ErrRunNotFound.
func (s *Store) Get(ctx context.Context, id string) (*domain.LifecycleRun, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?;`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	var run domain.LifecycleRun
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}
	return &run, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
