package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"studio/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS generations (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  brief_id TEXT NOT NULL DEFAULT '',
  flow TEXT NOT NULL,
  prompt TEXT NOT NULL DEFAULT '',
  count INTEGER NOT NULL,
  aspect_ratio TEXT NOT NULL,
  outcome TEXT NOT NULL,
  result_json TEXT,
  error_message TEXT NOT NULL DEFAULT '',
  attempts INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
`

const selectColumns = `SELECT id, session_id, brief_id, flow, prompt, count, aspect_ratio, outcome,
       result_json, error_message, attempts, created_at, updated_at
  FROM generations`

// Store is a domain.GenerationRepository backed by an embedded SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates (or reuses) the database at path and ensures the schema exists.
// The special path ":memory:" keeps everything in process.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: create dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Create inserts a new generation record and stamps its timestamps.
func (s *Store) Create(ctx context.Context, gen *domain.Generation) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (id, session_id, brief_id, flow, prompt, count, aspect_ratio, outcome, attempts, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gen.ID,
		gen.SessionID,
		gen.BriefID,
		string(gen.Flow),
		gen.Prompt,
		gen.Count,
		gen.AspectRatio,
		string(gen.Outcome),
		gen.Attempts,
		now.UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		return err
	}
	gen.CreatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	gen.UpdatedAt = gen.CreatedAt
	return nil
}

// UpdateOutcome records the end state of a generation.
func (s *Store) UpdateOutcome(ctx context.Context, id string, outcome domain.Outcome, attempts int, errMsg *string, resultJSON []byte) error {
	var results any
	if len(resultJSON) > 0 {
		results = string(resultJSON)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE generations
         SET outcome = ?,
             attempts = ?,
             error_message = COALESCE(?, error_message),
             result_json = COALESCE(?, result_json),
             updated_at = ?
         WHERE id = ?`,
		string(outcome),
		attempts,
		errMsg,
		results,
		s.now().UnixMilli(),
		id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID loads a single generation.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Generation, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	gen, err := scanGeneration(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return gen, nil
}

// ListRecent returns up to limit generations, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.Generation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Generation
	for rows.Next() {
		gen, err := scanGeneration(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *gen)
	}
	return out, rows.Err()
}

func scanGeneration(scan func(dest ...any) error) (*domain.Generation, error) {
	var (
		gen                  domain.Generation
		flow, outcome        string
		resultJSON           sql.NullString
		createdMs, updatedMs int64
	)
	if err := scan(
		&gen.ID,
		&gen.SessionID,
		&gen.BriefID,
		&flow,
		&gen.Prompt,
		&gen.Count,
		&gen.AspectRatio,
		&outcome,
		&resultJSON,
		&gen.ErrorMessage,
		&gen.Attempts,
		&createdMs,
		&updatedMs,
	); err != nil {
		return nil, err
	}
	gen.Flow = domain.JobFlow(flow)
	gen.Outcome = domain.Outcome(outcome)
	if resultJSON.Valid {
		gen.ResultJSON = []byte(resultJSON.String)
	}
	gen.CreatedAt = time.UnixMilli(createdMs).UTC()
	gen.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return &gen, nil
}

var _ domain.GenerationRepository = (*Store)(nil)
