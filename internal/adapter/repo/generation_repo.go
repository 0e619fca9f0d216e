package repo

import (
	"context"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// GenerationRepositoryPG implements domain.GenerationRepository on PostgreSQL.
type GenerationRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewGenerationRepository creates a repository executing through sql.
func NewGenerationRepository(sql infra.SQLExecutor) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{sql: sql}
}

// Migrate creates the generations table when missing.
func (r *GenerationRepositoryPG) Migrate(ctx context.Context) error {
	_, err := r.sql.Exec(ctx, sqlinline.QCreateGenerationsTable)
	return err
}

// Create inserts a new generation record.
func (r *GenerationRepositoryPG) Create(ctx context.Context, gen *domain.Generation) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertGeneration,
		gen.ID,
		gen.SessionID,
		gen.BriefID,
		string(gen.Flow),
		gen.Prompt,
		gen.Count,
		gen.AspectRatio,
		string(gen.Outcome),
	)
	return row.Scan(&gen.CreatedAt, &gen.UpdatedAt)
}

// UpdateOutcome records how the job ended and optionally its results or error.
func (r *GenerationRepositoryPG) UpdateOutcome(ctx context.Context, id string, outcome domain.Outcome, attempts int, errMsg *string, resultJSON []byte) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateGenerationOutcome, id, string(outcome), attempts, errMsg, nullableJSON(resultJSON))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a generation by its job handle.
func (r *GenerationRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Generation, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectGenerationByID, id)
	gen, err := scanGeneration(row.Scan)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return gen, nil
}

// ListRecent returns the newest generations first.
func (r *GenerationRepositoryPG) ListRecent(ctx context.Context, limit int) ([]domain.Generation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectRecentGenerations, limit)
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
		resultJSON           []byte
		createdAt, updatedAt time.Time
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
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	gen.Flow = domain.JobFlow(flow)
	gen.Outcome = domain.Outcome(outcome)
	if len(resultJSON) > 0 && string(resultJSON) != "null" {
		gen.ResultJSON = resultJSON
	}
	gen.CreatedAt = createdAt
	gen.UpdatedAt = updatedAt
	return &gen, nil
}

func nullableJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.GenerationRepository = (*GenerationRepositoryPG)(nil)
