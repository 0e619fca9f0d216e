package domain

import "context"

// GenerationRepository persists the history of jobs submitted by the client.
type GenerationRepository interface {
	Create(ctx context.Context, gen *Generation) error
	UpdateOutcome(ctx context.Context, id string, outcome Outcome, attempts int, errMsg *string, resultJSON []byte) error
	GetByID(ctx context.Context, id string) (*Generation, error)
	ListRecent(ctx context.Context, limit int) ([]Generation, error)
}
