package poller

import (
	"context"

	"studio/internal/domain"
)

// Await runs a controller to completion on the calling goroutine's behalf and
// converts the terminal callback into a return value: the results, a
// *domain.BackendFailure, a *domain.TimeoutError, or domain.ErrCancelled.
func Await(ctx context.Context, jobID string, fetch FetchFunc, onProgress func(Progress), opts Options) ([]domain.Result, error) {
	var (
		results []domain.Result
		failure error
	)
	ctrl, err := New(jobID, fetch, Callbacks{
		OnProgress: onProgress,
		OnComplete: func(r []domain.Result) { results = r },
		OnFailed: func(message string) {
			failure = &domain.BackendFailure{JobID: jobID, Message: message}
		},
		OnTimeout: func(err *domain.TimeoutError) { failure = err },
	}, opts)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Start(ctx); err != nil {
		return nil, err
	}
	<-ctrl.Done()
	switch ctrl.Outcome() {
	case domain.OutcomeCompleted:
		return results, nil
	case domain.OutcomeCancelled:
		return nil, domain.ErrCancelled
	default:
		return nil, failure
	}
}
