package poller

import (
	"context"
	"errors"
	"testing"

	"studio/internal/domain"
)

func TestAwaitReturnsResults(t *testing.T) {
	fetch := &scriptedFetch{step: func(call int) (domain.Snapshot, error) {
		if call == 2 {
			return domain.Snapshot{Status: domain.JobStatusCompleted, Results: []domain.Result{{ID: "a"}, {ID: "b"}}}, nil
		}
		return pending()
	}}
	var progress int
	results, err := Await(context.Background(), "gen-1", fetch.fetch, func(Progress) { progress++ }, Options{Interval: testInterval, MaxAttempts: 5})
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if len(results) != 2 || progress != 1 {
		t.Fatalf("results=%d progress=%d, want 2/1", len(results), progress)
	}
}

func TestAwaitMapsTerminalErrors(t *testing.T) {
	failed := func(ctx context.Context, jobID string) (domain.Snapshot, error) {
		return domain.Snapshot{Status: domain.JobStatusFailed, Message: "nsfw filter"}, nil
	}
	_, err := Await(context.Background(), "gen-1", failed, nil, Options{Interval: testInterval, MaxAttempts: 5})
	var bf *domain.BackendFailure
	if !errors.As(err, &bf) || bf.Message != "nsfw filter" {
		t.Fatalf("err = %v, want BackendFailure", err)
	}
	if !errors.Is(err, domain.ErrBackendFailure) || errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("backend failure must be distinguishable from timeout")
	}

	_, err = Await(context.Background(), "gen-1", func(ctx context.Context, jobID string) (domain.Snapshot, error) {
		return pending()
	}, nil, Options{Interval: testInterval, MaxAttempts: 2})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Await(ctx, "gen-1", func(ctx context.Context, jobID string) (domain.Snapshot, error) {
		return pending()
	}, nil, Options{Interval: testInterval, MaxAttempts: 2})
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}
