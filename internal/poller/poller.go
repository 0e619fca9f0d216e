// Package poller tracks a remote generation job until it reaches a terminal
// state, reporting each observation through caller-supplied callbacks.
package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
)

const (
	// DefaultInterval is the pause between two status fetches.
	DefaultInterval = 2 * time.Second
	// DefaultMaxAttempts bounds the number of fetches (about two minutes at the default interval).
	DefaultMaxAttempts = 60
)

// ErrAlreadyStarted is returned when Start is called twice on one controller.
var ErrAlreadyStarted = errors.New("poller: already started")

// FetchFunc queries the current status of a job. Errors are treated as
// transport failures and retried within the attempt budget.
type FetchFunc func(ctx context.Context, jobID string) (domain.Snapshot, error)

// Progress is reported for every in-progress observation. Percent and
// Message are optional and reflect only what the backend sent.
type Progress struct {
	JobID       string
	Attempt     int
	MaxAttempts int
	Percent     *int
	Message     string
}

// Callbacks receive observations. Any of them may be nil. At most one of
// OnComplete, OnFailed and OnTimeout is invoked per controller.
type Callbacks struct {
	OnProgress func(Progress)
	OnComplete func(results []domain.Result)
	OnFailed   func(message string)
	OnTimeout  func(err *domain.TimeoutError)
}

// Options configures a Controller.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	Logger      *infra.Logger
}

// Controller polls a single job. It is single use: create a new one per job.
type Controller struct {
	jobID       string
	fetch       FetchFunc
	callbacks   Callbacks
	interval    time.Duration
	maxAttempts int
	logger      *infra.Logger

	mu       sync.Mutex
	started  bool
	outcome  domain.Outcome
	attempts int
	stop     context.CancelFunc
	done     chan struct{}
}

// New validates the inputs and returns an idle controller.
func New(jobID string, fetch FetchFunc, callbacks Callbacks, opts Options) (*Controller, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("poller: job id is required")
	}
	if fetch == nil {
		return nil, errors.New("poller: fetch function is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Controller{
		jobID:       jobID,
		fetch:       fetch,
		callbacks:   callbacks,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
		outcome:     domain.OutcomeRunning,
		done:        make(chan struct{}),
	}, nil
}

// JobID returns the handle being tracked.
func (c *Controller) JobID() string { return c.jobID }

// Start launches the poll loop in its own goroutine. The first fetch happens
// one interval after Start. Cancelling ctx has the same effect as Cancel.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	if c.outcome != domain.OutcomeRunning {
		// Cancelled before it ever ran.
		c.mu.Unlock()
		close(c.done)
		return nil
	}
	runCtx, stop := context.WithCancel(ctx)
	c.stop = stop
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

// Cancel stops future fetches and discards the result of a fetch in flight.
// It never blocks, is idempotent, and may be called from inside a callback.
//
// Called from a callback, no further callback is delivered. Called from
// another goroutine, Cancel does not wait for the poll goroutine: a progress
// callback that was already being delivered may still run once. Nothing is
// delivered once Done is closed; owners that need a hard cutoff at the Cancel
// call guard their callbacks themselves.
func (c *Controller) Cancel() {
	c.settle(domain.OutcomeCancelled)
}

// Done is closed once the loop has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Outcome reports the current state; OutcomeRunning until the loop settles.
func (c *Controller) Outcome() domain.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Attempts returns the number of fetches issued so far.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	defer c.release()

	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			c.settle(domain.OutcomeCancelled)
			return
		case <-timer.C:
		}

		attempt, ok := c.beginAttempt()
		if !ok {
			return
		}
		snap, err := c.fetch(ctx, c.jobID)
		if ctx.Err() != nil {
			c.settle(domain.OutcomeCancelled)
			return
		}

		if err != nil {
			lastErr = err
			c.logger.Warn().Err(err).
				Str("job_id", c.jobID).
				Int("attempt", attempt).
				Int("max_attempts", c.maxAttempts).
				Msg("poller: status fetch failed, retrying")
		} else {
			switch snap.Status {
			case domain.JobStatusCompleted:
				results := snap.Results
				if c.settle(domain.OutcomeCompleted) {
					c.logger.Info().Str("job_id", c.jobID).Int("attempt", attempt).Int("results", len(results)).Msg("poller: job completed")
					if c.callbacks.OnComplete != nil {
						c.callbacks.OnComplete(results)
					}
				}
				return
			case domain.JobStatusFailed:
				message := snap.FailureMessage()
				if c.settle(domain.OutcomeFailed) {
					c.logger.Info().Str("job_id", c.jobID).Int("attempt", attempt).Str("reason", message).Msg("poller: job failed")
					if c.callbacks.OnFailed != nil {
						c.callbacks.OnFailed(message)
					}
				}
				return
			default:
				c.emitProgress(Progress{
					JobID:       c.jobID,
					Attempt:     attempt,
					MaxAttempts: c.maxAttempts,
					Percent:     clampPercent(snap.Progress),
					Message:     strings.TrimSpace(snap.Message),
				})
			}
		}

		if attempt >= c.maxAttempts {
			timeout := &domain.TimeoutError{JobID: c.jobID, Attempts: attempt, LastErr: lastErr}
			if c.settle(domain.OutcomeTimeout) {
				c.logger.Info().Err(lastErr).Str("job_id", c.jobID).Int("attempts", attempt).Msg("poller: attempt budget exhausted")
				if c.callbacks.OnTimeout != nil {
					c.callbacks.OnTimeout(timeout)
				}
			}
			return
		}
		timer.Reset(c.interval)
	}
}

// beginAttempt counts a fetch unless the controller has already settled.
func (c *Controller) beginAttempt() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome != domain.OutcomeRunning {
		return 0, false
	}
	c.attempts++
	return c.attempts, true
}

// emitProgress delivers p unless the controller has settled. The check and
// the call are not atomic with respect to Cancel from another goroutine.
func (c *Controller) emitProgress(p Progress) {
	if c.callbacks.OnProgress == nil {
		return
	}
	c.mu.Lock()
	running := c.outcome == domain.OutcomeRunning
	c.mu.Unlock()
	if running {
		c.callbacks.OnProgress(p)
	}
}

// settle records the first terminal outcome and reports whether this call won.
func (c *Controller) settle(outcome domain.Outcome) bool {
	c.mu.Lock()
	if c.outcome != domain.OutcomeRunning {
		c.mu.Unlock()
		return false
	}
	c.outcome = outcome
	stop := c.stop
	c.mu.Unlock()
	if outcome == domain.OutcomeCancelled {
		c.logger.Debug().Str("job_id", c.jobID).Msg("poller: cancelled")
		if stop != nil {
			stop()
		}
	}
	return true
}

func (c *Controller) release() {
	c.mu.Lock()
	stop := c.stop
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func clampPercent(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return &v
}
