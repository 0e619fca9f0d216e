package poller

import (
	"context"
	"sync"
)

// Tracker holds the single active controller of a view. Starting a new
// controller cancels the previous one first so two loops never race to
// update the same state.
type Tracker struct {
	mu      sync.Mutex
	current *Controller
}

// Replace cancels the active controller, if any, and starts next.
func (t *Tracker) Replace(ctx context.Context, next *Controller) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		t.current.Cancel()
	}
	t.current = next
	if next == nil {
		return nil
	}
	return next.Start(ctx)
}

// Current returns the most recently started controller.
func (t *Tracker) Current() *Controller {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// IsCurrent reports whether c is still the active controller.
func (t *Tracker) IsCurrent(c *Controller) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return c != nil && t.current == c
}

// Cancel stops the active controller without replacing it.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	current := t.current
	t.mu.Unlock()
	if current != nil {
		current.Cancel()
	}
}
