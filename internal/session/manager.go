package session

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"studio/internal/domain"
)

// Manager owns the live sessions of the studio.
type Manager struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. Pollers of its sessions stop when ctx is done
// or Close is called.
func NewManager(ctx context.Context, deps Deps) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Create starts an empty session.
func (m *Manager) Create(locale string) *Session {
	s := newSession(m.ctx, uuid.NewString(), locale, m.deps)
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Get looks a session up by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

// List returns the live sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.Before(out[j].createdAt) })
	return out
}

// Delete cancels the session's generation, clears its chat history on the
// backend and forgets it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	s.CancelGeneration()

	s.mu.Lock()
	chatID := s.chatSessionID
	s.mu.Unlock()
	if chatID != "" {
		if err := m.deps.Backend.ResetSession(ctx, chatID); err != nil {
			s.logger.Warn().Err(err).Msg("reset backend session")
		}
	}
	return nil
}

// Close cancels every tracked generation.
func (m *Manager) Close() {
	for _, s := range m.List() {
		s.CancelGeneration()
	}
	m.cancel()
}
