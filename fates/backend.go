package fates

import (
	"context"
	"sync"
)

// Backend persists a deliberation Session, primarily so the
// deliberation_timeout job handler can check whether a session has already
// reached "complete" before acting (idempotency is the handler's
// responsibility per spec section 4.7).
type Backend interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context, sessionID string) (Session, bool, error)
}

// MemBackend is an in-memory Backend used by tests.
type MemBackend struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemBackend constructs an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{sessions: make(map[string]Session)}
}

func (b *MemBackend) Save(_ context.Context, s Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[s.SessionID] = s
	return nil
}

func (b *MemBackend) Load(_ context.Context, sessionID string) (Session, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	return s, ok, nil
}
