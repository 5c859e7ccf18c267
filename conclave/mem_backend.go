package conclave

import (
	"context"
	"sync"
)

// MemBackend is an in-memory Backend used by tests.
type MemBackend struct {
	mu          sync.Mutex
	checkpoints map[string]Checkpoint
}

// NewMemBackend constructs an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{checkpoints: make(map[string]Checkpoint)}
}

func (b *MemBackend) SaveCheckpoint(_ context.Context, checkpoint Checkpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkpoints[checkpoint.SessionID] = checkpoint
	return nil
}

func (b *MemBackend) LoadCheckpoint(_ context.Context, sessionID string) (Checkpoint, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.checkpoints[sessionID]
	return c, ok, nil
}
