package conclave

import "context"

// Backend persists and resumes session checkpoints. Production use is gorm
// over a single `conclave_checkpoints` row per session, updated after each
// debate round and after each vote per spec section 4.5; tests use
// MemBackend.
type Backend interface {
	SaveCheckpoint(ctx context.Context, checkpoint Checkpoint) error
	LoadCheckpoint(ctx context.Context, sessionID string) (Checkpoint, bool, error)
}
