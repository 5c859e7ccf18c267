// Package projection implements the CQRS-style read-model framework of spec
// section 4.8: idempotent per-event apply, checkpointing, and full rebuild
// from the ledger's genesis.
package projection

import (
	"context"

	"github.com/archon72/governance/ledger"
)

// Checkpoint records a projection's replay position.
type Checkpoint struct {
	ProjectionName string
	LastEventID    string
	LastHash       string
	LastSequence   int64
}

// HandlerFunc applies a single committed event's effect to a projection's
// derived tables. It must be a pure function of (event, current derived
// state): the apply log guarantees it is never invoked twice for the same
// event_id.
type HandlerFunc func(ctx context.Context, tx DerivedTx, ev ledger.Event) error

// DerivedTx is the transactional handle a HandlerFunc uses to mutate its
// own projection's derived tables. Each projection implementation defines
// its own concrete type satisfying whatever it needs; this package only
// requires that Backend hand one to the handler and commit/rollback around
// it.
type DerivedTx any

// Backend is the storage seam a Projector drives for a single named
// projection's checkpoint, apply log, and Truncate (rebuild) operation.
// Concrete derived-table mutations happen inside the HandlerFunc via the
// DerivedTx the backend constructs.
type Backend interface {
	// LoadCheckpoint returns the projection's current checkpoint, or the
	// zero value if it has never been applied to.
	LoadCheckpoint(ctx context.Context, name string) (Checkpoint, bool, error)

	// WithApplyTx runs fn inside a transaction covering this projection's
	// derived tables and apply log; the checkpoint is not part of it and is
	// written afterwards through SaveCheckpoint. It reports
	// alreadyApplied=true, without calling fn, when (name, eventID) is
	// already present in the apply log.
	WithApplyTx(ctx context.Context, name string, eventID string, fn func(tx DerivedTx) error) (alreadyApplied bool, err error)

	// SaveCheckpoint records the checkpoint reached after an apply.
	SaveCheckpoint(ctx context.Context, checkpoint Checkpoint) error

	// Truncate clears this projection's derived tables, apply log, and
	// checkpoint, in preparation for a rebuild-from-genesis replay.
	Truncate(ctx context.Context, name string) error
}

// EventSource supplies the committed events a rebuild replays.
type EventSource interface {
	ReadRange(ctx context.Context, start, end int64) ([]ledger.Event, error)
}
