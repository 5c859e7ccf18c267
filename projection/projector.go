package projection

import (
	"context"
	"fmt"

	"github.com/archon72/governance/internal/ledgercrypto"
	"github.com/archon72/governance/ledger"
)

type handlerKey struct {
	eventType     string
	schemaVersion string
}

// Projector owns one named projection's apply loop. It implements the
// teacher's dispatch-by-type idiom (core/events: each event type is its own
// Go type with its own handler) generalized to a handler table keyed by
// (event_type, schema_version), since the ledger's wire-stable events
// already carry their own versioning.
type Projector struct {
	name     string
	backend  Backend
	source   EventSource
	handlers map[handlerKey]HandlerFunc
}

// NewProjector constructs a Projector named name, applying events read from
// source into backend's derived tables.
func NewProjector(name string, backend Backend, source EventSource) *Projector {
	return &Projector{
		name:     name,
		backend:  backend,
		source:   source,
		handlers: make(map[handlerKey]HandlerFunc),
	}
}

// Register binds a handler for (eventType, schemaVersion). Events for which
// no handler is registered are skipped (and still advance the checkpoint),
// since a projection need not care about every branch of the ledger.
func (p *Projector) Register(eventType, schemaVersion string, handler HandlerFunc) {
	p.handlers[handlerKey{eventType, schemaVersion}] = handler
}

// ApplyEvent runs the six-step apply_event algorithm of spec section 4.8
// for a single committed event.
func (p *Projector) ApplyEvent(ctx context.Context, ev ledger.Event) error {
	handler, ok := p.handlers[handlerKey{ev.EventType, ev.SchemaVersion}]

	alreadyApplied, err := p.backend.WithApplyTx(ctx, p.name, ev.EventID, func(tx DerivedTx) error {
		if ok {
			if err := handler(ctx, tx, ev); err != nil {
				return fmt.Errorf("projection %s: handler for %s: %w", p.name, ev.EventType, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if alreadyApplied {
		return nil
	}

	return p.backend.SaveCheckpoint(ctx, Checkpoint{
		ProjectionName: p.name,
		LastEventID:    ev.EventID,
		LastHash:       ev.ContentHash,
		LastSequence:   ev.Sequence,
	})
}

// CatchUp applies every committed event after the projection's current
// checkpoint, in batches of batchSize, up to and including upToSequence.
func (p *Projector) CatchUp(ctx context.Context, upToSequence int64, batchSize int64) error {
	checkpoint, _, err := p.backend.LoadCheckpoint(ctx, p.name)
	if err != nil {
		return fmt.Errorf("projection %s: load checkpoint: %w", p.name, err)
	}
	start := checkpoint.LastSequence + 1

	for start <= upToSequence {
		end := start + batchSize - 1
		if end > upToSequence {
			end = upToSequence
		}
		events, err := p.source.ReadRange(ctx, start, end)
		if err != nil {
			return fmt.Errorf("projection %s: read range: %w", p.name, err)
		}
		for _, ev := range events {
			if err := p.ApplyEvent(ctx, ev); err != nil {
				return err
			}
		}
		start = end + 1
	}
	return nil
}

// Rebuild truncates the projection's derived tables, apply log, and
// checkpoint, then replays from genesis through upToSequence.
func (p *Projector) Rebuild(ctx context.Context, upToSequence int64, batchSize int64) error {
	if err := p.backend.Truncate(ctx, p.name); err != nil {
		return fmt.Errorf("projection %s: truncate: %w", p.name, err)
	}
	return p.CatchUp(ctx, upToSequence, batchSize)
}

// VerifyIntegrity compares the projection's recorded checkpoint hash
// against the ledger's own content_hash at that sequence, per spec section
// 3.10's integrity cross-check invariant.
func (p *Projector) VerifyIntegrity(ctx context.Context, ledgerStore *ledger.Store) (bool, error) {
	checkpoint, ok, err := p.backend.LoadCheckpoint(ctx, p.name)
	if err != nil {
		return false, err
	}
	if !ok || checkpoint.LastSequence == 0 {
		return true, nil
	}
	ev, found, err := ledgerStore.GetByID(ctx, checkpoint.LastEventID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return ledgercrypto.ConstantTimeEqualHex(ev.ContentHash, checkpoint.LastHash), nil
}
