package motionqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AdoptionBridge turns an escalated petition into a queued Motion under
// the King's authority, writing the petition's immutable adoption
// provenance fields together with the motion's enqueue.
type AdoptionBridge struct {
	petitions PetitionBackend
	queue     QueueBackend
	clock     func() time.Time
	newID     func() string
}

// AdoptionOption configures an AdoptionBridge at construction.
type AdoptionOption func(*AdoptionBridge)

func WithAdoptionClock(clock func() time.Time) AdoptionOption {
	return func(b *AdoptionBridge) { b.clock = clock }
}

func withAdoptionIDFunc(f func() string) AdoptionOption {
	return func(b *AdoptionBridge) { b.newID = f }
}

// NewAdoptionBridge constructs an AdoptionBridge over petition and motion
// queue storage.
func NewAdoptionBridge(petitions PetitionBackend, queue QueueBackend, opts ...AdoptionOption) *AdoptionBridge {
	b := &AdoptionBridge{
		petitions: petitions,
		queue:     queue,
		clock:     func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Adopt writes petitionID's immutable adoption fields under kingID and
// enqueues a Motion carrying the petition's text, tagged with its
// provenance. The petition must be in the escalated state. The motion is
// enqueued first: if enqueueing fails, no adoption fields are written; if
// the adoption write then fails, the enqueued motion is archived as
// withdrawn. Either way the petition stays eligible for a retried adoption.
func (b *AdoptionBridge) Adopt(ctx context.Context, petitionID, kingID string, consensusTier ConsensusTier) (MotionQueueEntry, error) {
	p, ok, err := b.petitions.Get(ctx, petitionID)
	if err != nil {
		return MotionQueueEntry{}, fmt.Errorf("motionqueue: adopt: lookup petition: %w", err)
	}
	if !ok {
		return MotionQueueEntry{}, ErrPetitionNotFound
	}
	if p.AdoptedAsMotionID != "" {
		return MotionQueueEntry{}, ErrAlreadyAdopted
	}
	if p.State != PetitionEscalated {
		return MotionQueueEntry{}, ErrPetitionNotEscalated
	}

	now := b.clock()
	motionID := b.newID()

	entry := MotionQueueEntry{
		MotionID:             motionID,
		Text:                 p.Text,
		ConsensusTier:        consensusTier,
		EndorsementCount:     p.CoSignerCount,
		Status:               MotionQueuePending,
		ProvenancePetitionID: petitionID,
		CreatedAt:            now,
	}

	// Enqueue the motion before writing the petition's immutable
	// adoption fields: a failed Adopt (e.g. a concurrent adoption won
	// the race) is rolled back by archiving the just-enqueued motion,
	// whereas Adopt itself refuses a second write, so reversing the
	// order would leave no way back for a retry.
	if err := b.queue.Enqueue(ctx, entry); err != nil {
		return MotionQueueEntry{}, fmt.Errorf("motionqueue: adopt: enqueue motion: %w", err)
	}

	if err := b.petitions.Adopt(ctx, petitionID, motionID, kingID, now.UnixNano()); err != nil {
		if archiveErr := b.queue.Archive(ctx, motionID, MotionQueueWithdrawn); archiveErr != nil {
			return MotionQueueEntry{}, fmt.Errorf("motionqueue: adopt: adopt failed (%v) and rollback failed: %w", err, archiveErr)
		}
		return MotionQueueEntry{}, fmt.Errorf("motionqueue: adopt: %w", err)
	}

	return entry, nil
}
