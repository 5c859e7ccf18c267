package motionqueue

import "context"

// QueueBackend is the Motion Queue's storage seam. Production
// implementations must make Promote and RecoverStrandedPromoted atomic
// (single transaction) per spec section 4.9.
type QueueBackend interface {
	Enqueue(ctx context.Context, entry MotionQueueEntry) error
	// ListSelectable returns entries with status in {pending, endorsed} and
	// consensus_tier >= minConsensus, sorted by (endorsement_count desc,
	// creation_timestamp asc).
	ListSelectable(ctx context.Context, minConsensus ConsensusTier) ([]MotionQueueEntry, error)
	// Promote atomically transitions the named entries to "promoted",
	// recording sessionID against each.
	Promote(ctx context.Context, motionIDs []string, sessionID string) error
	// RecoverStrandedPromoted reverts every "promoted" entry whose
	// session_id is not in liveSessionIDs back to "pending".
	RecoverStrandedPromoted(ctx context.Context, liveSessionIDs map[string]struct{}) (reverted []string, err error)
	// Archive writes a final archive row and removes the active entry.
	Archive(ctx context.Context, motionID string, finalStatus MotionQueueStatus) error
	Get(ctx context.Context, motionID string) (MotionQueueEntry, bool, error)
}

// SelectForConclave implements spec section 4.9's selection algorithm:
// filter, sort, take top maxItems, promote them atomically.
func SelectForConclave(ctx context.Context, backend QueueBackend, maxItems int, minConsensus ConsensusTier, sessionID string) ([]MotionQueueEntry, error) {
	selectable, err := backend.ListSelectable(ctx, minConsensus)
	if err != nil {
		return nil, err
	}
	if len(selectable) > maxItems {
		selectable = selectable[:maxItems]
	}
	if len(selectable) == 0 {
		return nil, nil
	}
	ids := make([]string, len(selectable))
	for i, e := range selectable {
		ids[i] = e.MotionID
		selectable[i].Status = MotionQueuePromoted
		selectable[i].SessionID = sessionID
	}
	if err := backend.Promote(ctx, ids, sessionID); err != nil {
		return nil, err
	}
	return selectable, nil
}
