package motionqueue

import (
	"context"
	"sort"
	"sync"
)

// MemQueueBackend is an in-memory QueueBackend used by tests.
type MemQueueBackend struct {
	mu      sync.Mutex
	entries map[string]MotionQueueEntry
	archive []MotionQueueEntry
}

// NewMemQueueBackend constructs an empty in-memory backend.
func NewMemQueueBackend() *MemQueueBackend {
	return &MemQueueBackend{entries: make(map[string]MotionQueueEntry)}
}

func (b *MemQueueBackend) Enqueue(_ context.Context, entry MotionQueueEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[entry.MotionID] = entry
	return nil
}

func (b *MemQueueBackend) ListSelectable(_ context.Context, minConsensus ConsensusTier) ([]MotionQueueEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []MotionQueueEntry
	for _, e := range b.entries {
		if (e.Status == MotionQueuePending || e.Status == MotionQueueEndorsed) && e.ConsensusTier.AtLeast(minConsensus) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EndorsementCount != out[j].EndorsementCount {
			return out[i].EndorsementCount > out[j].EndorsementCount
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (b *MemQueueBackend) Promote(_ context.Context, motionIDs []string, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range motionIDs {
		e := b.entries[id]
		e.Status = MotionQueuePromoted
		e.SessionID = sessionID
		b.entries[id] = e
	}
	return nil
}

func (b *MemQueueBackend) RecoverStrandedPromoted(_ context.Context, liveSessionIDs map[string]struct{}) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var reverted []string
	for id, e := range b.entries {
		if e.Status != MotionQueuePromoted {
			continue
		}
		if _, live := liveSessionIDs[e.SessionID]; live {
			continue
		}
		e.Status = MotionQueuePending
		e.SessionID = ""
		b.entries[id] = e
		reverted = append(reverted, id)
	}
	return reverted, nil
}

func (b *MemQueueBackend) Archive(_ context.Context, motionID string, finalStatus MotionQueueStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[motionID]
	if !ok {
		return nil
	}
	e.Status = finalStatus
	b.archive = append(b.archive, e)
	delete(b.entries, motionID)
	return nil
}

func (b *MemQueueBackend) Get(_ context.Context, motionID string) (MotionQueueEntry, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[motionID]
	return e, ok, nil
}
