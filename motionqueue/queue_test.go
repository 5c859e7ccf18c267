package motionqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSelectForConclaveFiltersOrdersAndPromotesAtomically(t *testing.T) {
	ctx := context.Background()
	backend := NewMemQueueBackend()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, backend.Enqueue(ctx, MotionQueueEntry{MotionID: "m-low-tier", ConsensusTier: TierLow, EndorsementCount: 100, Status: MotionQueuePending, CreatedAt: base}))
	require.NoError(t, backend.Enqueue(ctx, MotionQueueEntry{MotionID: "m-early", ConsensusTier: TierHigh, EndorsementCount: 5, Status: MotionQueuePending, CreatedAt: base}))
	require.NoError(t, backend.Enqueue(ctx, MotionQueueEntry{MotionID: "m-late-same-count", ConsensusTier: TierHigh, EndorsementCount: 5, Status: MotionQueueEndorsed, CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, backend.Enqueue(ctx, MotionQueueEntry{MotionID: "m-most-endorsed", ConsensusTier: TierCritical, EndorsementCount: 10, Status: MotionQueuePending, CreatedAt: base.Add(2 * time.Hour)}))
	require.NoError(t, backend.Enqueue(ctx, MotionQueueEntry{MotionID: "m-already-promoted", ConsensusTier: TierCritical, EndorsementCount: 99, Status: MotionQueuePromoted, CreatedAt: base}))

	selected, err := SelectForConclave(ctx, backend, 2, TierHigh, "session-1")
	require.NoError(t, err)
	require.Len(t, selected, 2)
	require.Equal(t, "m-most-endorsed", selected[0].MotionID)
	require.Equal(t, "m-early", selected[1].MotionID)

	for _, e := range selected {
		stored, ok, err := backend.Get(ctx, e.MotionID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, MotionQueuePromoted, stored.Status)
		require.Equal(t, "session-1", stored.SessionID)
	}

	untouched, ok, err := backend.Get(ctx, "m-late-same-count")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MotionQueueEndorsed, untouched.Status)
}

func TestSelectForConclaveReturnsEmptyWhenNothingQualifies(t *testing.T) {
	ctx := context.Background()
	backend := NewMemQueueBackend()
	require.NoError(t, backend.Enqueue(ctx, MotionQueueEntry{MotionID: "m-1", ConsensusTier: TierLow, Status: MotionQueuePending, CreatedAt: time.Now()}))

	selected, err := SelectForConclave(ctx, backend, 5, TierCritical, "session-1")
	require.NoError(t, err)
	require.Empty(t, selected)
}

func TestRecoverStrandedPromotedRevertsOrphansOnly(t *testing.T) {
	ctx := context.Background()
	backend := NewMemQueueBackend()
	require.NoError(t, backend.Enqueue(ctx, MotionQueueEntry{MotionID: "m-live", Status: MotionQueuePending, CreatedAt: time.Now()}))
	require.NoError(t, backend.Enqueue(ctx, MotionQueueEntry{MotionID: "m-stranded", Status: MotionQueuePending, CreatedAt: time.Now()}))
	require.NoError(t, backend.Promote(ctx, []string{"m-live", "m-stranded"}, "dead-session"))
	// m-live gets reassigned to a session that is (about to be declared) live.
	require.NoError(t, backend.Promote(ctx, []string{"m-live"}, "live-session"))

	reverted, err := backend.RecoverStrandedPromoted(ctx, map[string]struct{}{"live-session": {}})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"m-stranded"}, reverted)

	live, ok, err := backend.Get(ctx, "m-live")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MotionQueuePromoted, live.Status)

	stranded, ok, err := backend.Get(ctx, "m-stranded")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MotionQueuePending, stranded.Status)
	require.Empty(t, stranded.SessionID)
}

func TestArchiveMovesEntryOutOfActiveTable(t *testing.T) {
	ctx := context.Background()
	backend := NewMemQueueBackend()
	require.NoError(t, backend.Enqueue(ctx, MotionQueueEntry{MotionID: "m-1", Status: MotionQueuePending, CreatedAt: time.Now()}))

	require.NoError(t, backend.Archive(ctx, "m-1", MotionQueueVoted))

	_, ok, err := backend.Get(ctx, "m-1")
	require.NoError(t, err)
	require.False(t, ok)
}
