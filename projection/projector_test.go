package projection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/archon72/governance/internal/ledgercrypto"
	"github.com/archon72/governance/ledger"
)

// testLedger builds a MemBackend-backed ledger.Store with one registered
// agent/witness key pair and a fixed clock, mirroring the fixture style
// used throughout ledger/store_test.go and merkle/epoch_test.go.
type testLedger struct {
	store    *ledger.Store
	agentK   ledgercrypto.KeyPair
	witK     ledgercrypto.KeyPair
	agentKey string
	now      time.Time
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	backend := ledger.NewMemBackend()
	keys := ledger.NewMemKeyRegistry()

	agentKP, err := ledgercrypto.GenerateKeyPair()
	require.NoError(t, err)
	witKP, err := ledgercrypto.GenerateKeyPair()
	require.NoError(t, err)

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	agentKeyID := keys.RegisterAt("archon.king.1", agentKP.Public, now.Add(-time.Hour))
	keys.RegisterWitnessKey("WITNESS:scribe-1", witKP.Public, now.Add(-time.Hour))

	store := ledger.NewStore(backend, keys, ledger.WithClock(func() time.Time { return now }))

	return &testLedger{store: store, agentK: agentKP, witK: witKP, agentKey: agentKeyID, now: now}
}

func (tl *testLedger) append(t *testing.T, eventType string, payload any, prevHash string) ledger.Event {
	t.Helper()
	canonicalPayload, err := ledger.CanonicalPayload(payload)
	require.NoError(t, err)
	signable := ledger.SignableContent(eventType, canonicalPayload, prevHash)
	req := ledger.EventRequest{
		EventType:        eventType,
		SchemaVersion:    "1",
		Payload:          payload,
		AgentID:          "archon.king.1",
		WitnessID:        "WITNESS:scribe-1",
		Signature:        ledgercrypto.Sign(tl.agentK.Private, signable),
		WitnessSignature: ledgercrypto.Sign(tl.witK.Private, signable),
		SigningKeyID:     tl.agentKey,
		LocalTimestamp:   tl.now,
	}
	ev, err := tl.store.Append(context.Background(), req)
	require.NoError(t, err)
	return ev
}

func TestPetitionIndexAppliesReceivedThenCosignThenEscalated(t *testing.T) {
	tl := newTestLedger(t)
	ctx := context.Background()

	received := tl.append(t, "petition.received.committed", map[string]any{
		"petition_id":  "p-1",
		"submitter_id": "archon.knight.7",
		"content_hash": "blake3:deadbeef",
	}, ledger.GenesisHash)
	cosigned := tl.append(t, "petition.cosigned.committed", map[string]any{
		"petition_id": "p-1",
	}, received.ContentHash)
	escalated := tl.append(t, "petition.escalated.committed", map[string]any{
		"petition_id": "p-1",
	}, cosigned.ContentHash)

	backend := NewMemBackend()
	p := NewProjector("petition_index", backend, tl.store)
	RegisterPetitionIndexHandlers(p)

	require.NoError(t, p.ApplyEvent(ctx, received))
	require.NoError(t, p.ApplyEvent(ctx, cosigned))
	require.NoError(t, p.ApplyEvent(ctx, escalated))

	var row PetitionIndexRow
	tx := &MemTx{backend: backend, name: "petition_index"}
	found, err := tx.Get("petition_index", "p-1", &row)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "escalated", row.Status)
	require.Equal(t, 1, row.CoSignerCount)
	require.Equal(t, escalated.Sequence, row.LastEventSequence)
	require.Equal(t, escalated.ContentHash, row.LastEventHash)
}

func TestApplyEventIsIdempotentOnReplayOfSameEventID(t *testing.T) {
	tl := newTestLedger(t)
	ctx := context.Background()

	received := tl.append(t, "petition.received.committed", map[string]any{
		"petition_id":  "p-1",
		"submitter_id": "archon.knight.7",
		"content_hash": "blake3:deadbeef",
	}, ledger.GenesisHash)
	cosigned := tl.append(t, "petition.cosigned.committed", map[string]any{
		"petition_id": "p-1",
	}, received.ContentHash)

	backend := NewMemBackend()
	p := NewProjector("petition_index", backend, tl.store)
	RegisterPetitionIndexHandlers(p)

	require.NoError(t, p.ApplyEvent(ctx, received))
	require.NoError(t, p.ApplyEvent(ctx, cosigned))
	// Re-apply the same cosign event: co_signer_count must not increment again.
	require.NoError(t, p.ApplyEvent(ctx, cosigned))

	var row PetitionIndexRow
	tx := &MemTx{backend: backend, name: "petition_index"}
	found, err := tx.Get("petition_index", "p-1", &row)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, row.CoSignerCount)
}

func TestCatchUpReplaysFromCheckpointInBatches(t *testing.T) {
	tl := newTestLedger(t)
	ctx := context.Background()

	prev := ledger.GenesisHash
	for i := 0; i < 5; i++ {
		ev := tl.append(t, "actor.registered.committed", map[string]any{
			"agent_id": "archon.knight.1",
			"rank":     "knight",
		}, prev)
		prev = ev.ContentHash
	}

	backend := NewMemBackend()
	p := NewProjector("actor_registry", backend, tl.store)
	RegisterActorRegistryHandlers(p)

	require.NoError(t, p.CatchUp(ctx, 5, 2))

	checkpoint, ok, err := backend.LoadCheckpoint(ctx, "actor_registry")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 5, checkpoint.LastSequence)

	var row ActorRegistryRow
	tx := &MemTx{backend: backend, name: "actor_registry"}
	found, err := tx.Get("actor_registry", "archon.knight.1", &row)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "active", row.Standing)
}

func TestRebuildTruncatesAndReplaysIdenticalState(t *testing.T) {
	tl := newTestLedger(t)
	ctx := context.Background()

	registered := tl.append(t, "actor.registered.committed", map[string]any{
		"agent_id": "archon.knight.1",
		"rank":     "knight",
	}, ledger.GenesisHash)
	tl.append(t, "actor.standing_changed.committed", map[string]any{
		"agent_id": "archon.knight.1",
		"standing": "suspended",
	}, registered.ContentHash)

	backend := NewMemBackend()
	p := NewProjector("actor_registry", backend, tl.store)
	RegisterActorRegistryHandlers(p)

	require.NoError(t, p.CatchUp(ctx, 2, 10))

	var before ActorRegistryRow
	tx := &MemTx{backend: backend, name: "actor_registry"}
	_, err := tx.Get("actor_registry", "archon.knight.1", &before)
	require.NoError(t, err)
	require.Equal(t, "suspended", before.Standing)

	require.NoError(t, p.Rebuild(ctx, 2, 10))

	var after ActorRegistryRow
	_, err = tx.Get("actor_registry", "archon.knight.1", &after)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestVerifyIntegrityMatchesLedgerContentHash(t *testing.T) {
	tl := newTestLedger(t)
	ctx := context.Background()

	ev := tl.append(t, "actor.registered.committed", map[string]any{
		"agent_id": "archon.knight.1",
		"rank":     "knight",
	}, ledger.GenesisHash)

	backend := NewMemBackend()
	p := NewProjector("actor_registry", backend, tl.store)
	RegisterActorRegistryHandlers(p)

	require.NoError(t, p.ApplyEvent(ctx, ev))

	ok, err := p.VerifyIntegrity(ctx, tl.store)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyIntegrityIsTriviallyTrueBeforeAnyApply(t *testing.T) {
	tl := newTestLedger(t)
	backend := NewMemBackend()
	p := NewProjector("actor_registry", backend, tl.store)
	RegisterActorRegistryHandlers(p)

	ok, err := p.VerifyIntegrity(context.Background(), tl.store)
	require.NoError(t, err)
	require.True(t, ok)
}
