package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/archon72/governance/internal/ledgercrypto"
)

type fixture struct {
	store    *Store
	backend  *MemBackend
	keys     *MemKeyRegistry
	agentKey string
	agentKP  ledgercrypto.KeyPair
	witKey   string
	witKP    ledgercrypto.KeyPair
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := NewMemBackend()
	keys := NewMemKeyRegistry()

	agentKP, err := ledgercrypto.GenerateKeyPair()
	require.NoError(t, err)
	witKP, err := ledgercrypto.GenerateKeyPair()
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agentKeyID := keys.RegisterAt("archon.king.1", agentKP.Public, now.Add(-time.Hour))
	witKeyID := keys.RegisterWitnessKey("WITNESS:scribe-1", witKP.Public, now.Add(-time.Hour))

	store := NewStore(backend, keys, WithClock(func() time.Time { return now }))

	return &fixture{
		store: store, backend: backend, keys: keys,
		agentKey: agentKeyID, agentKP: agentKP,
		witKey: witKeyID, witKP: witKP,
		now: now,
	}
}

func (f *fixture) request(t *testing.T, eventType string, payload any, prevHash string) EventRequest {
	t.Helper()
	canonicalPayload, err := CanonicalPayload(payload)
	require.NoError(t, err)
	signable := SignableContent(eventType, canonicalPayload, prevHash)
	return EventRequest{
		EventType:        eventType,
		SchemaVersion:    "1.0.0",
		Payload:          payload,
		AgentID:          "archon.king.1",
		WitnessID:        "WITNESS:scribe-1",
		Signature:        ledgercrypto.Sign(f.agentKP.Private, signable),
		WitnessSignature: ledgercrypto.Sign(f.witKP.Private, signable),
		SigningKeyID:     f.agentKey,
		LocalTimestamp:   f.now,
		PrevHash:         prevHash,
	}
}

// appendN appends n syntactically-valid events computing the correct
// prev_hash each time, returning the committed events.
func (f *fixture) appendN(t *testing.T, n int) []Event {
	t.Helper()
	ctx := context.Background()
	prev := GenesisHash
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		req := f.request(t, "legislative.motion.proposed", map[string]any{"i": i}, prev)
		ev, err := f.store.Append(ctx, req)
		require.NoError(t, err)
		out = append(out, ev)
		prev = ev.ContentHash
	}
	return out
}

func TestAppendAssignsDenseMonotonicSequence(t *testing.T) {
	f := newFixture(t)
	events := f.appendN(t, 5)
	for i, ev := range events {
		require.EqualValues(t, i+1, ev.Sequence)
	}
}

func TestAppendGenesisRequiresZeroPrevHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "legislative.motion.proposed", map[string]any{"a": 1}, "not-genesis")
	_, err := f.store.Append(ctx, req)
	require.ErrorIs(t, err, ErrChainViolation)
}

func TestAppendRejectsDisagreeingCallerPrevHash(t *testing.T) {
	f := newFixture(t)
	f.appendN(t, 1)
	ctx := context.Background()
	req := f.request(t, "legislative.motion.proposed", map[string]any{"a": 1}, "deadbeef")
	_, err := f.store.Append(ctx, req)
	require.ErrorIs(t, err, ErrChainViolation)
}

func TestAppendRecomputesContentHashDeterministically(t *testing.T) {
	f := newFixture(t)
	events := f.appendN(t, 1)
	ev := events[0]
	want := ContentHash(ev.EventType, ev.Payload, ev.PrevHash)
	require.Equal(t, want, ev.ContentHash)
}

func TestAppendRejectsBadEventType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "Not Valid", map[string]any{}, GenesisHash)
	_, err := f.store.Append(ctx, req)
	require.ErrorIs(t, err, ErrSchemaInvalid)
}

func TestAppendRejectsBadSchemaVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "legislative.motion.proposed", map[string]any{}, GenesisHash)
	req.SchemaVersion = "v1"
	_, err := f.store.Append(ctx, req)
	require.ErrorIs(t, err, ErrSchemaInvalid)
}

func TestAppendRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "legislative.motion.proposed", map[string]any{}, GenesisHash)
	req.Signature = ledgercrypto.Sign(f.witKP.Private, []byte("wrong content"))
	_, err := f.store.Append(ctx, req)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestAppendRejectsMissingWitness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "legislative.motion.proposed", map[string]any{}, GenesisHash)
	req.WitnessID = ""
	_, err := f.store.Append(ctx, req)
	require.ErrorIs(t, err, ErrBadWitness)
}

func TestAppendRejectsBadWitnessSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "legislative.motion.proposed", map[string]any{}, GenesisHash)
	req.WitnessSignature = ledgercrypto.Sign(f.agentKP.Private, []byte("wrong content"))
	_, err := f.store.Append(ctx, req)
	require.ErrorIs(t, err, ErrBadWitness)
}

func TestAppendRejectsUnknownSigningKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "legislative.motion.proposed", map[string]any{}, GenesisHash)
	req.SigningKeyID = "no-such-key"
	_, err := f.store.Append(ctx, req)
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestAppendRejectsKeyOutsideValidityWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expiredKeyID := f.keys.RegisterAt("archon.duke.2", f.agentKP.Public, f.now.Add(time.Hour)) // starts in the future
	req := f.request(t, "legislative.motion.proposed", map[string]any{}, GenesisHash)
	req.SigningKeyID = expiredKeyID
	_, err := f.store.Append(ctx, req)
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestAppendHaltedRejectsNonWhitelistedWrites(t *testing.T) {
	f := newFixture(t)
	f.store.halt = haltedChecker{}
	ctx := context.Background()
	req := f.request(t, "legislative.motion.proposed", map[string]any{}, GenesisHash)
	_, err := f.store.Append(ctx, req)
	require.ErrorIs(t, err, ErrHalted)
}

func TestAppendHaltedAllowsWhitelistedWrites(t *testing.T) {
	f := newFixture(t)
	f.store.halt = haltedChecker{}
	ctx := context.Background()
	req := f.request(t, "system.halt.triggered", map[string]any{"reason": "x"}, GenesisHash)
	_, err := f.store.Append(ctx, req)
	require.NoError(t, err)
}

func TestAppendAfterTerminalEventAlwaysFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "witness.cessation.recorded", map[string]any{"is_terminal": true}, GenesisHash)
	_, err := f.store.Append(ctx, req)
	require.NoError(t, err)

	terminated, err := f.store.IsTerminated(ctx)
	require.NoError(t, err)
	require.True(t, terminated)

	next := f.request(t, "legislative.motion.proposed", map[string]any{}, "whatever")
	_, err = f.store.Append(ctx, next)
	require.ErrorIs(t, err, ErrTerminated)
}

func TestVerifyChainDetectsNoBreakOverValidRange(t *testing.T) {
	f := newFixture(t)
	f.appendN(t, 10)
	ok, brokenAt, _, _ := f.store.VerifyChain(context.Background(), 1, 10)
	require.True(t, ok)
	require.Nil(t, brokenAt)
}

func TestVerifyChainDetectsTamperedLink(t *testing.T) {
	f := newFixture(t)
	f.appendN(t, 5)

	f.backend.mu.Lock()
	f.backend.events[2].PrevHash = "tampered"
	f.backend.mu.Unlock()

	ok, brokenAt, expected, actual := f.store.VerifyChain(context.Background(), 1, 5)
	require.False(t, ok)
	require.NotNil(t, brokenAt)
	require.EqualValues(t, 3, *brokenAt)
	require.NotEqual(t, expected, actual)
}

func TestDriftIsLoggedNotRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "legislative.motion.proposed", map[string]any{}, GenesisHash)
	req.LocalTimestamp = f.now.Add(-time.Hour)
	_, err := f.store.Append(ctx, req)
	require.NoError(t, err)
	require.Len(t, f.backend.DriftRecords(), 1)
}

func TestMemBackendRejectsMutation(t *testing.T) {
	backend := NewMemBackend()
	require.ErrorIs(t, backend.AttemptUpdate(context.Background(), "x"), ErrAppendOnlyViolation)
	require.ErrorIs(t, backend.AttemptDelete(context.Background(), "x"), ErrAppendOnlyViolation)
}

func TestCanonicalHashIdempotenceAcrossPayloadOrdering(t *testing.T) {
	p1 := map[string]any{"b": 1, "a": 2}
	p2 := map[string]any{"a": 2, "b": 1}
	c1, err := CanonicalPayload(p1)
	require.NoError(t, err)
	c2, err := CanonicalPayload(p2)
	require.NoError(t, err)
	require.Equal(t, ContentHash("t.t.t", c1, GenesisHash), ContentHash("t.t.t", c2, GenesisHash))
}

type haltedChecker struct{}

func (haltedChecker) IsHalted(context.Context) (bool, error) { return true, nil }
