package halt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/archon72/governance/internal/ledgercrypto"
	"github.com/archon72/governance/ledger"
)

func newTestCircuit(t *testing.T) (*Circuit, *ledger.Store, *MemBackend) {
	t.Helper()
	keys := ledger.NewMemKeyRegistry()
	agentKP, err := ledgercrypto.GenerateKeyPair()
	require.NoError(t, err)
	witnessKP, err := ledgercrypto.GenerateKeyPair()
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agentKeyID := keys.RegisterAt("system", agentKP.Public, now.Add(-time.Hour))
	keys.RegisterWitnessKey("WITNESS:system", witnessKP.Public, now.Add(-time.Hour))

	ledgerBackend := ledger.NewMemBackend()
	store := ledger.NewStore(ledgerBackend, keys, ledger.WithClock(func() time.Time { return now }))

	backend := NewMemBackend()
	signer := SystemSigner{
		AgentID:           "system",
		SigningKeyID:      agentKeyID,
		PrivateKey:        agentKP.Private,
		WitnessID:         "WITNESS:system",
		WitnessKeyID:      "WITNESS:system",
		WitnessPrivateKey: witnessKP.Private,
	}
	circuit := NewCircuit(backend, store, signer, WithClock(func() time.Time { return now }))
	return circuit, store, backend
}

func TestTriggerSetsHaltedStateAndPublishesEvent(t *testing.T) {
	circuit, store, _ := newTestCircuit(t)
	ctx := context.Background()

	haltID, err := circuit.Trigger(ctx, "security incident", "op-1", "critical")
	require.NoError(t, err)
	require.NotEmpty(t, haltID)

	status, err := circuit.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.IsHalted)
	require.Equal(t, "security incident", status.Reason)
	require.Equal(t, haltID, status.HaltID)
	require.NotEmpty(t, status.CrisisEventID)

	events, err := store.ReadRange(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "system.halt.triggered", events[0].EventType)
}

func TestTriggerRejectsWhenAlreadyHalted(t *testing.T) {
	circuit, _, _ := newTestCircuit(t)
	ctx := context.Background()

	_, err := circuit.Trigger(ctx, "first", "op-1", "critical")
	require.NoError(t, err)

	_, err = circuit.Trigger(ctx, "second", "op-1", "critical")
	require.ErrorIs(t, err, ErrAlreadyHalted)
}

func TestTriggerRequiresReason(t *testing.T) {
	circuit, _, _ := newTestCircuit(t)
	_, err := circuit.Trigger(context.Background(), "", "op-1", "critical")
	require.ErrorIs(t, err, ErrReasonRequired)
}

func TestRestoreRequiresCeremonyID(t *testing.T) {
	circuit, _, _ := newTestCircuit(t)
	ctx := context.Background()
	_, err := circuit.Trigger(ctx, "incident", "op-1", "critical")
	require.NoError(t, err)

	err = circuit.Restore(ctx, "", "resolved", "op-1")
	require.ErrorIs(t, err, ErrCeremonyRequired)
}

func TestRestoreClearsHaltAndRecordsCeremony(t *testing.T) {
	circuit, store, backend := newTestCircuit(t)
	ctx := context.Background()

	_, err := circuit.Trigger(ctx, "incident", "op-1", "critical")
	require.NoError(t, err)

	err = circuit.Restore(ctx, "ceremony-001", "resolved", "op-2")
	require.NoError(t, err)

	status, err := circuit.Status(ctx)
	require.NoError(t, err)
	require.False(t, status.IsHalted)
	require.Equal(t, "ceremony-001", status.CeremonyID)
	require.NotNil(t, status.ClearedAt)

	ceremonies, err := backend.ListCeremonies(ctx)
	require.NoError(t, err)
	require.Len(t, ceremonies, 2)
	require.Equal(t, "trigger", ceremonies[0].Action)
	require.Equal(t, "restore", ceremonies[1].Action)

	events, err := store.ReadRange(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "system.halt.restored", events[1].EventType)
}

func TestRestoreRejectsWhenNotHalted(t *testing.T) {
	circuit, _, _ := newTestCircuit(t)
	err := circuit.Restore(context.Background(), "ceremony-001", "n/a", "op-1")
	require.ErrorIs(t, err, ErrNotHalted)
}

func TestHaltedLedgerRejectsNonWhitelistedWrites(t *testing.T) {
	circuit, _, _ := newTestCircuit(t)
	ctx := context.Background()

	// Rewire the ledger to consult this circuit as its halt checker, the
	// way cmd/archon72d's composition root does.
	keys := ledger.NewMemKeyRegistry()
	kp, err := ledgercrypto.GenerateKeyPair()
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agentKeyID := keys.RegisterAt("archon.king.1", kp.Public, now.Add(-time.Hour))
	witKP, err := ledgercrypto.GenerateKeyPair()
	require.NoError(t, err)
	keys.RegisterWitnessKey("WITNESS:scribe-1", witKP.Public, now.Add(-time.Hour))

	gatedBackend := ledger.NewMemBackend()
	gatedStore := ledger.NewStore(gatedBackend, keys,
		ledger.WithClock(func() time.Time { return now }),
		ledger.WithHaltChecker(circuit))

	_, err = circuit.Trigger(ctx, "incident", "op-1", "critical")
	require.NoError(t, err)

	payload := map[string]any{"x": 1}
	canonicalPayload, err := ledger.CanonicalPayload(payload)
	require.NoError(t, err)
	signable := ledger.SignableContent("legislative.motion.proposed", canonicalPayload, ledger.GenesisHash)
	_, err = gatedStore.Append(ctx, ledger.EventRequest{
		EventType:        "legislative.motion.proposed",
		SchemaVersion:    "1.0.0",
		Payload:          payload,
		AgentID:          "archon.king.1",
		WitnessID:        "WITNESS:scribe-1",
		Signature:        ledgercrypto.Sign(kp.Private, signable),
		WitnessSignature: ledgercrypto.Sign(witKP.Private, signable),
		SigningKeyID:     agentKeyID,
		LocalTimestamp:   now,
	})
	require.ErrorIs(t, err, ledger.ErrHalted)
}
