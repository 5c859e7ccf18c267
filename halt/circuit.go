package halt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/archon72/governance/internal/ledgercrypto"
	"github.com/archon72/governance/ledger"
	"github.com/archon72/governance/observability/metrics"
)

// Circuit is the singleton halt gate and terminal-state authority (spec
// section 4.4). It implements ledger.HaltChecker, so a *Circuit is wired
// into ledger.NewStore(..., ledger.WithHaltChecker(circuit)) at the
// composition root; the ledger never imports this package directly.
type Circuit struct {
	mu      sync.Mutex
	backend Backend
	ledger  *ledger.Store
	signer  SystemSigner
	clock   func() time.Time
	metrics *metrics.Registry
}

// Option customises a Circuit.
type Option func(*Circuit)

// WithClock overrides the wall-clock source (tests only).
func WithClock(clock func() time.Time) Option {
	return func(c *Circuit) { c.clock = clock }
}

// WithMetrics wires in a metrics registry so halt/restore transitions
// update the halt-state gauge.
func WithMetrics(m *metrics.Registry) Option {
	return func(c *Circuit) { c.metrics = m }
}

// NewCircuit constructs a Circuit over backend, publishing its lifecycle
// events through ledgerStore under signer's identity.
func NewCircuit(backend Backend, ledgerStore *ledger.Store, signer SystemSigner, opts ...Option) *Circuit {
	c := &Circuit{
		backend: backend,
		ledger:  ledgerStore,
		signer:  signer,
		clock:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsHalted implements ledger.HaltChecker.
func (c *Circuit) IsHalted(ctx context.Context) (bool, error) {
	state, err := c.backend.Load(ctx)
	if err != nil {
		return false, err
	}
	return state.IsHalted, nil
}

// Status returns the current halt-state snapshot.
func (c *Circuit) Status(ctx context.Context) (State, error) {
	return c.backend.Load(ctx)
}

// Trigger trips the halt circuit, persisting is_halted=true and publishing
// system.halt.triggered. Design target: complete within a bounded time
// (~100ms) from admission to in-flight tasks observing the halted state.
func (c *Circuit) Trigger(ctx context.Context, reason, operatorID, severity string) (string, error) {
	if reason == "" {
		return "", ErrReasonRequired
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.backend.Load(ctx)
	if err != nil {
		return "", err
	}
	if state.IsHalted {
		return "", ErrAlreadyHalted
	}

	haltID := uuid.NewString()
	now := c.clock()

	crisisEventID, err := c.publish(ctx, "system.halt.triggered", map[string]any{
		"halt_id":     haltID,
		"reason":      reason,
		"operator_id": operatorID,
		"severity":    severity,
	})
	if err != nil {
		return "", fmt.Errorf("halt: publish trigger event: %w", err)
	}

	state = State{
		IsHalted:      true,
		Reason:        reason,
		CrisisEventID: crisisEventID,
		HaltID:        haltID,
		Severity:      severity,
		OperatorID:    operatorID,
		HaltedAt:      &now,
	}
	if err := c.backend.Save(ctx, state); err != nil {
		return "", fmt.Errorf("halt: save state: %w", err)
	}
	if err := c.backend.RecordCeremony(ctx, Ceremony{
		CeremonyID: uuid.NewString(),
		HaltID:     haltID,
		OperatorID: operatorID,
		Action:     "trigger",
		Reason:     reason,
		At:         now,
	}); err != nil {
		return "", fmt.Errorf("halt: record ceremony: %w", err)
	}

	if c.metrics != nil {
		c.metrics.SetHalted(true)
	}
	return haltID, nil
}

// Restore clears the halt circuit. ceremonyID must be non-empty; the
// production schema's before-update trigger forbids clearing without one
// (spec section 3.4), and this in-process check mirrors that invariant.
func (c *Circuit) Restore(ctx context.Context, ceremonyID, clearReason, operatorID string) error {
	if ceremonyID == "" {
		return ErrCeremonyRequired
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.backend.Load(ctx)
	if err != nil {
		return err
	}
	if !state.IsHalted {
		return ErrNotHalted
	}

	now := c.clock()
	if _, err := c.publish(ctx, "system.halt.restored", map[string]any{
		"halt_id":      state.HaltID,
		"ceremony_id":  ceremonyID,
		"clear_reason": clearReason,
		"operator_id":  operatorID,
	}); err != nil {
		return fmt.Errorf("halt: publish restore event: %w", err)
	}

	state.IsHalted = false
	state.ClearedAt = &now
	state.CeremonyID = ceremonyID
	if err := c.backend.Save(ctx, state); err != nil {
		return fmt.Errorf("halt: save state: %w", err)
	}
	if err := c.backend.RecordCeremony(ctx, Ceremony{
		CeremonyID: ceremonyID,
		HaltID:     state.HaltID,
		OperatorID: operatorID,
		Action:     "restore",
		Reason:     clearReason,
		At:         now,
	}); err != nil {
		return fmt.Errorf("halt: record ceremony: %w", err)
	}

	if c.metrics != nil {
		c.metrics.SetHalted(false)
	}
	return nil
}

// publish signs and appends eventType with payload, chaining from the
// ledger's current tip, and returns the committed event's id.
func (c *Circuit) publish(ctx context.Context, eventType string, payload map[string]any) (string, error) {
	prevHash := ledger.GenesisHash
	tip, ok, err := c.ledger.Tip(ctx)
	if err != nil {
		return "", fmt.Errorf("halt: read ledger tip: %w", err)
	}
	if ok {
		prevHash = tip.ContentHash
	}

	canonicalPayload, err := ledger.CanonicalPayload(payload)
	if err != nil {
		return "", err
	}
	signable := ledger.SignableContent(eventType, canonicalPayload, prevHash)

	ev, err := c.ledger.Append(ctx, ledger.EventRequest{
		EventType:        eventType,
		SchemaVersion:    "1.0.0",
		Payload:          payload,
		AgentID:          c.signer.AgentID,
		WitnessID:        c.signer.WitnessID,
		Signature:        ledgercrypto.Sign(c.signer.PrivateKey, signable),
		WitnessSignature: ledgercrypto.Sign(c.signer.WitnessPrivateKey, signable),
		SigningKeyID:     c.signer.SigningKeyID,
		LocalTimestamp:   c.clock(),
		PrevHash:         prevHash,
	})
	if err != nil {
		return "", err
	}
	return ev.EventID, nil
}
