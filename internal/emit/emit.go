// Package emit implements the Two-Phase Emission pattern of spec section
// 4.10: every externally significant action publishes an `<action>.intent`
// event followed by `<action>.committed` (on success) or `<action>.failed`
// (on failure), so an orphaned intent with no matching outcome is a
// detectable skip signal for the witness pipeline. It factors the
// sign-and-append idiom halt.Circuit first established (read the ledger's
// tip, canonicalize the payload, sign under a fixed identity, append) into
// a shared helper for conclave, fates, and motionqueue.
package emit

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/archon72/governance/internal/ledgercrypto"
	"github.com/archon72/governance/ledger"
)

// Identity is the signing identity a Publisher appends events under.
type Identity struct {
	AgentID           string
	SigningKeyID      string
	PrivateKey        ed25519.PrivateKey
	WitnessID         string
	WitnessPrivateKey ed25519.PrivateKey
}

// Publisher appends signed events to a ledger.Store under a fixed identity,
// pre-reading the current tip to compute prev_hash before signing.
type Publisher struct {
	Ledger   *ledger.Store
	Identity Identity
	Clock    func() time.Time
}

// Publish signs and appends a single event, chaining from the ledger's
// current tip. It is the building block Intent/Committed/Failed call; use
// it directly for events that have no two-phase counterpart.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload map[string]any) (ledger.Event, error) {
	prevHash := ledger.GenesisHash
	tip, ok, err := p.Ledger.Tip(ctx)
	if err != nil {
		return ledger.Event{}, fmt.Errorf("emit: read ledger tip: %w", err)
	}
	if ok {
		prevHash = tip.ContentHash
	}

	canonicalPayload, err := ledger.CanonicalPayload(payload)
	if err != nil {
		return ledger.Event{}, err
	}
	signable := ledger.SignableContent(eventType, canonicalPayload, prevHash)

	return p.Ledger.Append(ctx, ledger.EventRequest{
		EventType:        eventType,
		SchemaVersion:    "1.0.0",
		Payload:          payload,
		AgentID:          p.Identity.AgentID,
		WitnessID:        p.Identity.WitnessID,
		Signature:        ledgercrypto.Sign(p.Identity.PrivateKey, signable),
		WitnessSignature: ledgercrypto.Sign(p.Identity.WitnessPrivateKey, signable),
		SigningKeyID:     p.Identity.SigningKeyID,
		LocalTimestamp:   p.now(),
		PrevHash:         prevHash,
	})
}

func (p *Publisher) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now().UTC()
}

// Intent publishes "<action>.intent" and returns its event id, to be passed
// to Committed or Failed once the action's outcome is known.
func (p *Publisher) Intent(ctx context.Context, action string, payload map[string]any) (string, error) {
	ev, err := p.Publish(ctx, action+".intent", payload)
	if err != nil {
		return "", err
	}
	return ev.EventID, nil
}

// Committed publishes "<action>.committed", referencing the intent event
// that preceded it.
func (p *Publisher) Committed(ctx context.Context, action, intentEventID string, payload map[string]any) error {
	withIntent := withIntentRef(payload, intentEventID)
	_, err := p.Publish(ctx, action+".committed", withIntent)
	return err
}

// Failed publishes "<action>.failed", referencing the intent event that
// preceded it and recording the failure reason.
func (p *Publisher) Failed(ctx context.Context, action, intentEventID, reason string, payload map[string]any) error {
	withIntent := withIntentRef(payload, intentEventID)
	withIntent["failure_reason"] = reason
	_, err := p.Publish(ctx, action+".failed", withIntent)
	return err
}

func withIntentRef(payload map[string]any, intentEventID string) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["intent_event_id"] = intentEventID
	return out
}
