package ledger

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"
)

// AgentKey is the registry entry of spec section 3.2.
type AgentKey struct {
	KeyID       string
	AgentID     string
	PublicKey   ed25519.PublicKey
	ActiveFrom  time.Time
	ActiveUntil *time.Time // nil means still active
	Label       string
}

// CoversTime reports whether t falls within [ActiveFrom, ActiveUntil).
func (k AgentKey) CoversTime(t time.Time) bool {
	if t.Before(k.ActiveFrom) {
		return false
	}
	if k.ActiveUntil != nil && !t.Before(*k.ActiveUntil) {
		return false
	}
	return true
}

// KeyRegistry resolves signing keys for ledger signature validation. Keys
// are never deleted, only retired (ActiveUntil set).
type KeyRegistry interface {
	Register(ctx context.Context, agentID string, pub ed25519.PublicKey, label string) (string, error)
	Lookup(ctx context.Context, keyID string) (AgentKey, bool, error)
	Retire(ctx context.Context, keyID string, at time.Time) error
}

// MemKeyRegistry is an in-memory KeyRegistry, used by tests and by any
// process that hasn't wired a Postgres-backed registry yet.
type MemKeyRegistry struct {
	mu      sync.Mutex
	keys    map[string]AgentKey
	counter int
}

// NewMemKeyRegistry constructs an empty registry.
func NewMemKeyRegistry() *MemKeyRegistry {
	return &MemKeyRegistry{keys: make(map[string]AgentKey)}
}

func (r *MemKeyRegistry) Register(_ context.Context, agentID string, pub ed25519.PublicKey, label string) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("ledger: public key must be %d bytes", ed25519.PublicKeySize)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	keyID := fmt.Sprintf("key-%06d", r.counter)
	r.keys[keyID] = AgentKey{
		KeyID:      keyID,
		AgentID:    agentID,
		PublicKey:  append(ed25519.PublicKey(nil), pub...),
		ActiveFrom: time.Now().UTC(),
		Label:      label,
	}
	return keyID, nil
}

func (r *MemKeyRegistry) Lookup(_ context.Context, keyID string) (AgentKey, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[keyID]
	return k, ok, nil
}

func (r *MemKeyRegistry) Retire(_ context.Context, keyID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[keyID]
	if !ok {
		return fmt.Errorf("ledger: unknown key %q", keyID)
	}
	until := at
	k.ActiveUntil = &until
	r.keys[keyID] = k
	return nil
}

// RegisterAt is a test helper allowing the caller to control ActiveFrom,
// useful for constructing keys whose validity window must be exercised at a
// specific instant.
func (r *MemKeyRegistry) RegisterAt(agentID string, pub ed25519.PublicKey, from time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	keyID := fmt.Sprintf("key-%06d", r.counter)
	r.keys[keyID] = AgentKey{
		KeyID:      keyID,
		AgentID:    agentID,
		PublicKey:  append(ed25519.PublicKey(nil), pub...),
		ActiveFrom: from,
	}
	return keyID
}

// RegisterWitnessKey registers pub under keyID itself (by convention, a
// witness's registry key id is its WITNESS:<name> identity), so the ledger's
// witnessKeyID lookup resolves to a real key.
func (r *MemKeyRegistry) RegisterWitnessKey(witnessID string, pub ed25519.PublicKey, from time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[witnessID] = AgentKey{
		KeyID:      witnessID,
		AgentID:    witnessID,
		PublicKey:  append(ed25519.PublicKey(nil), pub...),
		ActiveFrom: from,
	}
	return witnessID
}
