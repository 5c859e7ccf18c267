package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/archon72/governance/internal/canon"
)

// SignableContent builds event_type|canonical_json(payload)|prev_hash, the
// exact byte sequence both the content_hash and the agent/witness
// signatures are computed over (spec section 4.1.1).
func SignableContent(eventType string, canonicalPayload []byte, prevHash string) []byte {
	out := make([]byte, 0, len(eventType)+len(canonicalPayload)+len(prevHash)+2)
	out = append(out, eventType...)
	out = append(out, '|')
	out = append(out, canonicalPayload...)
	out = append(out, '|')
	out = append(out, prevHash...)
	return out
}

// ContentHash computes hex(SHA-256(signable_content)) for hash_alg_version 1.
func ContentHash(eventType string, canonicalPayload []byte, prevHash string) string {
	sum := sha256.Sum256(SignableContent(eventType, canonicalPayload, prevHash))
	return hex.EncodeToString(sum[:])
}

// CanonicalPayload renders payload through the canonical-JSON encoder used
// for both hashing and signing.
func CanonicalPayload(payload any) ([]byte, error) {
	out, err := canon.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ledger: canonicalize payload: %w", err)
	}
	return out, nil
}
