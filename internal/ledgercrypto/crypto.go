// Package ledgercrypto implements the Ed25519 signing envelope shared by
// ledger events and witness attestations, generalized from the
// scheme-tagged Signature envelope consensus messages use elsewhere in this
// codebase's ancestry.
package ledgercrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// PublicKeySize and SignatureSize mirror the Ed25519 primitive sizes; kept as
// named constants since the ledger's write-path validates signature length
// before attempting a cryptographic check (spec section 4.1 step 4).
const (
	PublicKeySize = ed25519.PublicKeySize
	SignatureSize = ed25519.SignatureSize

	// Ed25519 signatures are 64 bytes, which base64-standard-encodes to 88
	// characters (with padding); spec section 4.1 step 4 validates this
	// length before attempting verification.
	Base64SignatureLength = 88
)

// KeyPair bundles an Ed25519 private/public key for agents and witnesses.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("ledgercrypto: generate key: %w", err)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// Sign produces a base64-encoded Ed25519 signature over content.
func Sign(priv ed25519.PrivateKey, content []byte) string {
	sig := ed25519.Sign(priv, content)
	return base64.StdEncoding.EncodeToString(sig)
}

// Verify checks a base64-encoded Ed25519 signature over content against pub.
// It rejects malformed encodings and wrong-length signatures before invoking
// the cryptographic primitive, matching spec section 4.1 step 4's ordering.
func Verify(pub ed25519.PublicKey, content []byte, signatureB64 string) error {
	if len(signatureB64) != Base64SignatureLength {
		return fmt.Errorf("ledgercrypto: signature must be %d base64 chars, got %d", Base64SignatureLength, len(signatureB64))
	}
	raw, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("ledgercrypto: decode signature: %w", err)
	}
	if len(raw) != SignatureSize {
		return fmt.Errorf("ledgercrypto: signature must decode to %d bytes, got %d", SignatureSize, len(raw))
	}
	if len(pub) != PublicKeySize {
		return fmt.Errorf("ledgercrypto: public key must be %d bytes, got %d", PublicKeySize, len(pub))
	}
	if !ed25519.Verify(pub, content, raw) {
		return fmt.Errorf("ledgercrypto: signature verification failed")
	}
	return nil
}

// ConstantTimeEqualHex compares two hex-encoded digests in constant time,
// foreclosing timing side channels per spec section 4.1.4.
func ConstantTimeEqualHex(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
