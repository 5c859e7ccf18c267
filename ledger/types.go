package ledger

import (
	"regexp"
	"strings"
	"time"
)

// GenesisHash is the fixed prev_hash value required for sequence 1: 64 hex
// zero characters, the width of a hex-encoded SHA-256 digest (spec 3.1).
var GenesisHash = strings.Repeat("0", 64)

var (
	eventTypePattern     = regexp.MustCompile(`^[a-z]+\.[a-z]+\.[a-z_]+$`)
	schemaVersionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// ValidEventType reports whether s matches branch.noun.verb.
func ValidEventType(s string) bool { return eventTypePattern.MatchString(s) }

// ValidSchemaVersion reports whether s is a semver triple.
func ValidSchemaVersion(s string) bool { return schemaVersionPattern.MatchString(s) }

// Branch returns the first dot-delimited segment of an event_type.
func Branch(eventType string) string {
	idx := strings.IndexByte(eventType, '.')
	if idx < 0 {
		return eventType
	}
	return eventType[:idx]
}

// HashAlgVersion enumerates the supported content-hash algorithms. Version 1
// is SHA-256 (the default, used for every event's content_hash); version 2
// admits BLAKE3 for components (e.g. Merkle leaves) that opt in.
type HashAlgVersion int

const (
	HashAlgSHA256 HashAlgVersion = 1
	HashAlgBLAKE3 HashAlgVersion = 2
)

// SigAlgVersion enumerates supported signature algorithms. Only Ed25519 is
// implemented; the field exists to admit algorithm rotation per spec 3.1.
type SigAlgVersion int

const SigAlgEd25519 SigAlgVersion = 1

// EventRequest is the caller-supplied input to Store.Append. Sequence,
// branch, content_hash, and authority_timestamp are never accepted from the
// caller; they are always server-derived.
type EventRequest struct {
	EventID           string
	EventType         string
	SchemaVersion     string
	Payload           any
	AgentID           string
	WitnessID         string
	Signature         string
	WitnessSignature  string
	SigningKeyID      string
	LocalTimestamp    time.Time
	PrevHash          string // optional; if non-empty, must agree with the derived value
}

// Event is the immutable, committed ledger record of spec section 3.1.
type Event struct {
	EventID             string
	Sequence            int64
	EventType           string
	Branch              string
	SchemaVersion       string
	Payload             []byte // canonical JSON
	PrevHash            string
	ContentHash         string
	HashAlgVersion      HashAlgVersion
	SigAlgVersion       SigAlgVersion
	AgentID             string
	WitnessID           string
	Signature           string
	SigningKeyID        string
	WitnessSignature    string
	LocalTimestamp      time.Time
	AuthorityTimestamp  time.Time
	IsTerminal          bool
}

// readSafeWhitelist lists the event types the halt circuit still admits
// while the system is halted (spec section 4.1 step 1 and 4.4).
var readSafeWhitelist = map[string]struct{}{
	"system.halt.triggered":  {},
	"system.halt.restored":   {},
	"witness.heartbeat.sent": {},
}

// IsReadSafeWhitelisted reports whether eventType may still be appended while
// the halt circuit is tripped.
func IsReadSafeWhitelisted(eventType string) bool {
	_, ok := readSafeWhitelist[eventType]
	return ok
}
