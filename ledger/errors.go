package ledger

import "errors"

// Sentinel errors returned by Store.Append and friends. Callers use
// errors.Is against these; the ledger never panics for expected failures.
var (
	// ErrHalted is returned when a write is attempted while the halt
	// circuit is tripped and the event is not on the read-safe whitelist.
	ErrHalted = errors.New("ledger: halted")

	// ErrTerminated is returned for every append once a terminal event has
	// been committed. It is permanent; there is no retry.
	ErrTerminated = errors.New("ledger: terminated")

	// ErrSchemaInvalid is returned when event_type or schema_version fail
	// their format checks, or an unknown (event_type, schema_version) pair
	// is encountered by a payload decoder.
	ErrSchemaInvalid = errors.New("ledger: schema invalid")

	// ErrBadSignature is returned when the agent signature fails format or
	// cryptographic validation.
	ErrBadSignature = errors.New("ledger: bad signature")

	// ErrBadWitness is returned when the witness id or signature fails
	// format or cryptographic validation.
	ErrBadWitness = errors.New("ledger: bad witness")

	// ErrUnknownKey is returned when signing_key_id does not resolve to a
	// registered key, or the key's validity window does not cover the
	// commit timestamp.
	ErrUnknownKey = errors.New("ledger: unknown or inactive signing key")

	// ErrChainViolation is returned when prev_hash does not match the
	// previous event's content_hash, or sequence 1 supplies a non-genesis
	// prev_hash.
	ErrChainViolation = errors.New("ledger: chain violation")

	// ErrCallerSuppliedHash names a caller-supplied content_hash or
	// sequence. Store.Append does not return it: EventRequest has neither
	// field, so both are always server-derived.
	ErrCallerSuppliedHash = errors.New("ledger: content_hash/sequence must not be caller-supplied")
)
