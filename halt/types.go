// Package halt implements the system-wide emergency-stop singleton (spec
// section 4.4): a halt gate that the ledger consults on every write, plus
// the architecturally irreversible terminal event the ledger itself
// enforces at the storage layer.
package halt

import "time"

// State mirrors the HaltState singleton row of spec section 3.4.
type State struct {
	IsHalted      bool
	Reason        string
	CrisisEventID string
	HaltID        string
	Severity      string
	OperatorID    string
	HaltedAt      *time.Time
	ClearedAt     *time.Time
	CeremonyID    string
}

// Ceremony is an audit-trail row for a trigger or restore operator action,
// supplementing the bare ceremony_id field with who acted and when (spec
// section 6's operator audit trail).
type Ceremony struct {
	CeremonyID string
	HaltID     string
	OperatorID string
	Action     string // "trigger" or "restore"
	Reason     string
	At         time.Time
}
