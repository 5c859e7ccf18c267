package halt

import "crypto/ed25519"

// SystemSigner holds the administrative identity the halt circuit uses to
// append its own system.halt.triggered/system.halt.restored ledger events.
// These events are on the ledger's read-safe whitelist, so they succeed
// even while the circuit is mid-transition.
type SystemSigner struct {
	AgentID           string
	SigningKeyID      string
	PrivateKey        ed25519.PrivateKey
	WitnessID         string
	WitnessKeyID      string
	WitnessPrivateKey ed25519.PrivateKey
}
