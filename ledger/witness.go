package ledger

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var witnessIDPattern = regexp.MustCompile(`^WITNESS:[A-Za-z0-9_\-]+$`)

// validateWitness checks witness id format and signature presence/length
// (spec section 4.1 step 5). Cryptographic verification, when a witness key
// is resolvable, happens in Store.append.
func validateWitness(req EventRequest) error {
	if req.WitnessID == "" {
		return fmt.Errorf("%w: witness_id is required", ErrBadWitness)
	}
	if !witnessIDPattern.MatchString(req.WitnessID) {
		return fmt.Errorf("%w: witness_id %q must match WITNESS:<name>", ErrBadWitness, req.WitnessID)
	}
	if len(req.WitnessSignature) == 0 {
		return fmt.Errorf("%w: witness_signature is required", ErrBadWitness)
	}
	return nil
}

// witnessKeyID derives the key-registry lookup id for a witness identity.
// Witnesses register under their own key id equal to their WitnessID; this
// keeps the registry lookup uniform between agents and witnesses.
func witnessKeyID(witnessID string) string { return witnessID }

// payloadBool extracts a boolean field from an arbitrary payload value
// (struct or map[string]any) without requiring every event payload type to
// implement a shared interface.
func payloadBool(payload any, field string) (bool, error) {
	if payload == nil {
		return false, nil
	}
	if m, ok := payload.(map[string]any); ok {
		v, ok := m[field]
		if !ok {
			return false, nil
		}
		b, _ := v.(bool)
		return b, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return false, err
	}
	v, ok := m[field]
	if !ok {
		return false, nil
	}
	b, _ := v.(bool)
	return b, nil
}
