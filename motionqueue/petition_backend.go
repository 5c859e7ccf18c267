package motionqueue

import "context"

// PetitionBackend is the petition-intake storage seam.
type PetitionBackend interface {
	// Save persists a newly-received petition atomically.
	Save(ctx context.Context, p Petition) error
	Get(ctx context.Context, petitionID string) (Petition, bool, error)
	// HasActiveDuplicate reports whether an active (non-withdrawn,
	// non-archived-terminal) petition already carries contentHash.
	HasActiveDuplicate(ctx context.Context, contentHash string) (bool, error)
	// CoSign inserts (petitionID, signerID, signedAt); the unique
	// constraint on (petition_id, signer_id) forecloses duplicates, and on
	// success the petition's co_signer_count is incremented in the same
	// transaction. Returns duplicate=true if signerID already co-signed.
	CoSign(ctx context.Context, petitionID, signerID string) (newCount int, duplicate bool, err error)
	// Adopt atomically writes the immutable adoption fields. Returns
	// ErrAlreadyAdopted if the fields are already set.
	Adopt(ctx context.Context, petitionID, motionID, kingID string, at int64) error
	SetState(ctx context.Context, petitionID string, state PetitionState, source EscalationSource) error
	// DeliberationQueueDepth reports how many petitions currently sit in
	// the received or deliberating state, for the queue-capacity gate.
	DeliberationQueueDepth(ctx context.Context) (int, error)
}
