package fates

import "context"

// Invoker is the opaque seam the deliberation engine calls for each
// adjudicator's assessment, position, cross-examination, and vote, mirroring
// conclave.AgentInvoker's shape for the Three-Fates mini-Conclave.
type Invoker interface {
	// Assess builds an adjudicator's context package over the petition text
	// and returns a hash of that package, stored as the phase transcript
	// hash (spec section 4.6 phase 1).
	Assess(ctx context.Context, petitionID, petitionText, adjudicatorID string) (assessmentHash string, err error)

	// Position returns an adjudicator's initial disposition and rationale
	// (phase 2).
	Position(ctx context.Context, petitionID, adjudicatorID string) (Disposition, string, error)

	// CrossExamine lets challengerID challenge challengedID in round, and
	// returns the recorded question/response pair (phase 3).
	CrossExamine(ctx context.Context, petitionID, challengerID, challengedID string, round int) (question, response string, err error)

	// Vote returns an adjudicator's ballot for the current round (phase 4).
	Vote(ctx context.Context, petitionID, adjudicatorID string, round int) (Disposition, error)
}
