// Package motionqueue implements the Motion Queue and Petition Intake
// pipeline of spec section 4.9.
package motionqueue

import "time"

// ConsensusTier ranks a motion's required debate weight.
type ConsensusTier string

const (
	TierCritical ConsensusTier = "critical"
	TierHigh     ConsensusTier = "high"
	TierMedium   ConsensusTier = "medium"
	TierLow      ConsensusTier = "low"
	TierSingle   ConsensusTier = "single"
)

// tierRank orders tiers so consensus_tier >= min_consensus comparisons
// (spec section 4.9) can be done numerically; critical is highest.
var tierRank = map[ConsensusTier]int{
	TierCritical: 4,
	TierHigh:     3,
	TierMedium:   2,
	TierLow:      1,
	TierSingle:   0,
}

// AtLeast reports whether t meets or exceeds min.
func (t ConsensusTier) AtLeast(min ConsensusTier) bool {
	return tierRank[t] >= tierRank[min]
}

// MotionQueueStatus enumerates a MotionQueueEntry's lifecycle.
type MotionQueueStatus string

const (
	MotionQueuePending   MotionQueueStatus = "pending"
	MotionQueueEndorsed  MotionQueueStatus = "endorsed"
	MotionQueuePromoted  MotionQueueStatus = "promoted"
	MotionQueueVoted     MotionQueueStatus = "voted"
	MotionQueueArchived  MotionQueueStatus = "archived"
	MotionQueueWithdrawn MotionQueueStatus = "withdrawn"
	MotionQueueDeferred  MotionQueueStatus = "deferred"
	MotionQueueMerged    MotionQueueStatus = "merged"
)

// MotionQueueEntry is the persistent, priority-ordered queue row of spec
// section 3's data model.
type MotionQueueEntry struct {
	MotionID          string
	Text              string
	ConsensusTier     ConsensusTier
	EndorsementCount  int
	Status            MotionQueueStatus
	SessionID         string // set once promoted, referencing the live Conclave session
	ProvenancePetitionID string
	CreatedAt         time.Time
}

// PetitionType enumerates the kinds of petition spec section 3 names.
type PetitionType string

const (
	PetitionGeneral       PetitionType = "general"
	PetitionCessation     PetitionType = "cessation"
	PetitionGrievance     PetitionType = "grievance"
	PetitionCollaboration PetitionType = "collaboration"
	PetitionMeta          PetitionType = "meta"
)

// PetitionState enumerates a petition's lifecycle.
type PetitionState string

const (
	PetitionReceived     PetitionState = "received"
	PetitionDeliberating PetitionState = "deliberating"
	PetitionAcknowledged PetitionState = "acknowledged"
	PetitionReferred     PetitionState = "referred"
	PetitionEscalated    PetitionState = "escalated"
	PetitionDeferred     PetitionState = "deferred"
	PetitionNoResponse   PetitionState = "no_response"
	PetitionAdopted      PetitionState = "adopted"
	PetitionWithdrawn    PetitionState = "withdrawn"
)

// EscalationSource records why a petition bypassed or exited deliberation.
type EscalationSource string

const (
	EscalationCoSignerThreshold EscalationSource = "CO_SIGNER_THRESHOLD"
	EscalationDeliberation      EscalationSource = "DELIBERATION"
)

// Petition is the persistent petition-intake record of spec section 3's
// data model.
type Petition struct {
	PetitionID      string
	Type            PetitionType
	Text            string
	SubmitterID     string
	State           PetitionState
	ContentHash     string
	Realm           string
	CoSignerCount   int
	EscalationSource EscalationSource

	AdoptedAsMotionID string
	AdoptedByKingID   string
	AdoptedAt         *time.Time

	CreatedAt time.Time
}

const maxPetitionTextLength = 10000
