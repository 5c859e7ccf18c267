// Package fates implements the Three-Fates Petition Deliberation of spec
// section 4.6: a mini-Conclave of exactly three adjudicators running a
// four-phase protocol (assess, position, cross_examine, vote) to produce a
// disposition for a petition.
package fates

import "time"

// Phase enumerates the deliberation's protocol stage.
type Phase string

const (
	PhaseAssess       Phase = "assess"
	PhasePosition     Phase = "position"
	PhaseCrossExamine Phase = "cross_examine"
	PhaseVote         Phase = "vote"
	PhaseComplete     Phase = "complete"
)

// Disposition enumerates an adjudicator's vote choice.
type Disposition string

const (
	DispositionAcknowledge Disposition = "acknowledge"
	DispositionRefer       Disposition = "refer"
	DispositionEscalate    Disposition = "escalate"
	DispositionDefer       Disposition = "defer"
	DispositionNoResponse  Disposition = "no_response"
)

// DeadlockReason enumerates why a deliberation ended deadlocked.
type DeadlockReason string

const DeadlockMaxRoundsExceeded DeadlockReason = "DEADLOCK_MAX_ROUNDS_EXCEEDED"

const maxRounds = 3

// Position is one adjudicator's initial disposition and rationale (phase
// 2).
type Position struct {
	AdjudicatorID string
	Disposition   Disposition
	Rationale     string
	At            time.Time
}

// Challenge is one cross-examination entry (phase 3).
type Challenge struct {
	Round           int
	ChallengerID    string
	ChallengedID    string
	Question        string
	Response        string
	At              time.Time
}

// DissentRecord is appended for the minority adjudicator on a 2-1 majority
// outcome, per spec section 4.6's consensus rules.
type DissentRecord struct {
	SessionID           string
	PetitionID           string
	DissentAdjudicatorID string
	DissentDisposition   Disposition
	MajorityDisposition  Disposition
	Rationale            string
	RationaleHash        string
}

// VoteDistribution records one round's tally, appended to votes_by_round
// for every voting round.
type VoteDistribution struct {
	Round int
	Votes map[Disposition]int
}

// Session is the full deliberation record for one petition.
type Session struct {
	SessionID      string
	PetitionID     string
	ContentHash    string
	Adjudicators   []string
	Phase          Phase
	AssessHash     string
	Positions      []Position
	Challenges     []Challenge
	VotesByRound   []VoteDistribution
	RoundCount     int
	Outcome        Disposition
	IsDeadlocked   bool
	DeadlockReason DeadlockReason
	TimedOut       bool
	Dissent        *DissentRecord
	CreatedAt      time.Time
	CompletedAt    *time.Time
}
