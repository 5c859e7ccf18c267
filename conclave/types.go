// Package conclave implements the Parliamentary Deliberation Orchestrator of
// spec section 4.5: a rank-ordered debate-and-vote state machine over the 72
// Archons, with checkpoint/resume and a reconciliation gate at adjournment.
package conclave

import "time"

// Phase enumerates the session-level state machine.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseCallToOrder Phase = "call_to_order"
	PhaseRollCall    Phase = "roll_call"
	PhaseNewBusiness Phase = "new_business"
	PhaseAdjournment Phase = "adjournment"
	PhaseAdjourned   Phase = "adjourned"
	PhaseHalted      Phase = "halted"
)

// MotionState enumerates a single motion's life cycle within new_business.
type MotionState string

const (
	MotionProposed    MotionState = "proposed"
	MotionSeconded    MotionState = "seconded"
	MotionDebating    MotionState = "debating"
	MotionCalled      MotionState = "called"
	MotionVoting      MotionState = "voting"
	MotionPassed      MotionState = "passed"
	MotionFailed      MotionState = "failed"
	MotionDiedNoSecond MotionState = "died_no_second"
)

// Rank is an Archon's hierarchical class. Lower Tier sorts first in
// debate/vote ordering.
type Rank string

const (
	RankKing      Rank = "king"
	RankDuke      Rank = "duke"
	RankMarquis   Rank = "marquis"
	RankPresident Rank = "president"
	RankPrince    Rank = "prince"
	RankEarl      Rank = "earl"
	RankKnight    Rank = "knight"
)

// rankTier orders ranks Kings-first per spec section 4.5's debate ordering:
// "Kings -> Dukes -> Marquises -> Presidents -> Princes/Earls/Knights".
// Prince, Earl, and Knight share the bottom tier and are broken only by
// stable participant id order.
var rankTier = map[Rank]int{
	RankKing:      0,
	RankDuke:      1,
	RankMarquis:   2,
	RankPresident: 3,
	RankPrince:    4,
	RankEarl:      4,
	RankKnight:    4,
}

// Participant is one Archon seated in a session.
type Participant struct {
	ArchonID string
	Rank     Rank
	Branch   string
	Present  bool
}

// Motion is a single item of new_business.
type Motion struct {
	MotionID    string
	Text        string
	ProposerID  string
	External    bool
	State       MotionState
	Constitutional bool
	SecondedBy  string
	CreatedAt   time.Time
}

// DebateEntry is one transcript entry produced during debate.
type DebateEntry struct {
	MotionID    string
	Round       int
	ArchonID    string
	Rank        Rank
	Stance      string
	Speech      string
	IsRedTeam   bool
	IsViolation bool
	At          time.Time
}

// VoteChoice enumerates a single participant's ballot.
type VoteChoice string

const (
	VoteAye     VoteChoice = "AYE"
	VoteNay     VoteChoice = "NAY"
	VoteAbstain VoteChoice = "ABSTAIN"
)

// Vote records one participant's ballot on a motion.
type Vote struct {
	MotionID  string
	ArchonID  string
	Choice    VoteChoice
	Ambiguous bool
	Divergent bool
	At        time.Time
}

// Tally is a motion's final vote count.
type Tally struct {
	MotionID string
	Yeas     int
	Nays     int
	Abstains int
	Passed   bool
	Threshold int
}

// ViolationRecord is appended when a participant whose rank is forbidden
// from defining execution details produces a speech that does so anyway
// (spec section 4.5 step 3's rank-constraint validation); the speech itself
// is never rejected.
type ViolationRecord struct {
	MotionID string
	ArchonID string
	Rank     Rank
	Round    int
	At       time.Time
}

// Checkpoint is the durable resume point persisted after each round and
// after each vote, per spec section 4.5's checkpoint/resume contract.
type Checkpoint struct {
	SessionID    string
	Phase        Phase
	Motions      []Motion
	DebateLog    []DebateEntry
	Votes        []Vote
	Violations   []ViolationRecord
	CurrentMotionID string
	CurrentRound int
	UpdatedAt    time.Time
}
