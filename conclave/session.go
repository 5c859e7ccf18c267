package conclave

import (
	"context"
	"fmt"
	"time"

	"github.com/archon72/governance/internal/emit"
)

// HaltChecker is the read-only seam the session uses to honor the halt
// circuit without a compile-time dependency on the halt package, mirroring
// ledger.HaltChecker and jobqueue's local interface of the same shape.
type HaltChecker interface {
	IsHalted(ctx context.Context) (bool, error)
}

type alwaysOpen struct{}

func (alwaysOpen) IsHalted(context.Context) (bool, error) { return false, nil }

const (
	defaultDebateRounds             = 3
	defaultRedTeamSize              = 5
	defaultConsensusBreakThreshold  = 0.85
	defaultVotingConcurrency        = 1
	defaultReconciliationTimeout    = 30 * time.Second
	debateHistoryWindow             = 10
	defaultSupermajorityNumerator   = 2
	defaultSupermajorityDenominator = 3
)

// Config holds the per-session tunables named in spec section 4.5.
type Config struct {
	DebateRounds              int
	RedTeamSize               int
	ConsensusBreakThreshold   float64
	VotingConcurrency         int
	ThreeChannelValidation    bool
	ReconciliationTimeout     time.Duration
	SimpleMajorityProcedural  bool
	SupermajorityNumerator    int
	SupermajorityDenominator  int
}

func defaultConfig() Config {
	return Config{
		DebateRounds:             defaultDebateRounds,
		RedTeamSize:              defaultRedTeamSize,
		ConsensusBreakThreshold:  defaultConsensusBreakThreshold,
		VotingConcurrency:        defaultVotingConcurrency,
		ReconciliationTimeout:    defaultReconciliationTimeout,
		SimpleMajorityProcedural: false,
		SupermajorityNumerator:   defaultSupermajorityNumerator,
		SupermajorityDenominator: defaultSupermajorityDenominator,
	}
}

// Session drives one Conclave's state machine end to end.
type Session struct {
	sessionID    string
	participants []Participant
	backend      Backend
	invoker      AgentInvoker
	publisher    *emit.Publisher
	halt         HaltChecker
	clock        func() time.Time
	cfg          Config

	phase      Phase
	motions    map[string]*Motion
	motionOrder []string
	debateLog  []DebateEntry
	votes      []Vote
	violations []ViolationRecord
	pendingValidations int
}

// Option customises a Session.
type Option func(*Session)

func WithHaltChecker(h HaltChecker) Option  { return func(s *Session) { s.halt = h } }
func WithClock(clock func() time.Time) Option { return func(s *Session) { s.clock = clock } }
func WithConfig(cfg Config) Option          { return func(s *Session) { s.cfg = cfg } }

// NewSession constructs a Session over the given seated participants.
func NewSession(sessionID string, participants []Participant, backend Backend, invoker AgentInvoker, publisher *emit.Publisher, opts ...Option) *Session {
	s := &Session{
		sessionID:    sessionID,
		participants: participants,
		backend:      backend,
		invoker:      invoker,
		publisher:    publisher,
		halt:         alwaysOpen{},
		clock:        func() time.Time { return time.Now().UTC() },
		cfg:          defaultConfig(),
		phase:        PhaseNotStarted,
		motions:      make(map[string]*Motion),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Phase returns the session's current phase.
func (s *Session) Phase() Phase { return s.phase }

// Resume loads a previously persisted checkpoint, recomputing derived state
// so the session continues from its recorded phase/step, per spec section
// 4.5's checkpoint/resume contract.
func (s *Session) Resume(ctx context.Context) error {
	checkpoint, ok, err := s.backend.LoadCheckpoint(ctx, s.sessionID)
	if err != nil {
		return fmt.Errorf("conclave: resume: load checkpoint: %w", err)
	}
	if !ok {
		return nil
	}
	s.phase = checkpoint.Phase
	if s.phase != PhaseNotStarted {
		// Attendance is not checkpointed; CallToOrder marks everyone
		// present, so a session past it resumes with everyone present.
		for i := range s.participants {
			s.participants[i].Present = true
		}
	}
	s.debateLog = checkpoint.DebateLog
	s.votes = checkpoint.Votes
	s.violations = checkpoint.Violations
	s.motions = make(map[string]*Motion, len(checkpoint.Motions))
	s.motionOrder = s.motionOrder[:0]
	for i := range checkpoint.Motions {
		m := checkpoint.Motions[i]
		s.motions[m.MotionID] = &m
		s.motionOrder = append(s.motionOrder, m.MotionID)
	}
	return nil
}

func (s *Session) checkHalt(ctx context.Context) error {
	halted, err := s.halt.IsHalted(ctx)
	if err != nil {
		return fmt.Errorf("conclave: halt check: %w", err)
	}
	if halted {
		s.phase = PhaseHalted
		return ErrSessionHalted
	}
	return nil
}

// CallToOrder transitions not_started -> call_to_order -> roll_call ->
// new_business, marking every participant present.
func (s *Session) CallToOrder(ctx context.Context) error {
	if s.phase != PhaseNotStarted {
		return ErrSessionAlreadyStarted
	}
	if err := s.checkHalt(ctx); err != nil {
		return err
	}
	s.phase = PhaseCallToOrder
	s.phase = PhaseRollCall
	for i := range s.participants {
		s.participants[i].Present = true
	}
	s.phase = PhaseNewBusiness
	return s.checkpoint(ctx, "", 0)
}

// ProposeMotion records a new motion and its proposer. An external
// (bridge-injected) proposer skips proposer-rank checks per spec section
// 4.5 step 1.
func (s *Session) ProposeMotion(ctx context.Context, motionID, text, proposerID string, external, constitutional bool) error {
	if err := s.checkHalt(ctx); err != nil {
		return err
	}
	m := &Motion{
		MotionID:       motionID,
		Text:           text,
		ProposerID:     proposerID,
		External:       external,
		State:          MotionProposed,
		Constitutional: constitutional,
		CreatedAt:      s.clock(),
	}
	s.motions[motionID] = m
	s.motionOrder = append(s.motionOrder, motionID)
	return s.checkpoint(ctx, motionID, 0)
}

// Second records a seconder for a proposed motion. An empty seconderID
// (no seconder found within the seconding window) transitions the motion
// to died_no_second.
func (s *Session) Second(ctx context.Context, motionID, seconderID string) error {
	if err := s.checkHalt(ctx); err != nil {
		return err
	}
	m, ok := s.motions[motionID]
	if !ok {
		return ErrMotionNotFound
	}
	if seconderID == "" {
		m.State = MotionDiedNoSecond
		return s.checkpoint(ctx, motionID, 0)
	}
	m.SecondedBy = seconderID
	m.State = MotionSeconded
	return s.checkpoint(ctx, motionID, 0)
}

func (s *Session) checkpoint(ctx context.Context, currentMotionID string, round int) error {
	motions := make([]Motion, 0, len(s.motionOrder))
	for _, id := range s.motionOrder {
		motions = append(motions, *s.motions[id])
	}
	return s.backend.SaveCheckpoint(ctx, Checkpoint{
		SessionID:       s.sessionID,
		Phase:           s.phase,
		Motions:         motions,
		DebateLog:       s.debateLog,
		Votes:           s.votes,
		Violations:      s.violations,
		CurrentMotionID: currentMotionID,
		CurrentRound:    round,
		UpdatedAt:       s.clock(),
	})
}

func (s *Session) presentParticipants() []Participant {
	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		if p.Present {
			out = append(out, p)
		}
	}
	return out
}
