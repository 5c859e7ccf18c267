package fates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lukechampine.com/blake3"

	"github.com/archon72/governance/internal/emit"
)

var (
	ErrWrongPhase        = errors.New("fates: operation not valid in current phase")
	ErrNotThreeAdjudicators = errors.New("fates: deliberation requires exactly three adjudicators")
)

// Engine drives one petition's Three-Fates mini-Conclave through its four
// phases (spec section 4.6).
type Engine struct {
	session   Session
	invoker   Invoker
	backend   Backend
	publisher *emit.Publisher
	clock     func() time.Time
}

// NewEngine starts a fresh deliberation for petitionID over exactly three
// adjudicators.
func NewEngine(sessionID, petitionID, contentHash string, adjudicators []string, invoker Invoker, backend Backend, publisher *emit.Publisher) (*Engine, error) {
	if len(adjudicators) != 3 {
		return nil, ErrNotThreeAdjudicators
	}
	return &Engine{
		session: Session{
			SessionID:    sessionID,
			PetitionID:   petitionID,
			ContentHash:  contentHash,
			Adjudicators: append([]string(nil), adjudicators...),
			Phase:        PhaseAssess,
			CreatedAt:    time.Now().UTC(),
		},
		invoker:   invoker,
		backend:   backend,
		publisher: publisher,
		clock:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the wall-clock source (tests only).
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Session returns the current deliberation record.
func (e *Engine) Session() Session { return e.session }

func (e *Engine) save(ctx context.Context) error {
	return e.backend.Save(ctx, e.session)
}

// Assess runs phase 1: each adjudicator builds a context package over the
// petition text; the phase transcript hash is stored from the last
// adjudicator's assessment (all three build over identical input, so a
// single hash suffices to anchor the phase for the integrity record).
func (e *Engine) Assess(ctx context.Context, petitionText string) error {
	if e.session.Phase != PhaseAssess {
		return ErrWrongPhase
	}
	var lastHash string
	for _, a := range e.session.Adjudicators {
		h, err := e.invoker.Assess(ctx, e.session.PetitionID, petitionText, a)
		if err != nil {
			return fmt.Errorf("fates: assess %s: %w", a, err)
		}
		lastHash = h
	}
	e.session.AssessHash = lastHash
	e.session.Phase = PhasePosition
	return e.save(ctx)
}

// Position runs phase 2: each adjudicator emits an initial disposition and
// rationale.
func (e *Engine) Position(ctx context.Context) error {
	if e.session.Phase != PhasePosition {
		return ErrWrongPhase
	}
	for _, a := range e.session.Adjudicators {
		disposition, rationale, err := e.invoker.Position(ctx, e.session.PetitionID, a)
		if err != nil {
			return fmt.Errorf("fates: position %s: %w", a, err)
		}
		e.session.Positions = append(e.session.Positions, Position{
			AdjudicatorID: a,
			Disposition:   disposition,
			Rationale:     rationale,
			At:            e.clock(),
		})
	}
	e.session.Phase = PhaseCrossExamine
	return e.save(ctx)
}

// CrossExamine runs phase 3: up to three rounds in which each adjudicator
// may challenge the others.
func (e *Engine) CrossExamine(ctx context.Context) error {
	if e.session.Phase != PhaseCrossExamine {
		return ErrWrongPhase
	}
	for round := 1; round <= maxRounds; round++ {
		for _, challenger := range e.session.Adjudicators {
			for _, challenged := range e.session.Adjudicators {
				if challenger == challenged {
					continue
				}
				q, r, err := e.invoker.CrossExamine(ctx, e.session.PetitionID, challenger, challenged, round)
				if err != nil {
					return fmt.Errorf("fates: cross-examine %s->%s round %d: %w", challenger, challenged, round, err)
				}
				e.session.Challenges = append(e.session.Challenges, Challenge{
					Round:        round,
					ChallengerID: challenger,
					ChallengedID: challenged,
					Question:     q,
					Response:     r,
					At:           e.clock(),
				})
			}
		}
	}
	e.session.Phase = PhaseVote
	return e.save(ctx)
}

// Vote runs phase 4, looping on a 1-1-1 split up to three rounds per spec
// section 4.6's consensus rules, and sets the final outcome.
func (e *Engine) Vote(ctx context.Context) (Disposition, error) {
	if e.session.Phase != PhaseVote {
		return "", ErrWrongPhase
	}
	for {
		e.session.RoundCount++
		votes := make(map[string]Disposition, 3)
		for _, a := range e.session.Adjudicators {
			d, err := e.invoker.Vote(ctx, e.session.PetitionID, a, e.session.RoundCount)
			if err != nil {
				d = DispositionNoResponse
			}
			votes[a] = d
		}

		counts := make(map[Disposition]int)
		for _, d := range votes {
			counts[d]++
		}
		e.session.VotesByRound = append(e.session.VotesByRound, VoteDistribution{
			Round: e.session.RoundCount,
			Votes: counts,
		})

		switch len(counts) {
		case 1:
			// 3-0 unanimous.
			for d := range counts {
				e.session.Outcome = d
			}
			return e.complete(ctx)
		default:
			majorityDisposition, majorityCount, ok := majority(counts)
			if ok && majorityCount == 2 {
				e.session.Outcome = majorityDisposition
				e.recordDissent(votes, majorityDisposition)
				return e.complete(ctx)
			}
		}

		if e.session.RoundCount >= maxRounds {
			e.session.IsDeadlocked = true
			e.session.DeadlockReason = DeadlockMaxRoundsExceeded
			e.session.Outcome = DispositionEscalate
			return e.complete(ctx)
		}
	}
}

func majority(counts map[Disposition]int) (Disposition, int, bool) {
	for d, c := range counts {
		if c >= 2 {
			return d, c, true
		}
	}
	return "", 0, false
}

func (e *Engine) recordDissent(votes map[string]Disposition, majorityDisposition Disposition) {
	for adjudicatorID, d := range votes {
		if d == majorityDisposition {
			continue
		}
		rationale := dissentRationale(e.session.Positions, adjudicatorID)
		sum := blake3.Sum256([]byte(rationale))
		e.session.Dissent = &DissentRecord{
			SessionID:            e.session.SessionID,
			PetitionID:           e.session.PetitionID,
			DissentAdjudicatorID: adjudicatorID,
			DissentDisposition:   d,
			MajorityDisposition:  majorityDisposition,
			Rationale:            rationale,
			RationaleHash:        fmt.Sprintf("blake3:%x", sum),
		}
		return
	}
}

func dissentRationale(positions []Position, adjudicatorID string) string {
	for _, p := range positions {
		if p.AdjudicatorID == adjudicatorID {
			return p.Rationale
		}
	}
	return ""
}

func (e *Engine) complete(ctx context.Context) (Disposition, error) {
	e.session.Phase = PhaseComplete
	now := e.clock()
	e.session.CompletedAt = &now
	if e.publisher != nil {
		if _, err := e.publisher.Publish(ctx, "fates.verdict.committed", map[string]any{
			"session_id":   e.session.SessionID,
			"petition_id":  e.session.PetitionID,
			"verdict":      string(e.session.Outcome),
			"round_count":  e.session.RoundCount,
			"deadlocked":   e.session.IsDeadlocked,
		}); err != nil {
			return "", fmt.Errorf("fates: publish verdict: %w", err)
		}
	}
	if err := e.save(ctx); err != nil {
		return "", err
	}
	return e.session.Outcome, nil
}

// ApplyTimeout implements the deliberation_timeout job handler's effect: if
// the session has not reached PhaseComplete by the deadline, it is forced
// to complete with outcome=escalate, timed_out=true (spec section 4.6's
// timeout semantics). The handler's idempotency check (skip if already
// complete) is the caller's responsibility per spec section 4.7; this
// method itself is safe to call unconditionally since it no-ops when
// already complete.
func (e *Engine) ApplyTimeout(ctx context.Context) error {
	if e.session.Phase == PhaseComplete {
		return nil
	}
	e.session.TimedOut = true
	e.session.Outcome = DispositionEscalate
	e.session.Phase = PhaseComplete
	now := e.clock()
	e.session.CompletedAt = &now
	if e.publisher != nil {
		if _, err := e.publisher.Publish(ctx, "fates.verdict.committed", map[string]any{
			"session_id":  e.session.SessionID,
			"petition_id": e.session.PetitionID,
			"verdict":     string(e.session.Outcome),
			"timed_out":   true,
		}); err != nil {
			return fmt.Errorf("fates: publish timeout verdict: %w", err)
		}
	}
	return e.save(ctx)
}
