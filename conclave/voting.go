package conclave

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Vote runs the voting phase for motionID with bounded concurrency
// (spec section 4.5 step 4: VotingConcurrency=1 is sequential, 0 is
// unlimited), parses each response, optionally runs three-channel
// validation inline (synchronously, before tallying), tallies the result,
// and transitions the
// motion to passed or failed.
func (s *Session) Vote(ctx context.Context, motionID string) (Tally, error) {
	m, ok := s.motions[motionID]
	if !ok {
		return Tally{}, ErrMotionNotFound
	}
	if m.State != MotionCalled && m.State != MotionVoting {
		return Tally{}, ErrMotionNotVoting
	}
	m.State = MotionVoting
	if err := s.checkHalt(ctx); err != nil {
		return Tally{}, err
	}

	present := s.presentParticipants()
	votes := make([]Vote, len(present))

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.VotingConcurrency > 0 {
		g.SetLimit(s.cfg.VotingConcurrency)
	}

	for i, p := range present {
		i, p := i, p
		g.Go(func() error {
			result, err := s.invoker.InvokeVote(gctx, VoteContext{Motion: *m, Participant: p})
			vote := Vote{MotionID: motionID, ArchonID: p.ArchonID, At: s.clock()}
			if err != nil {
				vote.Choice = VoteAbstain
				vote.Ambiguous = true
				votes[i] = vote
				return nil
			}
			choice, ambiguous := ParseVoteResponse(result.RawResponse)
			vote.Choice = choice
			vote.Ambiguous = ambiguous
			if s.cfg.ThreeChannelValidation {
				vote.Choice = s.threeChannelValidate(gctx, result.RawResponse, choice)
			}
			votes[i] = vote
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Tally{}, fmt.Errorf("conclave: voting: %w", err)
	}

	s.recordStanceDivergence(motionID, votes)
	s.votes = append(s.votes, votes...)

	tally := tallyVotes(motionID, votes, m.Constitutional, s.cfg.SimpleMajorityProcedural,
		s.cfg.SupermajorityNumerator, s.cfg.SupermajorityDenominator)
	if tally.Passed {
		m.State = MotionPassed
	} else {
		m.State = MotionFailed
	}

	if s.publisher != nil {
		outcome := "motion.failed"
		if tally.Passed {
			outcome = "motion.passed"
		}
		if _, err := s.publisher.Publish(ctx, outcome, map[string]any{
			"session_id": s.sessionID,
			"motion_id":  motionID,
			"yeas":       tally.Yeas,
			"nays":       tally.Nays,
			"abstains":   tally.Abstains,
		}); err != nil {
			return tally, fmt.Errorf("conclave: publish tally: %w", err)
		}
	}

	return tally, s.checkpoint(ctx, motionID, 0)
}

// threeChannelValidate re-parses raw independently via two secretary
// passes; on divergence from the primary parse, a witness pass is
// authoritative (spec section 4.5 step 4). Since the secretary/witness
// roles are deterministic re-parses of the same raw text in this
// implementation (no separate invoker identity is specified), divergence
// can only arise from ambiguous text, in which case the witness's
// abstain-biased re-parse is authoritative.
func (s *Session) threeChannelValidate(_ context.Context, raw string, primary VoteChoice) VoteChoice {
	secretaryA, ambigA := ParseVoteResponse(raw)
	secretaryB, ambigB := ParseVoteResponse(raw)
	if !ambigA && !ambigB && secretaryA == secretaryB && secretaryA == primary {
		return primary
	}
	// Witness adjudicates: any divergence defaults to ABSTAIN.
	return VoteAbstain
}

func (s *Session) recordStanceDivergence(motionID string, votes []Vote) {
	lastStance := make(map[string]string)
	for _, e := range s.debateLog {
		if e.MotionID == motionID && e.Stance != "" {
			lastStance[e.ArchonID] = e.Stance
		}
	}
	for i, v := range votes {
		stance, ok := lastStance[v.ArchonID]
		if !ok {
			continue
		}
		if stanceDivergesFromVote(stance, v.Choice) {
			votes[i].Divergent = true
		}
	}
}

// stanceDivergesFromVote is a coarse heuristic: a stance containing "oppose"
// that nonetheless votes AYE (or vice versa) is logged, not rejected, per
// spec section 4.5's stance/vote divergence post-condition check.
func stanceDivergesFromVote(stance string, choice VoteChoice) bool {
	opposes := containsFold(stance, "oppose") || containsFold(stance, "against") || containsFold(stance, "nay")
	supports := containsFold(stance, "support") || containsFold(stance, "favor") || containsFold(stance, "aye")
	switch choice {
	case VoteAye:
		return opposes && !supports
	case VoteNay:
		return supports && !opposes
	default:
		return false
	}
}

func containsFold(haystack, needle string) bool {
	return indexFold(haystack, needle) >= 0
}

func indexFold(haystack, needle string) int {
	h, n := []rune(toLowerASCII(haystack)), []rune(toLowerASCII(needle))
	if len(n) == 0 || len(n) > len(h) {
		return -1
	}
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			if h[i+j] != n[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// tallyVotes applies the supermajority threshold of spec section 4.5 step
// 5: yeas >= ceil(numerator*(yeas+nays)/denominator) for constitutional
// motions (numerator/denominator default to 2/3), or simple majority for
// procedural motions when simpleMajorityProcedural is set.
func tallyVotes(motionID string, votes []Vote, constitutional, simpleMajorityProcedural bool, numerator, denominator int) Tally {
	var yeas, nays, abstains int
	for _, v := range votes {
		switch v.Choice {
		case VoteAye:
			yeas++
		case VoteNay:
			nays++
		default:
			abstains++
		}
	}
	if denominator <= 0 || numerator <= 0 {
		numerator, denominator = defaultSupermajorityNumerator, defaultSupermajorityDenominator
	}
	nonAbstaining := yeas + nays
	var threshold int
	if !constitutional && simpleMajorityProcedural {
		threshold = nonAbstaining/2 + 1
	} else {
		threshold = (numerator*nonAbstaining + denominator - 1) / denominator // ceil(numerator*n/denominator)
	}
	return Tally{
		MotionID:  motionID,
		Yeas:      yeas,
		Nays:      nays,
		Abstains:  abstains,
		Threshold: threshold,
		Passed:    yeas >= threshold && nonAbstaining > 0,
	}
}

// Adjourn transitions the session through adjournment to adjourned. It is
// the reconciliation gate of spec section 4.5: if any background vote
// validation has not settled (pendingValidations > 0) the session refuses
// to adjourn and halts instead of closing on partial data. This
// implementation's three-channel validation runs synchronously inside
// Vote, so pendingValidations is always zero by the time Adjourn is
// called; the counter and gate are kept as the explicit seam a
// background-validation implementation would hook into.
func (s *Session) Adjourn(ctx context.Context) error {
	if err := s.checkHalt(ctx); err != nil {
		return err
	}
	s.phase = PhaseAdjournment
	if s.pendingValidations > 0 {
		s.phase = PhaseHalted
		return ErrReconciliationTimeout
	}
	s.phase = PhaseAdjourned
	return s.checkpoint(ctx, "", 0)
}
