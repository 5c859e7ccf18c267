package conclave

import (
	"context"
	"fmt"
)

// Debate runs the configured number of debate rounds for motionID, in
// rank-priority order, appending a checkpoint after each round, per spec
// section 4.5 step 3. It leaves the motion in the "called" state, ready
// for Vote.
func (s *Session) Debate(ctx context.Context, motionID string) error {
	m, ok := s.motions[motionID]
	if !ok {
		return ErrMotionNotFound
	}
	if m.State != MotionSeconded && m.State != MotionDebating {
		return ErrMotionNotDebating
	}
	m.State = MotionDebating

	ordered := OrderParticipants(s.presentParticipants())

	for round := 1; round <= s.cfg.DebateRounds; round++ {
		if err := s.checkHalt(ctx); err != nil {
			return err
		}
		if err := s.runDebateRound(ctx, m, ordered, round, false); err != nil {
			return err
		}
		if s.consensusBroken(m.MotionID) {
			redTeam := s.selectRedTeam(ordered)
			if err := s.runDebateRound(ctx, m, redTeam, round, true); err != nil {
				return err
			}
		}
		if err := s.checkpoint(ctx, motionID, round); err != nil {
			return err
		}
	}

	m.State = MotionCalled
	return s.checkpoint(ctx, motionID, s.cfg.DebateRounds)
}

func (s *Session) runDebateRound(ctx context.Context, m *Motion, participants []Participant, round int, redTeam bool) error {
	for _, p := range participants {
		recent := s.recentDebateEntries(m.MotionID, debateHistoryWindow)
		result, err := s.invoker.InvokeSpeech(ctx, SpeechContext{
			Motion:        *m,
			Round:         round,
			RecentEntries: recent,
			Participant:   p,
			RedTeam:       redTeam,
		})
		entry := DebateEntry{
			MotionID:  m.MotionID,
			Round:     round,
			ArchonID:  p.ArchonID,
			Rank:      p.Rank,
			IsRedTeam: redTeam,
			At:        s.clock(),
		}
		if err != nil {
			// Agent-invoker failure is recorded as a system transcript entry;
			// the Archon is marked absent-for-round, never crashing the
			// session (spec section 4.5 error conditions).
			entry.Speech = fmt.Sprintf("system: absent-for-round (%v)", err)
			s.debateLog = append(s.debateLog, entry)
			continue
		}
		entry.Stance = result.Stance
		entry.Speech = result.Speech
		if IsForbiddenFromExecutionDetail(p.Rank) && DefinesExecutionDetail(result.Speech) {
			entry.IsViolation = true
			s.violations = append(s.violations, ViolationRecord{
				MotionID: m.MotionID,
				ArchonID: p.ArchonID,
				Rank:     p.Rank,
				Round:    round,
				At:       s.clock(),
			})
			if s.publisher != nil {
				if _, pubErr := s.publisher.Publish(ctx, "violation.speech", map[string]any{
					"session_id": s.sessionID,
					"motion_id":  m.MotionID,
					"archon_id":  p.ArchonID,
					"rank":       string(p.Rank),
					"round":      round,
				}); pubErr != nil {
					return fmt.Errorf("conclave: publish violation.speech: %w", pubErr)
				}
			}
		}
		s.debateLog = append(s.debateLog, entry)
	}
	return nil
}

func (s *Session) recentDebateEntries(motionID string, k int) []DebateEntry {
	var matching []DebateEntry
	for _, e := range s.debateLog {
		if e.MotionID == motionID {
			matching = append(matching, e)
		}
	}
	if len(matching) <= k {
		return matching
	}
	return matching[len(matching)-k:]
}

// consensusBroken reports whether more than the configured threshold of
// stance-bearing debate entries for motionID share the same stance (spec
// section 4.5 step 3's consensus-break rule).
func (s *Session) consensusBroken(motionID string) bool {
	counts := make(map[string]int)
	total := 0
	for _, e := range s.debateLog {
		if e.MotionID != motionID || e.Stance == "" {
			continue
		}
		counts[e.Stance]++
		total++
	}
	if total == 0 {
		return false
	}
	for _, c := range counts {
		if float64(c)/float64(total) > s.cfg.ConsensusBreakThreshold {
			return true
		}
	}
	return false
}

// selectRedTeam picks up to RedTeamSize participants (in rank-priority
// order) to argue the opposite side.
func (s *Session) selectRedTeam(ordered []Participant) []Participant {
	n := s.cfg.RedTeamSize
	if n > len(ordered) {
		n = len(ordered)
	}
	return ordered[:n]
}
