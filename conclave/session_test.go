package conclave

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func seatedParticipants() []Participant {
	return []Participant{
		{ArchonID: "king.1", Rank: RankKing},
		{ArchonID: "duke.1", Rank: RankDuke},
		{ArchonID: "marquis.1", Rank: RankMarquis},
		{ArchonID: "president.1", Rank: RankPresident},
		{ArchonID: "prince.1", Rank: RankPrince},
		{ArchonID: "earl.1", Rank: RankEarl},
		{ArchonID: "knight.1", Rank: RankKnight},
	}
}

// stubInvoker is a fully scripted AgentInvoker for tests.
type stubInvoker struct {
	speech func(ctx context.Context, sc SpeechContext) (SpeechResult, error)
	vote   func(ctx context.Context, vc VoteContext) (VoteResult, error)
}

func (s stubInvoker) InvokeSpeech(ctx context.Context, sc SpeechContext) (SpeechResult, error) {
	return s.speech(ctx, sc)
}

func (s stubInvoker) InvokeVote(ctx context.Context, vc VoteContext) (VoteResult, error) {
	return s.vote(ctx, vc)
}

func alwaysAyeInvoker() stubInvoker {
	return stubInvoker{
		speech: func(_ context.Context, sc SpeechContext) (SpeechResult, error) {
			return SpeechResult{Stance: "support", Speech: "I support this motion."}, nil
		},
		vote: func(_ context.Context, _ VoteContext) (VoteResult, error) {
			return VoteResult{RawResponse: "AYE"}, nil
		},
	}
}

func TestCallToOrderMarksAllParticipantsPresent(t *testing.T) {
	s := NewSession("session-1", seatedParticipants(), NewMemBackend(), alwaysAyeInvoker(), nil)
	require.NoError(t, s.CallToOrder(context.Background()))
	require.Equal(t, PhaseNewBusiness, s.Phase())
	for _, p := range s.participants {
		require.True(t, p.Present)
	}
}

func TestCallToOrderRejectsSecondCall(t *testing.T) {
	s := NewSession("session-1", seatedParticipants(), NewMemBackend(), alwaysAyeInvoker(), nil)
	ctx := context.Background()
	require.NoError(t, s.CallToOrder(ctx))
	require.ErrorIs(t, s.CallToOrder(ctx), ErrSessionAlreadyStarted)
}

func TestMotionDiesWithNoSecond(t *testing.T) {
	s := NewSession("session-1", seatedParticipants(), NewMemBackend(), alwaysAyeInvoker(), nil)
	ctx := context.Background()
	require.NoError(t, s.CallToOrder(ctx))
	require.NoError(t, s.ProposeMotion(ctx, "m-1", "raise the tax", "king.1", false, false))
	require.NoError(t, s.Second(ctx, "m-1", ""))
	require.Equal(t, MotionDiedNoSecond, s.motions["m-1"].State)
}

func TestFullMotionLifecyclePassesWithSupermajority(t *testing.T) {
	cfg := defaultConfig()
	cfg.DebateRounds = 1
	s := NewSession("session-1", seatedParticipants(), NewMemBackend(), alwaysAyeInvoker(), nil, WithConfig(cfg))
	ctx := context.Background()

	require.NoError(t, s.CallToOrder(ctx))
	require.NoError(t, s.ProposeMotion(ctx, "m-1", "raise the tax", "king.1", false, false))
	require.NoError(t, s.Second(ctx, "m-1", "duke.1"))
	require.NoError(t, s.Debate(ctx, "m-1"))
	require.Equal(t, MotionCalled, s.motions["m-1"].State)

	tally, err := s.Vote(ctx, "m-1")
	require.NoError(t, err)
	require.True(t, tally.Passed)
	require.Equal(t, 7, tally.Yeas)
	require.Equal(t, MotionPassed, s.motions["m-1"].State)

	require.NoError(t, s.Adjourn(ctx))
	require.Equal(t, PhaseAdjourned, s.Phase())
}

func TestVoteFailsWithoutSupermajority(t *testing.T) {
	cfg := defaultConfig()
	cfg.DebateRounds = 1
	callIdx := 0
	mixedInvoker := stubInvoker{
		speech: alwaysAyeInvoker().speech,
		vote: func(_ context.Context, _ VoteContext) (VoteResult, error) {
			callIdx++
			if callIdx <= 3 {
				return VoteResult{RawResponse: "AYE"}, nil
			}
			return VoteResult{RawResponse: "NAY"}, nil
		},
	}
	s := NewSession("session-1", seatedParticipants(), NewMemBackend(), mixedInvoker, nil, WithConfig(cfg))
	ctx := context.Background()
	require.NoError(t, s.CallToOrder(ctx))
	require.NoError(t, s.ProposeMotion(ctx, "m-1", "raise the tax", "king.1", false, false))
	require.NoError(t, s.Second(ctx, "m-1", "duke.1"))
	require.NoError(t, s.Debate(ctx, "m-1"))

	tally, err := s.Vote(ctx, "m-1")
	require.NoError(t, err)
	require.False(t, tally.Passed)
	require.Equal(t, MotionFailed, s.motions["m-1"].State)
}

func TestAmbiguousVoteResponseDefaultsToAbstain(t *testing.T) {
	cfg := defaultConfig()
	cfg.DebateRounds = 1
	invoker := stubInvoker{
		speech: alwaysAyeInvoker().speech,
		vote: func(_ context.Context, _ VoteContext) (VoteResult, error) {
			return VoteResult{RawResponse: "I am not sure about this"}, nil
		},
	}
	s := NewSession("session-1", seatedParticipants(), NewMemBackend(), invoker, nil, WithConfig(cfg))
	ctx := context.Background()
	require.NoError(t, s.CallToOrder(ctx))
	require.NoError(t, s.ProposeMotion(ctx, "m-1", "raise the tax", "king.1", false, false))
	require.NoError(t, s.Second(ctx, "m-1", "duke.1"))
	require.NoError(t, s.Debate(ctx, "m-1"))

	tally, err := s.Vote(ctx, "m-1")
	require.NoError(t, err)
	require.Equal(t, 0, tally.Yeas)
	require.Equal(t, 7, tally.Abstains)
	for _, v := range s.votes {
		require.True(t, v.Ambiguous)
		require.Equal(t, VoteAbstain, v.Choice)
	}
}

func TestConsensusBreakTriggersRedTeamRound(t *testing.T) {
	cfg := defaultConfig()
	cfg.DebateRounds = 1
	cfg.RedTeamSize = 2
	invoker := stubInvoker{
		speech: func(_ context.Context, sc SpeechContext) (SpeechResult, error) {
			return SpeechResult{Stance: "support", Speech: "I support this wholeheartedly."}, nil
		},
		vote: alwaysAyeInvoker().vote,
	}
	s := NewSession("session-1", seatedParticipants(), NewMemBackend(), invoker, nil, WithConfig(cfg))
	ctx := context.Background()
	require.NoError(t, s.CallToOrder(ctx))
	require.NoError(t, s.ProposeMotion(ctx, "m-1", "raise the tax", "king.1", false, false))
	require.NoError(t, s.Second(ctx, "m-1", "duke.1"))
	require.NoError(t, s.Debate(ctx, "m-1"))

	var redTeamEntries int
	for _, e := range s.debateLog {
		if e.IsRedTeam {
			redTeamEntries++
		}
	}
	require.Equal(t, cfg.RedTeamSize, redTeamEntries)
}

func TestRankViolationRecordedButSpeechNotRejected(t *testing.T) {
	cfg := defaultConfig()
	cfg.DebateRounds = 1
	invoker := stubInvoker{
		speech: func(_ context.Context, sc SpeechContext) (SpeechResult, error) {
			if sc.Participant.Rank == RankKnight {
				return SpeechResult{Stance: "support", Speech: "The algorithm is a simple hash table."}, nil
			}
			return SpeechResult{Stance: "support", Speech: "I support this."}, nil
		},
		vote: alwaysAyeInvoker().vote,
	}
	s := NewSession("session-1", seatedParticipants(), NewMemBackend(), invoker, nil, WithConfig(cfg))
	ctx := context.Background()
	require.NoError(t, s.CallToOrder(ctx))
	require.NoError(t, s.ProposeMotion(ctx, "m-1", "raise the tax", "king.1", false, false))
	require.NoError(t, s.Second(ctx, "m-1", "duke.1"))
	require.NoError(t, s.Debate(ctx, "m-1"))

	require.Len(t, s.violations, 1)
	require.Equal(t, "knight.1", s.violations[0].ArchonID)

	var knightEntryFound bool
	for _, e := range s.debateLog {
		if e.ArchonID == "knight.1" && !e.IsRedTeam {
			require.True(t, e.IsViolation)
			knightEntryFound = true
		}
	}
	require.True(t, knightEntryFound)
}

func TestResumeContinuesFromPersistedCheckpoint(t *testing.T) {
	backend := NewMemBackend()
	ctx := context.Background()

	s1 := NewSession("session-1", seatedParticipants(), backend, alwaysAyeInvoker(), nil)
	require.NoError(t, s1.CallToOrder(ctx))
	require.NoError(t, s1.ProposeMotion(ctx, "m-1", "raise the tax", "king.1", false, false))
	require.NoError(t, s1.Second(ctx, "m-1", "duke.1"))

	s2 := NewSession("session-1", seatedParticipants(), backend, alwaysAyeInvoker(), nil)
	require.NoError(t, s2.Resume(ctx))
	require.Equal(t, PhaseNewBusiness, s2.Phase())
	require.Equal(t, MotionSeconded, s2.motions["m-1"].State)
}

type haltedChecker struct{}

func (haltedChecker) IsHalted(context.Context) (bool, error) { return true, nil }

func TestSessionAbortsToHaltedWhenSystemIsHalted(t *testing.T) {
	s := NewSession("session-1", seatedParticipants(), NewMemBackend(), alwaysAyeInvoker(), nil, WithHaltChecker(haltedChecker{}))
	err := s.CallToOrder(context.Background())
	require.ErrorIs(t, err, ErrSessionHalted)
	require.Equal(t, PhaseHalted, s.Phase())
}

func TestOrderParticipantsSortsByRankThenID(t *testing.T) {
	ordered := OrderParticipants([]Participant{
		{ArchonID: "knight.2", Rank: RankKnight},
		{ArchonID: "king.1", Rank: RankKing},
		{ArchonID: "knight.1", Rank: RankKnight},
		{ArchonID: "duke.1", Rank: RankDuke},
	})
	ids := make([]string, len(ordered))
	for i, p := range ordered {
		ids[i] = p.ArchonID
	}
	require.Equal(t, []string{"king.1", "duke.1", "knight.1", "knight.2"}, ids)
}
