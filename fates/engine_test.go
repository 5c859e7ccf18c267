package fates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type scriptedInvoker struct {
	positions map[string]Disposition
	votes     map[string][]Disposition // adjudicatorID -> per-round votes
}

func (s scriptedInvoker) Assess(_ context.Context, _, _, adjudicatorID string) (string, error) {
	return "hash-for-" + adjudicatorID, nil
}

func (s scriptedInvoker) Position(_ context.Context, _, adjudicatorID string) (Disposition, string, error) {
	return s.positions[adjudicatorID], "rationale for " + adjudicatorID, nil
}

func (s scriptedInvoker) CrossExamine(_ context.Context, _, challenger, challenged string, round int) (string, string, error) {
	return "why do you think that?", "because", nil
}

func (s scriptedInvoker) Vote(_ context.Context, _, adjudicatorID string, round int) (Disposition, error) {
	votes := s.votes[adjudicatorID]
	if round-1 < len(votes) {
		return votes[round-1], nil
	}
	return votes[len(votes)-1], nil
}

func runThroughVote(t *testing.T, e *Engine) (Disposition, error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.Assess(ctx, "the petition text"))
	require.NoError(t, e.Position(ctx))
	require.NoError(t, e.CrossExamine(ctx))
	return e.Vote(ctx)
}

func TestUnanimousVoteSetsOutcomeImmediately(t *testing.T) {
	invoker := scriptedInvoker{
		positions: map[string]Disposition{"a1": DispositionAcknowledge, "a2": DispositionAcknowledge, "a3": DispositionAcknowledge},
		votes: map[string][]Disposition{
			"a1": {DispositionAcknowledge},
			"a2": {DispositionAcknowledge},
			"a3": {DispositionAcknowledge},
		},
	}
	e, err := NewEngine("s-1", "p-1", "deadbeef", []string{"a1", "a2", "a3"}, invoker, NewMemBackend(), nil)
	require.NoError(t, err)

	outcome, err := runThroughVote(t, e)
	require.NoError(t, err)
	require.Equal(t, DispositionAcknowledge, outcome)
	require.Equal(t, PhaseComplete, e.Session().Phase)
	require.Equal(t, 1, e.Session().RoundCount)
	require.False(t, e.Session().IsDeadlocked)
	require.Nil(t, e.Session().Dissent)
}

func TestMajorityVoteRecordsDissent(t *testing.T) {
	invoker := scriptedInvoker{
		votes: map[string][]Disposition{
			"a1": {DispositionRefer},
			"a2": {DispositionRefer},
			"a3": {DispositionEscalate},
		},
		positions: map[string]Disposition{"a1": DispositionRefer, "a2": DispositionRefer, "a3": DispositionEscalate},
	}
	e, err := NewEngine("s-1", "p-1", "deadbeef", []string{"a1", "a2", "a3"}, invoker, NewMemBackend(), nil)
	require.NoError(t, err)

	outcome, err := runThroughVote(t, e)
	require.NoError(t, err)
	require.Equal(t, DispositionRefer, outcome)
	require.NotNil(t, e.Session().Dissent)
	require.Equal(t, "a3", e.Session().Dissent.DissentAdjudicatorID)
	require.Equal(t, DispositionEscalate, e.Session().Dissent.DissentDisposition)
	require.Contains(t, e.Session().Dissent.RationaleHash, "blake3:")
}

func TestSplitVoteEscalatesToDeadlockAfterThreeRounds(t *testing.T) {
	invoker := scriptedInvoker{
		votes: map[string][]Disposition{
			"a1": {DispositionAcknowledge, DispositionAcknowledge, DispositionAcknowledge},
			"a2": {DispositionRefer, DispositionRefer, DispositionRefer},
			"a3": {DispositionEscalate, DispositionEscalate, DispositionEscalate},
		},
		positions: map[string]Disposition{"a1": DispositionAcknowledge, "a2": DispositionRefer, "a3": DispositionEscalate},
	}
	e, err := NewEngine("s-1", "p-1", "deadbeef", []string{"a1", "a2", "a3"}, invoker, NewMemBackend(), nil)
	require.NoError(t, err)

	outcome, err := runThroughVote(t, e)
	require.NoError(t, err)
	require.Equal(t, DispositionEscalate, outcome)
	require.True(t, e.Session().IsDeadlocked)
	require.Equal(t, DeadlockMaxRoundsExceeded, e.Session().DeadlockReason)
	require.Equal(t, 3, e.Session().RoundCount)
	require.Len(t, e.Session().VotesByRound, 3)
}

func TestApplyTimeoutForcesEscalateAndIsIdempotent(t *testing.T) {
	invoker := scriptedInvoker{positions: map[string]Disposition{}}
	e, err := NewEngine("s-1", "p-1", "deadbeef", []string{"a1", "a2", "a3"}, invoker, NewMemBackend(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, e.ApplyTimeout(ctx))
	require.Equal(t, PhaseComplete, e.Session().Phase)
	require.True(t, e.Session().TimedOut)
	require.Equal(t, DispositionEscalate, e.Session().Outcome)

	// Calling again (e.g. a retried job) must not alter an already-complete session.
	e.session.Outcome = DispositionAcknowledge // simulate a completed non-timeout outcome
	e.session.TimedOut = false
	require.NoError(t, e.ApplyTimeout(ctx))
	require.Equal(t, DispositionAcknowledge, e.Session().Outcome)
	require.False(t, e.Session().TimedOut)
}

func TestNewEngineRequiresExactlyThreeAdjudicators(t *testing.T) {
	_, err := NewEngine("s-1", "p-1", "deadbeef", []string{"a1", "a2"}, scriptedInvoker{}, NewMemBackend(), nil)
	require.ErrorIs(t, err, ErrNotThreeAdjudicators)
}

func TestDrawAdjudicatorsIsDeterministicForSameContentHash(t *testing.T) {
	candidates := []string{"a1", "a2", "a3", "a4", "a5", "a6"}
	first, err := DrawAdjudicators("deadbeef", candidates, nil, 10)
	require.NoError(t, err)
	second, err := DrawAdjudicators("deadbeef", candidates, nil, 10)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 3)
}

func TestDrawAdjudicatorsExcludesOverloaded(t *testing.T) {
	candidates := []string{"a1", "a2", "a3", "a4"}
	load := stubLoad{"a1": 10}
	drawn, err := DrawAdjudicators("deadbeef", candidates, load, 10)
	require.NoError(t, err)
	for _, d := range drawn {
		require.NotEqual(t, "a1", d)
	}
}

type stubLoad map[string]int

func (s stubLoad) CurrentLoad(id string) int { return s[id] }
