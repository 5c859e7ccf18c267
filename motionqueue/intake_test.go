package motionqueue

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type haltFlag struct{ halted bool }

func (h *haltFlag) IsHalted(context.Context) (bool, error) { return h.halted, nil }

func newTestIntake(t *testing.T, opts ...IntakeOption) (*Intake, *MemPetitionBackend) {
	t.Helper()
	petitions := NewMemPetitionBackend()
	rl := NewRateLimiter(NewMemBucketBackend(), 10, time.Hour)
	ids := counter("petition")
	base := []IntakeOption{withIntakeIDFunc(ids)}
	base = append(base, opts...)
	in := NewIntake(petitions, rl, nil, base...)
	return in, petitions
}

func counter(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return prefix + "-" + string(rune('a'+n-1))
	}
}

func TestSubmitPersistsReceivedPetition(t *testing.T) {
	in, petitions := newTestIntake(t)
	ctx := context.Background()

	p, err := in.Submit(ctx, SubmitRequest{Type: PetitionGeneral, Text: "reduce the toll tax", SubmitterID: "citizen-1"})
	require.NoError(t, err)
	require.Equal(t, PetitionReceived, p.State)
	require.NotEmpty(t, p.ContentHash)

	stored, ok, err := petitions.Get(ctx, p.PetitionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, p, stored)
}

func TestSubmitRejectsOversizedText(t *testing.T) {
	in, _ := newTestIntake(t)
	longText := strings.Repeat("a", maxPetitionTextLength+1)

	_, err := in.Submit(context.Background(), SubmitRequest{Type: PetitionGeneral, Text: longText, SubmitterID: "citizen-1"})
	require.ErrorIs(t, err, ErrSchemaInvalid)
}

func TestSubmitRejectsEmptyText(t *testing.T) {
	in, _ := newTestIntake(t)
	_, err := in.Submit(context.Background(), SubmitRequest{Type: PetitionGeneral, Text: "", SubmitterID: "citizen-1"})
	require.ErrorIs(t, err, ErrSchemaInvalid)
}

func TestSubmitRejectsUnrecognizedType(t *testing.T) {
	in, _ := newTestIntake(t)
	_, err := in.Submit(context.Background(), SubmitRequest{Type: "not-a-real-type", Text: "hello", SubmitterID: "citizen-1"})
	require.ErrorIs(t, err, ErrSchemaInvalid)
}

func TestSubmitRejectsWhenHalted(t *testing.T) {
	in, _ := newTestIntake(t, WithHaltChecker(&haltFlag{halted: true}))
	_, err := in.Submit(context.Background(), SubmitRequest{Type: PetitionGeneral, Text: "hello", SubmitterID: "citizen-1"})
	require.ErrorIs(t, err, ErrHalted)
}

func TestSubmitRejectsDuplicateActiveContent(t *testing.T) {
	in, _ := newTestIntake(t)
	ctx := context.Background()
	req := SubmitRequest{Type: PetitionGeneral, Text: "reduce the toll tax", SubmitterID: "citizen-1"}

	_, err := in.Submit(ctx, req)
	require.NoError(t, err)

	_, err = in.Submit(ctx, req)
	require.ErrorIs(t, err, ErrDuplicateContent)
}

func TestSubmitAllowsDuplicateContentFromDifferentSubmitter(t *testing.T) {
	in, _ := newTestIntake(t)
	ctx := context.Background()

	_, err := in.Submit(ctx, SubmitRequest{Type: PetitionGeneral, Text: "reduce the toll tax", SubmitterID: "citizen-1"})
	require.NoError(t, err)

	_, err = in.Submit(ctx, SubmitRequest{Type: PetitionGeneral, Text: "reduce the toll tax", SubmitterID: "citizen-2"})
	require.NoError(t, err)
}

func TestSubmitEnforcesRateLimit(t *testing.T) {
	petitions := NewMemPetitionBackend()
	rl := NewRateLimiter(NewMemBucketBackend(), 2, time.Hour)
	in := NewIntake(petitions, rl, nil, withIntakeIDFunc(counter("petition")))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := in.Submit(ctx, SubmitRequest{Type: PetitionGeneral, Text: "petition text number " + string(rune('1'+i)), SubmitterID: "citizen-1"})
		require.NoError(t, err)
	}

	_, err := in.Submit(ctx, SubmitRequest{Type: PetitionGeneral, Text: "one more over the limit", SubmitterID: "citizen-1"})
	require.Error(t, err)
	var retryable *RetryableError
	require.ErrorAs(t, err, &retryable)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestSubmitRejectsAtQueueCapacityAndReopensAfterHysteresis(t *testing.T) {
	petitions := NewMemPetitionBackend()
	rl := NewRateLimiter(NewMemBucketBackend(), 1000, time.Hour)
	cfg := IntakeConfig{QueueCapacity: 2, QueueCapacityHysteresis: 1, RateLimit: 1000, RateLimitWindow: time.Hour}
	in := NewIntake(petitions, rl, nil, WithIntakeConfig(cfg), withIntakeIDFunc(counter("petition")))
	ctx := context.Background()

	_, err := in.Submit(ctx, SubmitRequest{Type: PetitionGeneral, Text: "first petition text", SubmitterID: "citizen-1"})
	require.NoError(t, err)
	_, err = in.Submit(ctx, SubmitRequest{Type: PetitionGeneral, Text: "second petition text", SubmitterID: "citizen-2"})
	require.NoError(t, err)

	_, err = in.Submit(ctx, SubmitRequest{Type: PetitionGeneral, Text: "third petition over capacity", SubmitterID: "citizen-3"})
	require.ErrorIs(t, err, ErrQueueAtCapacity)

	// Depth falls from 2 to 1 (the hysteresis reopen point) once one
	// petition leaves the deliberating/received pool.
	first, _, err := petitions.Get(ctx, "petition-a")
	require.NoError(t, err)
	require.NoError(t, petitions.SetState(ctx, first.PetitionID, PetitionAcknowledged, ""))

	_, err = in.Submit(ctx, SubmitRequest{Type: PetitionGeneral, Text: "fourth petition after reopen", SubmitterID: "citizen-4"})
	require.NoError(t, err)
}
