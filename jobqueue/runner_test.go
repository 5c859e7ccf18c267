package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunnerCompletesJobOnHandlerSuccess(t *testing.T) {
	backend := NewMemBackend()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	runner := NewRunner(backend, WithClock(clock), WithPollInterval(time.Millisecond))
	var calls int32
	runner.RegisterHandler(JobReferralTimeout, func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	require.NoError(t, runner.Enqueue(context.Background(), JobReferralTimeout, []byte(`{}`), now))
	runner.tick(context.Background())

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	depth, err := backend.PendingDepth(context.Background(), JobReferralTimeout)
	require.NoError(t, err)
	require.Zero(t, depth)
}

func TestRunnerReschedulesOnFailureWithBackoff(t *testing.T) {
	backend := NewMemBackend()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	runner := NewRunner(backend, WithClock(clock), WithMaxAttempts(5))
	runner.RegisterHandler(JobDeliberationTimeout, func(ctx context.Context, job Job) error {
		return errors.New("transient failure")
	})

	require.NoError(t, runner.Enqueue(context.Background(), JobDeliberationTimeout, nil, now))
	runner.tick(context.Background())

	depth, err := backend.PendingDepth(context.Background(), JobDeliberationTimeout)
	require.NoError(t, err)
	require.Equal(t, 1, depth, "job should be rescheduled, not lost")

	dlq, err := backend.DeadLetters(context.Background())
	require.NoError(t, err)
	require.Empty(t, dlq)
}

func TestRunnerMovesToDeadLetterAfterMaxAttempts(t *testing.T) {
	backend := NewMemBackend()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	runner := NewRunner(backend, WithClock(clock), WithMaxAttempts(2), WithBackoff(time.Millisecond, time.Millisecond))
	runner.RegisterHandler(JobEscalationCheck, func(ctx context.Context, job Job) error {
		return errors.New("permanent failure")
	})

	require.NoError(t, runner.Enqueue(context.Background(), JobEscalationCheck, nil, now))
	runner.tick(context.Background())
	now = now.Add(time.Millisecond)
	runner.tick(context.Background())

	dlq, err := backend.DeadLetters(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	require.Equal(t, JobEscalationCheck, dlq[0].JobType)
	require.Equal(t, 2, dlq[0].Attempts)
}

func TestRunnerSkipsWhenHalted(t *testing.T) {
	backend := NewMemBackend()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	runner := NewRunner(backend, WithClock(clock), WithHaltChecker(haltedChecker{}))
	var calls int32
	runner.RegisterHandler(JobAdjournReconciliation, func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	require.NoError(t, runner.Enqueue(context.Background(), JobAdjournReconciliation, nil, now))
	runner.tick(context.Background())

	require.Zero(t, atomic.LoadInt32(&calls))
	depth, err := backend.PendingDepth(context.Background(), JobAdjournReconciliation)
	require.NoError(t, err)
	require.Equal(t, 1, depth, "halted runner must not mutate job rows")
}

func TestBackoffDelayIsExponentialAndCapped(t *testing.T) {
	base := time.Second
	cap := 60 * time.Second
	require.Equal(t, time.Second, backoffDelay(base, cap, 1))
	require.Equal(t, 2*time.Second, backoffDelay(base, cap, 2))
	require.Equal(t, 4*time.Second, backoffDelay(base, cap, 3))
	require.Equal(t, cap, backoffDelay(base, cap, 20))
}

type haltedChecker struct{}

func (haltedChecker) IsHalted(context.Context) (bool, error) { return true, nil }
