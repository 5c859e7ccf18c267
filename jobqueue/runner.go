package jobqueue

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/archon72/governance/observability/metrics"
)

// HaltChecker is the read-only halt-circuit seam the Runner consults before
// every poll tick. A halted system pauses job execution without mutating
// job rows (spec section 4.4's "effect on other components").
type HaltChecker interface {
	IsHalted(ctx context.Context) (bool, error)
}

const (
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 60 * time.Second
	defaultBatchSize   = 10
	defaultMaxAttempts = 5
)

// Runner polls Backend for each registered job type and dispatches claimed
// jobs to their Handler, shaped after a webhook delivery loop and an
// idempotency-map processor.
type Runner struct {
	backend      Backend
	halt         HaltChecker
	handlers     map[string]Handler
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	backoffBase  time.Duration
	backoffCap   time.Duration
	clock        func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Registry
}

// Option customises a Runner.
type Option func(*Runner)

// WithHaltChecker wires in the halt circuit's read-only status.
func WithHaltChecker(h HaltChecker) Option { return func(r *Runner) { r.halt = h } }

// WithPollInterval overrides the poll-tick cadence.
func WithPollInterval(d time.Duration) Option { return func(r *Runner) { r.pollInterval = d } }

// WithBatchSize overrides how many jobs are claimed per job type per tick.
func WithBatchSize(n int) Option { return func(r *Runner) { r.batchSize = n } }

// WithMaxAttempts overrides the attempt count after which a job moves to
// the dead-letter table.
func WithMaxAttempts(n int) Option { return func(r *Runner) { r.maxAttempts = n } }

// WithBackoff overrides the exponential-backoff base and ceiling.
func WithBackoff(base, cap time.Duration) Option {
	return func(r *Runner) { r.backoffBase, r.backoffCap = base, cap }
}

// WithClock overrides the wall-clock source (tests only).
func WithClock(clock func() time.Time) Option { return func(r *Runner) { r.clock = clock } }

// WithLogger overrides the structured logger.
func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithMetrics wires in a metrics registry.
func WithMetrics(m *metrics.Registry) Option { return func(r *Runner) { r.metrics = m } }

// NewRunner constructs a Runner over backend with no registered handlers;
// call RegisterHandler for each job type before calling Run.
func NewRunner(backend Backend, opts ...Option) *Runner {
	r := &Runner{
		backend:      backend,
		handlers:     make(map[string]Handler),
		pollInterval: time.Second,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		backoffBase:  defaultBackoffBase,
		backoffCap:   defaultBackoffCap,
		clock:        func() time.Time { return time.Now().UTC() },
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.halt == nil {
		r.halt = alwaysOpen{}
	}
	return r
}

type alwaysOpen struct{}

func (alwaysOpen) IsHalted(context.Context) (bool, error) { return false, nil }

// RegisterHandler binds jobType to handler. Calling it twice for the same
// jobType replaces the previous binding.
func (r *Runner) RegisterHandler(jobType string, handler Handler) {
	r.handlers[jobType] = handler
}

// Enqueue schedules a new job for jobType.
func (r *Runner) Enqueue(ctx context.Context, jobType string, payload []byte, scheduledFor time.Time) error {
	return r.backend.Enqueue(ctx, Job{
		JobType:      jobType,
		Payload:      payload,
		ScheduledFor: scheduledFor,
		Status:       StatusPending,
		CreatedAt:    r.clock(),
	})
}

// Run polls every pollInterval until ctx is cancelled, claiming and
// dispatching jobs for every registered job type on each tick.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	halted, err := r.halt.IsHalted(ctx)
	if err != nil {
		r.logger.Error("jobqueue: halt check failed", "error", err)
		return
	}
	if halted {
		return
	}
	for jobType, handler := range r.handlers {
		r.pollOnce(ctx, jobType, handler)
	}
}

func (r *Runner) pollOnce(ctx context.Context, jobType string, handler Handler) {
	jobs, err := r.backend.ClaimBatch(ctx, jobType, r.batchSize, r.clock())
	if err != nil {
		r.logger.Error("jobqueue: claim batch failed", "job_type", jobType, "error", err)
		return
	}
	if r.metrics != nil {
		if depth, err := r.backend.PendingDepth(ctx, jobType); err == nil {
			r.metrics.JobQueueDepth.WithLabelValues(jobType).Set(float64(depth))
		}
	}
	for _, job := range jobs {
		r.process(ctx, job, handler)
	}
}

func (r *Runner) process(ctx context.Context, job Job, handler Handler) {
	err := handler(ctx, job)
	if err == nil {
		if markErr := r.backend.MarkCompleted(ctx, job.ID); markErr != nil {
			r.logger.Error("jobqueue: mark completed failed", "job_id", job.ID, "error", markErr)
		}
		if r.metrics != nil {
			r.metrics.JobAttempts.WithLabelValues(job.JobType, "ok").Inc()
		}
		return
	}

	r.logger.Warn("jobqueue: handler failed", "job_type", job.JobType, "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
	if r.metrics != nil {
		r.metrics.JobAttempts.WithLabelValues(job.JobType, "failed").Inc()
	}
	next := r.clock().Add(backoffDelay(r.backoffBase, r.backoffCap, job.Attempts+1))
	if markErr := r.backend.MarkFailedOrRescheduled(ctx, job.ID, err.Error(), r.maxAttempts, next); markErr != nil {
		r.logger.Error("jobqueue: reschedule failed", "job_id", job.ID, "error", markErr)
	}
}

// backoffDelay computes an exponential backoff capped at cap, per spec
// section 5's "base 1s -> cap 60s" guidance.
func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if d > cap || d <= 0 {
		return cap
	}
	return d
}
