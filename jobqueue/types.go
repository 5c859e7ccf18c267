// Package jobqueue implements the durable, single-database job runner of
// spec section 4.7: at-least-once delivery via SELECT ... FOR UPDATE SKIP
// LOCKED, exponential backoff, and a dead-letter queue for exhausted jobs.
package jobqueue

import (
	"context"
	"time"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Required job types per spec section 4.7.
const (
	JobReferralTimeout       = "referral_timeout"
	JobDeliberationTimeout   = "deliberation_timeout"
	JobEscalationCheck       = "escalation_check"
	JobAdjournReconciliation = "adjourn_reconciliation"
)

// Job is a scheduled unit of work.
type Job struct {
	ID            string
	JobType       string
	Payload       []byte // canonical JSON
	ScheduledFor  time.Time
	Status        Status
	Attempts      int
	LastAttemptAt *time.Time
	CreatedAt     time.Time
}

// DeadLetterJob is the terminal record of a job that exhausted its
// attempts.
type DeadLetterJob struct {
	ID             string
	OriginalJobID  string
	JobType        string
	Payload        []byte
	FailureReason  string
	Attempts       int
	FailedAt       time.Time
}

// Handler processes a single job's payload. Handlers must be idempotent:
// the same job may be delivered more than once (spec section 4.7's
// at-least-once guarantee), so a handler re-checks whatever state it is
// about to mutate before acting.
type Handler func(ctx context.Context, job Job) error

// Backend is the storage seam the Runner drives. PostgresBackend is the
// production implementation (raw database/sql, since SKIP LOCKED is not
// expressible cleanly through gorm's query builder); MemBackend is an
// in-process implementation for tests.
type Backend interface {
	Enqueue(ctx context.Context, job Job) error
	// ClaimBatch locks and returns up to limit pending jobs of jobType whose
	// scheduled_for has elapsed, marking them processing.
	ClaimBatch(ctx context.Context, jobType string, limit int, now time.Time) ([]Job, error)
	MarkCompleted(ctx context.Context, jobID string) error
	// MarkFailedOrRescheduled increments attempts; if attempts reaches
	// maxAttempts it moves the job into the dead-letter table and marks it
	// failed, otherwise it reschedules at nextAttempt with status pending.
	MarkFailedOrRescheduled(ctx context.Context, jobID string, reason string, maxAttempts int, nextAttempt time.Time) error
	DeadLetters(ctx context.Context) ([]DeadLetterJob, error)

	// PendingDepth reports the current pending-job count for jobType, used
	// only to feed the jobqueue_depth metrics gauge.
	PendingDepth(ctx context.Context, jobType string) (int, error)
}
