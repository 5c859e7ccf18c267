package jobqueue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresBackend issues raw database/sql against the jobs table because
// SELECT ... FOR UPDATE SKIP LOCKED is not expressible through gorm's query
// builder (spec section 5.5's design note); the dead-letter table is
// written through the same connection for transactional consistency with
// the originating job row's status flip.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend wraps an already-migrated *sql.DB.
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO jobqueue.jobs (id, job_type, payload, scheduled_for, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, now())`,
		job.ID, job.JobType, job.Payload, job.ScheduledFor, job.Status)
	if err != nil {
		return fmt.Errorf("jobqueue: enqueue: %w", err)
	}
	return nil
}

func (b *PostgresBackend) ClaimBatch(ctx context.Context, jobType string, limit int, now time.Time) ([]Job, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: begin claim tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, job_type, payload, scheduled_for, status, attempts, last_attempt_at, created_at
		FROM jobqueue.jobs
		WHERE job_type = $1 AND status = 'pending' AND scheduled_for <= $2
		ORDER BY scheduled_for ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED`, jobType, now, limit)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: claim query: %w", err)
	}
	var claimed []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.JobType, &j.Payload, &j.ScheduledFor, &j.Status, &j.Attempts, &j.LastAttemptAt, &j.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("jobqueue: scan job: %w", err)
		}
		claimed = append(claimed, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range claimed {
		claimed[i].Status = StatusProcessing
		if _, err := tx.ExecContext(ctx, `UPDATE jobqueue.jobs SET status = 'processing' WHERE id = $1`, claimed[i].ID); err != nil {
			return nil, fmt.Errorf("jobqueue: mark processing: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("jobqueue: commit claim: %w", err)
	}
	return claimed, nil
}

func (b *PostgresBackend) MarkCompleted(ctx context.Context, jobID string) error {
	_, err := b.db.ExecContext(ctx, `UPDATE jobqueue.jobs SET status = 'completed' WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("jobqueue: mark completed: %w", err)
	}
	return nil
}

func (b *PostgresBackend) MarkFailedOrRescheduled(ctx context.Context, jobID string, reason string, maxAttempts int, nextAttempt time.Time) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("jobqueue: begin fail tx: %w", err)
	}
	defer tx.Rollback()

	var job Job
	row := tx.QueryRowContext(ctx, `
		SELECT id, job_type, payload, scheduled_for, status, attempts, last_attempt_at, created_at
		FROM jobqueue.jobs WHERE id = $1 FOR UPDATE`, jobID)
	if err := row.Scan(&job.ID, &job.JobType, &job.Payload, &job.ScheduledFor, &job.Status, &job.Attempts, &job.LastAttemptAt, &job.CreatedAt); err != nil {
		return fmt.Errorf("jobqueue: load job for failure: %w", err)
	}

	job.Attempts++
	if job.Attempts >= maxAttempts {
		if _, err := tx.ExecContext(ctx, `UPDATE jobqueue.jobs SET status = 'failed', attempts = $2, last_attempt_at = $3 WHERE id = $1`,
			jobID, job.Attempts, nextAttempt); err != nil {
			return fmt.Errorf("jobqueue: mark failed: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO jobqueue.dead_letter_jobs (id, original_job_id, job_type, payload, failure_reason, attempts, failed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.NewString(), job.ID, job.JobType, job.Payload, reason, job.Attempts, nextAttempt); err != nil {
			return fmt.Errorf("jobqueue: insert dead letter: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE jobqueue.jobs SET status = 'pending', attempts = $2, last_attempt_at = $3, scheduled_for = $3 WHERE id = $1`,
			jobID, job.Attempts, nextAttempt); err != nil {
			return fmt.Errorf("jobqueue: reschedule: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("jobqueue: commit failure handling: %w", err)
	}
	return nil
}

func (b *PostgresBackend) DeadLetters(ctx context.Context) ([]DeadLetterJob, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, original_job_id, job_type, payload, failure_reason, attempts, failed_at
		FROM jobqueue.dead_letter_jobs ORDER BY failed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: list dead letters: %w", err)
	}
	defer rows.Close()
	var out []DeadLetterJob
	for rows.Next() {
		var d DeadLetterJob
		if err := rows.Scan(&d.ID, &d.OriginalJobID, &d.JobType, &d.Payload, &d.FailureReason, &d.Attempts, &d.FailedAt); err != nil {
			return nil, fmt.Errorf("jobqueue: scan dead letter: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) PendingDepth(ctx context.Context, jobType string) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT count(*) FROM jobqueue.jobs WHERE job_type = $1 AND status = 'pending'`, jobType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("jobqueue: pending depth: %w", err)
	}
	return n, nil
}
