package jobqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemBackend is an in-memory Backend used by unit tests.
type MemBackend struct {
	mu      sync.Mutex
	jobs    map[string]Job
	dlq     []DeadLetterJob
	counter int
}

// NewMemBackend constructs an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{jobs: make(map[string]Job)}
}

func (b *MemBackend) Enqueue(_ context.Context, job Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	b.jobs[job.ID] = job
	return nil
}

func (b *MemBackend) ClaimBatch(_ context.Context, jobType string, limit int, now time.Time) ([]Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var candidates []Job
	for _, j := range b.jobs {
		if j.JobType == jobType && j.Status == StatusPending && !j.ScheduledFor.After(now) {
			candidates = append(candidates, j)
		}
	}
	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].ScheduledFor.Before(candidates[k].ScheduledFor)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for i := range candidates {
		candidates[i].Status = StatusProcessing
		b.jobs[candidates[i].ID] = candidates[i]
	}
	return candidates, nil
}

func (b *MemBackend) MarkCompleted(_ context.Context, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[jobID]
	if !ok {
		return fmt.Errorf("jobqueue: unknown job %q", jobID)
	}
	j.Status = StatusCompleted
	b.jobs[jobID] = j
	return nil
}

func (b *MemBackend) MarkFailedOrRescheduled(_ context.Context, jobID string, reason string, maxAttempts int, nextAttempt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[jobID]
	if !ok {
		return fmt.Errorf("jobqueue: unknown job %q", jobID)
	}
	now := nextAttempt
	j.Attempts++
	j.LastAttemptAt = &now
	if j.Attempts >= maxAttempts {
		j.Status = StatusFailed
		b.jobs[jobID] = j
		b.counter++
		b.dlq = append(b.dlq, DeadLetterJob{
			ID:            fmt.Sprintf("dlq-%06d", b.counter),
			OriginalJobID: j.ID,
			JobType:       j.JobType,
			Payload:       j.Payload,
			FailureReason: reason,
			Attempts:      j.Attempts,
			FailedAt:      now,
		})
		return nil
	}
	j.Status = StatusPending
	j.ScheduledFor = nextAttempt
	b.jobs[jobID] = j
	return nil
}

func (b *MemBackend) DeadLetters(context.Context) ([]DeadLetterJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DeadLetterJob(nil), b.dlq...), nil
}

func (b *MemBackend) PendingDepth(_ context.Context, jobType string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, j := range b.jobs {
		if j.JobType == jobType && j.Status == StatusPending {
			n++
		}
	}
	return n, nil
}
