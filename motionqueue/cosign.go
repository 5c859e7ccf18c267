package motionqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/archon72/governance/internal/emit"
)

// CoSignConfig tunes the co-signature escalation path.
type CoSignConfig struct {
	// EscalationThreshold is the co_signer_count at which a petition
	// escalates directly to deliberation, bypassing the ordinary
	// referral path, per spec section 4.9.
	EscalationThreshold int
	RateLimit           int
	RateLimitWindow     time.Duration
}

func defaultCoSignConfig() CoSignConfig {
	return CoSignConfig{
		EscalationThreshold: 50,
		RateLimit:           50,
		RateLimitWindow:     time.Hour,
	}
}

// CoSignDesk handles co-signature submissions against existing petitions,
// with its own per-signer rate limit independent of the intake pipeline's.
type CoSignDesk struct {
	petitions   PetitionBackend
	rateLimiter *RateLimiter
	publisher   *emit.Publisher
	cfg         CoSignConfig
	clock       func() time.Time
}

// CoSignOption configures a CoSignDesk at construction.
type CoSignOption func(*CoSignDesk)

func WithCoSignConfig(cfg CoSignConfig) CoSignOption {
	return func(d *CoSignDesk) { d.cfg = cfg }
}

func WithCoSignClock(clock func() time.Time) CoSignOption {
	return func(d *CoSignDesk) { d.clock = clock }
}

// NewCoSignDesk constructs a CoSignDesk over the given petition storage.
func NewCoSignDesk(petitions PetitionBackend, rateLimiter *RateLimiter, publisher *emit.Publisher, opts ...CoSignOption) *CoSignDesk {
	d := &CoSignDesk{
		petitions:   petitions,
		rateLimiter: rateLimiter,
		publisher:   publisher,
		cfg:         defaultCoSignConfig(),
		clock:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CoSign records signerID's co-signature on petitionID. Duplicate
// co-signatures are rejected at the storage layer's unique constraint and
// reported back as duplicate=true rather than an error. Crossing
// EscalationThreshold transitions the petition straight to escalated with
// EscalationCoSignerThreshold, bypassing ordinary deliberation referral.
func (d *CoSignDesk) CoSign(ctx context.Context, petitionID, signerID string) (newCount int, duplicate bool, err error) {
	if d.rateLimiter != nil {
		allowed, retryAfter, err := d.rateLimiter.Allow(ctx, signerID, d.clock())
		if err != nil {
			return 0, false, fmt.Errorf("motionqueue: cosign rate limit check: %w", err)
		}
		if !allowed {
			return 0, false, &RetryableError{Err: ErrRateLimited, RetryAfter: int64(retryAfter / time.Second)}
		}
	}

	newCount, duplicate, err = d.petitions.CoSign(ctx, petitionID, signerID)
	if err != nil {
		return 0, false, fmt.Errorf("motionqueue: cosign: %w", err)
	}
	if duplicate {
		return newCount, true, nil
	}

	if newCount < d.cfg.EscalationThreshold {
		return newCount, false, nil
	}

	p, ok, err := d.petitions.Get(ctx, petitionID)
	if err != nil {
		return newCount, false, fmt.Errorf("motionqueue: cosign escalation lookup: %w", err)
	}
	if !ok || p.State == PetitionEscalated {
		return newCount, false, nil
	}

	if err := d.petitions.SetState(ctx, petitionID, PetitionEscalated, EscalationCoSignerThreshold); err != nil {
		return newCount, false, fmt.Errorf("motionqueue: cosign escalation: %w", err)
	}

	if d.publisher != nil {
		payload := map[string]any{
			"petition_id":       petitionID,
			"co_signer_count":   newCount,
			"escalation_source": string(EscalationCoSignerThreshold),
		}
		intentID, err := d.publisher.Intent(ctx, "petition.escalated", payload)
		if err != nil {
			return newCount, false, fmt.Errorf("motionqueue: emit escalation intent: %w", err)
		}
		if err := d.publisher.Committed(ctx, "petition.escalated", intentID, payload); err != nil {
			return newCount, false, fmt.Errorf("motionqueue: emit escalation committed: %w", err)
		}
	}

	return newCount, false, nil
}
