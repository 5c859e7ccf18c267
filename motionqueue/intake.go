package motionqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/archon72/governance/internal/emit"
	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

// HaltChecker is the read-only seam Intake uses to honor the halt circuit
// without a compile-time dependency on the halt package, mirroring the
// same local interface every other package defines against ledger.HaltChecker.
type HaltChecker interface {
	IsHalted(ctx context.Context) (bool, error)
}

type alwaysOpen struct{}

func (alwaysOpen) IsHalted(context.Context) (bool, error) { return false, nil }

// IntakeConfig holds the petition-intake pipeline's tunables, per spec
// section 4.9.
type IntakeConfig struct {
	// QueueCapacity is the deliberation-queue depth at which the
	// capacity gate closes.
	QueueCapacity int
	// QueueCapacityHysteresis reopens the gate only once depth falls to
	// QueueCapacity-QueueCapacityHysteresis, so the gate doesn't flap
	// open/closed across a single item being dequeued and requeued.
	QueueCapacityHysteresis int
	RateLimit               int
	RateLimitWindow         time.Duration
}

func defaultIntakeConfig() IntakeConfig {
	return IntakeConfig{
		QueueCapacity:           1000,
		QueueCapacityHysteresis: 50,
		RateLimit:               10,
		RateLimitWindow:         time.Hour,
	}
}

// Intake runs the sequential petition-intake pipeline: schema, halt,
// rate-limit, queue-capacity, content-hash, persist, two-phase emission.
type Intake struct {
	petitions   PetitionBackend
	halt        HaltChecker
	rateLimiter *RateLimiter
	publisher   *emit.Publisher
	cfg         IntakeConfig
	clock       func() time.Time
	newID       func() string

	mu           sync.Mutex
	capacityOpen bool
}

// IntakeOption configures an Intake at construction.
type IntakeOption func(*Intake)

func WithHaltChecker(h HaltChecker) IntakeOption {
	return func(in *Intake) { in.halt = h }
}

func WithIntakeConfig(cfg IntakeConfig) IntakeOption {
	return func(in *Intake) { in.cfg = cfg }
}

func WithIntakeClock(clock func() time.Time) IntakeOption {
	return func(in *Intake) { in.clock = clock }
}

func withIntakeIDFunc(f func() string) IntakeOption {
	return func(in *Intake) { in.newID = f }
}

// NewIntake constructs an Intake pipeline over the given storage and
// rate-limiting seams.
func NewIntake(petitions PetitionBackend, rateLimiter *RateLimiter, publisher *emit.Publisher, opts ...IntakeOption) *Intake {
	in := &Intake{
		petitions:    petitions,
		halt:         alwaysOpen{},
		rateLimiter:  rateLimiter,
		publisher:    publisher,
		cfg:          defaultIntakeConfig(),
		clock:        func() time.Time { return time.Now().UTC() },
		newID:        func() string { return uuid.NewString() },
		capacityOpen: true,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// SubmitRequest is the caller-supplied content for a new petition.
type SubmitRequest struct {
	Type        PetitionType
	Text        string
	SubmitterID string
	Realm       string
}

func (req SubmitRequest) validate() error {
	if req.Text == "" || len(req.Text) > maxPetitionTextLength {
		return fmt.Errorf("%w: text must be 1-%d characters", ErrSchemaInvalid, maxPetitionTextLength)
	}
	if req.SubmitterID == "" {
		return fmt.Errorf("%w: submitter_id is required", ErrSchemaInvalid)
	}
	switch req.Type {
	case PetitionGeneral, PetitionCessation, PetitionGrievance, PetitionCollaboration, PetitionMeta:
	default:
		return fmt.Errorf("%w: unrecognized petition type %q", ErrSchemaInvalid, req.Type)
	}
	return nil
}

// Submit runs req through every intake gate in order and, on success,
// persists the petition and emits its two-phase petition.received event
// pair.
func (in *Intake) Submit(ctx context.Context, req SubmitRequest) (Petition, error) {
	// 1. Schema gate.
	if err := req.validate(); err != nil {
		return Petition{}, err
	}

	// 2. Halt gate.
	halted, err := in.halt.IsHalted(ctx)
	if err != nil {
		return Petition{}, fmt.Errorf("motionqueue: check halt: %w", err)
	}
	if halted {
		return Petition{}, ErrHalted
	}

	// 3. Rate-limit gate.
	now := in.clock()
	if in.rateLimiter != nil {
		allowed, retryAfter, err := in.rateLimiter.Allow(ctx, req.SubmitterID, now)
		if err != nil {
			return Petition{}, fmt.Errorf("motionqueue: rate limit check: %w", err)
		}
		if !allowed {
			return Petition{}, &RetryableError{Err: ErrRateLimited, RetryAfter: int64(retryAfter / time.Second)}
		}
	}

	// 4. Queue-capacity gate, with hysteresis.
	depth, err := in.petitions.DeliberationQueueDepth(ctx)
	if err != nil {
		return Petition{}, fmt.Errorf("motionqueue: queue depth check: %w", err)
	}
	if in.capacityClosed(depth) {
		return Petition{}, &RetryableError{Err: ErrQueueAtCapacity, RetryAfter: int64(time.Minute / time.Second)}
	}

	// 5. Content-hash gate.
	contentHash := petitionContentHash(req.Text, req.SubmitterID, req.Type)
	duplicate, err := in.petitions.HasActiveDuplicate(ctx, contentHash)
	if err != nil {
		return Petition{}, fmt.Errorf("motionqueue: duplicate check: %w", err)
	}
	if duplicate {
		return Petition{}, ErrDuplicateContent
	}

	p := Petition{
		PetitionID:  in.newID(),
		Type:        req.Type,
		Text:        req.Text,
		SubmitterID: req.SubmitterID,
		State:       PetitionReceived,
		ContentHash: contentHash,
		Realm:       req.Realm,
		CreatedAt:   now,
	}

	// 6. Persist.
	if err := in.petitions.Save(ctx, p); err != nil {
		return Petition{}, fmt.Errorf("motionqueue: save petition: %w", err)
	}

	// 7. Two-phase emission.
	payload := map[string]any{
		"petition_id":  p.PetitionID,
		"type":         string(p.Type),
		"submitter_id": p.SubmitterID,
		"content_hash": p.ContentHash,
		"realm":        p.Realm,
	}
	if in.publisher != nil {
		intentID, err := in.publisher.Intent(ctx, "petition.received", payload)
		if err != nil {
			return Petition{}, fmt.Errorf("motionqueue: emit intent: %w", err)
		}
		if err := in.publisher.Committed(ctx, "petition.received", intentID, payload); err != nil {
			return Petition{}, fmt.Errorf("motionqueue: emit committed: %w", err)
		}
	}

	return p, nil
}

// capacityClosed reports whether the queue-capacity gate should reject at
// depth, applying hysteresis around the open/closed transition.
func (in *Intake) capacityClosed(depth int) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.capacityOpen {
		if depth >= in.cfg.QueueCapacity {
			in.capacityOpen = false
		}
	} else {
		reopenAt := in.cfg.QueueCapacity - in.cfg.QueueCapacityHysteresis
		if depth <= reopenAt {
			in.capacityOpen = true
		}
	}
	return !in.capacityOpen
}

// petitionContentHash hashes the fields that define petition identity for
// the content-hash duplicate-detection gate, per spec section 4.9, the
// same blake3.Sum256-over-concatenated-bytes approach the merkle package
// uses to combine nodes.
func petitionContentHash(text, submitterID string, petitionType PetitionType) string {
	combined := []byte(text)
	combined = append(combined, 0)
	combined = append(combined, submitterID...)
	combined = append(combined, 0)
	combined = append(combined, petitionType...)
	sum := blake3.Sum256(combined)
	return fmt.Sprintf("blake3:%x", sum)
}
