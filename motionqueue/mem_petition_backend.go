package motionqueue

import (
	"context"
	"sync"
	"time"
)

// MemPetitionBackend is an in-memory PetitionBackend used by tests.
type MemPetitionBackend struct {
	mu        sync.Mutex
	petitions map[string]Petition
	cosigners map[string]map[string]struct{} // petitionID -> signerID set
}

// NewMemPetitionBackend constructs an empty in-memory backend.
func NewMemPetitionBackend() *MemPetitionBackend {
	return &MemPetitionBackend{
		petitions: make(map[string]Petition),
		cosigners: make(map[string]map[string]struct{}),
	}
}

func (b *MemPetitionBackend) Save(_ context.Context, p Petition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.petitions[p.PetitionID] = p
	return nil
}

func (b *MemPetitionBackend) Get(_ context.Context, petitionID string) (Petition, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.petitions[petitionID]
	return p, ok, nil
}

func (b *MemPetitionBackend) HasActiveDuplicate(_ context.Context, contentHash string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.petitions {
		if p.ContentHash != contentHash {
			continue
		}
		switch p.State {
		case PetitionWithdrawn, PetitionAdopted, PetitionNoResponse:
			continue
		default:
			return true, nil
		}
	}
	return false, nil
}

func (b *MemPetitionBackend) CoSign(_ context.Context, petitionID, signerID string) (int, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.petitions[petitionID]
	if !ok {
		return 0, false, ErrPetitionNotEscalated
	}
	signers, ok := b.cosigners[petitionID]
	if !ok {
		signers = make(map[string]struct{})
		b.cosigners[petitionID] = signers
	}
	if _, already := signers[signerID]; already {
		return p.CoSignerCount, true, nil
	}
	signers[signerID] = struct{}{}
	p.CoSignerCount++
	b.petitions[petitionID] = p
	return p.CoSignerCount, false, nil
}

func (b *MemPetitionBackend) Adopt(_ context.Context, petitionID, motionID, kingID string, at int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.petitions[petitionID]
	if !ok {
		return ErrPetitionNotEscalated
	}
	if p.AdoptedAsMotionID != "" {
		return ErrAlreadyAdopted
	}
	adoptedAt := time.Unix(0, at)
	p.AdoptedAsMotionID = motionID
	p.AdoptedByKingID = kingID
	p.AdoptedAt = &adoptedAt
	p.State = PetitionAdopted
	b.petitions[petitionID] = p
	return nil
}

func (b *MemPetitionBackend) SetState(_ context.Context, petitionID string, state PetitionState, source EscalationSource) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.petitions[petitionID]
	if !ok {
		return ErrPetitionNotEscalated
	}
	p.State = state
	if source != "" {
		p.EscalationSource = source
	}
	b.petitions[petitionID] = p
	return nil
}

func (b *MemPetitionBackend) DeliberationQueueDepth(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	depth := 0
	for _, p := range b.petitions {
		if p.State == PetitionDeliberating || p.State == PetitionReceived {
			depth++
		}
	}
	return depth, nil
}
