package merkle

import (
	"context"
	"fmt"
	"sync"
)

// MemEpochStore is an in-memory EpochStore used by tests and standalone
// tooling; the production wiring in cmd/archon72d persists epochs through
// NewGormEpochStore into the merkle_epochs and merkle_epoch_leaves tables.
type MemEpochStore struct {
	mu     sync.Mutex
	epochs []Epoch
	leaves map[int64][]string
}

// NewMemEpochStore constructs an empty store.
func NewMemEpochStore() *MemEpochStore {
	return &MemEpochStore{leaves: make(map[int64][]string)}
}

func (s *MemEpochStore) NextEpochID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.epochs)), nil
}

func (s *MemEpochStore) SaveEpoch(_ context.Context, epoch Epoch, leaves []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.epochs) > 0 {
		last := s.epochs[len(s.epochs)-1]
		if epoch.StartSequence != last.EndSequence+1 {
			return fmt.Errorf("merkle: epoch %d is not contiguous with previous epoch ending at %d", epoch.EpochID, last.EndSequence)
		}
	}
	s.epochs = append(s.epochs, epoch)
	s.leaves[epoch.EpochID] = append([]string(nil), leaves...)
	return nil
}

func (s *MemEpochStore) EpochContaining(_ context.Context, sequence int64) (Epoch, []string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.epochs {
		if sequence >= e.StartSequence && sequence <= e.EndSequence {
			return e, s.leaves[e.EpochID], true, nil
		}
	}
	return Epoch{}, nil, false, nil
}

func (s *MemEpochStore) LatestEndSequence(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.epochs) == 0 {
		return 0, nil
	}
	return s.epochs[len(s.epochs)-1].EndSequence, nil
}
