package merkle

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type epochRow struct {
	EpochID       int64 `gorm:"primaryKey"`
	StartSequence int64
	EndSequence   int64
	Algorithm     string
	RootHash      string
	EventCount    int64
}

func (epochRow) TableName() string { return "merkle_epochs" }

// epochLeafRow preserves each epoch's leaf ordering (spec section 4.3's
// proof path is built over the leaves in commit order), keyed by
// (epoch_id, leaf_index) the way motionqueue's co-signer table keys on
// (petition_id, signer_id).
type epochLeafRow struct {
	EpochID          int64 `gorm:"primaryKey"`
	LeafIndex        int   `gorm:"primaryKey"`
	EventContentHash string
}

func (epochLeafRow) TableName() string { return "merkle_epoch_leaves" }

// GormEpochStore is the production EpochStore, persisting into
// merkle_epochs/merkle_epoch_leaves alongside the raw ledger tables.
type GormEpochStore struct {
	db *gorm.DB
}

// NewGormEpochStore wraps an already-migrated *gorm.DB.
func NewGormEpochStore(db *gorm.DB) *GormEpochStore {
	return &GormEpochStore{db: db}
}

func (s *GormEpochStore) NextEpochID(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&epochRow{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("merkle: count epochs: %w", err)
	}
	return count, nil
}

func (s *GormEpochStore) SaveEpoch(ctx context.Context, epoch Epoch, leaves []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last epochRow
		err := tx.Order("epoch_id DESC").First(&last).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}
		if err == nil && epoch.StartSequence != last.EndSequence+1 {
			return fmt.Errorf("merkle: epoch %d is not contiguous with previous epoch ending at %d", epoch.EpochID, last.EndSequence)
		}

		row := epochRow{
			EpochID:       epoch.EpochID,
			StartSequence: epoch.StartSequence,
			EndSequence:   epoch.EndSequence,
			Algorithm:     string(epoch.Algorithm),
			RootHash:      epoch.RootHash,
			EventCount:    epoch.EventCount,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		leafRows := make([]epochLeafRow, len(leaves))
		for i, l := range leaves {
			leafRows[i] = epochLeafRow{EpochID: epoch.EpochID, LeafIndex: i, EventContentHash: l}
		}
		if len(leafRows) > 0 {
			if err := tx.Create(&leafRows).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormEpochStore) EpochContaining(ctx context.Context, sequence int64) (Epoch, []string, bool, error) {
	var row epochRow
	err := s.db.WithContext(ctx).
		Where("start_sequence <= ? AND end_sequence >= ?", sequence, sequence).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Epoch{}, nil, false, nil
		}
		return Epoch{}, nil, false, fmt.Errorf("merkle: epoch containing: %w", err)
	}

	var leafRows []epochLeafRow
	if err := s.db.WithContext(ctx).Where("epoch_id = ?", row.EpochID).Order("leaf_index ASC").Find(&leafRows).Error; err != nil {
		return Epoch{}, nil, false, fmt.Errorf("merkle: load leaves: %w", err)
	}
	leaves := make([]string, len(leafRows))
	for i, l := range leafRows {
		leaves[i] = l.EventContentHash
	}

	return Epoch{
		EpochID:       row.EpochID,
		StartSequence: row.StartSequence,
		EndSequence:   row.EndSequence,
		Algorithm:     Algorithm(row.Algorithm),
		RootHash:      row.RootHash,
		EventCount:    row.EventCount,
	}, leaves, true, nil
}

func (s *GormEpochStore) LatestEndSequence(ctx context.Context) (int64, error) {
	var row epochRow
	err := s.db.WithContext(ctx).Order("epoch_id DESC").First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("merkle: latest end sequence: %w", err)
	}
	return row.EndSequence, nil
}
