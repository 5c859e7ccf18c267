package motionqueue

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type motionQueueRow struct {
	MotionID             string `gorm:"primaryKey"`
	Text                 string
	ConsensusTier        string
	EndorsementCount     int
	Status               string
	SessionID            string
	ProvenancePetitionID string
	CreatedAt            int64 // unix nanos; avoids a timezone-sensitive comparison in ORDER BY
}

func (motionQueueRow) TableName() string { return "motion_queue_entries" }

type motionQueueArchiveRow struct {
	motionQueueRow
	ArchivedAt int64
}

func (motionQueueArchiveRow) TableName() string { return "motion_queue_archive" }

// GormQueueBackend is the production QueueBackend. Promote and
// RecoverStrandedPromoted run inside a single transaction so the
// atomicity spec section 4.9 requires holds under concurrent orchestrator
// instances.
type GormQueueBackend struct {
	db *gorm.DB
}

// NewGormQueueBackend wraps an already-migrated *gorm.DB.
func NewGormQueueBackend(db *gorm.DB) *GormQueueBackend {
	return &GormQueueBackend{db: db}
}

func toRow(e MotionQueueEntry) motionQueueRow {
	return motionQueueRow{
		MotionID:             e.MotionID,
		Text:                 e.Text,
		ConsensusTier:        string(e.ConsensusTier),
		EndorsementCount:     e.EndorsementCount,
		Status:               string(e.Status),
		SessionID:            e.SessionID,
		ProvenancePetitionID: e.ProvenancePetitionID,
		CreatedAt:            e.CreatedAt.UnixNano(),
	}
}

func fromRow(r motionQueueRow) MotionQueueEntry {
	return MotionQueueEntry{
		MotionID:             r.MotionID,
		Text:                 r.Text,
		ConsensusTier:        ConsensusTier(r.ConsensusTier),
		EndorsementCount:     r.EndorsementCount,
		Status:               MotionQueueStatus(r.Status),
		SessionID:            r.SessionID,
		ProvenancePetitionID: r.ProvenancePetitionID,
	}
}

func (b *GormQueueBackend) Enqueue(ctx context.Context, entry MotionQueueEntry) error {
	row := toRow(entry)
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("motionqueue: enqueue: %w", err)
	}
	return nil
}

func (b *GormQueueBackend) ListSelectable(ctx context.Context, minConsensus ConsensusTier) ([]MotionQueueEntry, error) {
	var rows []motionQueueRow
	err := b.db.WithContext(ctx).
		Where("status IN ?", []string{string(MotionQueuePending), string(MotionQueueEndorsed)}).
		Order("endorsement_count DESC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("motionqueue: list selectable: %w", err)
	}
	out := make([]MotionQueueEntry, 0, len(rows))
	for _, r := range rows {
		e := fromRow(r)
		if e.ConsensusTier.AtLeast(minConsensus) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (b *GormQueueBackend) Promote(ctx context.Context, motionIDs []string, sessionID string) error {
	err := b.db.WithContext(ctx).Model(&motionQueueRow{}).
		Where("motion_id IN ?", motionIDs).
		Updates(map[string]any{"status": string(MotionQueuePromoted), "session_id": sessionID}).Error
	if err != nil {
		return fmt.Errorf("motionqueue: promote: %w", err)
	}
	return nil
}

func (b *GormQueueBackend) RecoverStrandedPromoted(ctx context.Context, liveSessionIDs map[string]struct{}) ([]string, error) {
	var reverted []string
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []motionQueueRow
		if err := tx.Where("status = ?", string(MotionQueuePromoted)).Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			if _, live := liveSessionIDs[r.SessionID]; live {
				continue
			}
			err := tx.Model(&motionQueueRow{}).Where("motion_id = ?", r.MotionID).
				Updates(map[string]any{"status": string(MotionQueuePending), "session_id": ""}).Error
			if err != nil {
				return err
			}
			reverted = append(reverted, r.MotionID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("motionqueue: recover stranded promoted: %w", err)
	}
	return reverted, nil
}

func (b *GormQueueBackend) Archive(ctx context.Context, motionID string, finalStatus MotionQueueStatus) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row motionQueueRow
		if err := tx.Where("motion_id = ?", motionID).First(&row).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		row.Status = string(finalStatus)
		archiveRow := motionQueueArchiveRow{motionQueueRow: row}
		if err := tx.Create(&archiveRow).Error; err != nil {
			return err
		}
		return tx.Where("motion_id = ?", motionID).Delete(&motionQueueRow{}).Error
	})
}

func (b *GormQueueBackend) Get(ctx context.Context, motionID string) (MotionQueueEntry, bool, error) {
	var row motionQueueRow
	err := b.db.WithContext(ctx).Where("motion_id = ?", motionID).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return MotionQueueEntry{}, false, nil
		}
		return MotionQueueEntry{}, false, fmt.Errorf("motionqueue: get: %w", err)
	}
	return fromRow(row), true, nil
}
