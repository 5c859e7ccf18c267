package motionqueue

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type petitionRow struct {
	PetitionID       string `gorm:"primaryKey"`
	Type             string
	Text             string
	SubmitterID      string
	State            string
	ContentHash      string `gorm:"index"`
	Realm            string
	CoSignerCount    int
	EscalationSource string

	AdoptedAsMotionID string
	AdoptedByKingID   string
	AdoptedAt         *int64 // unix nanos

	CreatedAt int64
}

func (petitionRow) TableName() string { return "petitions" }

type petitionCoSignerRow struct {
	PetitionID string `gorm:"primaryKey"`
	SignerID   string `gorm:"primaryKey"`
	SignedAt   int64
}

func (petitionCoSignerRow) TableName() string { return "petition_co_signers" }

func petitionToRow(p Petition) petitionRow {
	row := petitionRow{
		PetitionID:       p.PetitionID,
		Type:             string(p.Type),
		Text:             p.Text,
		SubmitterID:      p.SubmitterID,
		State:            string(p.State),
		ContentHash:      p.ContentHash,
		Realm:            p.Realm,
		CoSignerCount:    p.CoSignerCount,
		EscalationSource: string(p.EscalationSource),
		AdoptedAsMotionID: p.AdoptedAsMotionID,
		AdoptedByKingID:   p.AdoptedByKingID,
		CreatedAt:         p.CreatedAt.UnixNano(),
	}
	if p.AdoptedAt != nil {
		nanos := p.AdoptedAt.UnixNano()
		row.AdoptedAt = &nanos
	}
	return row
}

func petitionFromRow(r petitionRow) Petition {
	p := Petition{
		PetitionID:       r.PetitionID,
		Type:             PetitionType(r.Type),
		Text:             r.Text,
		SubmitterID:      r.SubmitterID,
		State:            PetitionState(r.State),
		ContentHash:      r.ContentHash,
		Realm:            r.Realm,
		CoSignerCount:    r.CoSignerCount,
		EscalationSource: EscalationSource(r.EscalationSource),
		AdoptedAsMotionID: r.AdoptedAsMotionID,
		AdoptedByKingID:   r.AdoptedByKingID,
		CreatedAt:         time.Unix(0, r.CreatedAt),
	}
	if r.AdoptedAt != nil {
		t := time.Unix(0, *r.AdoptedAt)
		p.AdoptedAt = &t
	}
	return p
}

// GormPetitionBackend is the production PetitionBackend. The unique
// constraint on (petition_id, signer_id) in petition_co_signers forecloses
// duplicate co-signatures at the database layer, matching spec section
// 4.9's idempotency requirement for CoSign.
type GormPetitionBackend struct {
	db *gorm.DB
}

// NewGormPetitionBackend wraps an already-migrated *gorm.DB. The caller
// must have a unique index on petition_co_signers(petition_id, signer_id).
func NewGormPetitionBackend(db *gorm.DB) *GormPetitionBackend {
	return &GormPetitionBackend{db: db}
}

func (b *GormPetitionBackend) Save(ctx context.Context, p Petition) error {
	row := petitionToRow(p)
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("motionqueue: save petition: %w", err)
	}
	return nil
}

func (b *GormPetitionBackend) Get(ctx context.Context, petitionID string) (Petition, bool, error) {
	var row petitionRow
	err := b.db.WithContext(ctx).Where("petition_id = ?", petitionID).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Petition{}, false, nil
		}
		return Petition{}, false, fmt.Errorf("motionqueue: get petition: %w", err)
	}
	return petitionFromRow(row), true, nil
}

func (b *GormPetitionBackend) HasActiveDuplicate(ctx context.Context, contentHash string) (bool, error) {
	var count int64
	terminal := []string{string(PetitionWithdrawn), string(PetitionAdopted), string(PetitionNoResponse)}
	err := b.db.WithContext(ctx).Model(&petitionRow{}).
		Where("content_hash = ? AND state NOT IN ?", contentHash, terminal).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("motionqueue: has active duplicate: %w", err)
	}
	return count > 0, nil
}

func (b *GormPetitionBackend) CoSign(ctx context.Context, petitionID, signerID string) (int, bool, error) {
	var newCount int
	var duplicate bool
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cosign := petitionCoSignerRow{PetitionID: petitionID, SignerID: signerID, SignedAt: time.Now().UnixNano()}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&cosign)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			duplicate = true
			var row petitionRow
			if err := tx.Where("petition_id = ?", petitionID).First(&row).Error; err != nil {
				return err
			}
			newCount = row.CoSignerCount
			return nil
		}
		if err := tx.Model(&petitionRow{}).Where("petition_id = ?", petitionID).
			UpdateColumn("co_signer_count", gorm.Expr("co_signer_count + 1")).Error; err != nil {
			return err
		}
		var row petitionRow
		if err := tx.Where("petition_id = ?", petitionID).First(&row).Error; err != nil {
			return err
		}
		newCount = row.CoSignerCount
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("motionqueue: cosign: %w", err)
	}
	return newCount, duplicate, nil
}

func (b *GormPetitionBackend) Adopt(ctx context.Context, petitionID, motionID, kingID string, at int64) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row petitionRow
		if err := tx.Where("petition_id = ?", petitionID).First(&row).Error; err != nil {
			return err
		}
		if row.AdoptedAsMotionID != "" {
			return ErrAlreadyAdopted
		}
		updates := map[string]any{
			"adopted_as_motion_id": motionID,
			"adopted_by_king_id":   kingID,
			"adopted_at":           at,
			"state":                string(PetitionAdopted),
		}
		return tx.Model(&petitionRow{}).
			Where("petition_id = ? AND adopted_as_motion_id = ?", petitionID, "").
			Updates(updates).Error
	})
}

func (b *GormPetitionBackend) SetState(ctx context.Context, petitionID string, state PetitionState, source EscalationSource) error {
	updates := map[string]any{"state": string(state)}
	if source != "" {
		updates["escalation_source"] = string(source)
	}
	err := b.db.WithContext(ctx).Model(&petitionRow{}).Where("petition_id = ?", petitionID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("motionqueue: set state: %w", err)
	}
	return nil
}

func (b *GormPetitionBackend) DeliberationQueueDepth(ctx context.Context) (int, error) {
	var count int64
	states := []string{string(PetitionReceived), string(PetitionDeliberating)}
	err := b.db.WithContext(ctx).Model(&petitionRow{}).Where("state IN ?", states).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("motionqueue: deliberation queue depth: %w", err)
	}
	return int(count), nil
}

// bucketRow is the persistent minute-bucketed rate-limit counter backing
// GormBucketBackend, keyed by the unique (key, bucket_minute) pair spec
// section 4.9 requires for the rate-limit gate.
type bucketRow struct {
	Key          string `gorm:"primaryKey"`
	BucketMinute int64  `gorm:"primaryKey"`
	Count        int
}

func (bucketRow) TableName() string { return "motionqueue_rate_buckets" }

// GormBucketBackend is the production BucketBackend.
type GormBucketBackend struct {
	db *gorm.DB
}

// NewGormBucketBackend wraps an already-migrated *gorm.DB.
func NewGormBucketBackend(db *gorm.DB) *GormBucketBackend {
	return &GormBucketBackend{db: db}
}

func (b *GormBucketBackend) IncrementAndCountWindow(ctx context.Context, key string, bucketMinute, windowMinutes int64) (int, error) {
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}, {Name: "bucket_minute"}},
		DoUpdates: clause.Assignments(map[string]any{"count": gorm.Expr("motionqueue_rate_buckets.count + 1")}),
	}).Create(&bucketRow{Key: key, BucketMinute: bucketMinute, Count: 1}).Error
	if err != nil {
		return 0, fmt.Errorf("motionqueue: increment bucket: %w", err)
	}

	var total int64
	err = b.db.WithContext(ctx).Model(&bucketRow{}).
		Where("key = ? AND bucket_minute > ? AND bucket_minute <= ?", key, bucketMinute-windowMinutes, bucketMinute).
		Select("COALESCE(SUM(count), 0)").Row().Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("motionqueue: count bucket window: %w", err)
	}
	return int(total), nil
}
