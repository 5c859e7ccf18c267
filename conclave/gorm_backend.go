package conclave

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// checkpointRow stores one session's entire Checkpoint as a JSON blob,
// keyed by session_id. The session state machine has no query-by-field
// access pattern of its own (callers always load by session_id and resume),
// so there is no benefit to normalizing motions/votes/debate entries into
// their own tables ahead of a component that actually needs to query them
// (the projection framework's panel_registry is that component, and reads
// from committed ledger events rather than this checkpoint row).
type checkpointRow struct {
	SessionID string `gorm:"primaryKey"`
	Payload   []byte
}

func (checkpointRow) TableName() string { return "conclave_checkpoints" }

// GormBackend is the production Backend.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend wraps an already-migrated *gorm.DB.
func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

func (b *GormBackend) SaveCheckpoint(ctx context.Context, checkpoint Checkpoint) error {
	payload, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("conclave: marshal checkpoint: %w", err)
	}
	row := checkpointRow{SessionID: checkpoint.SessionID, Payload: payload}
	err = b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("conclave: save checkpoint: %w", err)
	}
	return nil
}

func (b *GormBackend) LoadCheckpoint(ctx context.Context, sessionID string) (Checkpoint, bool, error) {
	var row checkpointRow
	err := b.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("conclave: load checkpoint: %w", err)
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(row.Payload, &checkpoint); err != nil {
		return Checkpoint{}, false, fmt.Errorf("conclave: unmarshal checkpoint: %w", err)
	}
	return checkpoint, true, nil
}
