package fates

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sessionRow stores a deliberation Session as a JSON blob keyed by
// session_id; the dissent_records/votes_by_round sub-structures have no
// independent query pattern of their own (all reads go through the
// legitimacy_states projection), so normalizing them into their own tables
// would only add write-path complexity without a corresponding benefit.
type sessionRow struct {
	SessionID string `gorm:"primaryKey"`
	Payload   []byte
}

func (sessionRow) TableName() string { return "fates_sessions" }

// GormBackend is the production Backend.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend wraps an already-migrated *gorm.DB.
func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

func (b *GormBackend) Save(ctx context.Context, s Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("fates: marshal session: %w", err)
	}
	row := sessionRow{SessionID: s.SessionID, Payload: payload}
	err = b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("fates: save session: %w", err)
	}
	return nil
}

func (b *GormBackend) Load(ctx context.Context, sessionID string) (Session, bool, error) {
	var row sessionRow
	err := b.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("fates: load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(row.Payload, &s); err != nil {
		return Session{}, false, fmt.Errorf("fates: unmarshal session: %w", err)
	}
	return s, true, nil
}
