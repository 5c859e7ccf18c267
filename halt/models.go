package halt

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// singletonID is the fixed primary key of the halt_state row; the
// production schema additionally enforces it with
// CHECK (id = '00000000-0000-0000-0000-000000000001') so no second row can
// ever be inserted, a param-store singleton convention.
const singletonID = "00000000-0000-0000-0000-000000000001"

type haltStateRow struct {
	ID            string `gorm:"primaryKey"`
	IsHalted      bool
	Reason        string
	CrisisEventID string
	HaltID        string
	Severity      string
	OperatorID    string
	HaltedAt      *time.Time
	ClearedAt     *time.Time
	CeremonyID    string
	UpdatedAt     time.Time
}

func (haltStateRow) TableName() string { return "halt_state" }

type ceremonyRow struct {
	CeremonyID string `gorm:"primaryKey"`
	HaltID     string
	OperatorID string
	Action     string
	Reason     string
	At         time.Time
}

func (ceremonyRow) TableName() string { return "halt_ceremonies" }

// GormBackend is the production Backend, storing the singleton row and its
// ceremony audit trail through gorm per the non-hash-chained-table
// convention (spec_full section 4's data-access split).
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend wraps an already-migrated *gorm.DB.
func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

func (b *GormBackend) Load(ctx context.Context) (State, error) {
	var row haltStateRow
	err := b.db.WithContext(ctx).Where("id = ?", singletonID).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return State{}, nil
		}
		return State{}, fmt.Errorf("halt: load state: %w", err)
	}
	return rowToState(row), nil
}

func (b *GormBackend) Save(ctx context.Context, state State) error {
	row := stateToRow(state)
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("halt: save state: %w", err)
	}
	return nil
}

func (b *GormBackend) RecordCeremony(ctx context.Context, c Ceremony) error {
	row := ceremonyRow{
		CeremonyID: c.CeremonyID,
		HaltID:     c.HaltID,
		OperatorID: c.OperatorID,
		Action:     c.Action,
		Reason:     c.Reason,
		At:         c.At,
	}
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("halt: record ceremony: %w", err)
	}
	return nil
}

func (b *GormBackend) ListCeremonies(ctx context.Context) ([]Ceremony, error) {
	var rows []ceremonyRow
	if err := b.db.WithContext(ctx).Order("at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("halt: list ceremonies: %w", err)
	}
	out := make([]Ceremony, 0, len(rows))
	for _, r := range rows {
		out = append(out, Ceremony{
			CeremonyID: r.CeremonyID,
			HaltID:     r.HaltID,
			OperatorID: r.OperatorID,
			Action:     r.Action,
			Reason:     r.Reason,
			At:         r.At,
		})
	}
	return out, nil
}

func rowToState(row haltStateRow) State {
	return State{
		IsHalted:      row.IsHalted,
		Reason:        row.Reason,
		CrisisEventID: row.CrisisEventID,
		HaltID:        row.HaltID,
		Severity:      row.Severity,
		OperatorID:    row.OperatorID,
		HaltedAt:      row.HaltedAt,
		ClearedAt:     row.ClearedAt,
		CeremonyID:    row.CeremonyID,
	}
}

func stateToRow(state State) haltStateRow {
	return haltStateRow{
		ID:            singletonID,
		IsHalted:      state.IsHalted,
		Reason:        state.Reason,
		CrisisEventID: state.CrisisEventID,
		HaltID:        state.HaltID,
		Severity:      state.Severity,
		OperatorID:    state.OperatorID,
		HaltedAt:      state.HaltedAt,
		ClearedAt:     state.ClearedAt,
		CeremonyID:    state.CeremonyID,
		UpdatedAt:     time.Now().UTC(),
	}
}
