package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type checkpointRow struct {
	ProjectionName string `gorm:"primaryKey"`
	LastEventID    string
	LastHash       string
	LastSequence   int64
}

func (checkpointRow) TableName() string { return "projection_checkpoints" }

type applyLogRow struct {
	ProjectionName string `gorm:"primaryKey"`
	EventID        string `gorm:"primaryKey"`
}

func (applyLogRow) TableName() string { return "projection_applies" }

// projectionRow is the generic derived-row store: each projection's
// domain-specific shape is serialized to JSON under (projection_name,
// table_name, row_key). This keeps every initial projection
// (task_states, legitimacy_states, panel_registry, petition_index,
// actor_registry) on one physical schema rather than five bespoke gorm
// model sets, while still satisfying the "projection services may only
// write to projections.* schema" write-boundary rule via a single grant.
type projectionRow struct {
	ProjectionName string `gorm:"primaryKey"`
	TableName_     string `gorm:"column:table_name;primaryKey"`
	RowKey         string `gorm:"primaryKey"`
	Payload        []byte
}

func (projectionRow) TableName() string { return "projections.rows" }

// GormTx is the DerivedTx concrete type GormBackend hands to handlers.
type GormTx struct {
	tx   *gorm.DB
	name string
}

// Put upserts a JSON-serialized row under table/key.
func (g *GormTx) Put(table, key string, row any) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("projection: marshal row: %w", err)
	}
	r := projectionRow{ProjectionName: g.name, TableName_: table, RowKey: key, Payload: payload}
	return g.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "projection_name"}, {Name: "table_name"}, {Name: "row_key"}},
		UpdateAll: true,
	}).Create(&r).Error
}

// Get loads and unmarshals the row under table/key into dest.
func (g *GormTx) Get(table, key string, dest any) (bool, error) {
	var r projectionRow
	err := g.tx.Where("projection_name = ? AND table_name = ? AND row_key = ?", g.name, table, key).First(&r).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(r.Payload, dest); err != nil {
		return false, fmt.Errorf("projection: unmarshal row: %w", err)
	}
	return true, nil
}

// Delete removes the row under table/key.
func (g *GormTx) Delete(table, key string) error {
	return g.tx.Where("projection_name = ? AND table_name = ? AND row_key = ?", g.name, table, key).
		Delete(&projectionRow{}).Error
}

// GormBackend is the production Backend, storing checkpoints, the apply
// log, and derived rows through gorm per the non-hash-chained-table
// convention.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend wraps an already-migrated *gorm.DB.
func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

func (b *GormBackend) LoadCheckpoint(ctx context.Context, name string) (Checkpoint, bool, error) {
	var row checkpointRow
	err := b.db.WithContext(ctx).Where("projection_name = ?", name).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("projection: load checkpoint: %w", err)
	}
	return Checkpoint{
		ProjectionName: row.ProjectionName,
		LastEventID:    row.LastEventID,
		LastHash:       row.LastHash,
		LastSequence:   row.LastSequence,
	}, true, nil
}

func (b *GormBackend) WithApplyTx(ctx context.Context, name string, eventID string, fn func(tx DerivedTx) error) (bool, error) {
	var alreadyApplied bool
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing applyLogRow
		err := tx.Where("projection_name = ? AND event_id = ?", name, eventID).First(&existing).Error
		if err == nil {
			alreadyApplied = true
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("projection: check apply log: %w", err)
		}

		if err := fn(&GormTx{tx: tx, name: name}); err != nil {
			return err
		}
		if err := tx.Create(&applyLogRow{ProjectionName: name, EventID: eventID}).Error; err != nil {
			return fmt.Errorf("projection: record apply: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return alreadyApplied, nil
}

func (b *GormBackend) SaveCheckpoint(ctx context.Context, checkpoint Checkpoint) error {
	row := checkpointRow{
		ProjectionName: checkpoint.ProjectionName,
		LastEventID:    checkpoint.LastEventID,
		LastHash:       checkpoint.LastHash,
		LastSequence:   checkpoint.LastSequence,
	}
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "projection_name"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("projection: save checkpoint: %w", err)
	}
	return nil
}

func (b *GormBackend) Truncate(ctx context.Context, name string) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("projection_name = ?", name).Delete(&checkpointRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("projection_name = ?", name).Delete(&applyLogRow{}).Error; err != nil {
			return err
		}
		return tx.Where("projection_name = ?", name).Delete(&projectionRow{}).Error
	})
}
