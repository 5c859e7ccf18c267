package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemTx is the concrete DerivedTx handed to handlers by MemBackend. It
// round-trips rows through JSON, the same as GormTx, so reference
// projection handlers can be written once against the KVTx interface and
// run unchanged against either backend.
type MemTx struct {
	backend *MemBackend
	name    string
}

// Put upserts row under table/key within this projection's namespace.
func (tx *MemTx) Put(table, key string, row any) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("projection: marshal row: %w", err)
	}
	tx.backend.mu.Lock()
	defer tx.backend.mu.Unlock()
	ns := tx.backend.tableKey(tx.name, table)
	rows, ok := tx.backend.tables[ns]
	if !ok {
		rows = make(map[string]json.RawMessage)
		tx.backend.tables[ns] = rows
	}
	rows[key] = payload
	return nil
}

// Get loads and unmarshals the row under table/key into dest.
func (tx *MemTx) Get(table, key string, dest any) (bool, error) {
	tx.backend.mu.Lock()
	rows, ok := tx.backend.tables[tx.backend.tableKey(tx.name, table)]
	if !ok {
		tx.backend.mu.Unlock()
		return false, nil
	}
	payload, ok := rows[key]
	tx.backend.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("projection: unmarshal row: %w", err)
	}
	return true, nil
}

// Delete removes row under table/key within this projection's namespace.
func (tx *MemTx) Delete(table, key string) error {
	tx.backend.mu.Lock()
	defer tx.backend.mu.Unlock()
	rows, ok := tx.backend.tables[tx.backend.tableKey(tx.name, table)]
	if !ok {
		return nil
	}
	delete(rows, key)
	return nil
}

// All returns every raw row currently stored under table within this
// projection's namespace, keyed by row key.
func (tx *MemTx) All(table string) map[string]json.RawMessage {
	tx.backend.mu.Lock()
	defer tx.backend.mu.Unlock()
	rows, ok := tx.backend.tables[tx.backend.tableKey(tx.name, table)]
	if !ok {
		return nil
	}
	out := make(map[string]json.RawMessage, len(rows))
	for k, v := range rows {
		out[k] = v
	}
	return out
}

// MemBackend is an in-memory Backend used by tests.
type MemBackend struct {
	mu          sync.Mutex
	checkpoints map[string]Checkpoint
	applyLog    map[string]map[string]struct{}        // name -> event_id set
	tables      map[string]map[string]json.RawMessage // "name/table" -> key -> row
}

// NewMemBackend constructs an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{
		checkpoints: make(map[string]Checkpoint),
		applyLog:    make(map[string]map[string]struct{}),
		tables:      make(map[string]map[string]json.RawMessage),
	}
}

func (b *MemBackend) tableKey(name, table string) string { return name + "/" + table }

func (b *MemBackend) LoadCheckpoint(_ context.Context, name string) (Checkpoint, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.checkpoints[name]
	return c, ok, nil
}

func (b *MemBackend) WithApplyTx(_ context.Context, name string, eventID string, fn func(tx DerivedTx) error) (bool, error) {
	b.mu.Lock()
	applied, ok := b.applyLog[name]
	if !ok {
		applied = make(map[string]struct{})
		b.applyLog[name] = applied
	}
	if _, ok := applied[eventID]; ok {
		b.mu.Unlock()
		return true, nil
	}
	b.mu.Unlock()

	tx := &MemTx{backend: b, name: name}
	if err := fn(tx); err != nil {
		return false, err
	}

	b.mu.Lock()
	applied[eventID] = struct{}{}
	b.mu.Unlock()
	return false, nil
}

func (b *MemBackend) SaveCheckpoint(_ context.Context, checkpoint Checkpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkpoints[checkpoint.ProjectionName] = checkpoint
	return nil
}

func (b *MemBackend) Truncate(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.checkpoints, name)
	delete(b.applyLog, name)
	for key := range b.tables {
		if len(key) > len(name) && key[:len(name)+1] == name+"/" {
			delete(b.tables, key)
		}
	}
	return nil
}
