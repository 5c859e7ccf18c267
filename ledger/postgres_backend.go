package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// registers the "pgx" database/sql driver used by PostgresBackend.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresBackend is the production EventBackend. It issues raw SQL (rather
// than going through gorm) because the events table's append-only guarantee
// depends on BEFORE UPDATE/DELETE triggers and an identity-column sequence
// that are easiest to reason about as explicit SQL; see migrations/0001_ledger.sql.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend wraps an already-opened *sql.DB (driver "pgx").
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) WithTx(ctx context.Context, fn func(tx EventTx) error) error {
	sqlTx, err := b.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	if err := fn(postgresTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	return nil
}

func (b *PostgresBackend) ReadRange(ctx context.Context, start, end int64) ([]Event, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT event_id, sequence, event_type, branch, schema_version, payload,
		       prev_hash, content_hash, hash_alg_version, sig_alg_version,
		       agent_id, witness_id, signature, signing_key_id, witness_signature,
		       local_timestamp, authority_timestamp, is_terminal
		FROM ledger.events
		WHERE sequence BETWEEN $1 AND $2
		ORDER BY sequence ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("ledger: read range: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) GetByID(ctx context.Context, eventID string) (Event, bool, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT event_id, sequence, event_type, branch, schema_version, payload,
		       prev_hash, content_hash, hash_alg_version, sig_alg_version,
		       agent_id, witness_id, signature, signing_key_id, witness_signature,
		       local_timestamp, authority_timestamp, is_terminal
		FROM ledger.events WHERE event_id = $1`, eventID)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, false, nil
		}
		return Event{}, false, err
	}
	return ev, true, nil
}

func (b *PostgresBackend) Tip(ctx context.Context) (Event, bool, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT event_id, sequence, event_type, branch, schema_version, payload,
		       prev_hash, content_hash, hash_alg_version, sig_alg_version,
		       agent_id, witness_id, signature, signing_key_id, witness_signature,
		       local_timestamp, authority_timestamp, is_terminal
		FROM ledger.events
		ORDER BY sequence DESC
		LIMIT 1`)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, false, nil
		}
		return Event{}, false, err
	}
	return ev, true, nil
}

func (b *PostgresBackend) IsTerminated(ctx context.Context) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT count(*) FROM ledger.events WHERE is_terminal`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("ledger: terminal check: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var ev Event
	var hashAlg, sigAlg int
	if err := row.Scan(
		&ev.EventID, &ev.Sequence, &ev.EventType, &ev.Branch, &ev.SchemaVersion, &ev.Payload,
		&ev.PrevHash, &ev.ContentHash, &hashAlg, &sigAlg,
		&ev.AgentID, &ev.WitnessID, &ev.Signature, &ev.SigningKeyID, &ev.WitnessSignature,
		&ev.LocalTimestamp, &ev.AuthorityTimestamp, &ev.IsTerminal,
	); err != nil {
		return Event{}, fmt.Errorf("ledger: scan event: %w", err)
	}
	ev.HashAlgVersion = HashAlgVersion(hashAlg)
	ev.SigAlgVersion = SigAlgVersion(sigAlg)
	return ev, nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t postgresTx) LastEvent(ctx context.Context) (Event, bool, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT event_id, sequence, event_type, branch, schema_version, payload,
		       prev_hash, content_hash, hash_alg_version, sig_alg_version,
		       agent_id, witness_id, signature, signing_key_id, witness_signature,
		       local_timestamp, authority_timestamp, is_terminal
		FROM ledger.events
		ORDER BY sequence DESC
		LIMIT 1
		FOR UPDATE`)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, false, nil
		}
		return Event{}, false, err
	}
	return ev, true, nil
}

// Insert supplies an explicit sequence rather than letting
// ledger.events.sequence (a GENERATED ALWAYS AS IDENTITY column, see
// migrations/0001_ledger.sql) assign its own: the store already computes
// sequence as last.Sequence+1 under a serializable transaction with
// LastEvent's FOR UPDATE row lock, so no concurrent writer can produce a
// gap or collision. OVERRIDING SYSTEM VALUE is required for Postgres to
// accept an explicit value against a GENERATED ALWAYS column.
func (t postgresTx) Insert(ctx context.Context, ev Event) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger.events
		  (event_id, sequence, event_type, branch, schema_version, payload,
		   prev_hash, content_hash, hash_alg_version, sig_alg_version,
		   agent_id, witness_id, signature, signing_key_id, witness_signature,
		   local_timestamp, authority_timestamp, is_terminal)
		OVERRIDING SYSTEM VALUE
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		ev.EventID, ev.Sequence, ev.EventType, ev.Branch, ev.SchemaVersion, ev.Payload,
		ev.PrevHash, ev.ContentHash, int(ev.HashAlgVersion), int(ev.SigAlgVersion),
		ev.AgentID, ev.WitnessID, ev.Signature, ev.SigningKeyID, ev.WitnessSignature,
		ev.LocalTimestamp, ev.AuthorityTimestamp, ev.IsTerminal,
	)
	if err != nil {
		return fmt.Errorf("ledger: insert event: %w", err)
	}
	return nil
}

func (t postgresTx) RecordDrift(ctx context.Context, ev Event, driftSeconds float64) {
	_, _ = t.tx.ExecContext(ctx, `
		INSERT INTO ledger.clock_drift_events (event_id, drift_seconds, recorded_at)
		VALUES ($1, $2, $3)`, ev.EventID, driftSeconds, time.Now().UTC())
}
