package ledger

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresKeyRegistry is the production KeyRegistry (spec section 4.2). Keys
// are retired, never deleted; DELETE is refused at the database level via
// the same role-grant revocation applied to the events table.
type PostgresKeyRegistry struct {
	db *sql.DB
}

// NewPostgresKeyRegistry wraps an already-opened *sql.DB.
func NewPostgresKeyRegistry(db *sql.DB) *PostgresKeyRegistry {
	return &PostgresKeyRegistry{db: db}
}

func (r *PostgresKeyRegistry) Register(ctx context.Context, agentID string, pub ed25519.PublicKey, label string) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("ledger: public key must be %d bytes", ed25519.PublicKeySize)
	}
	keyID := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger.agent_keys (key_id, agent_id, public_key, label, active_from)
		VALUES ($1, $2, $3, $4, now())`, keyID, agentID, []byte(pub), label)
	if err != nil {
		return "", fmt.Errorf("ledger: register key: %w", err)
	}
	return keyID, nil
}

func (r *PostgresKeyRegistry) Lookup(ctx context.Context, keyID string) (AgentKey, bool, error) {
	var k AgentKey
	var pub []byte
	var until sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT key_id, agent_id, public_key, label, active_from, active_until
		FROM ledger.agent_keys WHERE key_id = $1`, keyID).
		Scan(&k.KeyID, &k.AgentID, &pub, &k.Label, &k.ActiveFrom, &until)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AgentKey{}, false, nil
		}
		return AgentKey{}, false, fmt.Errorf("ledger: lookup key: %w", err)
	}
	k.PublicKey = ed25519.PublicKey(pub)
	if until.Valid {
		t := until.Time
		k.ActiveUntil = &t
	}
	return k, true, nil
}

func (r *PostgresKeyRegistry) Retire(ctx context.Context, keyID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ledger.agent_keys SET active_until = $2 WHERE key_id = $1`, keyID, at)
	if err != nil {
		return fmt.Errorf("ledger: retire key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: retire key: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("ledger: unknown key %q", keyID)
	}
	return nil
}
