package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager stores and loads serialized engine state for warm
// restart. The engine serializes its own state; this layer treats the
// payload as opaque JSON and tracks sequence, hash, and verification.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists one snapshot. Re-saving the same sequence
// replaces the stored payload.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, sequence int64, stateHash, data []byte) error {
	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded engine state

	_, err := sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, sequence, data, stateHash, formatVersion, len(data), time.Now().UTC())

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. A nil
// payload with no error means cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (sequence int64, stateHash, data []byte, err error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT sequence, state_hash, data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	if err := row.Scan(&sequence, &stateHash, &data); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, nil, nil
		}
		return 0, nil, nil, fmt.Errorf("load snapshot: %w", err)
	}
	return sequence, stateHash, data, nil
}

// MarkVerified marks a snapshot as verified after its hash chain checks
// out against the event log.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads envelopes at or after fromSequence, ascending,
// for audit and hash-chain verification after a warm restart.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, pool_id, payload, state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(
			&r.Sequence, &r.EventType, &r.IdempotencyKey, &r.PoolID,
			&r.Payload, &r.StateHash, &r.PrevHash, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
