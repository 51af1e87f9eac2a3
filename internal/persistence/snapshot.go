package persistence

import (
	"SynthLedger/internal/engine"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// snapshotFormatV1 is JSON-encoded SnapshotData.
const snapshotFormatV1 = 1

// SnapshotManager handles creating and loading state snapshots and reading
// the event log back for recovery.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the full engine state at one sequence plus the request
// ids needed to warm deduplication.
type SnapshotData struct {
	State           engine.Snapshot `json:"state"`
	IdempotencyKeys []string        `json:"idempotency_keys"`
	CreatedAt       time.Time       `json:"created_at"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists snap unverified and returns its encoded size.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, uuid.New(), snap.State.Sequence, data, snap.State.StateHash[:], snapshotFormatV1, len(data), snap.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("save snapshot %d: %w", snap.State.Sequence, err)
	}
	return len(data), nil
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a
// cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data, format_version FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var (
		data    []byte
		version int
	)
	if err := row.Scan(&data, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if version != snapshotFormatV1 {
		return nil, fmt.Errorf("load snapshot: unsupported format version %d", version)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadReplayRecords loads up to limit committed operations with sequence
// >= fromSequence, each with its journals in batch order.
func (sm *SnapshotManager) LoadReplayRecords(ctx context.Context, fromSequence int64, limit int) ([]engine.ReplayRecord, error) {
	events, err := sm.loadEvents(ctx, fromSequence, limit)
	if err != nil || len(events) == 0 {
		return nil, err
	}

	journals, err := sm.loadJournals(ctx, events[0].Sequence, events[len(events)-1].Sequence)
	if err != nil {
		return nil, err
	}

	out := make([]engine.ReplayRecord, 0, len(events))
	for _, e := range events {
		rec, err := replayRecord(e, journals[e.Sequence])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (sm *SnapshotManager) loadEvents(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, operation, idempotency_key, caller, payload, state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("load events from %d: %w", fromSequence, err)
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.Operation, &e.IdempotencyKey, &e.Caller,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (sm *SnapshotManager) loadJournals(ctx context.Context, from, to int64) (map[int64][]JournalRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT journal_id, batch_id, event_ref, sequence, position,
		       debit_account, credit_account, amount::TEXT, journal_type
		FROM event_log.journal
		WHERE sequence BETWEEN $1 AND $2
		ORDER BY sequence ASC, position ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("load journals %d..%d: %w", from, to, err)
	}
	defer rows.Close()

	out := make(map[int64][]JournalRow)
	for rows.Next() {
		var j JournalRow
		if err := rows.Scan(
			&j.JournalID, &j.BatchID, &j.EventRef, &j.Sequence, &j.Position,
			&j.DebitAccount, &j.CreditAccount, &j.Amount, &j.JournalType,
		); err != nil {
			return nil, err
		}
		out[j.Sequence] = append(out[j.Sequence], j)
	}
	return out, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
