package main

import (
	"SynthLedger/internal/custody"
	"SynthLedger/internal/engine"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/persistence"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const replayBatchSize = 1000

// recoverEngine restores the latest verified snapshot (if any) and replays
// the event log after it. It returns the snapshot sequence (0 on a cold
// start) and the number of replayed operations.
func recoverEngine(ctx context.Context, eng *engine.Engine, snapMgr *persistence.SnapshotManager, metrics *observability.Metrics) (int64, int, error) {
	log := observability.NewLogger("recovery")
	start := time.Now()

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		return 0, 0, err
	}

	var snapshotSeq int64
	if snap != nil {
		if err := eng.Restore(snap.State); err != nil {
			return 0, 0, fmt.Errorf("restore snapshot %d: %w", snap.State.Sequence, err)
		}
		snapshotSeq = snap.State.Sequence
		if len(snap.IdempotencyKeys) > 0 {
			eng.WarmIdempotency(snap.IdempotencyKeys)
		}
		log.Info().Int64("sequence", snapshotSeq).Int("idempotency_keys", len(snap.IdempotencyKeys)).
			Time("created_at", snap.CreatedAt).Msg("snapshot restored")
	} else {
		log.Info().Msg("no snapshot found, cold start from sequence 0")
	}

	replayed := 0
	for {
		records, err := snapMgr.LoadReplayRecords(ctx, eng.Sequence()+1, replayBatchSize)
		if err != nil {
			return snapshotSeq, replayed, err
		}
		for _, rec := range records {
			if err := eng.Replay(rec); err != nil {
				return snapshotSeq, replayed, err
			}
			replayed++
		}
		if len(records) < replayBatchSize {
			break
		}
	}

	head, err := snapMgr.GetLatestSequence(ctx)
	if err != nil {
		return snapshotSeq, replayed, err
	}
	if head > eng.Sequence() {
		return snapshotSeq, replayed, fmt.Errorf("event log head %d beyond replayed sequence %d: gap in the log", head, eng.Sequence())
	}

	if metrics != nil {
		metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}
	return snapshotSeq, replayed, nil
}

// fundCustody mints the recovered custody totals into the custodian's
// account at the in-process vault, which does not survive a restart.
// Synthetic balances held by users are not restored.
func fundCustody(eng *engine.Engine, vault *custody.Vault, custodian uuid.UUID) error {
	held, _ := eng.Totals()
	for _, h := range held {
		if h.Amount.IsZero() {
			continue
		}
		if err := vault.Mint(h.Asset, custodian, h.Amount); err != nil {
			return fmt.Errorf("fund custody %s: %w", h.Asset, err)
		}
	}
	return nil
}
