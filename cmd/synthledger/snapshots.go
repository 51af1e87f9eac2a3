package main

import (
	"SynthLedger/internal/engine"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/persistence"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const snapshotCheckInterval = 10 * time.Second

type recentKeys interface {
	RecentKeys(ctx context.Context, limit int) ([]string, error)
}

// snapshotter saves engine snapshots once every interval committed
// operations. A snapshot is only taken when the event log has caught up to
// it, so the persisted idempotency keys and the recovered log agree.
type snapshotter struct {
	snapshots *persistence.SnapshotManager
	keys      recentKeys
	keyLimit  int
	persisted *atomic.Int64
	metrics   *observability.Metrics
	log       zerolog.Logger
	last      int64
}

func (s *snapshotter) runPeriodic(ctx context.Context, seq *engine.Sequencer, interval int64) {
	if interval <= 0 {
		s.log.Info().Msg("periodic snapshots disabled")
		return
	}
	ticker := time.NewTicker(snapshotCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flushed := s.persisted.Load()
			if flushed-s.last < interval {
				continue
			}

			var snap engine.Snapshot
			err := seq.Query(ctx, func(e *engine.Engine) error {
				var err error
				snap, err = e.Snapshot()
				return err
			})
			if err != nil {
				if ctx.Err() == nil {
					s.log.Error().Err(err).Msg("capture snapshot")
				}
				continue
			}
			if snap.Sequence > s.persisted.Load() {
				// Outputs past the flushed watermark; retry next tick.
				s.log.Debug().Int64("sequence", snap.Sequence).Int64("persisted", s.persisted.Load()).
					Msg("waiting for persistence before snapshot")
				continue
			}
			if err := s.save(ctx, snap); err != nil {
				s.log.Error().Err(err).Int64("sequence", snap.Sequence).Msg("snapshot failed")
			}
		}
	}
}

// save writes snap with the most recent request ids and marks it verified.
func (s *snapshotter) save(ctx context.Context, snap engine.Snapshot) error {
	keys, err := s.keys.RecentKeys(ctx, s.keyLimit)
	if err != nil {
		return fmt.Errorf("load idempotency keys: %w", err)
	}

	size, err := s.snapshots.SaveSnapshot(ctx, &persistence.SnapshotData{
		State:           snap,
		IdempotencyKeys: keys,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := s.snapshots.MarkVerified(ctx, snap.Sequence); err != nil {
		return fmt.Errorf("mark snapshot %d verified: %w", snap.Sequence, err)
	}

	s.last = snap.Sequence
	if s.metrics != nil {
		s.metrics.SnapshotTaken.Inc()
		s.metrics.SnapshotSizeBytes.Set(float64(size))
		s.metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	s.log.Info().Int64("sequence", snap.Sequence).Int("size_bytes", size).Int("keys", len(keys)).Msg("snapshot saved")
	return nil
}
