// Package projection maintains read-model tables in Postgres from the
// committed output stream. Projections are eventually consistent and can be
// rebuilt from the event log.
package projection

import (
	"SynthLedger/internal/engine"
	"SynthLedger/internal/event"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Name is the watermark row owned by this worker.
const Name = "positions"

// DebtAccount is the positions.account value for a user's debt row.
const DebtAccount = "debt"

// ProjectionWorker updates projection tables from committed outputs. Its
// input is fed with non-blocking sends, so it may miss outputs under load;
// a gap is logged and closed by RebuildProjections.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan engine.Output
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan engine.Output, metrics *observability.Metrics) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("projection"),
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	last, err := Watermark(ctx, pw.db)
	if err != nil {
		return fmt.Errorf("load watermark: %w", err)
	}
	pw.lastSeq = last
	pw.log.Info().Int64("watermark", last).Msg("projection worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			seq := out.Envelope.Sequence
			if seq <= pw.lastSeq {
				continue // already projected before a restart
			}
			if seq != pw.lastSeq+1 {
				pw.log.Warn().Int64("expected", pw.lastSeq+1).Int64("got", seq).Msg("projection gap; rebuild to repair")
				if pw.metrics != nil {
					pw.metrics.ProjectionDrops.WithLabelValues(Name).Add(float64(seq - pw.lastSeq - 1))
				}
			}

			if err := pw.apply(ctx, out); err != nil {
				// Projections are eventually consistent; continue.
				pw.log.Warn().Err(err).Int64("sequence", seq).Msg("projection update failed")
				continue
			}
			pw.lastSeq = seq
		}
	}
}

func (pw *ProjectionWorker) apply(ctx context.Context, out engine.Output) error {
	env := out.Envelope
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range Deltas(out.Journals) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.positions (user_id, account, balance, sequence, updated_at)
			VALUES ($1, $2, $3::NUMERIC, $4, $5)
			ON CONFLICT (user_id, account)
			DO UPDATE SET balance = projections.positions.balance + $3::NUMERIC, sequence = $4, updated_at = $5
		`, d.User, d.Account, d.Amount, env.Sequence, env.Timestamp); err != nil {
			return fmt.Errorf("position projection: %w", err)
		}
	}

	for _, evt := range env.Events {
		if l, ok := evt.(*event.PositionLiquidated); ok {
			if err := insertLiquidation(ctx, tx, env.Sequence, env.Timestamp, l); err != nil {
				return err
			}
		}
	}

	if err := setWatermark(ctx, tx, env.Sequence); err != nil {
		return err
	}
	return tx.Commit()
}

// PositionDelta is a signed change to one projected user balance.
type PositionDelta struct {
	User    uuid.UUID
	Account string // collateral token or DebtAccount
	Amount  string // signed base units
}

// Deltas folds journals into per-account signed changes for user accounts,
// in first-touched order. A leg on an account's normal side adds to it.
func Deltas(journals []ledger.Journal) []PositionDelta {
	type acc struct {
		user    uuid.UUID
		account string
	}
	var order []acc
	sums := make(map[acc]*signed)

	add := func(k ledger.AccountKey, j ledger.Journal, debit bool) {
		if k.Scope != ledger.AccountScopeUser {
			return
		}
		a := acc{user: k.EntityID, account: k.Asset}
		if k.SubType == ledger.SubTypeDebt {
			a.account = DebtAccount
		}
		s, ok := sums[a]
		if !ok {
			s = &signed{}
			sums[a] = s
			order = append(order, a)
		}
		grows := (k.SubType.NormalSide() == ledger.DebitNormal) == debit
		s.add(j.Amount, grows)
	}
	for _, j := range journals {
		add(j.DebitAccount, j, true)
		add(j.CreditAccount, j, false)
	}

	out := make([]PositionDelta, 0, len(order))
	for _, a := range order {
		if v := sums[a]; !v.zero() {
			out = append(out, PositionDelta{User: a.user, Account: a.account, Amount: v.String()})
		}
	}
	return out
}

func insertLiquidation(ctx context.Context, tx *sql.Tx, seq int64, at time.Time, l *event.PositionLiquidated) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.liquidations
			(sequence, liquidator, target, asset, debt_covered, collateral_seized, bonus,
			 health_factor_before, health_factor_after, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (sequence) DO NOTHING
	`, seq, l.Liquidator, l.Target, l.Asset,
		l.DebtCovered.Dec(), l.CollateralSeized.Dec(), l.Bonus.Dec(),
		l.HealthFactorBefore.Dec(), l.HealthFactorAfter.Dec(), at)
	if err != nil {
		return fmt.Errorf("liquidation projection: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setWatermark(ctx context.Context, tx execer, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (projection, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (projection) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, Name, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}
	return nil
}

// Watermark returns the last projected sequence, 0 if none.
func Watermark(ctx context.Context, db *sql.DB) (int64, error) {
	var seq int64
	err := db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE projection = $1
	`, Name).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

// RebuildProjections rebuilds all projection tables from the event log.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	log := observability.NewLogger("projection")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`TRUNCATE projections.positions`,
		`TRUNCATE projections.liquidations`,
		`DELETE FROM projections.watermark WHERE projection = 'positions'`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Debt accounts are debit-normal; collateral accounts credit-normal.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.positions (user_id, account, balance, sequence, updated_at)
		SELECT split_part(path, ':', 2)::UUID,
		       CASE WHEN split_part(path, ':', 3) = 'debt' THEN 'debt' ELSE split_part(path, ':', 4) END,
		       SUM(delta), MAX(sequence), NOW()
		FROM (
			SELECT credit_account AS path,
			       CASE WHEN credit_account LIKE '%:debt' THEN -amount ELSE amount END AS delta,
			       sequence
			FROM event_log.journal WHERE credit_account LIKE 'user:%'
			UNION ALL
			SELECT debit_account,
			       CASE WHEN debit_account LIKE '%:debt' THEN amount ELSE -amount END,
			       sequence
			FROM event_log.journal WHERE debit_account LIKE 'user:%'
		) d
		GROUP BY 1, 2
	`); err != nil {
		return fmt.Errorf("rebuild positions: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT sequence, timestamp, payload FROM event_log.events
		WHERE operation = $1 ORDER BY sequence
	`, string(engine.OpLiquidate))
	if err != nil {
		return fmt.Errorf("load liquidations: %w", err)
	}
	type liq struct {
		seq int64
		at  time.Time
		evt *event.PositionLiquidated
	}
	var liqs []liq
	for rows.Next() {
		var (
			seq     int64
			at      time.Time
			payload []byte
		)
		if err := rows.Scan(&seq, &at, &payload); err != nil {
			rows.Close()
			return err
		}
		var env event.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			rows.Close()
			return fmt.Errorf("decode event %d: %w", seq, err)
		}
		for _, e := range env.Events {
			if l, ok := e.(*event.PositionLiquidated); ok {
				liqs = append(liqs, liq{seq: seq, at: at, evt: l})
			}
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, l := range liqs {
		if err := insertLiquidation(ctx, tx, l.seq, l.at, l.evt); err != nil {
			return err
		}
	}

	var head sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&head); err != nil {
		return err
	}
	if head.Valid {
		if err := setWatermark(ctx, tx, head.Int64); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.Info().Int("liquidations", len(liqs)).Int64("watermark", head.Int64).Msg("projection rebuild complete")
	return nil
}
