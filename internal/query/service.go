// Package query serves read-only views from the projection tables. Every
// response carries as_of_sequence, the projection watermark at read time.
package query

import (
	"SynthLedger/internal/projection"
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetPositions returns a user's projected collateral balances and debt.
func (qs *QueryService) GetPositions(ctx context.Context, userID uuid.UUID) (*PositionsResponse, error) {
	asOfSeq, err := projection.Watermark(ctx, qs.db)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT account, balance::TEXT, sequence, updated_at
		FROM projections.positions
		WHERE user_id = $1 AND balance <> 0
		ORDER BY account
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &PositionsResponse{UserID: userID, Positions: []PositionRow{}, AsOfSequence: asOfSeq}
	for rows.Next() {
		var p PositionRow
		if err := rows.Scan(&p.Account, &p.Balance, &p.Sequence, &p.Updated); err != nil {
			return nil, err
		}
		resp.Positions = append(resp.Positions, p)
	}
	return resp, rows.Err()
}

// GetLiquidations returns liquidations newest first, optionally for one
// target and below a sequence cursor.
func (qs *QueryService) GetLiquidations(ctx context.Context, f LiquidationFilter) (*LiquidationsResponse, error) {
	asOfSeq, err := projection.Watermark(ctx, qs.db)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query, args := liquidationQuery(f)
	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &LiquidationsResponse{Liquidations: []LiquidationRecord{}, AsOfSequence: asOfSeq}
	for rows.Next() {
		var r LiquidationRecord
		if err := rows.Scan(
			&r.Sequence, &r.Liquidator, &r.Target, &r.Asset,
			&r.DebtCovered, &r.CollateralSeized, &r.Bonus,
			&r.HealthFactorBefore, &r.HealthFactorAfter, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		resp.Liquidations = append(resp.Liquidations, r)
	}
	return resp, rows.Err()
}

func liquidationQuery(f LiquidationFilter) (string, []any) {
	query := `
		SELECT sequence, liquidator, target, asset,
		       debt_covered::TEXT, collateral_seized::TEXT, bonus::TEXT,
		       health_factor_before::TEXT, health_factor_after::TEXT, timestamp
		FROM projections.liquidations
		WHERE TRUE`
	var args []any

	if f.Target != nil {
		args = append(args, *f.Target)
		query += fmt.Sprintf(" AND target = $%d", len(args))
	}
	if f.BeforeSequence != nil {
		args = append(args, *f.BeforeSequence)
		query += fmt.Sprintf(" AND sequence < $%d", len(args))
	}
	args = append(args, clampLimit(f.Limit))
	query += fmt.Sprintf(" ORDER BY sequence DESC LIMIT $%d", len(args))
	return query, args
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

// GetJournalHistory returns journal entries touching a user, newest first.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	beforeSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT j.journal_id, j.batch_id, j.event_ref, j.sequence,
		       j.debit_account, j.credit_account, j.amount::TEXT, j.journal_type, e.timestamp
		FROM event_log.journal j
		JOIN event_log.events e ON e.sequence = j.sequence
		WHERE (j.debit_account LIKE $1 OR j.credit_account LIKE $1)
	`
	args := []any{accountPrefix}

	if beforeSequence != nil {
		args = append(args, *beforeSequence)
		query += fmt.Sprintf(" AND j.sequence < $%d", len(args))
	}
	args = append(args, clampLimit(limit))
	query += fmt.Sprintf(" ORDER BY j.sequence DESC, j.position DESC LIMIT $%d", len(args))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks the persisted hash chain, sequence continuity and
// that every user account group balances against its system mirror.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}
	var err error

	report.HashChainBreaks, err = qs.sequences(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash <> e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("hash chain: %w", err)
	}

	report.SequenceGaps, err = qs.sequences(ctx, `
		SELECT e.sequence + 1
		FROM event_log.events e
		WHERE NOT EXISTS (SELECT 1 FROM event_log.events n WHERE n.sequence = e.sequence + 1)
		  AND e.sequence < (SELECT MAX(sequence) FROM event_log.events)
		ORDER BY e.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("sequence gaps: %w", err)
	}

	// User debt and custody grow on the debit side; user collateral and
	// outstanding supply on the credit side.
	rows, err := qs.db.QueryContext(ctx, `
		WITH legs AS (
			SELECT debit_account AS path, amount, TRUE AS debit FROM event_log.journal
			UNION ALL
			SELECT credit_account, amount, FALSE FROM event_log.journal
		), classified AS (
			SELECT
				CASE WHEN path = 'system:outstanding' OR path LIKE 'user:%:debt' THEN 'debt'
				     WHEN path LIKE 'system:custody:%' THEN split_part(path, ':', 3)
				     ELSE split_part(path, ':', 4) END AS account,
				path LIKE 'user:%' AS user_side,
				CASE WHEN (path LIKE 'user:%:debt' OR path LIKE 'system:custody:%') = debit
				     THEN amount ELSE -amount END AS delta
			FROM legs
		)
		SELECT account,
		       COALESCE(SUM(delta) FILTER (WHERE user_side), 0)::TEXT,
		       COALESCE(SUM(delta) FILTER (WHERE NOT user_side), 0)::TEXT
		FROM classified
		GROUP BY account
		HAVING COALESCE(SUM(delta) FILTER (WHERE user_side), 0)
		    <> COALESCE(SUM(delta) FILTER (WHERE NOT user_side), 0)
		ORDER BY account
	`)
	if err != nil {
		return nil, fmt.Errorf("conservation: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u UnbalancedAsset
		if err := rows.Scan(&u.Account, &u.UserSide, &u.Mirror); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 &&
		len(report.SequenceGaps) == 0 &&
		len(report.UnbalancedAssets) == 0
	return report, nil
}

func (qs *QueryService) sequences(ctx context.Context, query string) ([]int64, error) {
	rows, err := qs.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, rows.Err()
}
