package query

import (
	"time"

	"github.com/google/uuid"
)

// Amounts are decimal strings in base units.

// PositionRow is one projected user balance.
type PositionRow struct {
	Account  string    `json:"account"` // collateral token or "debt"
	Balance  string    `json:"balance"`
	Sequence int64     `json:"sequence"`
	Updated  time.Time `json:"updated_at"`
}

// PositionsResponse lists a user's projected balances.
type PositionsResponse struct {
	UserID       uuid.UUID     `json:"user_id"`
	Positions    []PositionRow `json:"positions"`
	AsOfSequence int64         `json:"as_of_sequence"`
}

// LiquidationRecord is one projected liquidation.
type LiquidationRecord struct {
	Sequence           int64     `json:"sequence"`
	Liquidator         uuid.UUID `json:"liquidator"`
	Target             uuid.UUID `json:"target"`
	Asset              string    `json:"asset"`
	DebtCovered        string    `json:"debt_covered"`
	CollateralSeized   string    `json:"collateral_seized"`
	Bonus              string    `json:"bonus"`
	HealthFactorBefore string    `json:"health_factor_before"`
	HealthFactorAfter  string    `json:"health_factor_after"`
	Timestamp          time.Time `json:"timestamp"`
}

// LiquidationFilter selects liquidations newest first.
type LiquidationFilter struct {
	Target         *uuid.UUID
	BeforeSequence *int64
	Limit          int
}

// LiquidationsResponse is a page of liquidations.
type LiquidationsResponse struct {
	Liquidations []LiquidationRecord `json:"liquidations"`
	AsOfSequence int64               `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string    `json:"journal_id"`
	BatchID       string    `json:"batch_id"`
	EventRef      string    `json:"event_ref"`
	Sequence      int64     `json:"sequence"`
	DebitAccount  string    `json:"debit_account"`
	CreditAccount string    `json:"credit_account"`
	Amount        string    `json:"amount"`
	JournalType   int32     `json:"journal_type"`
	Timestamp     time.Time `json:"timestamp"`
}

// IntegrityReport is the result of an integrity check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	SequenceGaps     []int64           `json:"sequence_gaps,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset is an account mirror whose two sides disagree in the
// journal: user collateral against custody per token, or user debt ("debt")
// against outstanding supply.
type UnbalancedAsset struct {
	Account  string `json:"account"`
	UserSide string `json:"user_side"`
	Mirror   string `json:"mirror"`
}
