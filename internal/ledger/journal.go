package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeDeposit JournalType = iota
	JournalTypeWithdrawal
	JournalTypeIssue
	JournalTypeRepay
	JournalTypeLiquidationSeize
	JournalTypeLiquidationRepay
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeWithdrawal:
		return "withdrawal"
	case JournalTypeIssue:
		return "issue"
	case JournalTypeRepay:
		return "repay"
	case JournalTypeLiquidationSeize:
		return "liquidation_seize"
	case JournalTypeLiquidationRepay:
		return "liquidation_repay"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry. Each entry moves
// Amount between a user account and its system counterpart; whether a side
// grows or shrinks follows the account's NormalSide.
type Journal struct {
	JournalID     uuid.UUID
	BatchID       uuid.UUID
	EventRef      string // idempotency key of the originating request
	Sequence      int64  // assigned on commit
	DebitAccount  AccountKey
	CreditAccount AccountKey
	Amount        *uint256.Int // always positive
	JournalType   JournalType
}

// reversed returns the entry that undoes j.
func (j Journal) reversed() Journal {
	r := j
	r.DebitAccount, r.CreditAccount = j.CreditAccount, j.DebitAccount
	return r
}

// Validate checks a single entry is well-formed.
func (j Journal) Validate() error {
	if j.Amount == nil || j.Amount.IsZero() {
		return fmt.Errorf("%w: journal %s has non-positive amount", ErrInvalidJournal, j.JournalID)
	}
	if j.DebitAccount == j.CreditAccount {
		return fmt.Errorf("%w: journal %s has same debit and credit account", ErrInvalidJournal, j.JournalID)
	}
	return nil
}
