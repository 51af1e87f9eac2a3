package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	ledger *Ledger
}

func NewInvariantValidator(l *Ledger) *InvariantValidator {
	return &InvariantValidator{
		ledger: l,
	}
}

// ValidateBatchBalance verifies every journal in batch is well-formed
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateConservation verifies that custody of each token equals the sum
// of user collateral in that token, and that outstanding supply equals the
// sum of user debt.
func (v *InvariantValidator) ValidateConservation() error {
	collateral := make(map[string]*uint256.Int)
	custody := make(map[string]*uint256.Int)
	debt := new(uint256.Int)
	outstanding := new(uint256.Int)

	for key, bal := range v.ledger.tracker.balances {
		switch key.SubType {
		case SubTypeCollateral:
			if err := accumulate(collateral, key.Asset, bal); err != nil {
				return err
			}
		case SubTypeCustody:
			custody[key.Asset] = bal.Clone()
		case SubTypeDebt:
			if _, overflow := debt.AddOverflow(debt, bal); overflow {
				return fmt.Errorf("%w: total debt", ErrBalanceOverflow)
			}
		case SubTypeOutstanding:
			outstanding.Set(bal)
		}
	}

	for token, want := range custody {
		got := collateral[token]
		if got == nil {
			got = new(uint256.Int)
		}
		if !got.Eq(want) {
			return fmt.Errorf("custody of %s is %s, user collateral sums to %s", token, want.Dec(), got.Dec())
		}
	}
	for token, got := range collateral {
		if _, ok := custody[token]; !ok && !got.IsZero() {
			return fmt.Errorf("custody of %s is 0, user collateral sums to %s", token, got.Dec())
		}
	}
	if !debt.Eq(outstanding) {
		return fmt.Errorf("outstanding supply is %s, user debt sums to %s", outstanding.Dec(), debt.Dec())
	}
	return nil
}

func accumulate(totals map[string]*uint256.Int, token string, v *uint256.Int) error {
	cur, ok := totals[token]
	if !ok {
		totals[token] = v.Clone()
		return nil
	}
	if _, overflow := cur.AddOverflow(cur, v); overflow {
		return fmt.Errorf("%w: total collateral in %s", ErrBalanceOverflow, token)
	}
	return nil
}
