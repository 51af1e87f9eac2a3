package ledger

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"
)

// BalanceTracker maintains in-memory account balances. Balances are stored
// on each account's normal side and can never go negative.
type BalanceTracker struct {
	balances map[AccountKey]*uint256.Int
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]*uint256.Int),
	}
}

// ApplyJournal applies a single journal entry to balances. Either both
// sides move or neither does.
func (bt *BalanceTracker) ApplyJournal(j Journal) error {
	if err := j.Validate(); err != nil {
		return err
	}

	debit, err := bt.moved(j.DebitAccount, j.Amount, DebitNormal)
	if err != nil {
		return err
	}
	credit, err := bt.moved(j.CreditAccount, j.Amount, CreditNormal)
	if err != nil {
		return err
	}

	bt.balances[j.DebitAccount] = debit
	bt.balances[j.CreditAccount] = credit
	return nil
}

// moved returns the balance key would have after posting amount on side.
func (bt *BalanceTracker) moved(key AccountKey, amount *uint256.Int, side NormalSide) (*uint256.Int, error) {
	cur := bt.GetBalance(key)

	if key.SubType.NormalSide() == side {
		next, overflow := new(uint256.Int).AddOverflow(cur, amount)
		if overflow {
			return nil, fmt.Errorf("%w: account %s", ErrBalanceOverflow, key.AccountPath())
		}
		return next, nil
	}

	next, underflow := new(uint256.Int).SubOverflow(cur, amount)
	if underflow {
		return nil, fmt.Errorf("%w: account %s has %s, needs %s",
			ErrNegativeBalance, key.AccountPath(), cur.Dec(), amount.Dec())
	}
	return next, nil
}

// ApplyJournals applies entries in order. On failure the entries already
// applied are reverted and the tracker is left unchanged.
func (bt *BalanceTracker) ApplyJournals(journals []Journal) error {
	for i, j := range journals {
		if err := bt.ApplyJournal(j); err != nil {
			for k := i - 1; k >= 0; k-- {
				_ = bt.ApplyJournal(journals[k].reversed())
			}
			return fmt.Errorf("journal %d: %w", i, err)
		}
	}
	return nil
}

// GetBalance returns a copy of the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) *uint256.Int {
	if v, ok := bt.balances[key]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// SetBalance overwrites a balance. Used by snapshot restore only.
func (bt *BalanceTracker) SetBalance(key AccountKey, v *uint256.Int) {
	if v == nil || v.IsZero() {
		delete(bt.balances, key)
		return
	}
	bt.balances[key] = v.Clone()
}

// Reset drops every balance.
func (bt *BalanceTracker) Reset() {
	bt.balances = make(map[AccountKey]*uint256.Int)
}

// Snapshot returns a copy of all balances (for state hashing and snapshots)
func (bt *BalanceTracker) Snapshot() map[AccountKey]*uint256.Int {
	snapshot := make(map[AccountKey]*uint256.Int, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v.Clone()
	}
	return snapshot
}

// Keys returns every tracked account sorted by AccountPath.
func (bt *BalanceTracker) Keys() []AccountKey {
	keys := make([]AccountKey, 0, len(bt.balances))
	for k := range bt.balances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].AccountPath() < keys[j].AccountPath()
	})
	return keys
}
