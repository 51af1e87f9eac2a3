// Package ledger is the position ledger: per-user collateral and debt,
// mirrored by engine custody and outstanding supply, mutated only through a
// single open Batch at a time.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientCollateral = errors.New("ledger: insufficient collateral")
	ErrInsufficientDebt       = errors.New("ledger: insufficient debt")
	ErrBatchInProgress        = errors.New("ledger: batch already in progress")
	ErrBatchClosed            = errors.New("ledger: batch is closed")
	ErrNegativeBalance        = errors.New("ledger: negative balance")
	ErrBalanceOverflow        = errors.New("ledger: balance overflow")
	ErrInvalidJournal         = errors.New("ledger: invalid journal")
)

// Ledger owns all position state. It is single-writer: mutations happen
// through the one Batch returned by Begin, and the ledger refuses a second
// Begin until that batch is committed or rolled back.
// Not thread-safe: accessed only from the engine's sequencer goroutine.
type Ledger struct {
	tracker *BalanceTracker
	users   map[uuid.UUID]struct{}
	order   []uuid.UUID
	open    *Batch
}

func New() *Ledger {
	return &Ledger{
		tracker: NewBalanceTracker(),
		users:   make(map[uuid.UUID]struct{}),
	}
}

// Begin opens the write batch for one operation.
func (l *Ledger) Begin(eventRef string) (*Batch, error) {
	if l.open != nil {
		return nil, fmt.Errorf("%w: %s", ErrBatchInProgress, l.open.EventRef)
	}
	b := &Batch{
		BatchID:  uuid.New(),
		EventRef: eventRef,
		ledger:   l,
	}
	l.open = b
	return b, nil
}

// InBatch reports whether a batch is open.
func (l *Ledger) InBatch() bool {
	return l.open != nil
}

// Collateral returns user's collateral balance in token.
func (l *Ledger) Collateral(user uuid.UUID, token string) *uint256.Int {
	return l.tracker.GetBalance(NewCollateralKey(user, token))
}

// Debt returns user's outstanding debt.
func (l *Ledger) Debt(user uuid.UUID) *uint256.Int {
	return l.tracker.GetBalance(NewDebtKey(user))
}

// Custody returns the engine's recorded holdings of token.
func (l *Ledger) Custody(token string) *uint256.Int {
	return l.tracker.GetBalance(NewCustodyKey(token))
}

// Outstanding returns total issued synthetic supply recorded by the ledger.
func (l *Ledger) Outstanding() *uint256.Int {
	return l.tracker.GetBalance(NewOutstandingKey())
}

// Balance returns the balance of any account.
func (l *Ledger) Balance(key AccountKey) *uint256.Int {
	return l.tracker.GetBalance(key)
}

// HasUser reports whether user has ever held a position.
func (l *Ledger) HasUser(user uuid.UUID) bool {
	_, ok := l.users[user]
	return ok
}

// Users returns every user with a position in first-seen order.
func (l *Ledger) Users() []uuid.UUID {
	out := make([]uuid.UUID, len(l.order))
	copy(out, l.order)
	return out
}

// Balances returns a copy of every non-zero balance.
func (l *Ledger) Balances() map[AccountKey]*uint256.Int {
	return l.tracker.Snapshot()
}

// Restore replaces the ledger contents. Users not present in users but
// referenced by a balance are appended in account path order.
func (l *Ledger) Restore(balances map[AccountKey]*uint256.Int, users []uuid.UUID) error {
	if l.open != nil {
		return ErrBatchInProgress
	}

	l.tracker.Reset()
	l.users = make(map[uuid.UUID]struct{}, len(users))
	l.order = l.order[:0]

	for _, u := range users {
		l.addUser(u)
	}

	keys := make([]AccountKey, 0, len(balances))
	for k := range balances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].AccountPath() < keys[j].AccountPath() })

	for _, k := range keys {
		l.tracker.SetBalance(k, balances[k])
		if k.Scope == AccountScopeUser {
			l.addUser(k.EntityID)
		}
	}
	return nil
}

// Replay applies already-committed journals, e.g. from the event log
// during recovery.
func (l *Ledger) Replay(journals []Journal) error {
	if l.open != nil {
		return ErrBatchInProgress
	}
	if err := l.tracker.ApplyJournals(journals); err != nil {
		return err
	}
	for _, j := range journals {
		for _, k := range []AccountKey{j.DebitAccount, j.CreditAccount} {
			if k.Scope == AccountScopeUser {
				l.addUser(k.EntityID)
			}
		}
	}
	return nil
}

// addUser registers user; returns true if it was new.
func (l *Ledger) addUser(user uuid.UUID) bool {
	if _, ok := l.users[user]; ok {
		return false
	}
	l.users[user] = struct{}{}
	l.order = append(l.order, user)
	return true
}

func (l *Ledger) removeUser(user uuid.UUID) {
	if _, ok := l.users[user]; !ok {
		return
	}
	delete(l.users, user)
	for i, u := range l.order {
		if u == user {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}
