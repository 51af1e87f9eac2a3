package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type batchState uint8

const (
	batchOpen batchState = iota
	batchCommitted
	batchRolledBack
)

// Batch is the write scope of one operation. Entries take effect on the
// ledger immediately so that reads during the operation observe them;
// Rollback reverses them in LIFO order.
type Batch struct {
	BatchID  uuid.UUID
	EventRef string
	Sequence int64
	Journals []Journal

	ledger   *Ledger
	newUsers []uuid.UUID
	state    batchState
}

// AddCollateral credits user with amount of token held in custody.
func (b *Batch) AddCollateral(user uuid.UUID, token string, amount *uint256.Int) error {
	return b.post(user, Journal{
		DebitAccount:  NewCustodyKey(token),
		CreditAccount: NewCollateralKey(user, token),
		Amount:        amount,
		JournalType:   JournalTypeDeposit,
	})
}

// RemoveCollateral debits amount of token from user. Fails with
// ErrInsufficientCollateral if the user holds less.
func (b *Batch) RemoveCollateral(user uuid.UUID, token string, amount *uint256.Int, jt JournalType) error {
	if !b.isOpen() {
		return ErrBatchClosed
	}
	if have := b.ledger.Collateral(user, token); have.Lt(amount) {
		return fmt.Errorf("%w: user %s has %s %s, needs %s",
			ErrInsufficientCollateral, user, have.Dec(), token, amount.Dec())
	}
	return b.post(user, Journal{
		DebitAccount:  NewCollateralKey(user, token),
		CreditAccount: NewCustodyKey(token),
		Amount:        amount,
		JournalType:   jt,
	})
}

// AddDebt records amount of newly issued synthetic units owed by user.
func (b *Batch) AddDebt(user uuid.UUID, amount *uint256.Int) error {
	return b.post(user, Journal{
		DebitAccount:  NewDebtKey(user),
		CreditAccount: NewOutstandingKey(),
		Amount:        amount,
		JournalType:   JournalTypeIssue,
	})
}

// RemoveDebt reduces user's debt by amount. Fails with ErrInsufficientDebt
// if the user owes less.
func (b *Batch) RemoveDebt(user uuid.UUID, amount *uint256.Int, jt JournalType) error {
	if !b.isOpen() {
		return ErrBatchClosed
	}
	if owed := b.ledger.Debt(user); owed.Lt(amount) {
		return fmt.Errorf("%w: user %s owes %s, repaying %s",
			ErrInsufficientDebt, user, owed.Dec(), amount.Dec())
	}
	return b.post(user, Journal{
		DebitAccount:  NewOutstandingKey(),
		CreditAccount: NewDebtKey(user),
		Amount:        amount,
		JournalType:   jt,
	})
}

// post applies j to the ledger and records it. Zero amounts are a no-op.
func (b *Batch) post(user uuid.UUID, j Journal) error {
	if !b.isOpen() {
		return ErrBatchClosed
	}
	if j.Amount == nil || j.Amount.IsZero() {
		return nil
	}

	j.JournalID = uuid.New()
	j.BatchID = b.BatchID
	j.EventRef = b.EventRef
	j.Amount = j.Amount.Clone()

	if err := b.ledger.tracker.ApplyJournal(j); err != nil {
		return err
	}
	if b.ledger.addUser(user) {
		b.newUsers = append(b.newUsers, user)
	}
	b.Journals = append(b.Journals, j)
	return nil
}

// Commit stamps sequence on every entry and releases the ledger.
func (b *Batch) Commit(sequence int64) error {
	if !b.isOpen() {
		return ErrBatchClosed
	}
	b.Sequence = sequence
	for i := range b.Journals {
		b.Journals[i].Sequence = sequence
	}
	b.state = batchCommitted
	b.ledger.open = nil
	return nil
}

// Rollback undoes every entry and forgets users first seen in this batch,
// leaving the ledger exactly as it was before Begin.
func (b *Batch) Rollback() error {
	if !b.isOpen() {
		return ErrBatchClosed
	}

	var errs []error
	for i := len(b.Journals) - 1; i >= 0; i-- {
		if err := b.ledger.tracker.ApplyJournal(b.Journals[i].reversed()); err != nil {
			errs = append(errs, err)
		}
	}
	for _, u := range b.newUsers {
		b.ledger.removeUser(u)
	}

	b.Journals = nil
	b.newUsers = nil
	b.state = batchRolledBack
	b.ledger.open = nil
	return errors.Join(errs...)
}

// Validate ensures the batch is well-formed.
func (b *Batch) Validate() error {
	for _, j := range b.Journals {
		if err := j.Validate(); err != nil {
			return err
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("%w: journal %s has mismatched batch_id", ErrInvalidJournal, j.JournalID)
		}
	}
	return nil
}

// Accounts returns the accounts touched by the batch sorted by AccountPath.
func (b *Batch) Accounts() []AccountKey {
	return AccountsOf(b.Journals)
}

// AccountsOf returns the distinct accounts in journals sorted by
// AccountPath.
func AccountsOf(journals []Journal) []AccountKey {
	seen := make(map[AccountKey]struct{}, len(journals)*2)
	for _, j := range journals {
		seen[j.DebitAccount] = struct{}{}
		seen[j.CreditAccount] = struct{}{}
	}

	keys := make([]AccountKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].AccountPath() < keys[j].AccountPath()
	})
	return keys
}

func (b *Batch) isOpen() bool {
	return b.state == batchOpen
}
