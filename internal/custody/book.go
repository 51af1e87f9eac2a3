// Package custody holds in-memory token balances for the engine's external
// collaborators: a multi-token collateral Vault and the SyntheticToken. Both
// support failure injection and transfer hooks.
package custody

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
	ErrSupplyOverflow    = errors.New("custody: supply overflow")
)

// Method names an externally visible custody call.
type Method string

const (
	MethodPull    Method = "pull"
	MethodPush    Method = "push"
	MethodIssue   Method = "issue"
	MethodDestroy Method = "destroy"
	MethodMint    Method = "mint"
)

// Transfer describes a completed custody call, passed to hooks.
type Transfer struct {
	Method  Method
	Token   string
	Account uuid.UUID // counterparty of the custodian
	Amount  *uint256.Int
}

// Hook runs after a call has taken effect and with no locks held, so it
// may call back into whoever invoked the custody call.
type Hook func(Transfer)

// book is the shared balance table behind Vault and SyntheticToken.
type book struct {
	mu        sync.Mutex
	custodian uuid.UUID
	balances  map[string]map[uuid.UUID]*uint256.Int
	supply    map[string]*uint256.Int
	failures  map[Method]error
	hooks     []Hook
}

func newBook(custodian uuid.UUID) *book {
	return &book{
		custodian: custodian,
		balances:  make(map[string]map[uuid.UUID]*uint256.Int),
		supply:    make(map[string]*uint256.Int),
		failures:  make(map[Method]error),
	}
}

func (b *book) balanceOf(token string, account uuid.UUID) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(token, account)
}

func (b *book) totalSupply(token string) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.supply[token]; ok {
		return s.Clone()
	}
	return new(uint256.Int)
}

func (b *book) get(token string, account uuid.UUID) *uint256.Int {
	if v, ok := b.balances[token][account]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (b *book) set(token string, account uuid.UUID, v *uint256.Int) {
	holders, ok := b.balances[token]
	if !ok {
		holders = make(map[uuid.UUID]*uint256.Int)
		b.balances[token] = holders
	}
	if v.IsZero() {
		delete(holders, account)
		return
	}
	holders[account] = v
}

func (b *book) setFailure(m Method, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, m)
		return
	}
	b.failures[m] = err
}

func (b *book) addHook(h Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, h)
}

// move transfers amount of token from one holder to another.
func (b *book) move(m Method, token string, from, to, counterparty uuid.UUID, amount *uint256.Int) error {
	err := b.apply(m, func() error {
		have := b.get(token, from)
		if have.Lt(amount) {
			return fmt.Errorf("%w: %s holds %s %s, needs %s", ErrInsufficientFunds, from, have.Dec(), token, amount.Dec())
		}
		b.set(token, from, new(uint256.Int).Sub(have, amount))
		// Balances are bounded by supply, so this cannot overflow.
		b.set(token, to, new(uint256.Int).Add(b.get(token, to), amount))
		return nil
	})
	if err != nil {
		return err
	}
	b.notify(Transfer{Method: m, Token: token, Account: counterparty, Amount: amount.Clone()})
	return nil
}

// mint creates amount of token held by to.
func (b *book) mint(m Method, token string, to uuid.UUID, amount *uint256.Int) error {
	err := b.apply(m, func() error {
		cur, ok := b.supply[token]
		if !ok {
			cur = new(uint256.Int)
		}
		next, overflow := new(uint256.Int).AddOverflow(cur, amount)
		if overflow {
			return fmt.Errorf("%w: %s", ErrSupplyOverflow, token)
		}
		b.supply[token] = next
		b.set(token, to, new(uint256.Int).Add(b.get(token, to), amount))
		return nil
	})
	if err != nil {
		return err
	}
	b.notify(Transfer{Method: m, Token: token, Account: to, Amount: amount.Clone()})
	return nil
}

// burn destroys amount of token held by from.
func (b *book) burn(m Method, token string, from uuid.UUID, amount *uint256.Int) error {
	err := b.apply(m, func() error {
		have := b.get(token, from)
		if have.Lt(amount) {
			return fmt.Errorf("%w: %s holds %s %s, burning %s", ErrInsufficientFunds, from, have.Dec(), token, amount.Dec())
		}
		b.set(token, from, new(uint256.Int).Sub(have, amount))
		if cur, ok := b.supply[token]; ok {
			b.supply[token] = new(uint256.Int).Sub(cur, amount)
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.notify(Transfer{Method: m, Token: token, Account: from, Amount: amount.Clone()})
	return nil
}

func (b *book) apply(m Method, fn func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.failures[m]; ok {
		return err
	}
	return fn()
}

func (b *book) notify(t Transfer) {
	b.mu.Lock()
	hooks := make([]Hook, len(b.hooks))
	copy(hooks, b.hooks)
	b.mu.Unlock()

	for _, h := range hooks {
		h(t)
	}
}
