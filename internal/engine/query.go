package engine

import (
	"SynthLedger/internal/event"
	"SynthLedger/internal/registry"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Queries are read-only and take no guard, so collaborators may call them
// while an operation is in flight. They observe the in-flight batch.

// USDValue returns the USD value (18 decimals) of amount of token.
func (e *Engine) USDValue(token string, amount *uint256.Int) (*uint256.Int, error) {
	asset, err := e.lookup(token)
	if err != nil {
		return nil, err
	}
	return e.prices.USDValue(asset, orZero(amount))
}

// TokenAmountForUSD returns how much of token is worth usd.
func (e *Engine) TokenAmountForUSD(token string, usd *uint256.Int) (*uint256.Int, error) {
	asset, err := e.lookup(token)
	if err != nil {
		return nil, err
	}
	return e.prices.TokenAmountForUSD(asset, orZero(usd))
}

// CollateralValue returns the USD value of all of user's collateral.
func (e *Engine) CollateralValue(user uuid.UUID) (*uint256.Int, error) {
	return e.health.CollateralValue(user)
}

func (e *Engine) HealthFactor(user uuid.UUID) (*uint256.Int, error) {
	return e.health.HealthFactor(user)
}

func (e *Engine) AccountInformation(user uuid.UUID) (debt, collateralUSD *uint256.Int, err error) {
	return e.health.AccountInformation(user)
}

func (e *Engine) CollateralBalance(user uuid.UUID, token string) (*uint256.Int, error) {
	if _, err := e.lookup(token); err != nil {
		return nil, err
	}
	return e.ledger.Collateral(user, token), nil
}

// AssetBalance is one collateral line of a position.
type AssetBalance struct {
	Asset  string
	Amount *uint256.Int
}

// PositionView is the raw ledger state of one user, without prices.
type PositionView struct {
	User       uuid.UUID
	Collateral []AssetBalance // registry order, zero balances included
	Debt       *uint256.Int
}

func (e *Engine) Position(user uuid.UUID) PositionView {
	assets := e.registry.List()
	view := PositionView{
		User:       user,
		Collateral: make([]AssetBalance, 0, len(assets)),
		Debt:       e.ledger.Debt(user),
	}
	for _, a := range assets {
		view.Collateral = append(view.Collateral, AssetBalance{Asset: a.Token, Amount: e.ledger.Collateral(user, a.Token)})
	}
	return view
}

// Totals returns custody per asset and total outstanding synthetic supply.
func (e *Engine) Totals() (custody []AssetBalance, outstanding *uint256.Int) {
	for _, a := range e.registry.List() {
		custody = append(custody, AssetBalance{Asset: a.Token, Amount: e.ledger.Custody(a.Token)})
	}
	return custody, e.ledger.Outstanding()
}

func (e *Engine) Assets() []registry.Asset {
	return e.registry.List()
}

func (e *Engine) Params() Params {
	return e.params
}

func (e *Engine) Users() []uuid.UUID {
	return e.ledger.Users()
}

// Sequence returns the last committed sequence.
func (e *Engine) Sequence() int64 {
	return e.sequence
}

// StateHash returns the hash chain tip.
func (e *Engine) StateHash() event.Hash {
	return e.hasher.Tip()
}

func (e *Engine) lookup(token string) (registry.Asset, error) {
	asset, ok := e.registry.Lookup(token)
	if !ok {
		return registry.Asset{}, fmt.Errorf("%w: %q", ErrAssetNotAccepted, token)
	}
	return asset, nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
