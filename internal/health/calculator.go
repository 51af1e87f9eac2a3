// Package health computes the collateral value and health factor of a
// position from ledger balances and live prices.
package health

import (
	fpmath "SynthLedger/internal/math"
	"SynthLedger/internal/registry"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Params are the fixed-point constants used by the health formula.
type Params struct {
	LiquidationThreshold *uint256.Int // percent of collateral value counted toward backing
	LiquidationPrecision *uint256.Int
	Precision            *uint256.Int
	MinHealthFactor      *uint256.Int
}

// DefaultParams: 50% threshold (200% collateralization), 1e18 precision.
func DefaultParams() Params {
	return Params{
		LiquidationThreshold: uint256.NewInt(50),
		LiquidationPrecision: uint256.NewInt(100),
		Precision:            fpmath.WadConfig.Scale.Clone(),
		MinHealthFactor:      fpmath.WadConfig.Scale.Clone(),
	}
}

func (p Params) Validate() error {
	if p.LiquidationThreshold == nil || p.LiquidationPrecision == nil || p.Precision == nil || p.MinHealthFactor == nil {
		return errors.New("health: params incomplete")
	}
	if p.LiquidationPrecision.IsZero() || p.Precision.IsZero() {
		return fmt.Errorf("health: %w", fpmath.ErrDivisionByZero)
	}
	if p.LiquidationThreshold.IsZero() || p.LiquidationThreshold.Gt(p.LiquidationPrecision) {
		return fmt.Errorf("health: liquidation threshold %s must be in (0, %s]",
			p.LiquidationThreshold.Dec(), p.LiquidationPrecision.Dec())
	}
	return nil
}

// MaxHealthFactor is reported for positions with no debt.
func MaxHealthFactor() *uint256.Int {
	return fpmath.Max()
}

// Calculate returns (collateralUSD * threshold / liqPrecision) * precision / debt.
// Zero debt yields MaxHealthFactor.
func Calculate(debt, collateralUSD *uint256.Int, p Params) (*uint256.Int, error) {
	if debt.IsZero() {
		return MaxHealthFactor(), nil
	}
	adjusted, err := fpmath.MulDiv(collateralUSD, p.LiquidationThreshold, p.LiquidationPrecision)
	if err != nil {
		return nil, err
	}
	return fpmath.MulDiv(adjusted, p.Precision, debt)
}

// Status classifies a health factor against the minimum.
type Status uint8

const (
	StatusHealthy Status = iota
	StatusLiquidatable
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusLiquidatable:
		return "liquidatable"
	default:
		return "unknown"
	}
}

// Classify returns StatusLiquidatable when hf < MinHealthFactor.
func (p Params) Classify(hf *uint256.Int) Status {
	if hf.Lt(p.MinHealthFactor) {
		return StatusLiquidatable
	}
	return StatusHealthy
}

// Calculator reads balances through narrow interfaces so it accepts
// *ledger.Ledger and *oracle.Adapter without importing either.
type Calculator struct {
	balances interface {
		Collateral(uuid.UUID, string) *uint256.Int
		Debt(uuid.UUID) *uint256.Int
	}
	assets *registry.Registry
	prices interface {
		USDValue(registry.Asset, *uint256.Int) (*uint256.Int, error)
	}
	params Params
}

func NewCalculator(
	balances interface {
		Collateral(uuid.UUID, string) *uint256.Int
		Debt(uuid.UUID) *uint256.Int
	},
	assets *registry.Registry,
	prices interface {
		USDValue(registry.Asset, *uint256.Int) (*uint256.Int, error)
	},
	params Params,
) *Calculator {
	return &Calculator{
		balances: balances,
		assets:   assets,
		prices:   prices,
		params:   params,
	}
}

func (c *Calculator) Params() Params {
	return c.params
}

// CollateralValue sums the USD value of every accepted asset the user
// holds. Assets with a zero balance are skipped and their feeds are not
// queried.
func (c *Calculator) CollateralValue(user uuid.UUID) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, asset := range c.assets.List() {
		amount := c.balances.Collateral(user, asset.Token)
		if amount.IsZero() {
			continue
		}
		usd, err := c.prices.USDValue(asset, amount)
		if err != nil {
			return nil, fmt.Errorf("value %s collateral: %w", asset.Token, err)
		}
		if total, err = fpmath.Add(total, usd); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// AccountInformation returns the user's debt and total collateral value.
func (c *Calculator) AccountInformation(user uuid.UUID) (debt, collateralUSD *uint256.Int, err error) {
	debt = c.balances.Debt(user)
	collateralUSD, err = c.CollateralValue(user)
	if err != nil {
		return nil, nil, err
	}
	return debt, collateralUSD, nil
}

// HealthFactor returns the user's health factor. Positions with no debt
// return MaxHealthFactor without consulting prices.
func (c *Calculator) HealthFactor(user uuid.UUID) (*uint256.Int, error) {
	debt := c.balances.Debt(user)
	if debt.IsZero() {
		return MaxHealthFactor(), nil
	}
	collateralUSD, err := c.CollateralValue(user)
	if err != nil {
		return nil, err
	}
	return Calculate(debt, collateralUSD, c.params)
}

// Check returns the health factor and whether it meets the minimum.
func (c *Calculator) Check(user uuid.UUID) (*uint256.Int, bool, error) {
	hf, err := c.HealthFactor(user)
	if err != nil {
		return nil, false, err
	}
	return hf, c.params.Classify(hf) == StatusHealthy, nil
}
