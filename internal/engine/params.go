package engine

import (
	"SynthLedger/internal/health"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Params are the engine's risk constants. They are fixed at construction.
type Params struct {
	LiquidationThreshold    uint64 `toml:"liquidation_threshold" json:"liquidation_threshold"`
	LiquidationPrecision    uint64 `toml:"liquidation_precision" json:"liquidation_precision"`
	LiquidationBonus        uint64 `toml:"liquidation_bonus" json:"liquidation_bonus"`
	MinHealthFactor         uint64 `toml:"min_health_factor" json:"min_health_factor"`
	Precision               uint64 `toml:"precision" json:"precision"`
	AdditionalFeedPrecision uint64 `toml:"additional_feed_precision" json:"additional_feed_precision"`
}

// DefaultParams: 200% collateralization, 10% liquidation bonus, 18-decimal
// amounts, 8-decimal price feeds.
func DefaultParams() Params {
	return Params{
		LiquidationThreshold:    50,
		LiquidationPrecision:    100,
		LiquidationBonus:        10,
		MinHealthFactor:         1e18,
		Precision:               1e18,
		AdditionalFeedPrecision: 1e10,
	}
}

func (p Params) Validate() error {
	var errs []error
	if p.Precision == 0 {
		errs = append(errs, errors.New("precision must be positive"))
	}
	if p.AdditionalFeedPrecision == 0 {
		errs = append(errs, errors.New("additional_feed_precision must be positive"))
	}
	if p.LiquidationPrecision == 0 {
		errs = append(errs, errors.New("liquidation_precision must be positive"))
	}
	if p.LiquidationThreshold == 0 || p.LiquidationThreshold > p.LiquidationPrecision {
		errs = append(errs, fmt.Errorf("liquidation_threshold %d must be in (0, %d]", p.LiquidationThreshold, p.LiquidationPrecision))
	}
	if p.LiquidationBonus >= p.LiquidationPrecision {
		errs = append(errs, fmt.Errorf("liquidation_bonus %d must be below %d", p.LiquidationBonus, p.LiquidationPrecision))
	}
	if p.MinHealthFactor == 0 {
		errs = append(errs, errors.New("min_health_factor must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid engine params: %w", err)
	}
	return nil
}

func (p Params) health() health.Params {
	return health.Params{
		LiquidationThreshold: uint256.NewInt(p.LiquidationThreshold),
		LiquidationPrecision: uint256.NewInt(p.LiquidationPrecision),
		Precision:            uint256.NewInt(p.Precision),
		MinHealthFactor:      uint256.NewInt(p.MinHealthFactor),
	}
}
