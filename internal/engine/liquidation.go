package engine

import (
	"SynthLedger/internal/event"
	"SynthLedger/internal/health"
	"SynthLedger/internal/ledger"
	fpmath "SynthLedger/internal/math"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// liquidate repays debtToCover of target's debt with the liquidator's
// synthetic units and pays the liquidator the equivalent collateral plus
// the bonus.
func (op *operation) liquidate(liquidator uuid.UUID, token string, target uuid.UUID, debtToCover *uint256.Int) error {
	e := op.e

	// Step 1: Only unhealthy positions
	startHF, err := e.health.HealthFactor(target)
	if err != nil {
		return err
	}
	if e.hp.Classify(startHF) == health.StatusHealthy {
		return fmt.Errorf("%w: user %s health factor %s", ErrPositionHealthy, target, startHF.Dec())
	}

	// Step 2: Size the seizure
	asset, _ := e.registry.Lookup(token)
	equivalent, err := e.prices.TokenAmountForUSD(asset, debtToCover)
	if err != nil {
		return err
	}
	bonus, err := e.liquidationBonus(equivalent)
	if err != nil {
		return err
	}
	seized, err := fpmath.Add(equivalent, bonus)
	if err != nil {
		return err
	}

	// Step 3: Seize collateral, then burn the covered debt
	if err := op.redeem(target, liquidator, token, seized, event.RedeemLiquidation, ledger.JournalTypeLiquidationSeize); err != nil {
		return err
	}
	if err := op.repay(target, liquidator, debtToCover, ledger.JournalTypeLiquidationRepay); err != nil {
		return err
	}

	// Step 4: Target must strictly improve
	endHF, err := e.health.HealthFactor(target)
	if err != nil {
		return err
	}
	if !endHF.Gt(startHF) {
		return fmt.Errorf("%w: user %s went from %s to %s", ErrHealthNotImproved, target, startHF.Dec(), endHF.Dec())
	}

	// Step 5: Liquidator must stay solvent
	if err := op.requireHealthy(liquidator); err != nil {
		return err
	}

	op.emit(&event.PositionLiquidated{
		Liquidator:         liquidator,
		Target:             target,
		Asset:              token,
		DebtCovered:        debtToCover.Clone(),
		CollateralSeized:   seized,
		Bonus:              bonus,
		HealthFactorBefore: startHF,
		HealthFactorAfter:  endHF,
	})
	return nil
}

// liquidationBonus = equivalent * LIQUIDATION_BONUS / LIQUIDATION_PRECISION
func (e *Engine) liquidationBonus(equivalent *uint256.Int) (*uint256.Int, error) {
	return fpmath.MulDiv(equivalent, e.bonus, e.liqPrecision)
}
