package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// PositionLiquidated summarizes a successful liquidation. CollateralSeized
// includes Bonus.
type PositionLiquidated struct {
	Liquidator         uuid.UUID    `json:"liquidator"`
	Target             uuid.UUID    `json:"target"`
	Asset              string       `json:"asset"`
	DebtCovered        *uint256.Int `json:"debt_covered"`
	CollateralSeized   *uint256.Int `json:"collateral_seized"`
	Bonus              *uint256.Int `json:"bonus"`
	HealthFactorBefore *uint256.Int `json:"health_factor_before"`
	HealthFactorAfter  *uint256.Int `json:"health_factor_after"`
}

func (l *PositionLiquidated) EventType() EventType {
	return EventTypePositionLiquidated
}

func (l *PositionLiquidated) Users() []uuid.UUID {
	if l.Liquidator == l.Target {
		return []uuid.UUID{l.Target}
	}
	return []uuid.UUID{l.Target, l.Liquidator}
}
