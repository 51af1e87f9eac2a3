package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// RedeemReason distinguishes a user withdrawing their own collateral from
// collateral seized by a liquidator.
type RedeemReason string

const (
	RedeemSelf        RedeemReason = "self"
	RedeemLiquidation RedeemReason = "liquidation"
)

type CollateralDeposited struct {
	User   uuid.UUID    `json:"user"`
	Asset  string       `json:"asset"`
	Amount *uint256.Int `json:"amount"`
}

func (d *CollateralDeposited) EventType() EventType {
	return EventTypeCollateralDeposited
}

func (d *CollateralDeposited) Users() []uuid.UUID {
	return []uuid.UUID{d.User}
}

// CollateralRedeemed: From's collateral was released to To.
type CollateralRedeemed struct {
	From   uuid.UUID    `json:"from"`
	To     uuid.UUID    `json:"to"`
	Asset  string       `json:"asset"`
	Amount *uint256.Int `json:"amount"`
	Reason RedeemReason `json:"reason"`
}

func (r *CollateralRedeemed) EventType() EventType {
	return EventTypeCollateralRedeemed
}

func (r *CollateralRedeemed) Users() []uuid.UUID {
	return []uuid.UUID{r.From}
}
