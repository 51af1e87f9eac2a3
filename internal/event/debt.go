package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type DebtIssued struct {
	User   uuid.UUID    `json:"user"`
	Amount *uint256.Int `json:"amount"`
}

func (d *DebtIssued) EventType() EventType {
	return EventTypeDebtIssued
}

func (d *DebtIssued) Users() []uuid.UUID {
	return []uuid.UUID{d.User}
}

// DebtRepaid: Payer burned Amount of synthetic units against OnBehalfOf's debt.
type DebtRepaid struct {
	OnBehalfOf uuid.UUID    `json:"on_behalf_of"`
	Payer      uuid.UUID    `json:"payer"`
	Amount     *uint256.Int `json:"amount"`
}

func (d *DebtRepaid) EventType() EventType {
	return EventTypeDebtRepaid
}

func (d *DebtRepaid) Users() []uuid.UUID {
	return []uuid.UUID{d.OnBehalfOf}
}
