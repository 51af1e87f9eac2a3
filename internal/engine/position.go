package engine

import (
	"SynthLedger/internal/event"
	"SynthLedger/internal/ledger"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// deposit credits collateral before pulling the tokens, so a collaborator
// that reads back during the pull observes the credit.
func (op *operation) deposit(user uuid.UUID, token string, amount *uint256.Int) error {
	if err := op.batch.AddCollateral(user, token, amount); err != nil {
		return err
	}
	op.emit(&event.CollateralDeposited{User: user, Asset: token, Amount: amount.Clone()})
	return op.pullCollateral(token, user, amount)
}

// withdraw debits and pushes first; the health check runs only after the
// push returns.
func (op *operation) withdraw(user uuid.UUID, token string, amount *uint256.Int) error {
	if err := op.redeem(user, user, token, amount, event.RedeemSelf, ledger.JournalTypeWithdrawal); err != nil {
		return err
	}
	return op.requireHealthy(user)
}

// redeem debits from's collateral and pushes it to to.
func (op *operation) redeem(from, to uuid.UUID, token string, amount *uint256.Int, reason event.RedeemReason, jt ledger.JournalType) error {
	if err := op.batch.RemoveCollateral(from, token, amount, jt); err != nil {
		return err
	}
	op.emit(&event.CollateralRedeemed{From: from, To: to, Asset: token, Amount: amount.Clone(), Reason: reason})
	return op.pushCollateral(token, to, amount)
}

// issue records the debt and checks health before any units exist.
func (op *operation) issue(user uuid.UUID, amount *uint256.Int) error {
	if err := op.batch.AddDebt(user, amount); err != nil {
		return err
	}
	if err := op.requireHealthy(user); err != nil {
		return err
	}
	if err := op.issueSynthetic(user, amount); err != nil {
		return err
	}
	op.emit(&event.DebtIssued{User: user, Amount: amount.Clone()})
	return nil
}

// repay reduces onBehalfOf's debt, then pulls the units from payer and
// destroys them. Repaying only raises health, so no check follows.
func (op *operation) repay(onBehalfOf, payer uuid.UUID, amount *uint256.Int, jt ledger.JournalType) error {
	if err := op.batch.RemoveDebt(onBehalfOf, amount, jt); err != nil {
		return err
	}
	if err := op.pullSynthetic(payer, amount); err != nil {
		return err
	}
	if err := op.destroySynthetic(amount); err != nil {
		return err
	}
	op.emit(&event.DebtRepaid{OnBehalfOf: onBehalfOf, Payer: payer, Amount: amount.Clone()})
	return nil
}

func (op *operation) requireHealthy(user uuid.UUID) error {
	hf, ok, err := op.e.health.Check(user)
	if err != nil {
		return err
	}
	if !ok {
		return &HealthFactorError{User: user, HealthFactor: hf}
	}
	return nil
}
