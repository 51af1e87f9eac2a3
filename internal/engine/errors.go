package engine

import (
	"SynthLedger/internal/ledger"
	fpmath "SynthLedger/internal/math"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/registry"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var (
	// Validation
	ErrZeroAmount       = errors.New("synth engine: amount must be greater than zero")
	ErrAssetNotAccepted = errors.New("synth engine: asset not accepted")
	ErrInvalidCommand   = errors.New("synth engine: invalid command")

	// Invariant
	ErrHealthFactorBroken = errors.New("synth engine: health factor below minimum")
	ErrPositionHealthy    = errors.New("synth engine: position is healthy")
	ErrHealthNotImproved  = errors.New("synth engine: health factor not improved")

	// Collaborator
	ErrTransferFailed = errors.New("synth engine: transfer failed")
	ErrIssuanceFailed = errors.New("synth engine: issuance failed")
	ErrDestroyFailed  = errors.New("synth engine: destroy failed")

	// Concurrency
	ErrReentrantCall = errors.New("synth engine: reentrant call")

	// Fatal
	ErrCompensationFailed = errors.New("synth engine: compensation failed")
	ErrEngineHalted       = errors.New("synth engine: halted")
	ErrStateHashMismatch  = errors.New("synth engine: state hash mismatch")
	ErrInvariantViolated  = errors.New("synth engine: ledger invariant violated")
)

// HealthFactorError reports the ratio that failed the minimum check.
type HealthFactorError struct {
	User         uuid.UUID
	HealthFactor *uint256.Int
}

func (e *HealthFactorError) Error() string {
	return fmt.Sprintf("%s: user %s health factor %s", ErrHealthFactorBroken, e.User, e.HealthFactor.Dec())
}

func (e *HealthFactorError) Unwrap() error {
	return ErrHealthFactorBroken
}

// Kind groups errors by how a caller should react to them.
type Kind uint8

const (
	KindNone Kind = iota
	KindValidation
	KindInvariant
	KindCollaborator
	KindInsufficientBalance
	KindConcurrency
	KindArithmetic
	KindFatal
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindInvariant:
		return "invariant"
	case KindCollaborator:
		return "collaborator"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindConcurrency:
		return "concurrency"
	case KindArithmetic:
		return "arithmetic"
	case KindFatal:
		return "fatal"
	default:
		return "internal"
	}
}

// Classify maps err to its Kind. Fatal conditions win over the cause they
// were joined with.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCompensationFailed), errors.Is(err, ErrEngineHalted),
		errors.Is(err, ErrStateHashMismatch), errors.Is(err, ErrInvariantViolated):
		return KindFatal
	case errors.Is(err, ErrReentrantCall):
		return KindConcurrency
	case errors.Is(err, ErrZeroAmount), errors.Is(err, ErrAssetNotAccepted),
		errors.Is(err, ErrInvalidCommand), errors.Is(err, registry.ErrConfiguration),
		errors.Is(err, fpmath.ErrInvalidAmount):
		return KindValidation
	case errors.Is(err, ErrHealthFactorBroken), errors.Is(err, ErrPositionHealthy),
		errors.Is(err, ErrHealthNotImproved):
		return KindInvariant
	case errors.Is(err, ErrTransferFailed), errors.Is(err, ErrIssuanceFailed),
		errors.Is(err, ErrDestroyFailed), errors.Is(err, oracle.ErrPriceUnavailable):
		return KindCollaborator
	case errors.Is(err, ledger.ErrInsufficientCollateral), errors.Is(err, ledger.ErrInsufficientDebt):
		return KindInsufficientBalance
	case errors.Is(err, fpmath.ErrOverflow), errors.Is(err, fpmath.ErrUnderflow),
		errors.Is(err, fpmath.ErrDivisionByZero), errors.Is(err, ledger.ErrBalanceOverflow):
		return KindArithmetic
	default:
		return KindInternal
	}
}
