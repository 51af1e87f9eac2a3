package engine

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// CollateralTransfer moves collateral tokens between users and the
// engine's own account.
type CollateralTransfer interface {
	// Pull moves amount of token from the user into engine custody.
	Pull(token string, from uuid.UUID, amount *uint256.Int) error
	// Push moves amount of token from engine custody to the user.
	Push(token string, to uuid.UUID, amount *uint256.Int) error
}

// SyntheticIssuer controls the pegged synthetic asset.
type SyntheticIssuer interface {
	// Issue mints amount of new units to to.
	Issue(to uuid.UUID, amount *uint256.Int) error
	// Destroy burns amount of units held by the engine.
	Destroy(amount *uint256.Int) error
	// Pull moves amount of units from the user to the engine.
	Pull(from uuid.UUID, amount *uint256.Int) error
	// Push moves amount of units from the engine to the user.
	Push(to uuid.UUID, amount *uint256.Int) error
}
