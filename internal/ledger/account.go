package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeCollateral AccountSubType = iota // collateral owed back to the user
	SubTypeDebt                             // synthetic units the user owes

	// System sub-types
	SubTypeCustody     // collateral held by the engine, per asset
	SubTypeOutstanding // synthetic units issued and not yet repaid
)

// NormalSide is the side on which an account's balance grows.
type NormalSide uint8

const (
	DebitNormal NormalSide = iota
	CreditNormal
)

// NormalSide: custody and debt are engine assets, collateral and
// outstanding supply are engine liabilities.
func (s AccountSubType) NormalSide() NormalSide {
	switch s {
	case SubTypeCustody, SubTypeDebt:
		return DebitNormal
	default:
		return CreditNormal
	}
}

func (s AccountSubType) String() string {
	switch s {
	case SubTypeCollateral:
		return "collateral"
	case SubTypeDebt:
		return "debt"
	case SubTypeCustody:
		return "custody"
	case SubTypeOutstanding:
		return "outstanding"
	default:
		return "unknown"
	}
}

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope    AccountScope
	EntityID uuid.UUID // user id; zero for system accounts
	SubType  AccountSubType
	Asset    string // collateral token; empty for debt accounts
}

// NewCollateralKey creates the key for a user's collateral in one asset
func NewCollateralKey(userID uuid.UUID, token string) AccountKey {
	return AccountKey{Scope: AccountScopeUser, EntityID: userID, SubType: SubTypeCollateral, Asset: token}
}

// NewDebtKey creates the key for a user's outstanding debt
func NewDebtKey(userID uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeUser, EntityID: userID, SubType: SubTypeDebt}
}

// NewCustodyKey creates the key for the engine's holdings of one asset
func NewCustodyKey(token string) AccountKey {
	return AccountKey{Scope: AccountScopeSystem, SubType: SubTypeCustody, Asset: token}
}

// NewOutstandingKey creates the key for total issued synthetic supply
func NewOutstandingKey() AccountKey {
	return AccountKey{Scope: AccountScopeSystem, SubType: SubTypeOutstanding}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		if k.Asset == "" {
			return fmt.Sprintf("user:%s:%s", k.EntityID, k.SubType)
		}
		return fmt.Sprintf("user:%s:%s:%s", k.EntityID, k.SubType, k.Asset)
	case AccountScopeSystem:
		if k.Asset == "" {
			return fmt.Sprintf("system:%s", k.SubType)
		}
		return fmt.Sprintf("system:%s:%s", k.SubType, k.Asset)
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")

	switch {
	case len(parts) >= 3 && parts[0] == "user":
		userID, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		switch {
		case parts[2] == "collateral" && len(parts) == 4 && parts[3] != "":
			return NewCollateralKey(userID, parts[3]), nil
		case parts[2] == "debt" && len(parts) == 3:
			return NewDebtKey(userID), nil
		}

	case len(parts) >= 2 && parts[0] == "system":
		switch {
		case parts[1] == "custody" && len(parts) == 3 && parts[2] != "":
			return NewCustodyKey(parts[2]), nil
		case parts[1] == "outstanding" && len(parts) == 2:
			return NewOutstandingKey(), nil
		}
	}

	return AccountKey{}, fmt.Errorf("unrecognized account path %q", path)
}
