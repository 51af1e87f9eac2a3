package custody

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Vault holds collateral tokens. Pull moves tokens from a user into the
// custodian account, Push moves them back out.
type Vault struct {
	b *book
}

// NewVault creates a vault whose engine-side account is custodian.
func NewVault(custodian uuid.UUID) *Vault {
	return &Vault{b: newBook(custodian)}
}

func (v *Vault) Pull(token string, from uuid.UUID, amount *uint256.Int) error {
	return v.b.move(MethodPull, token, from, v.b.custodian, from, amount)
}

func (v *Vault) Push(token string, to uuid.UUID, amount *uint256.Int) error {
	return v.b.move(MethodPush, token, v.b.custodian, to, to, amount)
}

// Mint credits new tokens to an account. It backs the development faucet
// and test setup; the engine never calls it.
func (v *Vault) Mint(token string, to uuid.UUID, amount *uint256.Int) error {
	return v.b.mint(MethodMint, token, to, amount)
}

func (v *Vault) BalanceOf(token string, account uuid.UUID) *uint256.Int {
	return v.b.balanceOf(token, account)
}

// Held returns the custodian's balance of token.
func (v *Vault) Held(token string) *uint256.Int {
	return v.b.balanceOf(token, v.b.custodian)
}

func (v *Vault) TotalSupply(token string) *uint256.Int {
	return v.b.totalSupply(token)
}

// SetFailure makes every subsequent call of m fail with err until cleared
// with a nil err.
func (v *Vault) SetFailure(m Method, err error) {
	v.b.setFailure(m, err)
}

// OnTransfer registers a hook run after each successful call.
func (v *Vault) OnTransfer(h Hook) {
	v.b.addHook(h)
}
