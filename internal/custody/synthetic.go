package custody

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// SyntheticToken is the issuable pegged asset. Issue mints to a holder,
// Destroy burns units held by the custodian.
type SyntheticToken struct {
	symbol string
	b      *book
}

func NewSyntheticToken(symbol string, custodian uuid.UUID) *SyntheticToken {
	return &SyntheticToken{symbol: symbol, b: newBook(custodian)}
}

func (s *SyntheticToken) Symbol() string {
	return s.symbol
}

func (s *SyntheticToken) Issue(to uuid.UUID, amount *uint256.Int) error {
	return s.b.mint(MethodIssue, s.symbol, to, amount)
}

func (s *SyntheticToken) Destroy(amount *uint256.Int) error {
	return s.b.burn(MethodDestroy, s.symbol, s.b.custodian, amount)
}

func (s *SyntheticToken) Pull(from uuid.UUID, amount *uint256.Int) error {
	return s.b.move(MethodPull, s.symbol, from, s.b.custodian, from, amount)
}

func (s *SyntheticToken) Push(to uuid.UUID, amount *uint256.Int) error {
	return s.b.move(MethodPush, s.symbol, s.b.custodian, to, to, amount)
}

// Transfer moves units between two holders, as any holder of the token can.
func (s *SyntheticToken) Transfer(from, to uuid.UUID, amount *uint256.Int) error {
	return s.b.move(MethodPush, s.symbol, from, to, to, amount)
}

func (s *SyntheticToken) BalanceOf(account uuid.UUID) *uint256.Int {
	return s.b.balanceOf(s.symbol, account)
}

func (s *SyntheticToken) TotalSupply() *uint256.Int {
	return s.b.totalSupply(s.symbol)
}

func (s *SyntheticToken) SetFailure(m Method, err error) {
	s.b.setFailure(m, err)
}

func (s *SyntheticToken) OnTransfer(h Hook) {
	s.b.addHook(h)
}
