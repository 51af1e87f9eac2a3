package projection

import (
	"github.com/holiman/uint256"
)

// signed accumulates a sign-magnitude sum of uint256 amounts.
type signed struct {
	pos, neg uint256.Int
}

func (s *signed) add(v *uint256.Int, positive bool) {
	if positive {
		s.pos.Add(&s.pos, v)
	} else {
		s.neg.Add(&s.neg, v)
	}
}

func (s *signed) zero() bool {
	return s.pos.Eq(&s.neg)
}

// String renders the net sum in base units with a leading '-' if negative.
func (s *signed) String() string {
	if s.pos.Lt(&s.neg) {
		return "-" + new(uint256.Int).Sub(&s.neg, &s.pos).Dec()
	}
	return new(uint256.Int).Sub(&s.pos, &s.neg).Dec()
}
