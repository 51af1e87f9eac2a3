package engine

import "sync/atomic"

// guard admits one mutating operation at a time. A second caller is
// rejected rather than queued.
type guard struct {
	busy atomic.Bool
}

// acquire returns the release func, or ErrReentrantCall if an operation is
// already in flight.
func (g *guard) acquire() (func(), error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	return func() { g.busy.Store(false) }, nil
}

