package stable

import "sync/atomic"

// opGuard is the scoped exclusive-execution primitive wrapping every
// state-mutating engine operation. A nested acquisition while the guard is
// held fails immediately rather than blocking, so a collaborator calling back
// into the engine mid-operation cannot interleave ledger mutation.
type opGuard struct {
	held atomic.Bool
}

func (g *opGuard) acquire() error {
	if !g.held.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (g *opGuard) release() {
	g.held.Store(false)
}
