package domain

import (
	"math"
	"time"
)

// Pool maps an outcome identifier to its liquidity balance. Every balance is
// strictly positive on a well-formed pool. The pool is a value: pricing
// functions return a fresh Pool rather than mutating their input.
type Pool map[string]float64

// Clone returns a deep copy of the pool.
func (p Pool) Clone() Pool {
	out := make(Pool, len(p))
	for o, b := range p {
		out[o] = b
	}
	return out
}

// Outcomes returns the outcome identifiers present in the pool, in no
// particular order.
func (p Pool) Outcomes() []string {
	out := make([]string, 0, len(p))
	for o := range p {
		out = append(out, o)
	}
	return out
}

// Invariant returns K, the sum of the natural logs of the per-outcome
// balances. Buys preserve K exactly; sells restore it numerically.
func (p Pool) Invariant() float64 {
	var k float64
	for _, b := range p {
		k += math.Log(b)
	}
	return k
}

// ResolutionCancel refunds every bettor their stake instead of paying out a
// winning outcome.
const ResolutionCancel = "CANCEL"

// Market is the slice of market state the settlement core owns: the liquidity
// pool, the trading window, and the resolution. Everything else about a
// market (description, tags, comments) lives outside the core.
type Market struct {
	ID           string
	Question     string
	CreatorID    string
	Pool         Pool
	CloseTime    time.Time
	CreatedTime  time.Time
	Resolved     bool
	Resolution   string // winning outcome, or ResolutionCancel
	ResolvedTime *time.Time
}

// TradingAllowed reports whether new trades may be admitted at the given
// time.
func (m Market) TradingAllowed(now time.Time) bool {
	return !m.Resolved && now.Before(m.CloseTime)
}
