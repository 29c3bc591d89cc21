// Package amm implements a multi-outcome automated market maker over a
// shared liquidity pool. A trade is priced so that the pool invariant
// K = sum over outcomes of ln(balance) is preserved (buys) or restored
// (sells). All functions are pure: they never mutate the pool they are
// given and perform no I/O, so correctness under concurrency is entirely
// the caller's responsibility (read and write the pool inside one protected
// critical section).
package amm

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

const (
	// sellTolerance is the relative width at which the bisection in Sell is
	// considered converged.
	sellTolerance = 1e-9

	// sellMaxIterations bounds the bisection in Sell. With a halving search
	// this is far more than enough to reach sellTolerance from any bracket.
	sellMaxIterations = 100
)

// Probability returns the probability the pool currently assigns to the
// given outcome, in (0,1). Probabilities across all outcomes of a valid
// pool sum to 1 up to floating-point error.
func Probability(pool domain.Pool, outcome string) (float64, error) {
	target, ok := pool[outcome]
	if !ok {
		return 0, fmt.Errorf("amm: outcome %q: %w", outcome, domain.ErrInvalidOutcome)
	}

	var sum float64
	for _, b := range pool {
		sum += target / b
	}
	return 1 / sum, nil
}

// Buy prices a purchase of the given outcome for amount and returns the
// post-trade pool together with the shares issued. The stake is added to
// every outcome's liquidity; the shares are then removed from the target
// outcome so that the invariant K keeps its pre-trade value exactly.
//
// The caller must ensure amount > 0; Buy validates only outcome membership.
func Buy(pool domain.Pool, amount float64, outcome string) (domain.Pool, float64, error) {
	if _, ok := pool[outcome]; !ok {
		return nil, 0, fmt.Errorf("amm: outcome %q: %w", outcome, domain.ErrInvalidOutcome)
	}

	k := pool.Invariant()

	temp := pool.Clone()
	for o := range temp {
		temp[o] += amount
	}

	// K' over the temporary pool with the target outcome excluded. The
	// target's post-trade balance must then be exp(K - K').
	var kOther float64
	for o, b := range temp {
		if o != outcome {
			kOther += math.Log(b)
		}
	}

	shares := temp[outcome] - math.Exp(k-kOther)

	newPool := temp
	newPool[outcome] -= shares
	return newPool, shares, nil
}

// Sell prices a sale of shares of the given outcome and returns the
// post-trade pool together with the sale proceeds. The shares are returned
// to the target outcome's liquidity; the proceeds are then found by
// bisection as the uniform subtraction from every outcome that restores the
// pre-trade invariant K.
//
// Sell verifies that the search bracket actually straddles the root before
// bisecting; a pool skewed enough to break that assumption surfaces as
// domain.ErrNoConvergence rather than a silently wrong price.
func Sell(pool domain.Pool, shares float64, outcome string) (domain.Pool, float64, error) {
	if _, ok := pool[outcome]; !ok {
		return nil, 0, fmt.Errorf("amm: outcome %q: %w", outcome, domain.ErrInvalidOutcome)
	}

	k := pool.Invariant()

	withShares := pool.Clone()
	withShares[outcome] += shares

	// Uniformly removing more than the smallest balance would drive a
	// balance non-positive, outside the invariant's domain. Cap the upper
	// bound of the search just short of that.
	hi := shares
	if minB := minBalance(withShares); hi >= minB {
		hi = minB * (1 - 1e-12)
	}
	lo := 0.0

	f := func(x float64) float64 {
		var kx float64
		for _, b := range withShares {
			kx += math.Log(b - x)
		}
		return k - kx
	}

	fLo, fHi := f(lo), f(hi)
	if fLo == 0 {
		return poolMinus(withShares, lo), lo, nil
	}
	if math.IsNaN(fLo) || math.IsNaN(fHi) || fLo*fHi > 0 {
		return nil, 0, fmt.Errorf("amm: sell %v shares of %q: bracket [0,%v] does not straddle the invariant: %w",
			shares, outcome, hi, domain.ErrNoConvergence)
	}

	var (
		mid       float64
		converged bool
	)
	for i := 0; i < sellMaxIterations; i++ {
		mid = (lo + hi) / 2
		fMid := f(mid)
		// The residual is on the log scale of the invariant, so this is a
		// relative error bound on the restored pool product.
		if math.Abs(fMid) <= sellTolerance {
			converged = true
			break
		}
		if math.Signbit(fMid) == math.Signbit(fLo) {
			lo, fLo = mid, fMid
		} else {
			hi = mid
		}
	}
	if !converged {
		return nil, 0, fmt.Errorf("amm: sell %v shares of %q: bisection exhausted %d iterations: %w",
			shares, outcome, sellMaxIterations, domain.ErrNoConvergence)
	}

	return poolMinus(withShares, mid), mid, nil
}

func poolMinus(pool domain.Pool, x float64) domain.Pool {
	out := make(domain.Pool, len(pool))
	for o, b := range pool {
		out[o] = b - x
	}
	return out
}

func minBalance(pool domain.Pool) float64 {
	min := math.Inf(1)
	for _, b := range pool {
		if b < min {
			min = b
		}
	}
	return min
}

// NewPool seeds every outcome of a fresh pool with the full ante, so all
// outcomes start at equal probability. At least two outcomes and a positive
// ante are required.
func NewPool(outcomes []string, ante float64) (domain.Pool, error) {
	if len(outcomes) < 2 {
		return nil, fmt.Errorf("amm: need at least two outcomes, got %d: %w", len(outcomes), domain.ErrInvalidOutcome)
	}
	if ante <= 0 {
		return nil, fmt.Errorf("amm: ante %v must be positive: %w", ante, domain.ErrInvalidAmount)
	}

	pool := make(domain.Pool, len(outcomes))
	for _, o := range outcomes {
		if _, dup := pool[o]; dup {
			return nil, fmt.Errorf("amm: duplicate outcome %q: %w", o, domain.ErrInvalidOutcome)
		}
		pool[o] = ante
	}
	return pool, nil
}
