package amm

import (
	"fmt"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// Short takes a position against an outcome by buying every other outcome
// with an equal slice of the stake. The result pays out whenever the shorted
// outcome does not occur, which is the exposure a short seller wants, built
// entirely from the invariant-preserving Buy primitive.
//
// The returned map holds the shares issued per purchased outcome. Each
// constituent buy preserves K, so the composite does too.
func Short(pool domain.Pool, amount float64, outcome string) (domain.Pool, map[string]float64, error) {
	if _, ok := pool[outcome]; !ok {
		return nil, nil, fmt.Errorf("amm: outcome %q: %w", outcome, domain.ErrInvalidOutcome)
	}
	if len(pool) < 2 {
		return nil, nil, fmt.Errorf("amm: cannot short a single-outcome pool: %w", domain.ErrInvalidOutcome)
	}

	others := make([]string, 0, len(pool)-1)
	for o := range pool {
		if o != outcome {
			others = append(others, o)
		}
	}

	slice := amount / float64(len(others))
	shares := make(map[string]float64, len(others))

	current := pool
	for _, o := range others {
		next, issued, err := Buy(current, slice, o)
		if err != nil {
			return nil, nil, err
		}
		shares[o] = issued
		current = next
	}

	return current, shares, nil
}
