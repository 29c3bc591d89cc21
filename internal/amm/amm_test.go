package amm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

func TestProbabilitiesSumToOne(t *testing.T) {
	pools := []domain.Pool{
		{"A": 100, "B": 100, "C": 100},
		{"YES": 250, "NO": 50},
		{"A": 1, "B": 1000, "C": 37.5, "D": 0.25},
	}

	for _, pool := range pools {
		var sum float64
		for o := range pool {
			p, err := Probability(pool, o)
			require.NoError(t, err)
			assert.Greater(t, p, 0.0)
			assert.Less(t, p, 1.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestProbabilityUnknownOutcome(t *testing.T) {
	pool := domain.Pool{"YES": 100, "NO": 100}

	_, err := Probability(pool, "MAYBE")
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestBuyThreeOutcomeScenario(t *testing.T) {
	pool := domain.Pool{"A": 100, "B": 100, "C": 100}

	probBefore, err := Probability(pool, "C")
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3, probBefore, 1e-4)

	newPool, shares, err := Buy(pool, 10, "C")
	require.NoError(t, err)
	assert.Greater(t, shares, 0.0)

	// The input pool is untouched.
	assert.Equal(t, domain.Pool{"A": 100, "B": 100, "C": 100}, pool)

	// Buying moves the price up and preserves the invariant exactly.
	probAfter, err := Probability(newPool, "C")
	require.NoError(t, err)
	assert.Greater(t, probAfter, probBefore)
	assert.InDelta(t, pool.Invariant(), newPool.Invariant(), 1e-9)
}

func TestBuyUnknownOutcome(t *testing.T) {
	pool := domain.Pool{"A": 100, "B": 100}

	_, _, err := Buy(pool, 10, "Z")
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	_, _, err = Sell(pool, 10, "Z")
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestBuySellRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		pool    domain.Pool
		amount  float64
		outcome string
	}{
		{"balanced", domain.Pool{"A": 100, "B": 100, "C": 100}, 10, "C"},
		{"binary", domain.Pool{"YES": 80, "NO": 120}, 25, "YES"},
		{"skewed", domain.Pool{"A": 12, "B": 480, "C": 77}, 5, "A"},
		{"small stake", domain.Pool{"A": 100, "B": 100}, 0.01, "B"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bought, shares, err := Buy(tc.pool, tc.amount, tc.outcome)
			require.NoError(t, err)
			require.Greater(t, shares, 0.0)

			sold, sale, err := Sell(bought, shares, tc.outcome)
			require.NoError(t, err)

			assert.InDelta(t, tc.amount, sale, 1e-6)
			for o, b := range tc.pool {
				assert.InDelta(t, b, sold[o], 1e-6, "outcome %s", o)
			}
		})
	}
}

func TestSellRestoresInvariant(t *testing.T) {
	pool := domain.Pool{"A": 60, "B": 140, "C": 200}
	k := pool.Invariant()

	bought, shares, err := Buy(pool, 30, "B")
	require.NoError(t, err)

	// Sell only part of the position; the invariant must still come back.
	sold, sale, err := Sell(bought, shares/3, "B")
	require.NoError(t, err)
	assert.Greater(t, sale, 0.0)
	assert.InDelta(t, k, sold.Invariant(), 1e-7)
}

func TestShortPaysWhenOutcomeLoses(t *testing.T) {
	pool := domain.Pool{"A": 100, "B": 100, "C": 100}
	k := pool.Invariant()

	newPool, shares, err := Short(pool, 30, "C")
	require.NoError(t, err)

	// The stake bought exposure in every outcome except the shorted one.
	assert.Len(t, shares, 2)
	assert.NotContains(t, shares, "C")
	for o, s := range shares {
		assert.Greater(t, s, 0.0, "outcome %s", o)
	}

	// Composite of invariant-preserving buys preserves the invariant.
	assert.InDelta(t, k, newPool.Invariant(), 1e-9)

	// Shorting C lowers C's price.
	before, _ := Probability(pool, "C")
	after, err := Probability(newPool, "C")
	require.NoError(t, err)
	assert.Less(t, after, before)
}

func TestShortUnknownOutcome(t *testing.T) {
	pool := domain.Pool{"A": 100, "B": 100}

	_, _, err := Short(pool, 10, "Z")
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestNewPool(t *testing.T) {
	pool, err := NewPool([]string{"YES", "NO"}, 50)
	require.NoError(t, err)
	assert.Equal(t, domain.Pool{"YES": 50, "NO": 50}, pool)

	p, err := Probability(pool, "YES")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)

	_, err = NewPool([]string{"ONLY"}, 50)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	_, err = NewPool([]string{"A", "B"}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = NewPool([]string{"A", "A"}, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestSellExtremePoolStillConverges(t *testing.T) {
	// A wildly skewed pool stresses the bracket and the tolerance; the
	// bisection must still land on a price that restores the invariant and
	// keeps every balance positive.
	pool := domain.Pool{"A": 1e-6, "B": 1e9, "C": 42}
	k := pool.Invariant()

	sold, sale, err := Sell(pool, 100, "B")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sale, 0.0)
	assert.LessOrEqual(t, sale, 100.0)
	assert.InDelta(t, k, sold.Invariant(), 1e-6)
	for o, b := range sold {
		assert.Greater(t, b, 0.0, "outcome %s", o)
	}
}

func TestInvariantMatchesLogSum(t *testing.T) {
	pool := domain.Pool{"A": 2, "B": 8}
	assert.InDelta(t, math.Log(2)+math.Log(8), pool.Invariant(), 1e-12)
}
