package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/store/memory"
)

func TestAuditorCleanLedger(t *testing.T) {
	store := memory.NewStore()
	store.SeedAccount(domain.Account{ID: "alice", Balance: 1000})
	store.SeedMarket(domain.Market{
		ID:        "m1",
		Pool:      domain.Pool{"YES": 100, "NO": 100},
		CloseTime: time.Now().Add(time.Hour),
	})
	led := New(testLogger())
	ctx := context.Background()

	// A real transfer keeps stored balances and the txn log in agreement.
	store.SeedAccount(domain.Account{ID: "bob", Balance: 1000})
	require.NoError(t, store.RunTx(ctx, func(tx domain.SettleTx) error {
		_, err := led.RunTxn(ctx, tx, domain.TxnData{
			FromID:   "alice",
			FromType: domain.PartyUser,
			ToID:     "bob",
			ToType:   domain.PartyUser,
			Amount:   250,
			Category: domain.CategoryManaTransfer,
		})
		return err
	}))

	auditor := NewAuditor(store, 1000, testLogger())
	found, err := auditor.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestAuditorDetectsBalanceDrift(t *testing.T) {
	store := memory.NewStore()
	// Stored balance disagrees with the (empty) txn log.
	store.SeedAccount(domain.Account{ID: "alice", Balance: 1234})

	auditor := NewAuditor(store, 1000, testLogger())
	found, err := auditor.Check(context.Background())
	require.NoError(t, err)

	require.Len(t, found, 1)
	assert.Equal(t, "balance", found[0].Kind)
	assert.Equal(t, "alice", found[0].ID)
	assert.InDelta(t, 1000, found[0].Expected, 1e-9)
	assert.InDelta(t, 1234, found[0].Actual, 1e-9)
}

func TestAuditorDetectsBrokenPool(t *testing.T) {
	store := memory.NewStore()
	store.SeedMarket(domain.Market{
		ID:        "m1",
		Pool:      domain.Pool{"YES": 100, "NO": -5},
		CloseTime: time.Now().Add(time.Hour),
	})

	auditor := NewAuditor(store, 1000, testLogger())
	found, err := auditor.Check(context.Background())
	require.NoError(t, err)

	require.Len(t, found, 1)
	assert.Equal(t, "pool", found[0].Kind)
	assert.Equal(t, "m1", found[0].ID)
}
