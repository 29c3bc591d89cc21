package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedUsers(store *memory.Store, balances map[string]float64) {
	for id, b := range balances {
		store.SeedAccount(domain.Account{ID: id, Balance: b, TotalDeposits: b})
	}
}

func TestRunTxnMovesBalanceAndLogs(t *testing.T) {
	store := memory.NewStore()
	seedUsers(store, map[string]float64{"alice": 100, "bob": 20})
	led := New(testLogger())
	ctx := context.Background()

	var txn domain.Txn
	err := store.RunTx(ctx, func(tx domain.SettleTx) error {
		var err error
		txn, err = led.RunTxn(ctx, tx, domain.TxnData{
			FromID:   "alice",
			FromType: domain.PartyUser,
			ToID:     "bob",
			ToType:   domain.PartyUser,
			Amount:   30,
			Category: domain.CategoryManaTransfer,
		})
		return err
	})
	require.NoError(t, err)

	assert.NotEmpty(t, txn.ID)
	assert.False(t, txn.CreatedTime.IsZero())
	assert.Equal(t, domain.TokenMana, txn.Token)

	alice, _ := store.Account("alice")
	bob, _ := store.Account("bob")
	assert.InDelta(t, 70, alice.Balance, 1e-12)
	assert.InDelta(t, 50, bob.Balance, 1e-12)

	txns := store.Txns()
	require.Len(t, txns, 1)
	assert.Equal(t, txn.ID, txns[0].ID)
	assert.False(t, txns[0].Reverted)
}

func TestRunTxnToContractDebitsOnly(t *testing.T) {
	store := memory.NewStore()
	seedUsers(store, map[string]float64{"alice": 100})
	led := New(testLogger())
	ctx := context.Background()

	err := store.RunTx(ctx, func(tx domain.SettleTx) error {
		_, err := led.RunTxn(ctx, tx, domain.TxnData{
			FromID:   "alice",
			FromType: domain.PartyUser,
			ToID:     "market-1",
			ToType:   domain.PartyContract,
			Amount:   25,
			Category: domain.CategoryBet,
		})
		return err
	})
	require.NoError(t, err)

	alice, _ := store.Account("alice")
	assert.InDelta(t, 75, alice.Balance, 1e-12)
	// Contracts are not balance-tracked accounts; nothing to credit.
	_, ok := store.Account("market-1")
	assert.False(t, ok)
}

func TestRunTxnInsufficientBalance(t *testing.T) {
	store := memory.NewStore()
	seedUsers(store, map[string]float64{"alice": 10, "bob": 0})
	led := New(testLogger())
	ctx := context.Background()

	err := store.RunTx(ctx, func(tx domain.SettleTx) error {
		_, err := led.RunTxn(ctx, tx, domain.TxnData{
			FromID:   "alice",
			FromType: domain.PartyUser,
			ToID:     "bob",
			ToType:   domain.PartyUser,
			Amount:   50,
			Category: domain.CategoryManaTransfer,
		})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// No txn row, no balance movement on either side.
	assert.Empty(t, store.Txns())
	alice, _ := store.Account("alice")
	bob, _ := store.Account("bob")
	assert.InDelta(t, 10, alice.Balance, 1e-12)
	assert.InDelta(t, 0, bob.Balance, 1e-12)
}

func TestRunTxnMissingAccount(t *testing.T) {
	store := memory.NewStore()
	led := New(testLogger())
	ctx := context.Background()

	err := store.RunTx(ctx, func(tx domain.SettleTx) error {
		_, err := led.RunTxn(ctx, tx, domain.TxnData{
			FromID:   "ghost",
			FromType: domain.PartyUser,
			ToID:     "bob",
			ToType:   domain.PartyUser,
			Amount:   5,
			Category: domain.CategoryManaTransfer,
		})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Empty(t, store.Txns())
}

func TestRunTxnRejectsNonPositiveAmount(t *testing.T) {
	store := memory.NewStore()
	seedUsers(store, map[string]float64{"alice": 100})
	led := New(testLogger())
	ctx := context.Background()

	for _, amount := range []float64{0, -10} {
		err := store.RunTx(ctx, func(tx domain.SettleTx) error {
			_, err := led.RunTxn(ctx, tx, domain.TxnData{
				FromID:   "alice",
				FromType: domain.PartyUser,
				ToID:     "bob",
				ToType:   domain.PartyUser,
				Amount:   amount,
				Category: domain.CategoryManaTransfer,
			})
			return err
		})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	}
}

func TestContractPayoutAndUndoRestoreBalance(t *testing.T) {
	store := memory.NewStore()
	seedUsers(store, map[string]float64{"winner": 40})
	led := New(testLogger())
	ctx := context.Background()

	var payout domain.Txn
	err := store.RunTx(ctx, func(tx domain.SettleTx) error {
		var err error
		payout, err = led.RunContractPayoutTxn(ctx, tx, domain.TxnData{
			FromID:   "market-1",
			FromType: domain.PartyContract,
			ToID:     "winner",
			ToType:   domain.PartyUser,
			Amount:   60,
			Category: domain.CategoryPayout,
			Data:     map[string]any{"deposit": 60.0},
		})
		return err
	})
	require.NoError(t, err)

	after, _ := store.Account("winner")
	assert.InDelta(t, 100, after.Balance, 1e-12)
	assert.InDelta(t, 100, after.TotalDeposits, 1e-12)

	var undo domain.Txn
	err = store.RunTx(ctx, func(tx domain.SettleTx) error {
		var err error
		undo, err = led.UndoContractPayoutTxn(ctx, tx, payout)
		return err
	})
	require.NoError(t, err)

	restored, _ := store.Account("winner")
	assert.InDelta(t, 40, restored.Balance, 1e-12)
	assert.InDelta(t, 40, restored.TotalDeposits, 1e-12)

	txns := store.Txns()
	require.Len(t, txns, 2)
	// The original row keeps its amount and parties; only Reverted flips.
	assert.True(t, txns[0].Reverted)
	assert.Equal(t, payout.Amount, txns[0].Amount)
	assert.Equal(t, payout.FromID, txns[0].FromID)
	// The reversal is its own auditable row linking back to the original.
	assert.Equal(t, domain.CategoryUndoPayout, txns[1].Category)
	assert.Equal(t, payout.ID, txns[1].Data["revertsTxnId"])
	assert.Equal(t, undo.ID, txns[1].ID)
}

func TestUndoRejectsDoubleRevert(t *testing.T) {
	store := memory.NewStore()
	seedUsers(store, map[string]float64{"winner": 0})
	led := New(testLogger())
	ctx := context.Background()

	var payout domain.Txn
	err := store.RunTx(ctx, func(tx domain.SettleTx) error {
		var err error
		payout, err = led.RunContractPayoutTxn(ctx, tx, domain.TxnData{
			FromID:   "market-1",
			FromType: domain.PartyContract,
			ToID:     "winner",
			ToType:   domain.PartyUser,
			Amount:   10,
			Category: domain.CategoryPayout,
		})
		return err
	})
	require.NoError(t, err)

	require.NoError(t, store.RunTx(ctx, func(tx domain.SettleTx) error {
		_, err := led.UndoContractPayoutTxn(ctx, tx, payout)
		return err
	}))

	payout.Reverted = true
	err = store.RunTx(ctx, func(tx domain.SettleTx) error {
		_, err := led.UndoContractPayoutTxn(ctx, tx, payout)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestContractPayoutRequiresContractSource(t *testing.T) {
	store := memory.NewStore()
	seedUsers(store, map[string]float64{"winner": 0})
	led := New(testLogger())
	ctx := context.Background()

	err := store.RunTx(ctx, func(tx domain.SettleTx) error {
		_, err := led.RunContractPayoutTxn(ctx, tx, domain.TxnData{
			FromID:   "alice",
			FromType: domain.PartyUser,
			ToID:     "winner",
			ToType:   domain.PartyUser,
			Amount:   10,
			Category: domain.CategoryPayout,
		})
		return err
	})
	assert.Error(t, err)
}
