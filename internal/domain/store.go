package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AccountStore persists accounts and their balance aggregates.
type AccountStore interface {
	Create(ctx context.Context, a Account) error
	GetByID(ctx context.Context, id string) (Account, error)
	// IncrementBalance adjusts the balance and deposit counters by the given
	// (possibly negative) deltas.
	IncrementBalance(ctx context.Context, id string, amount, deposit float64) error
	List(ctx context.Context, opts ListOpts) ([]Account, error)
}

// TxnStore persists the append-only transaction log. Rows are immutable
// except for the Reverted flag.
type TxnStore interface {
	Insert(ctx context.Context, txn Txn) error
	GetByID(ctx context.Context, id string) (Txn, error)
	MarkReverted(ctx context.Context, id string) error
	// ListContractPayouts returns the unreverted CONTRACT_RESOLUTION_PAYOUT
	// txns paid out by the given market.
	ListContractPayouts(ctx context.Context, marketID string) ([]Txn, error)
	// NetAmount returns the signed sum of all txn amounts crediting or
	// debiting the given user account.
	NetAmount(ctx context.Context, accountID string) (float64, error)
	ListBefore(ctx context.Context, before time.Time) ([]Txn, error)
}

// MarketStore persists the settlement-owned slice of market state.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	// GetForUpdate reads the market under a row lock. Only meaningful inside
	// a transaction; implementations outside one may fall back to GetByID.
	GetForUpdate(ctx context.Context, id string) (Market, error)
	UpdatePool(ctx context.Context, id string, pool Pool) error
	SetResolution(ctx context.Context, id, resolution string, resolvedAt time.Time) error
	ClearResolution(ctx context.Context, id string, closeTime time.Time) error
	ListOpen(ctx context.Context, opts ListOpts) ([]Market, error)
}

// BetStore persists trade records.
type BetStore interface {
	Insert(ctx context.Context, b Bet) error
	ListByMarket(ctx context.Context, marketID string) ([]Bet, error)
	// SumShares returns the user's net share position in one outcome.
	SumShares(ctx context.Context, marketID, userID, outcome string) (float64, error)
	ListBefore(ctx context.Context, before time.Time) ([]Bet, error)
}

// LedgerTx is the transactional handle the ledger operates on: the account
// and txn stores bound to one database transaction, so a balance mutation
// and its log row are durable together or not at all.
type LedgerTx interface {
	Accounts() AccountStore
	Txns() TxnStore
}

// SettleTx extends LedgerTx with the stores a full trade or resolution
// touches inside the same transaction.
type SettleTx interface {
	LedgerTx
	Markets() MarketStore
	Bets() BetStore
}

// TxRunner opens a database transaction, passes the bound stores to fn, and
// commits if fn returns nil or rolls back otherwise.
type TxRunner interface {
	RunTx(ctx context.Context, fn func(tx SettleTx) error) error
}

// LockManager provides distributed locking for operations that must not
// run concurrently across processes (for example, market resolution).
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned func
	// releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Signal bus channels the settlement core publishes on.
const (
	ChannelBets        = "settle:bets"
	ChannelResolutions = "settle:resolutions"
)

// SignalBus carries fire-and-forget settlement events to out-of-core
// consumers (notification and broadcast layers).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// StreamMessage is one durable entry read back from a signal stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}
