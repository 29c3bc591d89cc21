// Package memory implements the domain store interfaces with in-process
// maps. It backs unit tests for code written against domain.TxRunner so the
// ledger and services can be exercised without a database. Transactions are
// snapshot-based: RunTx clones the state, runs fn against the clone, and
// swaps it in only when fn returns nil, mirroring commit/rollback semantics.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// Store is an in-memory database satisfying domain.TxRunner.
type Store struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	accounts map[string]domain.Account
	txns     map[string]domain.Txn
	txnOrder []string
	markets  map[string]domain.Market
	bets     []domain.Bet
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{state: newState()}
}

func newState() *state {
	return &state{
		accounts: map[string]domain.Account{},
		txns:     map[string]domain.Txn{},
		markets:  map[string]domain.Market{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for id, a := range s.accounts {
		out.accounts[id] = a
	}
	for id, t := range s.txns {
		out.txns[id] = t
	}
	out.txnOrder = append([]string(nil), s.txnOrder...)
	for id, m := range s.markets {
		m.Pool = m.Pool.Clone()
		out.markets[id] = m
	}
	out.bets = append([]domain.Bet(nil), s.bets...)
	return out
}

// RunTx implements domain.TxRunner with commit-on-nil semantics.
func (s *Store) RunTx(ctx context.Context, fn func(tx domain.SettleTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Seed helpers let tests arrange state without opening a transaction.

// SeedAccount inserts or replaces an account.
func (s *Store) SeedAccount(a domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.accounts[a.ID] = a
}

// SeedMarket inserts or replaces a market.
func (s *Store) SeedMarket(m domain.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.markets[m.ID] = m
}

// Account returns a stored account for assertions.
func (s *Store) Account(id string) (domain.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.accounts[id]
	return a, ok
}

// Market returns a stored market for assertions.
func (s *Store) Market(id string) (domain.Market, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.state.markets[id]
	return m, ok
}

// Txns returns every txn in insertion order.
func (s *Store) Txns() []domain.Txn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Txn, 0, len(s.state.txnOrder))
	for _, id := range s.state.txnOrder {
		out = append(out, s.state.txns[id])
	}
	return out
}

// Bets returns every bet in insertion order.
func (s *Store) Bets() []domain.Bet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Bet(nil), s.state.bets...)
}

// tx binds the stores to one cloned state.
type tx struct {
	state *state
}

func (t *tx) Accounts() domain.AccountStore { return (*accountStore)(t) }
func (t *tx) Txns() domain.TxnStore         { return (*txnStore)(t) }
func (t *tx) Markets() domain.MarketStore   { return (*marketStore)(t) }
func (t *tx) Bets() domain.BetStore         { return (*betStore)(t) }

type accountStore tx

func (s *accountStore) Create(_ context.Context, a domain.Account) error {
	if _, ok := s.state.accounts[a.ID]; ok {
		return fmt.Errorf("memory: account %q: %w", a.ID, domain.ErrAlreadyExists)
	}
	s.state.accounts[a.ID] = a
	return nil
}

func (s *accountStore) GetByID(_ context.Context, id string) (domain.Account, error) {
	a, ok := s.state.accounts[id]
	if !ok {
		return domain.Account{}, fmt.Errorf("memory: account %q: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

func (s *accountStore) IncrementBalance(_ context.Context, id string, amount, deposit float64) error {
	a, ok := s.state.accounts[id]
	if !ok {
		return fmt.Errorf("memory: account %q: %w", id, domain.ErrNotFound)
	}
	a.Balance += amount
	a.TotalDeposits += deposit
	s.state.accounts[id] = a
	return nil
}

func (s *accountStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Account, error) {
	ids := make([]string, 0, len(s.state.accounts))
	for id := range s.state.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.state.accounts[id])
	}
	return out, nil
}

type txnStore tx

func (s *txnStore) Insert(_ context.Context, txn domain.Txn) error {
	if _, ok := s.state.txns[txn.ID]; ok {
		return fmt.Errorf("memory: txn %q: %w", txn.ID, domain.ErrAlreadyExists)
	}
	s.state.txns[txn.ID] = txn
	s.state.txnOrder = append(s.state.txnOrder, txn.ID)
	return nil
}

func (s *txnStore) GetByID(_ context.Context, id string) (domain.Txn, error) {
	t, ok := s.state.txns[id]
	if !ok {
		return domain.Txn{}, fmt.Errorf("memory: txn %q: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

func (s *txnStore) MarkReverted(_ context.Context, id string) error {
	t, ok := s.state.txns[id]
	if !ok {
		return fmt.Errorf("memory: txn %q: %w", id, domain.ErrNotFound)
	}
	t.Reverted = true
	s.state.txns[id] = t
	return nil
}

func (s *txnStore) ListContractPayouts(_ context.Context, marketID string) ([]domain.Txn, error) {
	var out []domain.Txn
	for _, id := range s.state.txnOrder {
		t := s.state.txns[id]
		if t.Category == domain.CategoryPayout && t.FromID == marketID && !t.Reverted {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *txnStore) NetAmount(_ context.Context, accountID string) (float64, error) {
	var net float64
	for _, t := range s.state.txns {
		if t.ToID == accountID && t.ToType == domain.PartyUser {
			net += t.Amount
		}
		if t.FromID == accountID && t.FromType == domain.PartyUser {
			net -= t.Amount
		}
	}
	return net, nil
}

func (s *txnStore) ListBefore(_ context.Context, before time.Time) ([]domain.Txn, error) {
	var out []domain.Txn
	for _, id := range s.state.txnOrder {
		if t := s.state.txns[id]; t.CreatedTime.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

type marketStore tx

func (s *marketStore) Create(_ context.Context, m domain.Market) error {
	if _, ok := s.state.markets[m.ID]; ok {
		return fmt.Errorf("memory: market %q: %w", m.ID, domain.ErrAlreadyExists)
	}
	s.state.markets[m.ID] = m
	return nil
}

func (s *marketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	m, ok := s.state.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("memory: market %q: %w", id, domain.ErrNotFound)
	}
	m.Pool = m.Pool.Clone()
	return m, nil
}

func (s *marketStore) GetForUpdate(ctx context.Context, id string) (domain.Market, error) {
	return s.GetByID(ctx, id)
}

func (s *marketStore) UpdatePool(_ context.Context, id string, pool domain.Pool) error {
	m, ok := s.state.markets[id]
	if !ok {
		return fmt.Errorf("memory: market %q: %w", id, domain.ErrNotFound)
	}
	m.Pool = pool.Clone()
	s.state.markets[id] = m
	return nil
}

func (s *marketStore) SetResolution(_ context.Context, id, resolution string, resolvedAt time.Time) error {
	m, ok := s.state.markets[id]
	if !ok {
		return fmt.Errorf("memory: market %q: %w", id, domain.ErrNotFound)
	}
	m.Resolved = true
	m.Resolution = resolution
	m.ResolvedTime = &resolvedAt
	s.state.markets[id] = m
	return nil
}

func (s *marketStore) ClearResolution(_ context.Context, id string, closeTime time.Time) error {
	m, ok := s.state.markets[id]
	if !ok {
		return fmt.Errorf("memory: market %q: %w", id, domain.ErrNotFound)
	}
	m.Resolved = false
	m.Resolution = ""
	m.ResolvedTime = nil
	m.CloseTime = closeTime
	s.state.markets[id] = m
	return nil
}

func (s *marketStore) ListOpen(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	ids := make([]string, 0, len(s.state.markets))
	for id, m := range s.state.markets {
		if !m.Resolved {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]domain.Market, 0, len(ids))
	for _, id := range ids {
		m := s.state.markets[id]
		m.Pool = m.Pool.Clone()
		out = append(out, m)
	}
	return out, nil
}

type betStore tx

func (s *betStore) Insert(_ context.Context, b domain.Bet) error {
	s.state.bets = append(s.state.bets, b)
	return nil
}

func (s *betStore) ListByMarket(_ context.Context, marketID string) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, b := range s.state.bets {
		if b.MarketID == marketID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *betStore) SumShares(_ context.Context, marketID, userID, outcome string) (float64, error) {
	var sum float64
	for _, b := range s.state.bets {
		if b.MarketID == marketID && b.UserID == userID && b.Outcome == outcome {
			sum += b.Shares
		}
	}
	return sum, nil
}

func (s *betStore) ListBefore(_ context.Context, before time.Time) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, b := range s.state.bets {
		if b.CreatedTime.Before(before) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Compile-time interface checks.
var (
	_ domain.TxRunner = (*Store)(nil)
	_ domain.SettleTx = (*tx)(nil)
)
