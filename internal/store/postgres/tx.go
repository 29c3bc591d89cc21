package postgres

import (
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// settleTx binds the stores to one pgx transaction. It is the concrete
// domain.SettleTx handed to settlement code by Client.RunTx.
type settleTx struct {
	accounts *AccountStore
	txns     *TxnStore
	markets  *MarketStore
	bets     *BetStore
}

func newSettleTx(tx pgx.Tx) *settleTx {
	return &settleTx{
		accounts: NewAccountStore(tx),
		txns:     NewTxnStore(tx),
		markets:  NewMarketStore(tx),
		bets:     NewBetStore(tx),
	}
}

func (t *settleTx) Accounts() domain.AccountStore { return t.accounts }
func (t *settleTx) Txns() domain.TxnStore         { return t.txns }
func (t *settleTx) Markets() domain.MarketStore   { return t.markets }
func (t *settleTx) Bets() domain.BetStore         { return t.bets }

// Compile-time interface check.
var _ domain.SettleTx = (*settleTx)(nil)
