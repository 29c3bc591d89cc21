package domain

import "time"

// Account is a balance-carrying party, typically a user. Balance is an
// aggregate over the ledger: initial balance plus the signed sum of every
// txn amount naming the account. TotalDeposits tracks how much of the
// balance came from outside the platform's markets, which the original
// platform uses for profit accounting.
type Account struct {
	ID            string
	Username      string
	Balance       float64
	TotalDeposits float64
	CreatedTime   time.Time
}
