package domain

import "time"

// Bet records one trade against a market's pool. A sale of shares is stored
// as a bet with negative Amount and Shares, so a user's position in an
// outcome is simply the sum of their bets' Shares for that outcome.
type Bet struct {
	ID          string
	UserID      string
	MarketID    string
	Outcome     string
	Amount      float64
	Shares      float64
	ProbBefore  float64
	ProbAfter   float64
	CreatedTime time.Time
}

// BetRequest is a caller's intent to trade, before admission and pricing.
type BetRequest struct {
	UserID   string
	MarketID string
	Outcome  string
	Amount   float64
}

// SellRequest is a caller's intent to sell previously bought shares.
type SellRequest struct {
	UserID   string
	MarketID string
	Outcome  string
	Shares   float64
}

// BetResult is the settled outcome of a trade: the recorded bet and the
// ledger txn that moved the money.
type BetResult struct {
	Bet Bet
	Txn Txn
}
