package domain

import "time"

// PartyType classifies the sender or receiver of a ledger transaction.
type PartyType string

const (
	PartyUser     PartyType = "USER"
	PartyBank     PartyType = "BANK"
	PartyContract PartyType = "CONTRACT"
)

// TxnCategory identifies what kind of value movement a transaction records.
type TxnCategory string

const (
	CategoryBet           TxnCategory = "BET"
	CategorySellShares    TxnCategory = "SELL_SHARES"
	CategoryAnte          TxnCategory = "CREATE_CONTRACT_ANTE"
	CategoryPayout        TxnCategory = "CONTRACT_RESOLUTION_PAYOUT"
	CategoryUndoPayout    TxnCategory = "CONTRACT_UNDO_RESOLUTION_PAYOUT"
	CategoryManaTransfer  TxnCategory = "MANA_PAYMENT"
	CategorySignupBonus   TxnCategory = "SIGNUP_BONUS"
	CategoryLoan          TxnCategory = "LOAN"
	CategoryLoanRepayment TxnCategory = "LOAN_REPAYMENT"
)

// TokenMana is the play-money token every core transaction is denominated in.
const TokenMana = "M$"

// Txn is one immutable row of the ledger. After insertion only the Reverted
// flag may change; amounts, parties, and payload are never edited. An
// account's balance is its initial balance plus the signed sum of all txn
// amounts naming it, so a reversal is recorded as a second offsetting row and
// Reverted merely links the original to it.
type Txn struct {
	ID          string
	CreatedTime time.Time
	FromID      string
	FromType    PartyType
	ToID        string
	ToType      PartyType
	Amount      float64
	Category    TxnCategory
	Token       string
	Data        map[string]any
	Reverted    bool
}

// TxnData is the caller-supplied portion of a transaction, before the ledger
// assigns an id and timestamp.
type TxnData struct {
	FromID   string
	FromType PartyType
	ToID     string
	ToType   PartyType
	Amount   float64
	Category TxnCategory
	Token    string
	Data     map[string]any
}
