package domain

import "time"

type TransactionType string

const (
	TransactionTypeDepositHold    TransactionType = "DEPOSIT_HOLD"
	TransactionTypeDepositRefund  TransactionType = "DEPOSIT_REFUND"
	TransactionTypeDepositForfeit TransactionType = "DEPOSIT_FORFEIT"
)

type LedgerTransaction struct {
	ID              int32           `json:"id"`
	UserID          int32           `json:"user_id"`
	Amount          int32           `json:"amount"` // positive for credit, negative for debit
	Type            TransactionType `json:"type"`
	RelatedBorrowID *int32          `json:"related_borrow_id,omitempty"`
	Reference       string          `json:"reference"`
	Description     string          `json:"description"`
	CreatedOn       time.Time       `json:"created_on"`
}
