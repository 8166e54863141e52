package models

import (
	"time"
)

type TransactionKind string

const (
	KindDeposit     TransactionKind = "deposit"
	KindWithdrawal  TransactionKind = "withdrawal"
	KindEventCharge TransactionKind = "event_charge"
	KindEventRefund TransactionKind = "event_refund"
)

type TransactionStatus string

const (
	TxnCompleted TransactionStatus = "completed"
	TxnFailed    TransactionStatus = "failed"
	TxnReversed  TransactionStatus = "reversed"
)

// Transaction is one immutable balance change. Amount is signed (debits are
// negative) and Balance is the account balance after the change was applied.
type Transaction struct {
	ID        string            `json:"id" db:"id"`
	AccountID string            `json:"account_id" db:"account_id"`
	Kind      TransactionKind   `json:"kind" db:"kind"`
	Amount    int64             `json:"amount" db:"amount"` // in cents, signed
	Balance   int64             `json:"balance" db:"balance"`
	Status    TransactionStatus `json:"status" db:"status"`
	EventID   *string           `json:"event_id,omitempty" db:"event_id"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

func (t *Transaction) Active() bool {
	return t.Status == TxnCompleted
}
