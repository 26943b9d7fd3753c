package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType determines the sign and spread of a transaction's balance
// effect. Transfers touch two accounts, everything else touches one.
type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeTransfer   TransactionType = "transfer"
)

// TransactionStatus is informational reconciliation state; it never affects
// balances.
type TransactionStatus string

const (
	StatusReconciled   TransactionStatus = "reconciled"
	StatusUnreconciled TransactionStatus = "unreconciled"
)

// Transaction is one ledger movement. ToAccountID is set iff Type is
// transfer. Version backs the optimistic concurrency check on updates.
type Transaction struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	UserID      uuid.UUID         `json:"userId" db:"user_id"`
	AccountID   uuid.UUID         `json:"accountId" db:"account_id"`
	ToAccountID *uuid.UUID        `json:"toAccountId,omitempty" db:"to_account_id"`
	CategoryID  *uuid.UUID        `json:"categoryId,omitempty" db:"category_id"`
	PayeeID     *uuid.UUID        `json:"payeeId,omitempty" db:"payee_id"`
	Type        TransactionType   `json:"type" db:"type"`
	Status      TransactionStatus `json:"status" db:"status"`
	Amount      decimal.Decimal   `json:"amount" db:"amount"`
	Date        time.Time         `json:"date" db:"date"`
	Notes       string            `json:"notes,omitempty" db:"notes"`
	Version     int               `json:"version" db:"version"`
	CreatedAt   time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time         `json:"updatedAt" db:"updated_at"`
}

// ValidTransactionType reports whether t is a supported transaction type.
func ValidTransactionType(t TransactionType) bool {
	return t == TypeDeposit || t == TypeWithdrawal || t == TypeTransfer
}

// ValidTransactionStatus reports whether s is a supported status.
func ValidTransactionStatus(s TransactionStatus) bool {
	return s == StatusReconciled || s == StatusUnreconciled
}
