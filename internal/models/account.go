package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType classifies an account for display purposes only. It has no
// effect on balance math.
type AccountType string

const (
	AccountSavings    AccountType = "savings"
	AccountChecking   AccountType = "checking"
	AccountCredit     AccountType = "credit"
	AccountCash       AccountType = "cash"
	AccountInvestment AccountType = "investment"
	AccountLoan       AccountType = "loan"
	AccountDemat      AccountType = "demat"
	AccountOther      AccountType = "other"
)

// Account is a single-balance ledger account owned by one user. Balance is
// mutated only through the ledger engine's atomic increments; every other
// field is plain metadata.
type Account struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"userId" db:"user_id"`
	Name        string          `json:"name" db:"name"`
	Type        AccountType     `json:"type" db:"type"`
	Currency    string          `json:"currency" db:"currency"`
	Balance     decimal.Decimal `json:"balance" db:"balance"`
	CreditLimit decimal.Decimal `json:"creditLimit" db:"credit_limit"` // display only for credit/loan
	Description string          `json:"description,omitempty" db:"description"`
	StartDate   time.Time       `json:"startDate" db:"start_date"`
	ClosedDate  *time.Time      `json:"closedDate,omitempty" db:"closed_date"`
	IsActive    bool            `json:"isActive" db:"is_active"`
	Notes       string          `json:"notes,omitempty" db:"notes"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// ValidAccountType reports whether t is one of the supported account types.
func ValidAccountType(t AccountType) bool {
	switch t {
	case AccountSavings, AccountChecking, AccountCredit, AccountCash,
		AccountInvestment, AccountLoan, AccountDemat, AccountOther:
		return true
	}
	return false
}
