package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerCategory classifies a customer for reporting purposes.
type CustomerCategory string

const (
	CategoryRegular   CustomerCategory = "regular"
	CategoryVIP       CustomerCategory = "vip"
	CategoryWholesale CustomerCategory = "wholesale"
)

// Customer is an account holder with an optional credit limit.
// A CreditLimit of zero means unlimited - no enforcement is applied.
type Customer struct {
	ID             string           `json:"id" db:"id"`
	Name           string           `json:"name" db:"name"`
	Phone          string           `json:"phone" db:"phone"`
	Email          string           `json:"email" db:"email"`
	Address        string           `json:"address" db:"address"`
	Category       CustomerCategory `json:"category" db:"category"`
	CreditLimit    decimal.Decimal  `json:"credit_limit" db:"credit_limit"`
	OpeningBalance decimal.Decimal  `json:"opening_balance" db:"opening_balance"`
	IsActive       bool             `json:"is_active" db:"is_active"`
	Notes          string           `json:"notes" db:"notes"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// Balance is what a customer currently owes, split by source.
// Total = Ledger + UnpaidRecords. Positive means the customer owes
// the business; negative means the business owes the customer.
type Balance struct {
	Ledger        decimal.Decimal `json:"ledger"`
	UnpaidRecords decimal.Decimal `json:"unpaid_records"`
	Total         decimal.Decimal `json:"total"`
}

// CustomerSummary bundles a customer with their balance and most
// recent ledger activity for the account overview page.
type CustomerSummary struct {
	Customer     Customer      `json:"customer"`
	Balance      Balance       `json:"balance"`
	Transactions []Transaction `json:"transactions"`
}
