package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TreasuryType distinguishes physical cash boxes from bank accounts.
type TreasuryType string

const (
	TreasuryCash      TreasuryType = "CASH"
	TreasuryBank      TreasuryType = "BANK"
	TreasuryPettyCash TreasuryType = "PETTY_CASH"
)

// Treasury is a cash box or bank account that transactions post against.
//
// CurrentBalance is a cache, not a source of truth. It is refreshed in
// the same database transaction as every posting, and read paths
// recompute it from the transaction stream anyway (see
// TreasuryService.ComputedBalance). Never trust a stale read of it.
type Treasury struct {
	ID             string          `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Type           TreasuryType    `json:"type" db:"type"`
	Currency       string          `json:"currency" db:"currency"`
	InitialBalance decimal.Decimal `json:"initial_balance" db:"initial_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance" db:"current_balance"`
	MinBalance     decimal.Decimal `json:"min_balance" db:"min_balance"`
	IsDefault      bool            `json:"is_default" db:"is_default"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	ClosedAt       *time.Time      `json:"closed_at" db:"closed_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}
