package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordStatus is derived from paid vs total, never set directly.
type RecordStatus string

const (
	RecordOpen    RecordStatus = "OPEN"
	RecordPartial RecordStatus = "PARTIAL"
	RecordPaid    RecordStatus = "PAID"
)

// Record is an invoice-like obligation a customer owes, reduced over
// time by payments. Invariant: 0 <= PaidAmount <= TotalAmount, and
// Status always matches DeriveRecordStatus(PaidAmount, TotalAmount).
type Record struct {
	ID          string          `json:"id" db:"id"`
	CustomerID  string          `json:"customer_id" db:"customer_id"`
	Title       string          `json:"title" db:"title"`
	Description string          `json:"description" db:"description"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	DueDate     *time.Time      `json:"due_date,omitempty" db:"due_date"`
	Status      RecordStatus    `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Remaining is the unpaid portion of the record.
func (r *Record) Remaining() decimal.Decimal {
	return r.TotalAmount.Sub(r.PaidAmount)
}

// DeriveRecordStatus computes the status a record must carry for a
// given paid/total pair. Stored status is recomputed through this on
// every mutation so it cannot drift.
func DeriveRecordStatus(paid, total decimal.Decimal) RecordStatus {
	switch {
	case paid.LessThanOrEqual(decimal.Zero):
		return RecordOpen
	case paid.GreaterThanOrEqual(total):
		return RecordPaid
	default:
		return RecordPartial
	}
}
