package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ObligationStatus is a two-state machine: OPEN <-> DONE.
type ObligationStatus string

const (
	ObligationOpen ObligationStatus = "OPEN"
	ObligationDone ObligationStatus = "DONE"
)

// Obligation is a business payable owed to an external party,
// independent of any customer account. DoneAt is set iff the status
// is DONE.
type Obligation struct {
	ID          string           `json:"id" db:"id"`
	Title       string           `json:"title" db:"title"`
	Description string           `json:"description" db:"description"`
	Amount      decimal.Decimal  `json:"amount" db:"amount"`
	PartyName   string           `json:"party_name" db:"party_name"`
	DueDate     *time.Time       `json:"due_date,omitempty" db:"due_date"`
	Status      ObligationStatus `json:"status" db:"status"`
	DoneAt      *time.Time       `json:"done_at,omitempty" db:"done_at"`
	Notes       string           `json:"notes" db:"notes"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}
