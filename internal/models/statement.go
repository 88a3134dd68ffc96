package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatementEntry is one line of a customer statement: an opening
// balance pseudo-event, a record, or a ledger transaction, normalized
// into debit/credit columns with the running balance after the event.
// Entries are derived per request and never persisted.
type StatementEntry struct {
	Date    time.Time       `json:"date"`
	Title   string          `json:"title"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Balance decimal.Decimal `json:"balance"`
}

// Statement is the full chronological running-balance view for one
// customer. CurrentBalance equals the Balance of the last entry.
type Statement struct {
	Customer       Customer         `json:"customer"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
	CurrentBalance decimal.Decimal  `json:"current_balance"`
	Statement      []StatementEntry `json:"statement"`
}
