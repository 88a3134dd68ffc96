package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the single canonical direction enum.
//
// DEBIT means the customer owes more (a charge, an advance, opening
// debt) and cash leaves the treasury. CREDIT means the customer owes
// less (a payment received) and cash enters the treasury. Manual
// entries without a customer use the same pair: CREDIT is income into
// the treasury, DEBIT is an expense out of it.
type TransactionType string

const (
	Debit  TransactionType = "DEBIT"
	Credit TransactionType = "CREDIT"
)

// PaymentMethod is how the cash moved.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "CASH"
	MethodTransfer PaymentMethod = "TRANSFER"
	MethodCheque   PaymentMethod = "CHEQUE"
)

// ReferenceType records what caused a transaction.
type ReferenceType string

const (
	RefManual         ReferenceType = "MANUAL"
	RefCustomerRecord ReferenceType = "CUSTOMER_RECORD"
	RefAdjustment     ReferenceType = "ADJUSTMENT"
)

// Transaction is an immutable cash movement against a treasury,
// optionally tied to a customer. Amount is always a positive
// magnitude; direction is carried solely by Type. Corrections happen
// via reversal transactions (ReferenceType ADJUSTMENT pointing at the
// original), never by editing a posted row.
type Transaction struct {
	ID            string          `json:"id" db:"id"`
	TreasuryID    string          `json:"treasury_id" db:"treasury_id"`
	CustomerID    *string         `json:"customer_id,omitempty" db:"customer_id"`
	Type          TransactionType `json:"type" db:"type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	PaymentMethod PaymentMethod   `json:"payment_method" db:"payment_method"`
	Description   string          `json:"description" db:"description"`
	ReferenceType ReferenceType   `json:"reference_type" db:"reference_type"`
	ReferenceID   *string         `json:"reference_id,omitempty" db:"reference_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Signed returns the amount with the customer-ledger sign applied:
// positive for DEBIT (owes more), negative for CREDIT.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Type == Debit {
		return t.Amount
	}
	return t.Amount.Neg()
}

// TreasuryDelta returns the cash-flow effect on the owning treasury:
// positive for CREDIT (cash in), negative for DEBIT (cash out).
func (t *Transaction) TreasuryDelta() decimal.Decimal {
	if t.Type == Credit {
		return t.Amount
	}
	return t.Amount.Neg()
}
