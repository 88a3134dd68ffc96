package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cashdesk/backend/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx so balance sums can
// run standalone or inside a write transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BalanceService computes customer balances and enforces credit
// limits. It never writes.
type BalanceService struct {
	db *sql.DB
}

func NewBalanceService(db *sql.DB) *BalanceService {
	return &BalanceService{db: db}
}

// CalculateBalance returns what a customer currently owes, split into
// the signed ledger sum and the unpaid remainder of open records.
//
// The two reads are separate queries without a shared snapshot, so the
// result is a best-effort view; a write landing between them can skew
// a single response. Acceptable at this system's scale.
func (s *BalanceService) CalculateBalance(ctx context.Context, customerID string) (*models.Balance, error) {
	ledger, err := s.ledgerSum(ctx, s.db, customerID)
	if err != nil {
		return nil, fmt.Errorf("ledger sum for customer %s: %w", customerID, err)
	}

	unpaid, err := s.unpaidRecordSum(ctx, s.db, customerID)
	if err != nil {
		return nil, fmt.Errorf("unpaid record sum for customer %s: %w", customerID, err)
	}

	return &models.Balance{
		Ledger:        ledger,
		UnpaidRecords: unpaid,
		Total:         ledger.Add(unpaid),
	}, nil
}

// CheckCreditLimit reports whether adding the given debit would keep
// the customer within their credit limit. A limit of zero or below
// means unlimited.
func (s *BalanceService) CheckCreditLimit(ctx context.Context, customerID string, additional decimal.Decimal) (bool, error) {
	var limit decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT credit_limit FROM customers WHERE id = $1`, customerID).Scan(&limit)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	if err != nil {
		return false, err
	}

	if limit.LessThanOrEqual(decimal.Zero) {
		return true, nil
	}

	balance, err := s.CalculateBalance(ctx, customerID)
	if err != nil {
		return false, err
	}
	return balance.Total.Add(additional).LessThanOrEqual(limit), nil
}

// GuardDebitTx enforces the credit limit inside a write transaction.
// It locks the customer row FOR UPDATE so concurrent debits against
// the same customer serialize at the database, then recomputes the
// balance through the same tx. Returns ErrNotFound, ErrInactiveEntity,
// or *CreditLimitError.
func (s *BalanceService) GuardDebitTx(ctx context.Context, tx *sql.Tx, customerID string, additional decimal.Decimal) error {
	var limit decimal.Decimal
	var isActive bool
	err := tx.QueryRowContext(ctx,
		`SELECT credit_limit, is_active FROM customers WHERE id = $1 FOR UPDATE`,
		customerID).Scan(&limit, &isActive)
	if err == sql.ErrNoRows {
		return fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if !isActive {
		return fmt.Errorf("customer %s: %w", customerID, ErrInactiveEntity)
	}

	if limit.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	ledger, err := s.ledgerSum(ctx, tx, customerID)
	if err != nil {
		return err
	}
	unpaid, err := s.unpaidRecordSum(ctx, tx, customerID)
	if err != nil {
		return err
	}

	wouldBe := ledger.Add(unpaid).Add(additional)
	if wouldBe.GreaterThan(limit) {
		return &CreditLimitError{CustomerID: customerID, Limit: limit, WouldBe: wouldBe}
	}
	return nil
}

// ledgerSum is the grouped conditional sum over the customer's ledger:
// DEBIT adds, CREDIT subtracts.
//
// Payments posted against a record (and reversals of those payments)
// are excluded: the record's paid_amount already reflects them, and
// unpaidRecordSum subtracts that remainder, so counting the CREDIT
// here as well would double-count every record payment.
func (s *BalanceService) ledgerSum(ctx context.Context, q querier, customerID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN type = 'DEBIT' THEN amount ELSE -amount END), 0)
		FROM transactions
		WHERE customer_id = $1
		  AND reference_type <> 'CUSTOMER_RECORD'
		  AND (reference_type <> 'ADJUSTMENT' OR reference_id NOT IN (
		      SELECT id FROM transactions WHERE reference_type = 'CUSTOMER_RECORD'))`,
		customerID).Scan(&sum)
	return sum, err
}

func (s *BalanceService) unpaidRecordSum(ctx context.Context, q querier, customerID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount - paid_amount), 0)
		FROM customer_records
		WHERE customer_id = $1 AND status IN ('OPEN', 'PARTIAL')`, customerID).Scan(&sum)
	return sum, err
}
