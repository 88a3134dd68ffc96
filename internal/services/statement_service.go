package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cashdesk/backend/internal/models"
)

// StatementService reconstructs the chronological running-balance
// statement for a customer. It fuses three event sources: one opening
// balance pseudo-event, the customer's records, and the customer's
// ledger transactions. Read-only and deterministic: re-running with
// unchanged data yields an identical statement.
type StatementService struct {
	db *sql.DB
}

func NewStatementService(db *sql.DB) *StatementService {
	return &StatementService{db: db}
}

// Generate builds the statement for one customer.
//
// Events with identical timestamps keep input order: opening first,
// then records, then transactions, each group in created_at order with
// id as the final in-group comparator. The stable sort preserves that
// ordering, which makes ties reproducible.
func (s *StatementService) Generate(ctx context.Context, customerID string) (*models.Statement, error) {
	customer, err := s.loadCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	events := make([]models.StatementEntry, 0, 16)

	// Opening balance pseudo-event, dated at customer creation. A
	// positive opening balance is debt the customer starts with; a
	// negative one is credit the business owes them. A zero opening
	// balance produces no event.
	if !customer.OpeningBalance.IsZero() {
		opening := models.StatementEntry{
			Date:  customer.CreatedAt,
			Title: "Opening balance",
		}
		if customer.OpeningBalance.IsNegative() {
			opening.Credit = customer.OpeningBalance.Neg()
		} else {
			opening.Debit = customer.OpeningBalance
		}
		events = append(events, opening)
	}

	// Records appear once, at their full total. Payments against them
	// show up as their own ledger transactions, not as edits here.
	recordEvents, err := s.recordEvents(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("statement records for customer %s: %w", customerID, err)
	}
	events = append(events, recordEvents...)

	txEvents, err := s.transactionEvents(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("statement transactions for customer %s: %w", customerID, err)
	}
	events = append(events, txEvents...)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})

	balance := decimal.Zero
	for i := range events {
		balance = balance.Add(events[i].Debit).Sub(events[i].Credit)
		events[i].Balance = balance
	}

	return &models.Statement{
		Customer:       *customer,
		OpeningBalance: customer.OpeningBalance,
		CurrentBalance: balance,
		Statement:      events,
	}, nil
}

func (s *StatementService) loadCustomer(ctx context.Context, customerID string) (*models.Customer, error) {
	var c models.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, address, category, credit_limit,
		       opening_balance, is_active, notes, created_at, updated_at
		FROM customers
		WHERE id = $1`, customerID).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Category,
			&c.CreditLimit, &c.OpeningBalance, &c.IsActive, &c.Notes,
			&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// recordEvents normalizes each record into a debit event: a record
// always increases what is owed at the time it is created.
func (s *StatementService) recordEvents(ctx context.Context, customerID string) ([]models.StatementEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, total_amount, created_at
		FROM customer_records
		WHERE customer_id = $1
		ORDER BY created_at ASC, id ASC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.StatementEntry
	for rows.Next() {
		var title string
		var total decimal.Decimal
		var createdAt time.Time
		if err := rows.Scan(&title, &total, &createdAt); err != nil {
			return nil, err
		}
		events = append(events, models.StatementEntry{
			Date:  createdAt,
			Title: title,
			Debit: total,
		})
	}
	return events, rows.Err()
}

func (s *StatementService) transactionEvents(ctx context.Context, customerID string) ([]models.StatementEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, amount, description, created_at
		FROM transactions
		WHERE customer_id = $1
		ORDER BY created_at ASC, id ASC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.StatementEntry
	for rows.Next() {
		var txType models.TransactionType
		var amount decimal.Decimal
		var description string
		var createdAt time.Time
		if err := rows.Scan(&txType, &amount, &description, &createdAt); err != nil {
			return nil, err
		}
		entry := models.StatementEntry{Date: createdAt, Title: description}
		if txType == models.Debit {
			entry.Debit = amount
		} else {
			entry.Credit = amount
		}
		events = append(events, entry)
	}
	return events, rows.Err()
}
