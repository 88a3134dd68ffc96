package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cashdesk/backend/internal/models"
)

// TransactionService posts ledger transactions and handles reversals.
// Posted transactions are immutable: there is no update and no delete,
// only an append-only compensating reversal.
type TransactionService struct {
	db        *sql.DB
	balance   *BalanceService
	validator *ValidationHelper
}

func NewTransactionService(db *sql.DB, balance *BalanceService) *TransactionService {
	return &TransactionService{
		db:        db,
		balance:   balance,
		validator: NewValidationHelper(),
	}
}

// CreateTransactionInput is a manual ledger entry.
type CreateTransactionInput struct {
	TreasuryID    string          `json:"treasury_id" validate:"required"`
	CustomerID    *string         `json:"customer_id,omitempty"`
	Type          string          `json:"type" validate:"required,oneof=DEBIT CREDIT"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=CASH TRANSFER CHEQUE"`
	Description   string          `json:"description" validate:"max=500"`
}

// ReverseTransactionInput requests a compensating transaction.
type ReverseTransactionInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Create posts a manual transaction. When the entry is a customer
// DEBIT (the customer owes more), the credit-limit guard runs inside
// the same database transaction as the insert, so a rejection leaves
// no partial state behind.
func (ts *TransactionService) Create(ctx context.Context, input CreateTransactionInput) (*models.Transaction, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be positive: %w", ErrInvalidAmount)
	}

	tx, err := ts.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := ts.checkTreasury(ctx, tx, input.TreasuryID); err != nil {
		return nil, err
	}

	if input.CustomerID != nil && models.TransactionType(input.Type) == models.Debit {
		if err := ts.balance.GuardDebitTx(ctx, tx, *input.CustomerID, input.Amount); err != nil {
			return nil, err
		}
	}

	txn := &models.Transaction{
		ID:            uuid.NewString(),
		TreasuryID:    input.TreasuryID,
		CustomerID:    input.CustomerID,
		Type:          models.TransactionType(input.Type),
		Amount:        input.Amount,
		PaymentMethod: models.PaymentMethod(input.PaymentMethod),
		Description:   input.Description,
		ReferenceType: models.RefManual,
		CreatedAt:     time.Now().UTC(),
	}

	if err := insertTransaction(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	if err := applyTreasuryDelta(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("refresh treasury balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[TRANSACTION] Posted %s %s against treasury %s", txn.Type, txn.Amount, txn.TreasuryID)
	return txn, nil
}

// Reverse creates the compensating transaction for a prior posting.
// The original is never mutated; a transaction may be reversed at most
// once, guarded by the reference_id lookup inside the same database
// transaction as the insert.
func (ts *TransactionService) Reverse(ctx context.Context, transactionID, reason string) (*models.Transaction, error) {
	tx, err := ts.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	original, err := ts.lockTransaction(ctx, tx, transactionID)
	if err != nil {
		return nil, err
	}

	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM transactions
		WHERE reference_type = 'ADJUSTMENT' AND reference_id = $1`,
		transactionID).Scan(&existing)
	if err == nil {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, ErrAlreadyReversed)
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	reversed := models.Credit
	if original.Type == models.Credit {
		reversed = models.Debit
	}

	reversal := &models.Transaction{
		ID:            uuid.NewString(),
		TreasuryID:    original.TreasuryID,
		CustomerID:    original.CustomerID,
		Type:          reversed,
		Amount:        original.Amount,
		PaymentMethod: original.PaymentMethod,
		Description:   fmt.Sprintf("Reversal of %s: %s", original.ID, reason),
		ReferenceType: models.RefAdjustment,
		ReferenceID:   &original.ID,
		CreatedAt:     time.Now().UTC(),
	}

	if err := insertTransaction(ctx, tx, reversal); err != nil {
		return nil, fmt.Errorf("insert reversal: %w", err)
	}
	if err := applyTreasuryDelta(ctx, tx, reversal); err != nil {
		return nil, fmt.Errorf("refresh treasury balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[TRANSACTION] Reversed %s with %s", original.ID, reversal.ID)
	return reversal, nil
}

// Get loads one transaction by id.
func (ts *TransactionService) Get(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var t models.Transaction
	err := ts.db.QueryRowContext(ctx, `
		SELECT id, treasury_id, customer_id, type, amount, payment_method,
		       description, reference_type, reference_id, created_at
		FROM transactions
		WHERE id = $1`, transactionID).
		Scan(&t.ID, &t.TreasuryID, &t.CustomerID, &t.Type, &t.Amount,
			&t.PaymentMethod, &t.Description, &t.ReferenceType, &t.ReferenceID,
			&t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns transactions newest first, optionally filtered by
// treasury, customer, and type.
func (ts *TransactionService) List(ctx context.Context, treasuryID, customerID, txType string, limit int) ([]models.Transaction, error) {
	query := `
		SELECT id, treasury_id, customer_id, type, amount, payment_method,
		       description, reference_type, reference_id, created_at
		FROM transactions
		WHERE 1=1`
	args := []any{}

	if treasuryID != "" {
		args = append(args, treasuryID)
		query += fmt.Sprintf(" AND treasury_id = $%d", len(args))
	}
	if customerID != "" {
		args = append(args, customerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	if txType != "" {
		args = append(args, txType)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := ts.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.TreasuryID, &t.CustomerID, &t.Type, &t.Amount,
			&t.PaymentMethod, &t.Description, &t.ReferenceType, &t.ReferenceID,
			&t.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func (ts *TransactionService) lockTransaction(ctx context.Context, tx *sql.Tx, transactionID string) (*models.Transaction, error) {
	var t models.Transaction
	err := tx.QueryRowContext(ctx, `
		SELECT id, treasury_id, customer_id, type, amount, payment_method,
		       description, reference_type, reference_id, created_at
		FROM transactions
		WHERE id = $1
		FOR UPDATE`, transactionID).
		Scan(&t.ID, &t.TreasuryID, &t.CustomerID, &t.Type, &t.Amount,
			&t.PaymentMethod, &t.Description, &t.ReferenceType, &t.ReferenceID,
			&t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (ts *TransactionService) checkTreasury(ctx context.Context, tx *sql.Tx, treasuryID string) error {
	var isActive bool
	err := tx.QueryRowContext(ctx,
		`SELECT is_active FROM treasuries WHERE id = $1 FOR UPDATE`, treasuryID).Scan(&isActive)
	if err == sql.ErrNoRows {
		return fmt.Errorf("treasury %s: %w", treasuryID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if !isActive {
		return fmt.Errorf("treasury %s: %w", treasuryID, ErrInactiveEntity)
	}
	return nil
}

// insertTransaction and applyTreasuryDelta always run together inside
// one sql.Tx so the cached treasury balance cannot drift from the
// transaction stream.
func insertTransaction(ctx context.Context, tx *sql.Tx, t *models.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, treasury_id, customer_id, type, amount,
			payment_method, description, reference_type, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.TreasuryID, t.CustomerID, string(t.Type), t.Amount,
		string(t.PaymentMethod), t.Description, string(t.ReferenceType),
		t.ReferenceID, t.CreatedAt)
	return err
}

func applyTreasuryDelta(ctx context.Context, tx *sql.Tx, t *models.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE treasuries
		SET current_balance = current_balance + $1, updated_at = $2
		WHERE id = $3`,
		t.TreasuryDelta(), time.Now().UTC(), t.TreasuryID)
	return err
}

// CreateTransaction handles manual transaction entry
// @Summary Create a manual ledger transaction
// @Tags transactions
// @Accept json
// @Produce json
// @Param transaction body CreateTransactionInput true "Transaction data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /transactions [post]
func (ts *TransactionService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var input CreateTransactionInput
	if err := DecodeJSONBody(w, r, &input); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := ts.validator.ValidateStruct(&input); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	txn, err := ts.Create(r.Context(), input)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusCreated, txn)
}

// ListTransactions lists transactions with optional filters
// @Summary List transactions
// @Tags transactions
// @Produce json
// @Param treasury_id query string false "Filter by treasury"
// @Param customer_id query string false "Filter by customer"
// @Param type query string false "Filter by type (DEBIT or CREDIT)"
// @Success 200 {array} models.Transaction
// @Router /transactions [get]
func (ts *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := ts.List(r.Context(),
		r.URL.Query().Get("treasury_id"),
		r.URL.Query().Get("customer_id"),
		r.URL.Query().Get("type"), 0)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, transactions)
}

// GetTransaction fetches one transaction
// @Summary Get a transaction by id
// @Tags transactions
// @Produce json
// @Param txId path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} ErrorResponse
// @Router /transactions/{txId} [get]
func (ts *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := ts.Get(r.Context(), chi.URLParam(r, "txId"))
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, txn)
}

// ReverseTransaction creates a compensating transaction
// @Summary Reverse a transaction
// @Description Append a compensating transaction that negates a prior posting without mutating history
// @Tags transactions
// @Accept json
// @Produce json
// @Param txId path string true "Transaction ID"
// @Param request body ReverseTransactionInput true "Reversal reason"
// @Success 201 {object} models.Transaction
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /transactions/{txId}/reverse [post]
func (ts *TransactionService) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	var input ReverseTransactionInput
	if err := DecodeJSONBody(w, r, &input); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := ts.validator.ValidateStruct(&input); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	reversal, err := ts.Reverse(r.Context(), chi.URLParam(r, "txId"), input.Reason)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusCreated, reversal)
}
