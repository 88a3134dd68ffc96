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

// RecordService manages customer records (invoice-like obligations)
// and allocates payments against them.
type RecordService struct {
	db        *sql.DB
	balance   *BalanceService
	validator *ValidationHelper
}

func NewRecordService(db *sql.DB, balance *BalanceService) *RecordService {
	return &RecordService{
		db:        db,
		balance:   balance,
		validator: NewValidationHelper(),
	}
}

type CreateRecordInput struct {
	CustomerID  string          `json:"customer_id" validate:"required"`
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=1000"`
	TotalAmount decimal.Decimal `json:"total_amount" validate:"required"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
}

type PayRecordInput struct {
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	TreasuryID    string          `json:"treasury_id" validate:"required"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=CASH TRANSFER CHEQUE"`
	Description   string          `json:"description" validate:"max=500"`
}

// Create opens a new record. Creating a record increases what the
// customer owes, so the credit-limit guard runs inside the insert
// transaction.
func (rs *RecordService) Create(ctx context.Context, input CreateRecordInput) (*models.Record, error) {
	if input.TotalAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("total amount must be positive: %w", ErrInvalidAmount)
	}

	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := rs.balance.GuardDebitTx(ctx, tx, input.CustomerID, input.TotalAmount); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &models.Record{
		ID:          uuid.NewString(),
		CustomerID:  input.CustomerID,
		Title:       input.Title,
		Description: input.Description,
		TotalAmount: input.TotalAmount,
		PaidAmount:  decimal.Zero,
		DueDate:     input.DueDate,
		Status:      models.RecordOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO customer_records (id, customer_id, title, description,
			total_amount, paid_amount, due_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.CustomerID, record.Title, record.Description,
		record.TotalAmount, record.PaidAmount, record.DueDate,
		string(record.Status), record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return record, nil
}

// Pay allocates a payment against a record. The record update, the
// CREDIT ledger transaction, and the treasury balance refresh commit
// as one database transaction: if any write fails, none are visible.
// Overpayment is rejected outright; there is no spill-over to other
// records.
func (rs *RecordService) Pay(ctx context.Context, recordID string, input PayRecordInput) (*models.Transaction, error) {
	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	record, err := rs.lockRecord(ctx, tx, recordID)
	if err != nil {
		return nil, err
	}

	remaining := record.Remaining()
	if input.Amount.LessThanOrEqual(decimal.Zero) || input.Amount.GreaterThan(remaining) {
		return nil, fmt.Errorf("payment of %s against remaining %s: %w",
			input.Amount, remaining, ErrInvalidAmount)
	}

	var treasuryActive bool
	err = tx.QueryRowContext(ctx,
		`SELECT is_active FROM treasuries WHERE id = $1 FOR UPDATE`,
		input.TreasuryID).Scan(&treasuryActive)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("treasury %s: %w", input.TreasuryID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !treasuryActive {
		return nil, fmt.Errorf("treasury %s: %w", input.TreasuryID, ErrInactiveEntity)
	}

	newPaid := record.PaidAmount.Add(input.Amount)
	newStatus := models.DeriveRecordStatus(newPaid, record.TotalAmount)

	_, err = tx.ExecContext(ctx, `
		UPDATE customer_records
		SET paid_amount = $1, status = $2, updated_at = $3
		WHERE id = $4`,
		newPaid, string(newStatus), time.Now().UTC(), recordID)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	description := input.Description
	if description == "" {
		description = fmt.Sprintf("Payment for %s", record.Title)
	}

	payment := &models.Transaction{
		ID:            uuid.NewString(),
		TreasuryID:    input.TreasuryID,
		CustomerID:    &record.CustomerID,
		Type:          models.Credit,
		Amount:        input.Amount,
		PaymentMethod: models.PaymentMethod(input.PaymentMethod),
		Description:   description,
		ReferenceType: models.RefCustomerRecord,
		ReferenceID:   &record.ID,
		CreatedAt:     time.Now().UTC(),
	}

	if err := insertTransaction(ctx, tx, payment); err != nil {
		return nil, fmt.Errorf("insert payment transaction: %w", err)
	}
	if err := applyTreasuryDelta(ctx, tx, payment); err != nil {
		return nil, fmt.Errorf("refresh treasury balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[RECORD] Paid %s against record %s, now %s", input.Amount, recordID, newStatus)
	return payment, nil
}

// Get loads one record by id.
func (rs *RecordService) Get(ctx context.Context, recordID string) (*models.Record, error) {
	var r models.Record
	err := rs.db.QueryRowContext(ctx, `
		SELECT id, customer_id, title, description, total_amount, paid_amount,
		       due_date, status, created_at, updated_at
		FROM customer_records
		WHERE id = $1`, recordID).
		Scan(&r.ID, &r.CustomerID, &r.Title, &r.Description, &r.TotalAmount,
			&r.PaidAmount, &r.DueDate, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns records filtered by customer and/or status, oldest
// first.
func (rs *RecordService) List(ctx context.Context, customerID, status string) ([]models.Record, error) {
	query := `
		SELECT id, customer_id, title, description, total_amount, paid_amount,
		       due_date, status, created_at, updated_at
		FROM customer_records
		WHERE 1=1`
	args := []any{}

	if customerID != "" {
		args = append(args, customerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := rs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(&r.ID, &r.CustomerID, &r.Title, &r.Description,
			&r.TotalAmount, &r.PaidAmount, &r.DueDate, &r.Status,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (rs *RecordService) lockRecord(ctx context.Context, tx *sql.Tx, recordID string) (*models.Record, error) {
	var r models.Record
	err := tx.QueryRowContext(ctx, `
		SELECT id, customer_id, title, total_amount, paid_amount, status
		FROM customer_records
		WHERE id = $1
		FOR UPDATE`, recordID).
		Scan(&r.ID, &r.CustomerID, &r.Title, &r.TotalAmount, &r.PaidAmount, &r.Status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRecord opens a new customer record
// @Summary Create a customer record
// @Tags records
// @Accept json
// @Produce json
// @Param record body CreateRecordInput true "Record data"
// @Success 201 {object} models.Record
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /records [post]
func (rs *RecordService) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var input CreateRecordInput
	if err := DecodeJSONBody(w, r, &input); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := rs.validator.ValidateStruct(&input); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	record, err := rs.Create(r.Context(), input)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusCreated, record)
}

// ListRecords lists customer records
// @Summary List customer records
// @Tags records
// @Produce json
// @Param customer_id query string false "Filter by customer"
// @Param status query string false "Filter by status (OPEN, PARTIAL, PAID)"
// @Success 200 {array} models.Record
// @Router /records [get]
func (rs *RecordService) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := rs.List(r.Context(),
		r.URL.Query().Get("customer_id"),
		r.URL.Query().Get("status"))
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, records)
}

// GetRecord fetches one record
// @Summary Get a record by id
// @Tags records
// @Produce json
// @Param recordId path string true "Record ID"
// @Success 200 {object} models.Record
// @Failure 404 {object} ErrorResponse
// @Router /records/{recordId} [get]
func (rs *RecordService) GetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := rs.Get(r.Context(), chi.URLParam(r, "recordId"))
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, record)
}

// PayRecord allocates a payment against a record
// @Summary Pay against a record
// @Description Apply a partial or full payment; emits the matching CREDIT ledger transaction
// @Tags records
// @Accept json
// @Produce json
// @Param recordId path string true "Record ID"
// @Param payment body PayRecordInput true "Payment data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /records/{recordId}/pay [post]
func (rs *RecordService) PayRecord(w http.ResponseWriter, r *http.Request) {
	var input PayRecordInput
	if err := DecodeJSONBody(w, r, &input); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := rs.validator.ValidateStruct(&input); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	payment, err := rs.Pay(r.Context(), chi.URLParam(r, "recordId"), input)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusCreated, payment)
}
