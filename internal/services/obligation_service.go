package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cashdesk/backend/internal/models"
)

// ObligationService manages business payables. An obligation is a
// two-state machine: OPEN <-> DONE. Marking done sets done_at,
// reopening clears it, and marking an already-done obligation done
// again is an error.
type ObligationService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewObligationService(db *sql.DB) *ObligationService {
	return &ObligationService{db: db, validator: NewValidationHelper()}
}

type ObligationInput struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=1000"`
	Amount      decimal.Decimal `json:"amount"`
	PartyName   string          `json:"party_name" validate:"required,max=200"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Notes       string          `json:"notes" validate:"max=1000"`
}

// Create inserts a new obligation in the OPEN state.
func (os *ObligationService) Create(ctx context.Context, input ObligationInput) (*models.Obligation, error) {
	if input.Amount.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative: %w", ErrInvalidAmount)
	}

	now := time.Now().UTC()
	obligation := &models.Obligation{
		ID:          uuid.NewString(),
		Title:       input.Title,
		Description: input.Description,
		Amount:      input.Amount,
		PartyName:   input.PartyName,
		DueDate:     input.DueDate,
		Status:      models.ObligationOpen,
		Notes:       input.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := os.db.ExecContext(ctx, `
		INSERT INTO obligations (id, title, description, amount, party_name,
			due_date, status, done_at, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8, $9, $10)`,
		obligation.ID, obligation.Title, obligation.Description,
		obligation.Amount, obligation.PartyName, obligation.DueDate,
		string(obligation.Status), obligation.Notes,
		obligation.CreatedAt, obligation.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert obligation: %w", err)
	}
	return obligation, nil
}

// MarkDone transitions OPEN -> DONE and stamps done_at. The row lock
// makes the double-done check race-free.
func (os *ObligationService) MarkDone(ctx context.Context, obligationID string) (*models.Obligation, error) {
	return os.transition(ctx, obligationID, models.ObligationDone)
}

// Reopen transitions DONE -> OPEN and clears done_at.
func (os *ObligationService) Reopen(ctx context.Context, obligationID string) (*models.Obligation, error) {
	return os.transition(ctx, obligationID, models.ObligationOpen)
}

func (os *ObligationService) transition(ctx context.Context, obligationID string, target models.ObligationStatus) (*models.Obligation, error) {
	tx, err := os.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current models.ObligationStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM obligations WHERE id = $1 FOR UPDATE`,
		obligationID).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("obligation %s: %w", obligationID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if current == target {
		if target == models.ObligationDone {
			return nil, fmt.Errorf("obligation %s: %w", obligationID, ErrAlreadyDone)
		}
		return nil, fmt.Errorf("obligation %s: %w", obligationID, ErrAlreadyOpen)
	}

	var doneAt *time.Time
	if target == models.ObligationDone {
		now := time.Now().UTC()
		doneAt = &now
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE obligations
		SET status = $1, done_at = $2, updated_at = $3
		WHERE id = $4`,
		string(target), doneAt, time.Now().UTC(), obligationID)
	if err != nil {
		return nil, fmt.Errorf("update obligation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return os.Get(ctx, obligationID)
}

// Get loads one obligation by id.
func (os *ObligationService) Get(ctx context.Context, obligationID string) (*models.Obligation, error) {
	var o models.Obligation
	err := os.db.QueryRowContext(ctx, `
		SELECT id, title, description, amount, party_name, due_date, status,
		       done_at, notes, created_at, updated_at
		FROM obligations
		WHERE id = $1`, obligationID).
		Scan(&o.ID, &o.Title, &o.Description, &o.Amount, &o.PartyName,
			&o.DueDate, &o.Status, &o.DoneAt, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("obligation %s: %w", obligationID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// List returns obligations, optionally filtered by status and a due
// window (the reminder feed), soonest due first.
func (os *ObligationService) List(ctx context.Context, status string, dueBefore *time.Time) ([]models.Obligation, error) {
	query := `
		SELECT id, title, description, amount, party_name, due_date, status,
		       done_at, notes, created_at, updated_at
		FROM obligations
		WHERE 1=1`
	args := []any{}

	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if dueBefore != nil {
		args = append(args, *dueBefore)
		query += fmt.Sprintf(" AND due_date IS NOT NULL AND due_date <= $%d", len(args))
	}
	query += " ORDER BY due_date ASC NULLS LAST, created_at ASC"

	rows, err := os.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	obligations := []models.Obligation{}
	for rows.Next() {
		var o models.Obligation
		if err := rows.Scan(&o.ID, &o.Title, &o.Description, &o.Amount,
			&o.PartyName, &o.DueDate, &o.Status, &o.DoneAt, &o.Notes,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		obligations = append(obligations, o)
	}
	return obligations, rows.Err()
}

// Update edits the descriptive attributes; status transitions go
// through MarkDone/Reopen only.
func (os *ObligationService) Update(ctx context.Context, obligationID string, input ObligationInput) (*models.Obligation, error) {
	if input.Amount.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative: %w", ErrInvalidAmount)
	}

	result, err := os.db.ExecContext(ctx, `
		UPDATE obligations
		SET title = $1, description = $2, amount = $3, party_name = $4,
		    due_date = $5, notes = $6, updated_at = $7
		WHERE id = $8`,
		input.Title, input.Description, input.Amount, input.PartyName,
		input.DueDate, input.Notes, time.Now().UTC(), obligationID)
	if err != nil {
		return nil, fmt.Errorf("update obligation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("obligation %s: %w", obligationID, ErrNotFound)
	}
	return os.Get(ctx, obligationID)
}

// Delete removes an obligation. Unlike ledger transactions,
// obligations are deletable at any time.
func (os *ObligationService) Delete(ctx context.Context, obligationID string) error {
	result, err := os.db.ExecContext(ctx,
		`DELETE FROM obligations WHERE id = $1`, obligationID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("obligation %s: %w", obligationID, ErrNotFound)
	}
	return nil
}

// CreateObligation creates a payable
// @Summary Create an obligation
// @Tags obligations
// @Accept json
// @Produce json
// @Param obligation body ObligationInput true "Obligation data"
// @Success 201 {object} models.Obligation
// @Failure 400 {object} ErrorResponse
// @Router /obligations [post]
func (os *ObligationService) CreateObligation(w http.ResponseWriter, r *http.Request) {
	var input ObligationInput
	if err := DecodeJSONBody(w, r, &input); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := os.validator.ValidateStruct(&input); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	obligation, err := os.Create(r.Context(), input)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusCreated, obligation)
}

// ListObligations lists payables
// @Summary List obligations
// @Tags obligations
// @Produce json
// @Param status query string false "Filter by status (OPEN or DONE)"
// @Param due_before query string false "Only obligations due on or before this RFC 3339 time"
// @Success 200 {array} models.Obligation
// @Router /obligations [get]
func (os *ObligationService) ListObligations(w http.ResponseWriter, r *http.Request) {
	var dueBefore *time.Time
	if raw := r.URL.Query().Get("due_before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			SendErrorResponse(w, "Invalid due_before timestamp", http.StatusBadRequest, nil)
			return
		}
		dueBefore = &parsed
	}

	obligations, err := os.List(r.Context(), r.URL.Query().Get("status"), dueBefore)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, obligations)
}

// GetObligation fetches one payable
// @Summary Get an obligation by id
// @Tags obligations
// @Produce json
// @Param obligationId path string true "Obligation ID"
// @Success 200 {object} models.Obligation
// @Failure 404 {object} ErrorResponse
// @Router /obligations/{obligationId} [get]
func (os *ObligationService) GetObligation(w http.ResponseWriter, r *http.Request) {
	obligation, err := os.Get(r.Context(), chi.URLParam(r, "obligationId"))
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, obligation)
}

// UpdateObligation edits a payable
// @Summary Update an obligation
// @Tags obligations
// @Accept json
// @Produce json
// @Param obligationId path string true "Obligation ID"
// @Param obligation body ObligationInput true "Obligation data"
// @Success 200 {object} models.Obligation
// @Failure 404 {object} ErrorResponse
// @Router /obligations/{obligationId} [put]
func (os *ObligationService) UpdateObligation(w http.ResponseWriter, r *http.Request) {
	var input ObligationInput
	if err := DecodeJSONBody(w, r, &input); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := os.validator.ValidateStruct(&input); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	obligation, err := os.Update(r.Context(), chi.URLParam(r, "obligationId"), input)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, obligation)
}

// DeleteObligation removes a payable
// @Summary Delete an obligation
// @Tags obligations
// @Param obligationId path string true "Obligation ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /obligations/{obligationId} [delete]
func (os *ObligationService) DeleteObligation(w http.ResponseWriter, r *http.Request) {
	err := os.Delete(r.Context(), chi.URLParam(r, "obligationId"))
	if RespondBusinessError(w, err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkObligationDone marks a payable settled
// @Summary Mark an obligation done
// @Tags obligations
// @Produce json
// @Param obligationId path string true "Obligation ID"
// @Success 200 {object} models.Obligation
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /obligations/{obligationId}/done [post]
func (os *ObligationService) MarkObligationDone(w http.ResponseWriter, r *http.Request) {
	obligation, err := os.MarkDone(r.Context(), chi.URLParam(r, "obligationId"))
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, obligation)
}

// ReopenObligation reopens a settled payable
// @Summary Reopen an obligation
// @Tags obligations
// @Produce json
// @Param obligationId path string true "Obligation ID"
// @Success 200 {object} models.Obligation
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /obligations/{obligationId}/reopen [post]
func (os *ObligationService) ReopenObligation(w http.ResponseWriter, r *http.Request) {
	obligation, err := os.Reopen(r.Context(), chi.URLParam(r, "obligationId"))
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, obligation)
}
