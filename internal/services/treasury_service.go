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

// TreasuryService manages cash boxes and bank accounts. Read paths
// always recompute the balance from the transaction stream; the stored
// current_balance column is only a cache kept fresh by the posting
// code.
type TreasuryService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewTreasuryService(db *sql.DB) *TreasuryService {
	return &TreasuryService{db: db, validator: NewValidationHelper()}
}

type TreasuryInput struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Type           string          `json:"type" validate:"required,oneof=CASH BANK PETTY_CASH"`
	Currency       string          `json:"currency" validate:"required,len=3"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	MinBalance     decimal.Decimal `json:"min_balance"`
	IsDefault      bool            `json:"is_default"`
}

type UpdateTreasuryInput struct {
	Name       string          `json:"name" validate:"required,max=200"`
	MinBalance decimal.Decimal `json:"min_balance"`
	IsDefault  bool            `json:"is_default"`
	IsActive   bool            `json:"is_active"`
}

// Create opens a new treasury. Names are unique across treasuries.
func (ts *TreasuryService) Create(ctx context.Context, input TreasuryInput) (*models.Treasury, error) {
	var exists string
	err := ts.db.QueryRowContext(ctx,
		`SELECT id FROM treasuries WHERE name = $1`, input.Name).Scan(&exists)
	if err == nil {
		return nil, fmt.Errorf("treasury name %q: %w", input.Name, ErrDuplicateName)
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now().UTC()
	treasury := &models.Treasury{
		ID:             uuid.NewString(),
		Name:           input.Name,
		Type:           models.TreasuryType(input.Type),
		Currency:       input.Currency,
		InitialBalance: input.InitialBalance,
		CurrentBalance: input.InitialBalance,
		MinBalance:     input.MinBalance,
		IsDefault:      input.IsDefault,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err = ts.db.ExecContext(ctx, `
		INSERT INTO treasuries (id, name, type, currency, initial_balance,
			current_balance, min_balance, is_default, is_active, closed_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, $10, $11)`,
		treasury.ID, treasury.Name, string(treasury.Type), treasury.Currency,
		treasury.InitialBalance, treasury.CurrentBalance, treasury.MinBalance,
		treasury.IsDefault, treasury.IsActive, treasury.CreatedAt, treasury.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert treasury: %w", err)
	}
	return treasury, nil
}

// Get loads one treasury with its balance recomputed from the
// transaction stream.
func (ts *TreasuryService) Get(ctx context.Context, treasuryID string) (*models.Treasury, error) {
	treasury, err := ts.load(ctx, treasuryID)
	if err != nil {
		return nil, err
	}
	balance, err := ts.ComputedBalance(ctx, treasuryID)
	if err != nil {
		return nil, err
	}
	treasury.CurrentBalance = balance
	return treasury, nil
}

// Update edits the mutable attributes. Deactivating sets closed_at;
// reactivating clears it.
func (ts *TreasuryService) Update(ctx context.Context, treasuryID string, input UpdateTreasuryInput) (*models.Treasury, error) {
	var taken string
	err := ts.db.QueryRowContext(ctx,
		`SELECT id FROM treasuries WHERE name = $1 AND id <> $2`,
		input.Name, treasuryID).Scan(&taken)
	if err == nil {
		return nil, fmt.Errorf("treasury name %q: %w", input.Name, ErrDuplicateName)
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	var closedAt *time.Time
	if !input.IsActive {
		now := time.Now().UTC()
		closedAt = &now
	}

	result, err := ts.db.ExecContext(ctx, `
		UPDATE treasuries
		SET name = $1, min_balance = $2, is_default = $3, is_active = $4,
		    closed_at = $5, updated_at = $6
		WHERE id = $7`,
		input.Name, input.MinBalance, input.IsDefault, input.IsActive,
		closedAt, time.Now().UTC(), treasuryID)
	if err != nil {
		return nil, fmt.Errorf("update treasury: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("treasury %s: %w", treasuryID, ErrNotFound)
	}
	return ts.Get(ctx, treasuryID)
}

// List returns all treasuries with recomputed balances.
func (ts *TreasuryService) List(ctx context.Context) ([]models.Treasury, error) {
	rows, err := ts.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.type, t.currency, t.initial_balance,
		       t.initial_balance + COALESCE(SUM(CASE WHEN x.type = 'CREDIT' THEN x.amount ELSE -x.amount END), 0),
		       t.min_balance, t.is_default, t.is_active, t.closed_at,
		       t.created_at, t.updated_at
		FROM treasuries t
		LEFT JOIN transactions x ON x.treasury_id = t.id
		GROUP BY t.id
		ORDER BY t.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	treasuries := []models.Treasury{}
	for rows.Next() {
		var t models.Treasury
		if err := rows.Scan(&t.ID, &t.Name, &t.Type, &t.Currency,
			&t.InitialBalance, &t.CurrentBalance, &t.MinBalance, &t.IsDefault,
			&t.IsActive, &t.ClosedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		treasuries = append(treasuries, t)
	}
	return treasuries, rows.Err()
}

// ComputedBalance is initial balance plus the signed sum of the
// treasury's transactions: CREDIT is cash in, DEBIT is cash out.
func (ts *TreasuryService) ComputedBalance(ctx context.Context, treasuryID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := ts.db.QueryRowContext(ctx, `
		SELECT t.initial_balance + COALESCE(SUM(CASE WHEN x.type = 'CREDIT' THEN x.amount ELSE -x.amount END), 0)
		FROM treasuries t
		LEFT JOIN transactions x ON x.treasury_id = t.id
		WHERE t.id = $1
		GROUP BY t.initial_balance`, treasuryID).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("treasury %s: %w", treasuryID, ErrNotFound)
	}
	return balance, err
}

func (ts *TreasuryService) load(ctx context.Context, treasuryID string) (*models.Treasury, error) {
	var t models.Treasury
	err := ts.db.QueryRowContext(ctx, `
		SELECT id, name, type, currency, initial_balance, current_balance,
		       min_balance, is_default, is_active, closed_at, created_at, updated_at
		FROM treasuries
		WHERE id = $1`, treasuryID).
		Scan(&t.ID, &t.Name, &t.Type, &t.Currency, &t.InitialBalance,
			&t.CurrentBalance, &t.MinBalance, &t.IsDefault, &t.IsActive,
			&t.ClosedAt, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("treasury %s: %w", treasuryID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTreasury opens a new treasury
// @Summary Create a treasury
// @Tags treasuries
// @Accept json
// @Produce json
// @Param treasury body TreasuryInput true "Treasury data"
// @Success 201 {object} models.Treasury
// @Failure 400 {object} ErrorResponse
// @Router /treasuries [post]
func (ts *TreasuryService) CreateTreasury(w http.ResponseWriter, r *http.Request) {
	var input TreasuryInput
	if err := DecodeJSONBody(w, r, &input); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := ts.validator.ValidateStruct(&input); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	treasury, err := ts.Create(r.Context(), input)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusCreated, treasury)
}

// ListTreasuries lists all treasuries
// @Summary List treasuries
// @Tags treasuries
// @Produce json
// @Success 200 {array} models.Treasury
// @Router /treasuries [get]
func (ts *TreasuryService) ListTreasuries(w http.ResponseWriter, r *http.Request) {
	treasuries, err := ts.List(r.Context())
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, treasuries)
}

// GetTreasury fetches one treasury with its computed balance
// @Summary Get a treasury by id
// @Tags treasuries
// @Produce json
// @Param treasuryId path string true "Treasury ID"
// @Success 200 {object} models.Treasury
// @Failure 404 {object} ErrorResponse
// @Router /treasuries/{treasuryId} [get]
func (ts *TreasuryService) GetTreasury(w http.ResponseWriter, r *http.Request) {
	treasury, err := ts.Get(r.Context(), chi.URLParam(r, "treasuryId"))
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, treasury)
}

// UpdateTreasury edits a treasury
// @Summary Update a treasury
// @Tags treasuries
// @Accept json
// @Produce json
// @Param treasuryId path string true "Treasury ID"
// @Param treasury body UpdateTreasuryInput true "Treasury data"
// @Success 200 {object} models.Treasury
// @Failure 404 {object} ErrorResponse
// @Router /treasuries/{treasuryId} [put]
func (ts *TreasuryService) UpdateTreasury(w http.ResponseWriter, r *http.Request) {
	var input UpdateTreasuryInput
	if err := DecodeJSONBody(w, r, &input); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := ts.validator.ValidateStruct(&input); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	treasury, err := ts.Update(r.Context(), chi.URLParam(r, "treasuryId"), input)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, treasury)
}
