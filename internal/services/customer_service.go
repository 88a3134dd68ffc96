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

// CustomerService manages customer accounts and exposes the derived
// views built on top of them: balance, summary, and statement.
type CustomerService struct {
	db        *sql.DB
	balance   *BalanceService
	statement *StatementService
	txns      *TransactionService
	validator *ValidationHelper
}

func NewCustomerService(db *sql.DB, balance *BalanceService, statement *StatementService, txns *TransactionService) *CustomerService {
	return &CustomerService{
		db:        db,
		balance:   balance,
		statement: statement,
		txns:      txns,
		validator: NewValidationHelper(),
	}
}

type CustomerInput struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Phone          string          `json:"phone" validate:"max=30"`
	Email          string          `json:"email" validate:"omitempty,email"`
	Address        string          `json:"address" validate:"max=500"`
	Category       string          `json:"category" validate:"required,oneof=regular vip wholesale"`
	CreditLimit    decimal.Decimal `json:"credit_limit"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Notes          string          `json:"notes" validate:"max=1000"`
}

// Create inserts a new customer. CreditLimit must not be negative;
// zero means unlimited.
func (cs *CustomerService) Create(ctx context.Context, input CustomerInput) (*models.Customer, error) {
	if input.CreditLimit.IsNegative() {
		return nil, fmt.Errorf("credit limit must not be negative: %w", ErrInvalidAmount)
	}

	now := time.Now().UTC()
	customer := &models.Customer{
		ID:             uuid.NewString(),
		Name:           input.Name,
		Phone:          input.Phone,
		Email:          input.Email,
		Address:        input.Address,
		Category:       models.CustomerCategory(input.Category),
		CreditLimit:    input.CreditLimit,
		OpeningBalance: input.OpeningBalance,
		IsActive:       true,
		Notes:          input.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := cs.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, address, category,
			credit_limit, opening_balance, is_active, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		customer.ID, customer.Name, customer.Phone, customer.Email,
		customer.Address, string(customer.Category), customer.CreditLimit,
		customer.OpeningBalance, customer.IsActive, customer.Notes,
		customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	return customer, nil
}

// Get loads one customer by id.
func (cs *CustomerService) Get(ctx context.Context, customerID string) (*models.Customer, error) {
	var c models.Customer
	err := cs.db.QueryRowContext(ctx, `
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

// Update replaces the editable attributes of a customer.
func (cs *CustomerService) Update(ctx context.Context, customerID string, input CustomerInput) (*models.Customer, error) {
	if input.CreditLimit.IsNegative() {
		return nil, fmt.Errorf("credit limit must not be negative: %w", ErrInvalidAmount)
	}

	result, err := cs.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $1, phone = $2, email = $3, address = $4, category = $5,
		    credit_limit = $6, opening_balance = $7, notes = $8, updated_at = $9
		WHERE id = $10`,
		input.Name, input.Phone, input.Email, input.Address, input.Category,
		input.CreditLimit, input.OpeningBalance, input.Notes,
		time.Now().UTC(), customerID)
	if err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	return cs.Get(ctx, customerID)
}

// Delete removes a customer outright.
func (cs *CustomerService) Delete(ctx context.Context, customerID string) error {
	result, err := cs.db.ExecContext(ctx,
		`DELETE FROM customers WHERE id = $1`, customerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	return nil
}

// List returns all customers ordered by name.
func (cs *CustomerService) List(ctx context.Context) ([]models.Customer, error) {
	rows, err := cs.db.QueryContext(ctx, `
		SELECT id, name, phone, email, address, category, credit_limit,
		       opening_balance, is_active, notes, created_at, updated_at
		FROM customers
		ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []models.Customer{}
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address,
			&c.Category, &c.CreditLimit, &c.OpeningBalance, &c.IsActive,
			&c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// Summary bundles the customer with their balance and recent ledger
// activity.
func (cs *CustomerService) Summary(ctx context.Context, customerID string) (*models.CustomerSummary, error) {
	customer, err := cs.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	balance, err := cs.balance.CalculateBalance(ctx, customerID)
	if err != nil {
		return nil, err
	}
	transactions, err := cs.txns.List(ctx, "", customerID, "", 10)
	if err != nil {
		return nil, err
	}
	return &models.CustomerSummary{
		Customer:     *customer,
		Balance:      *balance,
		Transactions: transactions,
	}, nil
}

// CreateCustomer creates a customer account
// @Summary Create a customer
// @Tags customers
// @Accept json
// @Produce json
// @Param customer body CustomerInput true "Customer data"
// @Success 201 {object} models.Customer
// @Failure 400 {object} ErrorResponse
// @Router /customers [post]
func (cs *CustomerService) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var input CustomerInput
	if err := DecodeJSONBody(w, r, &input); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := cs.validator.ValidateStruct(&input); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	customer, err := cs.Create(r.Context(), input)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusCreated, customer)
}

// ListCustomers lists all customers
// @Summary List customers
// @Tags customers
// @Produce json
// @Success 200 {array} models.Customer
// @Router /customers [get]
func (cs *CustomerService) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := cs.List(r.Context())
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, customers)
}

// GetCustomer fetches one customer
// @Summary Get a customer by id
// @Tags customers
// @Produce json
// @Param customerId path string true "Customer ID"
// @Success 200 {object} models.Customer
// @Failure 404 {object} ErrorResponse
// @Router /customers/{customerId} [get]
func (cs *CustomerService) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := cs.Get(r.Context(), chi.URLParam(r, "customerId"))
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, customer)
}

// UpdateCustomer edits a customer
// @Summary Update a customer
// @Tags customers
// @Accept json
// @Produce json
// @Param customerId path string true "Customer ID"
// @Param customer body CustomerInput true "Customer data"
// @Success 200 {object} models.Customer
// @Failure 404 {object} ErrorResponse
// @Router /customers/{customerId} [put]
func (cs *CustomerService) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var input CustomerInput
	if err := DecodeJSONBody(w, r, &input); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := cs.validator.ValidateStruct(&input); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	customer, err := cs.Update(r.Context(), chi.URLParam(r, "customerId"), input)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, customer)
}

// DeleteCustomer removes a customer
// @Summary Delete a customer
// @Tags customers
// @Param customerId path string true "Customer ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /customers/{customerId} [delete]
func (cs *CustomerService) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	err := cs.Delete(r.Context(), chi.URLParam(r, "customerId"))
	if RespondBusinessError(w, err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCustomerBalance returns the computed balance
// @Summary Get a customer's balance
// @Description Ledger sum plus unpaid record remainder; positive means the customer owes the business
// @Tags customers
// @Produce json
// @Param customerId path string true "Customer ID"
// @Success 200 {object} models.Balance
// @Failure 404 {object} ErrorResponse
// @Router /customers/{customerId}/balance [get]
func (cs *CustomerService) GetCustomerBalance(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")
	if _, err := cs.Get(r.Context(), customerID); RespondBusinessError(w, err) {
		return
	}
	balance, err := cs.balance.CalculateBalance(r.Context(), customerID)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, balance)
}

// GetCustomerSummary returns customer, balance, and recent transactions
// @Summary Get a customer summary
// @Tags customers
// @Produce json
// @Param customerId path string true "Customer ID"
// @Success 200 {object} models.CustomerSummary
// @Failure 404 {object} ErrorResponse
// @Router /customers/{customerId}/summary [get]
func (cs *CustomerService) GetCustomerSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := cs.Summary(r.Context(), chi.URLParam(r, "customerId"))
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, summary)
}

// GetCustomerStatement returns the running-balance statement
// @Summary Get a customer statement
// @Description Chronological running-balance view fusing opening balance, records, and transactions
// @Tags customers
// @Produce json
// @Param customerId path string true "Customer ID"
// @Success 200 {object} models.Statement
// @Failure 404 {object} ErrorResponse
// @Router /customers/{customerId}/statement [get]
func (cs *CustomerService) GetCustomerStatement(w http.ResponseWriter, r *http.Request) {
	statement, err := cs.statement.Generate(r.Context(), chi.URLParam(r, "customerId"))
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, statement)
}

// CheckCreditLimit reports whether an additional debit is allowed
// @Summary Check a customer's credit limit
// @Tags customers
// @Produce json
// @Param customerId path string true "Customer ID"
// @Param amount query string true "Proposed additional debit amount"
// @Success 200 {object} object{allowed=bool}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /customers/{customerId}/credit-check [get]
func (cs *CustomerService) CheckCreditLimit(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	allowed, err := cs.balance.CheckCreditLimit(r.Context(), chi.URLParam(r, "customerId"), amount)
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}
