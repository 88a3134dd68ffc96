package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Sentinel errors for the business failure conditions. Handlers map
// these to HTTP status codes via RespondBusinessError; everything else
// is treated as a store failure and surfaced as a 500.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInactiveEntity  = errors.New("entity is inactive")
	ErrAlreadyReversed = errors.New("transaction already reversed")
	ErrAlreadyDone     = errors.New("obligation already done")
	ErrAlreadyOpen     = errors.New("obligation already open")
	ErrDuplicateName   = errors.New("name already in use")
)

// CreditLimitError is returned when a debit would push a customer past
// their configured credit limit. It carries the limit and the balance
// the operation would have produced so callers can explain the
// rejection.
type CreditLimitError struct {
	CustomerID string
	Limit      decimal.Decimal
	WouldBe    decimal.Decimal
}

func (e *CreditLimitError) Error() string {
	return fmt.Sprintf("credit limit exceeded for customer %s: limit %s, would be %s",
		e.CustomerID, e.Limit, e.WouldBe)
}

// RespondBusinessError writes the JSON error response for a business
// failure. Returns false if err is nil so callers can use it as a
// guard.
func RespondBusinessError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}

	var cle *CreditLimitError
	switch {
	case errors.Is(err, ErrNotFound):
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, ErrInvalidAmount):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, ErrInactiveEntity),
		errors.Is(err, ErrAlreadyReversed),
		errors.Is(err, ErrAlreadyDone),
		errors.Is(err, ErrAlreadyOpen),
		errors.Is(err, ErrDuplicateName):
		SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	case errors.As(err, &cle):
		SendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity, nil)
	default:
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
	return true
}
