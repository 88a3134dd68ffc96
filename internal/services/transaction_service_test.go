package services

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cashdesk/backend/internal/models"
)

func expectLockTransaction(mock sqlmock.Sqlmock, txID, treasuryID, customerID, txType, amount string) {
	mock.ExpectQuery(`SELECT id, treasury_id, customer_id, type, amount, payment_method,`).
		WithArgs(txID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "treasury_id", "customer_id", "type", "amount", "payment_method",
			"description", "reference_type", "reference_id", "created_at"}).
			AddRow(txID, treasuryID, customerID, txType, amount, "CASH",
				"Cash advance", "MANUAL", nil, time.Now()))
}

func TestTransactionService_Reverse(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db, NewBalanceService(db))

	t.Run("successful reversal", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockTransaction(mock, "tx1", "treas1", "cust1", "DEBIT", "250")

		mock.ExpectQuery(`SELECT id FROM transactions`).
			WithArgs("tx1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		mock.ExpectExec(`INSERT INTO transactions`).
			WithArgs(sqlmock.AnyArg(), "treas1", "cust1", "CREDIT", "250", "CASH",
				sqlmock.AnyArg(), "ADJUSTMENT", "tx1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec(`UPDATE treasuries`).
			WithArgs("250", sqlmock.AnyArg(), "treas1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectCommit()

		reversal, err := service.Reverse(context.Background(), "tx1", "entered twice")
		require.NoError(t, err)
		assert.Equal(t, models.Credit, reversal.Type)
		assert.True(t, reversal.Amount.Equal(decimal.NewFromInt(250)))
		assert.Equal(t, models.RefAdjustment, reversal.ReferenceType)
		require.NotNil(t, reversal.ReferenceID)
		assert.Equal(t, "tx1", *reversal.ReferenceID)
		assert.Contains(t, reversal.Description, "entered twice")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("a transaction may be reversed at most once", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockTransaction(mock, "tx1", "treas1", "cust1", "DEBIT", "250")

		mock.ExpectQuery(`SELECT id FROM transactions`).
			WithArgs("tx1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rev1"))
		mock.ExpectRollback()

		_, err := service.Reverse(context.Background(), "tx1", "again")
		assert.ErrorIs(t, err, ErrAlreadyReversed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, treasury_id, customer_id, type, amount, payment_method,`).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, err := service.Reverse(context.Background(), "ghost", "whoops")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTransactionService_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db, NewBalanceService(db))
	customerID := "cust1"

	t.Run("customer debit within the limit", func(t *testing.T) {
		mock.ExpectBegin()
		expectActiveTreasury(mock, "treas1", true)
		mock.ExpectQuery(`SELECT credit_limit, is_active FROM customers WHERE id = \$1 FOR UPDATE`).
			WithArgs("cust1").
			WillReturnRows(sqlmock.NewRows([]string{"credit_limit", "is_active"}).AddRow("1000", true))
		expectLedgerSum(mock, "cust1", "900")
		expectUnpaidSum(mock, "cust1", "0")

		mock.ExpectExec(`INSERT INTO transactions`).
			WithArgs(sqlmock.AnyArg(), "treas1", "cust1", "DEBIT", "50", "CASH",
				"Cash advance", "MANUAL", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE treasuries`).
			WithArgs("-50", sqlmock.AnyArg(), "treas1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		txn, err := service.Create(context.Background(), CreateTransactionInput{
			TreasuryID:    "treas1",
			CustomerID:    &customerID,
			Type:          "DEBIT",
			Amount:        decimal.NewFromInt(50),
			PaymentMethod: "CASH",
			Description:   "Cash advance",
		})
		require.NoError(t, err)
		assert.Equal(t, models.RefManual, txn.ReferenceType)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("customer debit past the limit is rejected", func(t *testing.T) {
		mock.ExpectBegin()
		expectActiveTreasury(mock, "treas1", true)
		mock.ExpectQuery(`SELECT credit_limit, is_active FROM customers WHERE id = \$1 FOR UPDATE`).
			WithArgs("cust1").
			WillReturnRows(sqlmock.NewRows([]string{"credit_limit", "is_active"}).AddRow("1000", true))
		expectLedgerSum(mock, "cust1", "900")
		expectUnpaidSum(mock, "cust1", "0")
		mock.ExpectRollback()

		_, err := service.Create(context.Background(), CreateTransactionInput{
			TreasuryID:    "treas1",
			CustomerID:    &customerID,
			Type:          "DEBIT",
			Amount:        decimal.NewFromInt(150),
			PaymentMethod: "CASH",
		})
		var cle *CreditLimitError
		require.ErrorAs(t, err, &cle)
		assert.True(t, cle.WouldBe.Equal(decimal.NewFromInt(1050)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("credits skip the guard", func(t *testing.T) {
		mock.ExpectBegin()
		expectActiveTreasury(mock, "treas1", true)
		mock.ExpectExec(`INSERT INTO transactions`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE treasuries`).
			WithArgs("75", sqlmock.AnyArg(), "treas1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		_, err := service.Create(context.Background(), CreateTransactionInput{
			TreasuryID:    "treas1",
			CustomerID:    &customerID,
			Type:          "CREDIT",
			Amount:        decimal.NewFromInt(75),
			PaymentMethod: "CASH",
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive amount is rejected before any query", func(t *testing.T) {
		_, err := service.Create(context.Background(), CreateTransactionInput{
			TreasuryID:    "treas1",
			Type:          "DEBIT",
			Amount:        decimal.Zero,
			PaymentMethod: "CASH",
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("inactive treasury", func(t *testing.T) {
		mock.ExpectBegin()
		expectActiveTreasury(mock, "closed", false)
		mock.ExpectRollback()

		_, err := service.Create(context.Background(), CreateTransactionInput{
			TreasuryID:    "closed",
			Type:          "CREDIT",
			Amount:        decimal.NewFromInt(10),
			PaymentMethod: "CASH",
		})
		assert.ErrorIs(t, err, ErrInactiveEntity)
	})
}

func TestTransactionService_Handlers(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db, NewBalanceService(db))

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/transactions", bytes.NewBufferString("not json"))
		w := httptest.NewRecorder()

		service.CreateTransaction(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown transaction returns 404", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, treasury_id, customer_id, type, amount, payment_method,`).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		router := chi.NewRouter()
		router.Get("/transactions/{txId}", service.GetTransaction)

		req := httptest.NewRequest("GET", "/transactions/ghost", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
