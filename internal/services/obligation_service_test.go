package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cashdesk/backend/internal/models"
)

func expectObligationStatus(mock sqlmock.Sqlmock, obligationID, status string) {
	mock.ExpectQuery(`SELECT status FROM obligations WHERE id = \$1 FOR UPDATE`).
		WithArgs(obligationID).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(status))
}

func expectObligationRow(mock sqlmock.Sqlmock, obligationID, status string, doneAt *time.Time) {
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, title, description, amount, party_name, due_date, status,`).
		WithArgs(obligationID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "description", "amount", "party_name", "due_date",
			"status", "done_at", "notes", "created_at", "updated_at"}).
			AddRow(obligationID, "Rent", "", "1200", "Landlord Ltd", nil,
				status, doneAt, "", now, now))
}

func TestObligationService_Transitions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewObligationService(db)

	t.Run("mark done stamps done_at", func(t *testing.T) {
		mock.ExpectBegin()
		expectObligationStatus(mock, "ob1", "OPEN")
		mock.ExpectExec(`UPDATE obligations`).
			WithArgs("DONE", sqlmock.AnyArg(), sqlmock.AnyArg(), "ob1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		doneAt := time.Now().UTC()
		expectObligationRow(mock, "ob1", "DONE", &doneAt)

		obligation, err := service.MarkDone(context.Background(), "ob1")
		require.NoError(t, err)
		assert.Equal(t, models.ObligationDone, obligation.Status)
		assert.NotNil(t, obligation.DoneAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("marking done twice fails", func(t *testing.T) {
		mock.ExpectBegin()
		expectObligationStatus(mock, "ob1", "DONE")
		mock.ExpectRollback()

		_, err := service.MarkDone(context.Background(), "ob1")
		assert.ErrorIs(t, err, ErrAlreadyDone)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reopen clears done_at", func(t *testing.T) {
		mock.ExpectBegin()
		expectObligationStatus(mock, "ob1", "DONE")
		mock.ExpectExec(`UPDATE obligations`).
			WithArgs("OPEN", nil, sqlmock.AnyArg(), "ob1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		expectObligationRow(mock, "ob1", "OPEN", nil)

		obligation, err := service.Reopen(context.Background(), "ob1")
		require.NoError(t, err)
		assert.Equal(t, models.ObligationOpen, obligation.Status)
		assert.Nil(t, obligation.DoneAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reopening an open obligation fails", func(t *testing.T) {
		mock.ExpectBegin()
		expectObligationStatus(mock, "ob1", "OPEN")
		mock.ExpectRollback()

		_, err := service.Reopen(context.Background(), "ob1")
		assert.ErrorIs(t, err, ErrAlreadyOpen)
	})

	t.Run("unknown obligation", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM obligations WHERE id = \$1 FOR UPDATE`).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"status"}))
		mock.ExpectRollback()

		_, err := service.MarkDone(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestObligationService_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewObligationService(db)

	t.Run("starts open with no done_at", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO obligations`).
			WithArgs(sqlmock.AnyArg(), "Rent", "", "1200", "Landlord Ltd", nil,
				"OPEN", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		obligation, err := service.Create(context.Background(), ObligationInput{
			Title:     "Rent",
			Amount:    decimal.NewFromInt(1200),
			PartyName: "Landlord Ltd",
		})
		require.NoError(t, err)
		assert.Equal(t, models.ObligationOpen, obligation.Status)
		assert.Nil(t, obligation.DoneAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative amount is rejected", func(t *testing.T) {
		_, err := service.Create(context.Background(), ObligationInput{
			Title:     "Rent",
			Amount:    decimal.NewFromInt(-5),
			PartyName: "Landlord Ltd",
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestObligationService_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewObligationService(db)
	now := time.Now().UTC()

	t.Run("due window filter", func(t *testing.T) {
		cutoff := now.Add(7 * 24 * time.Hour)
		mock.ExpectQuery(`AND status = \$1 AND due_date IS NOT NULL AND due_date <= \$2`).
			WithArgs("OPEN", cutoff).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "title", "description", "amount", "party_name", "due_date",
				"status", "done_at", "notes", "created_at", "updated_at"}).
				AddRow("ob1", "Rent", "", "1200", "Landlord Ltd", now.Add(24*time.Hour),
					"OPEN", nil, "", now, now))

		obligations, err := service.List(context.Background(), "OPEN", &cutoff)
		require.NoError(t, err)
		require.Len(t, obligations, 1)
		assert.Equal(t, "Rent", obligations[0].Title)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no filters", func(t *testing.T) {
		mock.ExpectQuery(`FROM obligations`).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "title", "description", "amount", "party_name", "due_date",
				"status", "done_at", "notes", "created_at", "updated_at"}))

		obligations, err := service.List(context.Background(), "", nil)
		require.NoError(t, err)
		assert.Empty(t, obligations)
	})
}
