package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cashdesk/backend/internal/models"
)

func expectLoadTreasury(mock sqlmock.Sqlmock, treasuryID, initial, current, min string) {
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, name, type, currency, initial_balance, current_balance,`).
		WithArgs(treasuryID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "type", "currency", "initial_balance", "current_balance",
			"min_balance", "is_default", "is_active", "closed_at", "created_at", "updated_at"}).
			AddRow(treasuryID, "Main cash box", "CASH", "USD", initial, current,
				min, true, true, nil, now, now))
}

func expectComputedBalance(mock sqlmock.Sqlmock, treasuryID, balance string) {
	mock.ExpectQuery(`SELECT t\.initial_balance \+ COALESCE`).
		WithArgs(treasuryID).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(balance))
}

func expectPeriodSums(mock sqlmock.Sqlmock, treasuryID, revenue, expenses string) {
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(CASE WHEN type = 'CREDIT' THEN amount ELSE 0 END\), 0\),`).
		WithArgs(treasuryID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"revenue", "expenses"}).
			AddRow(revenue, expenses))
}

func TestInsightsService_BuildSummary(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewInsightsService(db, nil, NewTemplateAdviceGenerator(), NewTreasuryService(db))

	t.Run("summary numbers and trend", func(t *testing.T) {
		expectLoadTreasury(mock, "treas1", "1000", "1000", "500")
		expectComputedBalance(mock, "treas1", "2000")
		expectPeriodSums(mock, "treas1", "3000", "1800") // current period
		expectPeriodSums(mock, "treas1", "2500", "2200") // previous period

		summary, err := service.BuildSummary(context.Background(), "treas1")
		require.NoError(t, err)

		assert.True(t, summary.CashFlow.TotalRevenue.Equal(decimal.NewFromInt(3000)))
		assert.True(t, summary.CashFlow.TotalExpenses.Equal(decimal.NewFromInt(1800)))
		assert.True(t, summary.CashFlow.NetCash.Equal(decimal.NewFromInt(1200)))
		assert.Equal(t, "up", summary.CashFlow.Trend)
		assert.True(t, summary.Treasury.Balance.Equal(decimal.NewFromInt(2000)))
		assert.True(t, summary.RiskIndicators.LiquidityRatio.Equal(decimal.NewFromInt(4)))
		assert.False(t, summary.RiskIndicators.NegativeCashFlow)
		assert.False(t, summary.RiskIndicators.TreasuryBelowLimit)
		assert.Equal(t, "USD", summary.Meta.Currency)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("risk flags when cash runs low", func(t *testing.T) {
		expectLoadTreasury(mock, "treas1", "1000", "1000", "500")
		expectComputedBalance(mock, "treas1", "300")
		expectPeriodSums(mock, "treas1", "1000", "1600")
		expectPeriodSums(mock, "treas1", "1000", "1000")

		summary, err := service.BuildSummary(context.Background(), "treas1")
		require.NoError(t, err)

		assert.Equal(t, "down", summary.CashFlow.Trend)
		assert.True(t, summary.RiskIndicators.NegativeCashFlow)
		assert.True(t, summary.RiskIndicators.TreasuryBelowLimit)
	})

	t.Run("unknown treasury", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, name, type, currency, initial_balance, current_balance,`).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := service.BuildSummary(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestInsightsService_Get(t *testing.T) {
	t.Run("without a cache the advice is generated fresh", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewInsightsService(db, nil, NewTemplateAdviceGenerator(), NewTreasuryService(db))

		expectTreasuryExists(mock, "treas1")
		expectLoadTreasury(mock, "treas1", "1000", "1000", "500")
		expectComputedBalance(mock, "treas1", "2000")
		expectPeriodSums(mock, "treas1", "3000", "1800")
		expectPeriodSums(mock, "treas1", "2500", "2200")

		insights, err := service.Get(context.Background(), "treas1")
		require.NoError(t, err)
		assert.False(t, insights.Cached)
		assert.NotEmpty(t, insights.Advice)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cache hit skips recomputation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewInsightsService(db, redisClient, NewTemplateAdviceGenerator(), NewTreasuryService(db))

		cached := models.Insights{
			Summary: models.InsightsSummary{
				Meta: models.InsightsMeta{Currency: "USD"},
			},
			Advice: "Keep it up.",
		}
		payload, err := json.Marshal(cached)
		require.NoError(t, err)
		expectTreasuryExists(mock, "treas1")
		redisMock.ExpectGet("insights:treas1").SetVal(string(payload))

		insights, err := service.Get(context.Background(), "treas1")
		require.NoError(t, err)
		assert.True(t, insights.Cached)
		assert.Equal(t, "Keep it up.", insights.Advice)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("unknown treasury is never served from the cache", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewInsightsService(db, redisClient, NewTemplateAdviceGenerator(), NewTreasuryService(db))

		mock.ExpectQuery(`SELECT 1 FROM treasuries WHERE id = \$1`).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"one"}))

		_, err = service.Get(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func expectTreasuryExists(mock sqlmock.Sqlmock, treasuryID string) {
	mock.ExpectQuery(`SELECT 1 FROM treasuries WHERE id = \$1`).
		WithArgs(treasuryID).
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
}

func TestTemplateAdviceGenerator(t *testing.T) {
	generator := NewTemplateAdviceGenerator()

	summary := models.InsightsSummary{
		CashFlow: models.CashFlow{
			NetCash: decimal.NewFromInt(-400),
			Trend:   "down",
		},
		RiskIndicators: models.RiskIndicators{
			NegativeCashFlow:   true,
			TreasuryBelowLimit: true,
		},
		Meta: models.InsightsMeta{Period: "30d", Currency: "USD"},
	}

	advice, err := generator.Generate(context.Background(), summary)
	require.NoError(t, err)
	assert.Contains(t, advice, "declining")
	assert.Contains(t, advice, "below its configured minimum")
	assert.Contains(t, advice, "Expenses exceeded revenue")
}
