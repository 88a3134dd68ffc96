package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/cashdesk/backend/internal/config"
	"github.com/cashdesk/backend/internal/models"
)

// AdviceGenerator produces narrative financial advice from a numeric
// summary. Implementations call out to an external text-generation
// service; only free text flows back.
type AdviceGenerator interface {
	Generate(ctx context.Context, summary models.InsightsSummary) (string, error)
}

// InsightsService assembles the fixed-shape numeric summary for one
// treasury and hands it to the advice generator. Responses are cached
// in Redis keyed by treasury id with a TTL; correctness never depends
// on the cache, only latency does.
type InsightsService struct {
	db        *sql.DB
	redis     *redis.Client
	generator AdviceGenerator
	treasury  *TreasuryService
	config    *config.InsightsConfig
}

func NewInsightsService(db *sql.DB, redisClient *redis.Client, generator AdviceGenerator, treasury *TreasuryService) *InsightsService {
	return &InsightsService{
		db:        db,
		redis:     redisClient,
		generator: generator,
		treasury:  treasury,
		config:    config.LoadInsightsConfig(),
	}
}

// BuildSummary computes the numeric summary for a treasury over the
// configured period.
func (is *InsightsService) BuildSummary(ctx context.Context, treasuryID string) (*models.InsightsSummary, error) {
	treasury, err := is.treasury.Get(ctx, treasuryID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	periodStart := now.AddDate(0, 0, -is.config.PeriodDays)
	prevStart := periodStart.AddDate(0, 0, -is.config.PeriodDays)

	revenue, expenses, err := is.periodSums(ctx, treasuryID, periodStart, now)
	if err != nil {
		return nil, fmt.Errorf("period sums for treasury %s: %w", treasuryID, err)
	}
	prevRevenue, prevExpenses, err := is.periodSums(ctx, treasuryID, prevStart, periodStart)
	if err != nil {
		return nil, fmt.Errorf("previous period sums for treasury %s: %w", treasuryID, err)
	}

	netCash := revenue.Sub(expenses)
	prevNet := prevRevenue.Sub(prevExpenses)

	trend := "flat"
	switch {
	case netCash.GreaterThan(prevNet):
		trend = "up"
	case netCash.LessThan(prevNet):
		trend = "down"
	}

	liquidity := decimal.Zero
	if treasury.MinBalance.IsPositive() {
		liquidity = treasury.CurrentBalance.DivRound(treasury.MinBalance, 4)
	}

	return &models.InsightsSummary{
		Treasury: models.TreasurySnapshot{
			ID:       treasury.ID,
			Balance:  treasury.CurrentBalance,
			MinLimit: treasury.MinBalance,
		},
		CashFlow: models.CashFlow{
			TotalRevenue:  revenue,
			TotalExpenses: expenses,
			NetCash:       netCash,
			Trend:         trend,
		},
		RiskIndicators: models.RiskIndicators{
			LiquidityRatio:     liquidity,
			NegativeCashFlow:   netCash.IsNegative(),
			TreasuryBelowLimit: treasury.CurrentBalance.LessThan(treasury.MinBalance),
		},
		Meta: models.InsightsMeta{
			Period:   is.config.DefaultLabel,
			Currency: treasury.Currency,
		},
	}, nil
}

// Get returns insights for a treasury, serving from cache when fresh.
func (is *InsightsService) Get(ctx context.Context, treasuryID string) (*models.Insights, error) {
	// A cached entry must not outlive its treasury: existence is
	// verified before the cache read so a deleted or unknown treasury
	// cannot serve stale insights for the rest of the TTL.
	var one int
	err := is.db.QueryRowContext(ctx,
		`SELECT 1 FROM treasuries WHERE id = $1`, treasuryID).Scan(&one)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("treasury %s: %w", treasuryID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("insights:%s", treasuryID)

	if is.redis != nil {
		data, err := is.redis.Get(ctx, key).Bytes()
		if err == nil {
			var cached models.Insights
			if err := json.Unmarshal(data, &cached); err == nil {
				cached.Cached = true
				return &cached, nil
			}
		} else if err != redis.Nil {
			log.Printf("[INSIGHTS] Cache read failed: %v", err)
		}
	}

	summary, err := is.BuildSummary(ctx, treasuryID)
	if err != nil {
		return nil, err
	}

	advice, err := is.generator.Generate(ctx, *summary)
	if err != nil {
		return nil, fmt.Errorf("generate advice: %w", err)
	}

	insights := &models.Insights{Summary: *summary, Advice: advice}

	if is.redis != nil {
		if data, err := json.Marshal(insights); err == nil {
			if err := is.redis.Set(ctx, key, data, is.config.CacheTTL).Err(); err != nil {
				log.Printf("[INSIGHTS] Cache write failed: %v", err)
			}
		}
	}
	return insights, nil
}

// periodSums returns (revenue, expenses) for [from, to): CREDIT inflows
// and DEBIT outflows against the treasury.
func (is *InsightsService) periodSums(ctx context.Context, treasuryID string, from, to time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var revenue, expenses decimal.Decimal
	err := is.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN type = 'CREDIT' THEN amount ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN type = 'DEBIT' THEN amount ELSE 0 END), 0)
		FROM transactions
		WHERE treasury_id = $1 AND created_at >= $2 AND created_at < $3`,
		treasuryID, from, to).Scan(&revenue, &expenses)
	return revenue, expenses, err
}

// GetTreasuryInsights returns the numeric summary plus advice text
// @Summary Get treasury insights
// @Description Numeric cash-flow summary with generated advice, cached per treasury
// @Tags insights
// @Produce json
// @Param treasuryId path string true "Treasury ID"
// @Success 200 {object} models.Insights
// @Failure 404 {object} ErrorResponse
// @Router /treasuries/{treasuryId}/insights [get]
func (is *InsightsService) GetTreasuryInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := is.Get(r.Context(), chi.URLParam(r, "treasuryId"))
	if RespondBusinessError(w, err) {
		return
	}
	SendJSON(w, http.StatusOK, insights)
}

// TemplateAdviceGenerator is the built-in fallback used when no
// external generator is configured. It renders a short narrative from
// the numbers so the endpoint works without an upstream service.
type TemplateAdviceGenerator struct{}

func NewTemplateAdviceGenerator() *TemplateAdviceGenerator {
	return &TemplateAdviceGenerator{}
}

func (g *TemplateAdviceGenerator) Generate(_ context.Context, s models.InsightsSummary) (string, error) {
	direction := "stable"
	switch s.CashFlow.Trend {
	case "up":
		direction = "improving"
	case "down":
		direction = "declining"
	}

	advice := fmt.Sprintf(
		"Net cash over the %s period is %s %s with a %s trend.",
		s.Meta.Period, s.CashFlow.NetCash, s.Meta.Currency, direction)
	if s.RiskIndicators.TreasuryBelowLimit {
		advice += " The treasury balance is below its configured minimum; consider deferring discretionary payouts."
	}
	if s.RiskIndicators.NegativeCashFlow {
		advice += " Expenses exceeded revenue this period; review open customer records for collectable balances."
	}
	return advice, nil
}
