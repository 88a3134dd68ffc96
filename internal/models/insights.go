package models

import "github.com/shopspring/decimal"

// InsightsSummary is the fixed-shape numeric summary handed to the
// external advice generator. Only free text flows back; no structured
// data from the generator ever re-enters the core.
type InsightsSummary struct {
	Treasury       TreasurySnapshot `json:"treasury"`
	CashFlow       CashFlow         `json:"cashFlow"`
	RiskIndicators RiskIndicators   `json:"riskIndicators"`
	Meta           InsightsMeta     `json:"meta"`
}

type TreasurySnapshot struct {
	ID       string          `json:"id"`
	Balance  decimal.Decimal `json:"balance"`
	MinLimit decimal.Decimal `json:"minLimit"`
}

type CashFlow struct {
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	NetCash       decimal.Decimal `json:"netCash"`
	Trend         string          `json:"trend"`
}

type RiskIndicators struct {
	LiquidityRatio     decimal.Decimal `json:"liquidityRatio"`
	NegativeCashFlow   bool            `json:"negativeCashFlow"`
	TreasuryBelowLimit bool            `json:"treasuryBelowLimit"`
}

type InsightsMeta struct {
	Period   string `json:"period"`
	Currency string `json:"currency"`
}

// Insights is the API response: the numeric summary plus the advice
// text produced from it.
type Insights struct {
	Summary InsightsSummary `json:"summary"`
	Advice  string          `json:"advice"`
	Cached  bool            `json:"cached"`
}
