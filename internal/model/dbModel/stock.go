package dbModel

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Stock struct {
	ID         string          `db:"id"`
	Ticker     string          `db:"ticker"`
	Name       string          `db:"name"`
	Currency   string          `db:"currency"`
	PriceScale decimal.Decimal `db:"price_scale"`
}

type StockTransaction struct {
	ID                  string          `db:"id"`
	PortfolioID         string          `db:"portfolio_id"`
	StockID             string          `db:"stock_id"`
	Type                string          `db:"type"`
	Shares              decimal.Decimal `db:"shares"`
	PricePerShare       decimal.Decimal `db:"price_per_share"`
	Currency            string          `db:"currency"`
	FxRateToBase        decimal.Decimal `db:"fx_rate_to_base"`
	Fees                decimal.Decimal `db:"fees"`
	ExecutedAt          time.Time       `db:"executed_at"`
	SourceTransactionID pgtype.Text     `db:"source_transaction_id"`
	Notes               string          `db:"notes"`
	CreatedAt           time.Time       `db:"created_at"`
}

// Holding is a holdings row joined with its stock.
type Holding struct {
	PortfolioID       string          `db:"portfolio_id"`
	StockID           string          `db:"stock_id"`
	Ticker            string          `db:"ticker"`
	Name              string          `db:"name"`
	Currency          string          `db:"currency"`
	Shares            decimal.Decimal `db:"shares"`
	AvgCostPerShare   decimal.Decimal `db:"avg_cost_per_share"`
	TotalCost         decimal.Decimal `db:"total_cost"`
	TotalInvestedBase decimal.Decimal `db:"total_invested_base"`
	RealizedPnL       decimal.Decimal `db:"realized_pnl"`
	UpdatedAt         time.Time       `db:"updated_at"`
}
