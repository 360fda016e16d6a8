package dbModel

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type OptionTransaction struct {
	ID              string              `db:"id"`
	PortfolioID     string              `db:"portfolio_id"`
	Symbol          string              `db:"symbol"`
	OptionSymbol    string              `db:"option_symbol"`
	OptionType      string              `db:"option_type"`
	StrikePrice     decimal.Decimal     `db:"strike_price"`
	ExpirationDate  time.Time           `db:"expiration_date"`
	Action          string              `db:"action"`
	Contracts       int64               `db:"contracts"`
	Premium         decimal.NullDecimal `db:"premium"`
	Currency        string              `db:"currency"`
	FxRateToBase    decimal.Decimal     `db:"fx_rate_to_base"`
	Fees            decimal.Decimal     `db:"fees"`
	Date            time.Time           `db:"date"`
	Notes           string              `db:"notes"`
	LinkedStockTxID pgtype.Text         `db:"linked_stock_tx_id"`
	TotalPremium    decimal.NullDecimal `db:"total_premium"`
	CreatedAt       time.Time           `db:"created_at"`
}

type OptionHolding struct {
	PortfolioID    string          `db:"portfolio_id"`
	OptionSymbol   string          `db:"option_symbol"`
	Symbol         string          `db:"symbol"`
	OptionType     string          `db:"option_type"`
	StrikePrice    decimal.Decimal `db:"strike_price"`
	ExpirationDate time.Time       `db:"expiration_date"`
	Position       string          `db:"position"`
	Contracts      int64           `db:"contracts"`
	AvgPremium     decimal.Decimal `db:"avg_premium"`
	TotalCost      decimal.Decimal `db:"total_cost"`
	RealizedPnL    decimal.Decimal `db:"realized_pnl"`
	Currency       string          `db:"currency"`
	UpdatedAt      time.Time       `db:"updated_at"`
}
