package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Portfolio struct {
	ID           string
	Name         string
	BaseCurrency string
	Description  string
	CreatedAt    time.Time
}

// PortfolioReport is everything the xlsx report needs for one portfolio.
type PortfolioReport struct {
	Portfolio          Portfolio
	Holdings           []Holding
	Lots               []Lot
	OptionHoldings     []OptionHolding
	StockTransactions  []StockTransaction
	OptionTransactions []OptionTransaction
	Stats              Stats
}

type Stats struct {
	HoldingsCount     int
	TotalCost         decimal.Decimal
	TotalInvestedBase decimal.Decimal
	StockRealizedPnL  decimal.Decimal

	TotalPositions    int
	LongPositions     int
	ShortPositions    int
	ExpiringThisWeek  int
	Calls             int
	Puts              int
	OptionsTotalCost  decimal.Decimal
	OptionRealizedPnL decimal.Decimal

	TotalRealizedPnL decimal.Decimal
}

// RealizedPoint is realized P&L booked on a single day.
type RealizedPoint struct {
	Date       time.Time
	Stocks     decimal.Decimal
	Options    decimal.Decimal
	Total      decimal.Decimal
	Cumulative decimal.Decimal
}
