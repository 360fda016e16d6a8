package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	Buy  TransactionType = "BUY"
	Sell TransactionType = "SELL"
)

func (t TransactionType) Valid() bool {
	return t == Buy || t == Sell
}

type Stock struct {
	ID         string
	Ticker     string
	Name       string
	Currency   string
	PriceScale decimal.Decimal // multiplier for listings quoted in minor units, 1 otherwise
}

type StockTransaction struct {
	ID                  string
	PortfolioID         string
	StockID             string
	Type                TransactionType
	Shares              decimal.Decimal
	PricePerShare       decimal.Decimal
	Currency            string
	FxRateToBase        decimal.Decimal
	Fees                decimal.Decimal
	ExecutedAt          time.Time
	SourceTransactionID string // explicit lot for SELL, empty means FIFO
	Notes               string
	CreatedAt           time.Time
}

func (t StockTransaction) TotalAmount() decimal.Decimal {
	return t.Shares.Mul(t.PricePerShare)
}

// NewStockTransaction is the caller input for addStockTransaction.
type NewStockTransaction struct {
	PortfolioID         string
	Ticker              string
	StockName           string
	PriceScale          *decimal.Decimal // only used when the stock is seen for the first time
	Type                TransactionType
	Shares              decimal.Decimal
	PricePerShare       decimal.Decimal
	Currency            string
	FxRateToBase        *decimal.Decimal // resolved through the FX provider when nil
	Fees                decimal.Decimal
	ExecutedAt          time.Time
	SourceTransactionID string
	Notes               string
}

// StockTransactionChanges holds the restricted subset of fields that can be updated in place.
type StockTransactionChanges struct {
	Shares        *decimal.Decimal
	PricePerShare *decimal.Decimal
	FxRateToBase  *decimal.Decimal
	Fees          *decimal.Decimal
	ExecutedAt    *time.Time
	Notes         *string
}

func (c StockTransactionChanges) IsEmpty() bool {
	return c.Shares == nil && c.PricePerShare == nil && c.FxRateToBase == nil &&
		c.Fees == nil && c.ExecutedAt == nil && c.Notes == nil
}

// Lot is a BUY transaction viewed as an inventory batch.
type Lot struct {
	TransactionID    string
	StockID          string
	ExecutedAt       time.Time
	Shares           decimal.Decimal
	RemainingShares  decimal.Decimal
	PricePerShare    decimal.Decimal
	Currency         string
	FxRateToBase     decimal.Decimal
	BaseCostPerShare decimal.Decimal
}

type Holding struct {
	PortfolioID       string
	StockID           string
	Ticker            string
	Name              string
	Currency          string
	Shares            decimal.Decimal
	AvgCostPerShare   decimal.Decimal
	TotalCost         decimal.Decimal
	TotalInvestedBase decimal.Decimal
	RealizedPnL       decimal.Decimal
	UpdatedAt         time.Time
}
