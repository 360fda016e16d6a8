package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

type OptionAction string

const (
	BuyToOpen   OptionAction = "BTO"
	SellToOpen  OptionAction = "STO"
	BuyToClose  OptionAction = "BTC"
	SellToClose OptionAction = "STC"
	Expiration  OptionAction = "EXPIRATION"
	Assignment  OptionAction = "ASSIGNMENT"
	Exercise    OptionAction = "EXERCISE"
)

func (a OptionAction) Valid() bool {
	switch a {
	case BuyToOpen, SellToOpen, BuyToClose, SellToClose, Expiration, Assignment, Exercise:
		return true
	}
	return false
}

func (a OptionAction) IsOpening() bool {
	return a == BuyToOpen || a == SellToOpen
}

// RequiresPremium reports whether a per-share premium must accompany the action.
func (a OptionAction) RequiresPremium() bool {
	return a != Expiration && a != Assignment && a != Exercise
}

// CreatesStockTransaction reports whether closing with this action delivers the underlying.
func (a OptionAction) CreatesStockTransaction() bool {
	return a == Assignment || a == Exercise
}

type Position string

const (
	Long  Position = "long"
	Short Position = "short"
)

type OptionTransaction struct {
	ID              string
	PortfolioID     string
	Symbol          string // underlying ticker
	OptionSymbol    string // OCC identifier
	OptionType      OptionType
	StrikePrice     decimal.Decimal
	ExpirationDate  time.Time
	Action          OptionAction
	Contracts       int64
	Premium         *decimal.Decimal // per share, nil for EXPIRATION/ASSIGNMENT/EXERCISE
	Currency        string
	FxRateToBase    decimal.Decimal
	Fees            decimal.Decimal
	Date            time.Time
	Notes           string
	LinkedStockTxID string
	TotalPremium    *decimal.Decimal // realized P&L booked by a closing row
	CreatedAt       time.Time
}

// NewOptionTransaction is the caller input for addOptionTransaction.
type NewOptionTransaction struct {
	PortfolioID    string
	Symbol         string
	OptionType     OptionType
	StrikePrice    decimal.Decimal
	ExpirationDate time.Time
	Action         OptionAction
	Contracts      int64
	Premium        *decimal.Decimal
	Currency       string
	FxRateToBase   *decimal.Decimal
	Fees           decimal.Decimal
	Date           time.Time
	Notes          string
}

// OptionTransactionChanges holds the restricted subset of fields that can be updated in place.
type OptionTransactionChanges struct {
	Contracts    *int64
	Premium      *decimal.Decimal
	FxRateToBase *decimal.Decimal
	Fees         *decimal.Decimal
	Date         *time.Time
	Notes        *string
}

func (c OptionTransactionChanges) IsEmpty() bool {
	return c.Contracts == nil && c.Premium == nil && c.FxRateToBase == nil &&
		c.Fees == nil && c.Date == nil && c.Notes == nil
}

// ClosePositionRequest closes (part of) an open option position.
type ClosePositionRequest struct {
	PortfolioID         string
	OptionSymbol        string
	Action              OptionAction
	Contracts           int64
	Premium             *decimal.Decimal
	CloseDate           time.Time
	Fees                decimal.Decimal
	FxRateToBase        *decimal.Decimal
	Notes               string
	SourceTransactionID string // lot to deliver when assignment/exercise sells the underlying
}

// ClosePositionResult is the closing option row and, for assignment/exercise, the linked stock row.
type ClosePositionResult struct {
	OptionTransaction OptionTransaction
	StockTransaction  *StockTransaction
}

type OptionHolding struct {
	PortfolioID    string
	OptionSymbol   string
	Symbol         string
	OptionType     OptionType
	StrikePrice    decimal.Decimal
	ExpirationDate time.Time
	Position       Position
	Contracts      int64
	AvgPremium     decimal.Decimal
	TotalCost      decimal.Decimal
	RealizedPnL    decimal.Decimal
	Currency       string
	UpdatedAt      time.Time
}
