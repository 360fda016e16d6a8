package accounting

import (
	"testing"
	"time"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

var day0 = time.Date(2025, 1, 2, 15, 30, 0, 0, time.UTC)

func buy(id string, at int, shares, price string) model.StockTransaction {
	return model.StockTransaction{
		ID:            id,
		PortfolioID:   "pf",
		StockID:       "stock",
		Type:          model.Buy,
		Shares:        dec(shares),
		PricePerShare: dec(price),
		Currency:      "USD",
		FxRateToBase:  dec("1"),
		ExecutedAt:    day0.AddDate(0, 0, at),
		CreatedAt:     day0.AddDate(0, 0, at),
	}
}

func sell(id string, at int, shares, price, source string) model.StockTransaction {
	tx := buy(id, at, shares, price)
	tx.Type = model.Sell
	tx.SourceTransactionID = source
	return tx
}

func optionTx(id string, at int, action model.OptionAction, contracts int64, premium *decimal.Decimal) model.OptionTransaction {
	return model.OptionTransaction{
		ID:             id,
		PortfolioID:    "pf",
		Symbol:         "AAPL",
		OptionSymbol:   "AAPL250117P00050000",
		OptionType:     model.Put,
		StrikePrice:    dec("50"),
		ExpirationDate: time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC),
		Action:         action,
		Contracts:      contracts,
		Premium:        premium,
		Currency:       "USD",
		FxRateToBase:   dec("1"),
		Date:           day0.AddDate(0, 0, at),
		CreatedAt:      day0.AddDate(0, 0, at),
	}
}
