package accounting

import (
	"testing"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStock = model.Stock{ID: "stock", Ticker: "AAPL", Name: "Apple", Currency: "USD", PriceScale: dec("1")}

func mixedHistory() []model.StockTransaction {
	return []model.StockTransaction{
		buy("A", 0, "10", "10"),
		buy("B", 1, "10", "20"),
		sell("S1", 2, "15", "25", ""),
		buy("C", 3, "4", "30"),
		sell("S2", 4, "6", "18", "C"),
	}
}

func TestAggregateHolding_Idempotent(t *testing.T) {
	history := mixedHistory()

	first, err := AggregateHolding(testStock, history)
	require.NoError(t, err)
	second, err := AggregateHolding(testStock, history)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, mixedHistory(), history, "input history must not be mutated")
}

func TestAggregateHolding_Reconciles(t *testing.T) {
	r, err := AggregateHolding(testStock, mixedHistory())
	require.NoError(t, err)

	sumRemaining := decimal.Zero
	for _, l := range r.Lots {
		assert.True(t, l.RemainingShares.IsPositive())
		sumRemaining = sumRemaining.Add(l.RemainingShares)
	}
	assertDecimal(t, r.Holding.Shares.String(), sumRemaining)

	sumRealized := decimal.Zero
	for _, s := range r.Sells {
		sumRealized = sumRealized.Add(s.RealizedPnL)
	}
	assertDecimal(t, r.Holding.RealizedPnL.String(), sumRealized)

	// S1: 15*25 - (10*10 + 5*20) = 175; S2: 4 from C at 30 then 2 from B at 20 -> 6*18 - 160 = -52
	assertDecimal(t, "123", r.Holding.RealizedPnL)
	assertDecimal(t, "3", r.Holding.Shares)
	assertDecimal(t, "60", r.Holding.TotalCost)
	assertDecimal(t, "20", r.Holding.AvgCostPerShare)
	assert.Equal(t, "pf", r.Holding.PortfolioID)
	assert.Equal(t, "AAPL", r.Holding.Ticker)
}

func TestAggregateHolding_OrdersByExecutionTime(t *testing.T) {
	history := mixedHistory()
	shuffled := []model.StockTransaction{history[4], history[2], history[0], history[3], history[1]}

	ordered, err := AggregateHolding(testStock, history)
	require.NoError(t, err)
	fromShuffled, err := AggregateHolding(testStock, shuffled)
	require.NoError(t, err)

	assert.Equal(t, ordered.Holding, fromShuffled.Holding)
	assert.Equal(t, ordered.Lots, fromShuffled.Lots)
}

func TestAggregateHolding_SameInstantUsesInsertionOrder(t *testing.T) {
	b := buy("B", 0, "5", "10")
	s := sell("S", 0, "5", "12", "")
	s.CreatedAt = b.CreatedAt.Add(1)

	r, err := AggregateHolding(testStock, []model.StockTransaction{s, b})
	require.NoError(t, err)
	assertDecimal(t, "0", r.Holding.Shares)
	assertDecimal(t, "10", r.Holding.RealizedPnL)
}

func TestAggregateHolding_FlatPosition(t *testing.T) {
	r, err := AggregateHolding(testStock, []model.StockTransaction{
		buy("A", 0, "10", "10"),
		sell("S", 1, "10", "8", ""),
	})
	require.NoError(t, err)

	assertDecimal(t, "0", r.Holding.Shares)
	assertDecimal(t, "0", r.Holding.AvgCostPerShare)
	assertDecimal(t, "0", r.Holding.TotalCost)
	assertDecimal(t, "-20", r.Holding.RealizedPnL)
	assert.Empty(t, r.Lots)
}

func TestAggregateHolding_BaseCurrency(t *testing.T) {
	pence := model.Stock{ID: "stock", Ticker: "VUSA", Currency: "GBP", PriceScale: dec("0.01")}
	a := buy("A", 0, "10", "7000")
	a.FxRateToBase = dec("29")
	b := buy("B", 1, "10", "7100")
	b.FxRateToBase = dec("30")

	r, err := AggregateHolding(pence, []model.StockTransaction{a, b, sell("S", 2, "12", "7200", "")})
	require.NoError(t, err)

	require.Len(t, r.Lots, 1)
	assertDecimal(t, "2130", r.Lots[0].BaseCostPerShare)
	assertDecimal(t, "17040", r.Holding.TotalInvestedBase)
	// cost of sold in base uses each lot's own historical rate: 10*2030 + 2*2130
	require.Len(t, r.Sells, 1)
	assertDecimal(t, "24560", r.Sells[0].Disposal.CostOfSoldBase)
}

func TestAggregateHolding_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		history []model.StockTransaction
		wantErr error
	}{
		{
			name:    "sell before any buy",
			history: []model.StockTransaction{sell("S", 0, "1", "10", ""), buy("A", 1, "1", "10")},
			wantErr: ErrInsufficientShares,
		},
		{
			name:    "over-sell",
			history: []model.StockTransaction{buy("A", 0, "5", "10"), sell("S", 1, "6", "10", "")},
			wantErr: ErrInsufficientShares,
		},
		{
			name:    "source lot bought after the sell",
			history: []model.StockTransaction{buy("A", 0, "5", "10"), sell("S", 1, "1", "10", "B"), buy("B", 2, "5", "10")},
			wantErr: ErrUnknownSourceLot,
		},
		{
			name:    "zero shares",
			history: []model.StockTransaction{buy("A", 0, "0", "10")},
			wantErr: ErrInvalidTransaction,
		},
		{
			name: "unknown type",
			history: []model.StockTransaction{func() model.StockTransaction {
				tx := buy("A", 0, "1", "10")
				tx.Type = "SHORT"
				return tx
			}()},
			wantErr: ErrInvalidTransaction,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := AggregateHolding(testStock, tc.history)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}
