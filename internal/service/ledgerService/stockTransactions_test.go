package ledgerService

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddStockTransaction_FIFO(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pf := env.portfolio(t)

	first := env.stockTx(t, pf, model.Buy, 1, "10", "10", "")
	second := env.stockTx(t, pf, model.Buy, 2, "10", "20", "")
	env.stockTx(t, pf, model.Sell, 3, "15", "25", "")

	holdings, err := env.svc.GetHoldings(ctx, pf)
	require.NoError(t, err)
	require.Len(t, holdings, 1)

	h := holdings[0]
	assert.Equal(t, "AAPL", h.Ticker)
	assertDecimal(t, "5", h.Shares)
	assertDecimal(t, "100", h.TotalCost)
	assertDecimal(t, "20", h.AvgCostPerShare)
	assertDecimal(t, "175", h.RealizedPnL)

	lots, err := env.svc.GetAvailableLots(ctx, pf, "aapl")
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, second.ID, lots[0].TransactionID)
	assertDecimal(t, "5", lots[0].RemainingShares)
	assert.NotEqual(t, first.ID, lots[0].TransactionID)
}

func TestAddStockTransaction_ExplicitLot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pf := env.portfolio(t)

	first := env.stockTx(t, pf, model.Buy, 1, "10", "10", "")
	second := env.stockTx(t, pf, model.Buy, 2, "10", "20", "")
	env.stockTx(t, pf, model.Sell, 3, "5", "25", second.ID)

	lots, err := env.svc.GetAvailableLots(ctx, pf, "AAPL")
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, first.ID, lots[0].TransactionID)
	assertDecimal(t, "10", lots[0].RemainingShares)
	assert.Equal(t, second.ID, lots[1].TransactionID)
	assertDecimal(t, "5", lots[1].RemainingShares)

	holdings, err := env.svc.GetHoldings(ctx, pf)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assertDecimal(t, "25", holdings[0].RealizedPnL)
	assertDecimal(t, "200", holdings[0].TotalCost)
}

func TestAddStockTransaction_Rejected(t *testing.T) {
	testCases := []struct {
		name    string
		in      func(pf, lot string) model.NewStockTransaction
		wantErr error
	}{
		{
			name:    "oversell",
			in:      func(pf, _ string) model.NewStockTransaction { return stockInput(pf, model.Sell, 5, "11", "30", "") },
			wantErr: service.ErrInsufficientShares,
		},
		{
			name:    "sell before the buy",
			in:      func(pf, _ string) model.NewStockTransaction { return stockInput(pf, model.Sell, 0, "1", "30", "") },
			wantErr: service.ErrInsufficientShares,
		},
		{
			name:    "unknown lot",
			in:      func(pf, _ string) model.NewStockTransaction { return stockInput(pf, model.Sell, 5, "1", "30", "nope") },
			wantErr: service.ErrUnknownSourceLot,
		},
		{
			name:    "zero shares",
			in:      func(pf, _ string) model.NewStockTransaction { return stockInput(pf, model.Buy, 5, "0", "30", "") },
			wantErr: service.ErrValidation,
		},
		{
			name: "unknown type",
			in: func(pf, _ string) model.NewStockTransaction {
				return stockInput(pf, model.TransactionType("SHORT"), 5, "1", "30", "")
			},
			wantErr: service.ErrValidation,
		},
		{
			name:    "buy with a source lot",
			in:      func(pf, lot string) model.NewStockTransaction { return stockInput(pf, model.Buy, 5, "1", "30", lot) },
			wantErr: service.ErrValidation,
		},
		{
			name:    "unknown portfolio",
			in:      func(_, _ string) model.NewStockTransaction { return stockInput("missing", model.Buy, 5, "1", "30", "") },
			wantErr: service.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			pf := env.portfolio(t)
			lot := env.stockTx(t, pf, model.Buy, 1, "10", "10", "")

			_, err := env.svc.AddStockTransaction(ctx, tc.in(pf, lot.ID))
			require.ErrorIs(t, err, tc.wantErr)

			txs, err := env.svc.ListStockTransactions(ctx, pf)
			require.NoError(t, err)
			assert.Len(t, txs, 1)

			holdings, err := env.svc.GetHoldings(ctx, pf)
			require.NoError(t, err)
			require.Len(t, holdings, 1)
			assertDecimal(t, "10", holdings[0].Shares)
		})
	}
}

func TestAddStockTransaction_ConstraintKind(t *testing.T) {
	env := newTestEnv(t)
	pf := env.portfolio(t)

	_, err := env.svc.AddStockTransaction(context.Background(), stockInput(pf, model.Sell, 1, "1", "10", ""))
	require.ErrorIs(t, err, service.ErrConstraintViolation)

	code, ok := service.Code(err)
	require.True(t, ok)
	assert.Equal(t, service.ErrInsufficientShares, code)
}

func TestAddStockTransaction_FxRate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pf, err := env.svc.CreatePortfolio(ctx, "czk", "czk", "")
	require.NoError(t, err)
	assert.Equal(t, "CZK", pf.BaseCurrency)

	first, err := env.svc.AddStockTransaction(ctx, stockInput(pf.ID, model.Buy, 1, "10", "10", ""))
	require.NoError(t, err)
	assertDecimal(t, "23.5", first.FxRateToBase)

	second, err := env.svc.AddStockTransaction(ctx, stockInput(pf.ID, model.Buy, 1, "10", "12", ""))
	require.NoError(t, err)
	assertDecimal(t, "23.5", second.FxRateToBase)
	assert.EqualValues(t, 1, env.fx.calls.Load(), "second rate comes from the cache")

	in := stockInput(pf.ID, model.Buy, 2, "10", "12", "")
	in.FxRateToBase = decPtr("22")
	third, err := env.svc.AddStockTransaction(ctx, in)
	require.NoError(t, err)
	assertDecimal(t, "22", third.FxRateToBase)
	assert.EqualValues(t, 1, env.fx.calls.Load())

	holdings, err := env.svc.GetHoldings(ctx, pf.ID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	// 100*23.5 + 120*23.5 + 120*22
	assertDecimal(t, "7810", holdings[0].TotalInvestedBase)
	assertDecimal(t, "340", holdings[0].TotalCost)
}

func TestAddStockTransaction_FxRateNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pf, err := env.svc.CreatePortfolio(ctx, "eur", "EUR", "")
	require.NoError(t, err)

	_, err = env.svc.AddStockTransaction(ctx, stockInput(pf.ID, model.Buy, 1, "10", "10", ""))
	require.Error(t, err)

	txs, err := env.svc.ListStockTransactions(ctx, pf.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestDeleteStockTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pf := env.portfolio(t)

	buy := env.stockTx(t, pf, model.Buy, 1, "10", "10", "")
	sell := env.stockTx(t, pf, model.Sell, 2, "4", "15", buy.ID)

	err := env.svc.DeleteStockTransaction(ctx, buy.ID)
	require.ErrorIs(t, err, service.ErrHasDependentSells)
	require.ErrorIs(t, err, service.ErrConstraintViolation)

	holdings, err := env.svc.GetHoldings(ctx, pf)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assertDecimal(t, "6", holdings[0].Shares)
	assertDecimal(t, "20", holdings[0].RealizedPnL)

	require.NoError(t, env.svc.DeleteStockTransaction(ctx, sell.ID))

	holdings, err = env.svc.GetHoldings(ctx, pf)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assertDecimal(t, "10", holdings[0].Shares)
	assertDecimal(t, "0", holdings[0].RealizedPnL)

	require.NoError(t, env.svc.DeleteStockTransaction(ctx, buy.ID))

	holdings, err = env.svc.GetHoldings(ctx, pf)
	require.NoError(t, err)
	assert.Empty(t, holdings)

	err = env.svc.DeleteStockTransaction(ctx, buy.ID)
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestGetHoldings_LateCacheFillAfterWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pf := env.portfolio(t)

	env.stockTx(t, pf, model.Buy, 1, "10", "10", "")

	// a reader that missed the cache computed this list before the write below
	version, err := env.cache.HoldingsVersion(ctx, pf)
	require.NoError(t, err)
	stale, err := env.svc.GetHoldings(ctx, pf)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	env.stockTx(t, pf, model.Buy, 2, "5", "12", "")

	// and stores it only after the write flushed the cache
	require.NoError(t, env.cache.SetHoldings(ctx, pf, version, stale))

	holdings, err := env.svc.GetHoldings(ctx, pf)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assertDecimal(t, "15", holdings[0].Shares)

	cached, err := env.svc.GetHoldings(ctx, pf)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assertDecimal(t, "15", cached[0].Shares)
}

func TestDeleteStockTransaction_FIFOBuyUnderSell(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pf := env.portfolio(t)

	buy := env.stockTx(t, pf, model.Buy, 1, "10", "10", "")
	env.stockTx(t, pf, model.Sell, 2, "4", "15", "")

	err := env.svc.DeleteStockTransaction(ctx, buy.ID)
	require.ErrorIs(t, err, service.ErrInsufficientShares)

	txs, err := env.svc.ListStockTransactions(ctx, pf)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestUpdateStockTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pf := env.portfolio(t)

	buy := env.stockTx(t, pf, model.Buy, 1, "10", "10", "")
	sell := env.stockTx(t, pf, model.Sell, 2, "6", "15", "")

	_, err := env.svc.UpdateStockTransaction(ctx, buy.ID, model.StockTransactionChanges{Shares: decPtr("5")})
	require.ErrorIs(t, err, service.ErrInsufficientShares)

	stored, err := env.repo.GetStockTransaction(ctx, buy.ID)
	require.NoError(t, err)
	assertDecimal(t, "10", stored.Shares)

	updated, err := env.svc.UpdateStockTransaction(ctx, buy.ID, model.StockTransactionChanges{PricePerShare: decPtr("12")})
	require.NoError(t, err)
	assertDecimal(t, "12", updated.PricePerShare)

	holdings, err := env.svc.GetHoldings(ctx, pf)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assertDecimal(t, "4", holdings[0].Shares)
	assertDecimal(t, "48", holdings[0].TotalCost)
	assertDecimal(t, "18", holdings[0].RealizedPnL)

	later := d(0)
	_, err = env.svc.UpdateStockTransaction(ctx, sell.ID, model.StockTransactionChanges{ExecutedAt: &later})
	require.ErrorIs(t, err, service.ErrInsufficientShares)

	_, err = env.svc.UpdateStockTransaction(ctx, sell.ID, model.StockTransactionChanges{})
	require.ErrorIs(t, err, service.ErrValidation)
}

func TestConcurrentSellsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pf := env.portfolio(t)

	env.stockTx(t, pf, model.Buy, 1, "10", "10", "")

	var (
		wg       sync.WaitGroup
		ok       atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.AddStockTransaction(ctx, stockInput(pf, model.Sell, 2, "1", "11", ""))
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, service.ErrInsufficientShares):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, ok.Load())
	assert.EqualValues(t, 15, rejected.Load())

	lots, err := env.svc.GetAvailableLots(ctx, pf, "AAPL")
	require.NoError(t, err)
	assert.Empty(t, lots)

	holdings, err := env.repo.GetHoldings(ctx, pf)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assertDecimal(t, "0", holdings[0].Shares)
	assertDecimal(t, "10", holdings[0].RealizedPnL)

	assert.Zero(t, env.svc.locks.size())
}

func TestRecomputePortfolio(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pf := env.portfolio(t)

	env.stockTx(t, pf, model.Buy, 1, "10", "10", "")
	env.stockTx(t, pf, model.Sell, 2, "3", "20", "")
	env.openOption(t, pf, model.Put, model.SellToOpen, 1, 2, "1.5")

	holdings, err := env.repo.GetHoldings(ctx, pf)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	want := holdings[0]

	broken := want
	broken.Shares = dec("1000")
	require.NoError(t, env.repo.UpsertHolding(ctx, broken))

	require.NoError(t, env.svc.ReconcileHoldings(ctx))

	holdings, err = env.repo.GetHoldings(ctx, pf)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assertDecimal(t, want.Shares.String(), holdings[0].Shares)
	assertDecimal(t, want.RealizedPnL.String(), holdings[0].RealizedPnL)

	options, err := env.svc.GetOptionHoldings(ctx, pf)
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.EqualValues(t, 2, options[0].Contracts)
}
