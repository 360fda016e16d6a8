package ledgerService

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePortfolio(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.svc.CreatePortfolio(ctx, "  retirement ", "", "long term")
	require.NoError(t, err)
	assert.Equal(t, "retirement", p.Name)
	assert.Equal(t, "USD", p.BaseCurrency)

	_, err = env.svc.CreatePortfolio(ctx, " ", "", "")
	require.ErrorIs(t, err, service.ErrValidation)

	got, err := env.svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = env.svc.GetPortfolio(ctx, "missing")
	require.ErrorIs(t, err, service.ErrNotFound)

	list, err := env.svc.ListPortfolios(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetStatsAndTimeline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pf := env.portfolio(t)

	env.stockTx(t, pf, model.Buy, 1, "10", "10", "")
	env.stockTx(t, pf, model.Sell, 3, "5", "12", "")

	put := env.openOption(t, pf, model.Put, model.SellToOpen, 3, 1, "2")
	_, err := env.svc.CloseOptionPosition(ctx, closeRequest(pf, put.OptionSymbol, model.Expiration, 5, 1, ""))
	require.NoError(t, err)

	in := optionInput(pf, model.Call, model.SellToOpen, 3, 1, "0.8")
	in.ExpirationDate = time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	_, err = env.svc.AddOptionTransaction(ctx, in)
	require.NoError(t, err)

	stats, err := env.svc.GetStats(ctx, pf)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.HoldingsCount)
	assertDecimal(t, "50", stats.TotalCost)
	assertDecimal(t, "10", stats.StockRealizedPnL)
	assertDecimal(t, "200", stats.OptionRealizedPnL)
	assertDecimal(t, "210", stats.TotalRealizedPnL)
	assert.Equal(t, 1, stats.TotalPositions)
	assert.Equal(t, 1, stats.ShortPositions)
	assert.Equal(t, 0, stats.LongPositions)
	assert.Equal(t, 1, stats.Calls)
	assert.Equal(t, 0, stats.Puts)
	assert.Equal(t, 1, stats.ExpiringThisWeek)
	assertDecimal(t, "80", stats.OptionsTotalCost)

	points, err := env.svc.GetRealizedTimeline(ctx, pf, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, day(d(3)), points[0].Date)
	assertDecimal(t, "10", points[0].Stocks)
	assertDecimal(t, "10", points[0].Cumulative)
	assertDecimal(t, "200", points[1].Options)
	assertDecimal(t, "210", points[1].Cumulative)

	points, err = env.svc.GetRealizedTimeline(ctx, pf, d(4), time.Time{})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assertDecimal(t, "200", points[0].Total)
	assertDecimal(t, "210", points[0].Cumulative)
}

func TestExportPortfolioReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pf := env.portfolio(t)

	env.stockTx(t, pf, model.Buy, 1, "10", "10", "")
	env.openOption(t, pf, model.Put, model.SellToOpen, 2, 1, "2")

	link, err := env.svc.ExportPortfolioReport(ctx, pf)
	require.NoError(t, err)
	assert.Equal(t, "https://drive.example/ledger_main_2025-01-01_00-00-00.xlsx", link)
	assert.Equal(t, []byte("xlsx"), env.storage.content)

	got := env.report.got
	assert.Equal(t, "main", got.Portfolio.Name)
	assert.Len(t, got.Holdings, 1)
	assert.Len(t, got.Lots, 1)
	assert.Len(t, got.OptionHoldings, 1)
	assert.Len(t, got.StockTransactions, 1)
	assert.Len(t, got.OptionTransactions, 1)
	assert.Equal(t, 1, got.Stats.HoldingsCount)

	_, err = env.svc.ExportPortfolioReport(ctx, "missing")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestWarmUpFxRates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fx.rates["CZK/USD"] = dec("0.043")

	require.NoError(t, env.svc.WarmUpFxRates(ctx))
	assert.EqualValues(t, 1, env.fx.calls.Load())

	rate, err := env.cache.GetFxRate(ctx, "CZK", "USD", baseTime)
	require.NoError(t, err)
	assertDecimal(t, "0.043", rate)
}

func TestAggregateLocks(t *testing.T) {
	locks := newAggregateLocks()

	unlock := locks.Lock("b", "a", "a")
	assert.Equal(t, 2, locks.size())
	unlock()
	assert.Zero(t, locks.size())

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys := []string{"stock:p:1", "option:p:X"}
			if i%2 == 0 {
				keys[0], keys[1] = keys[1], keys[0]
			}
			unlock := locks.Lock(keys...)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, locks.size())
}
