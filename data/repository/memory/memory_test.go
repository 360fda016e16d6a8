package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KotFed0t/invest_ledger/data/repository"
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stockTx(id string, at time.Time, created time.Time) model.StockTransaction {
	return model.StockTransaction{
		ID:          id,
		PortfolioID: "pf",
		StockID:     "aapl",
		Type:        model.Buy,
		Shares:      decimal.NewFromInt(1),
		ExecutedAt:  at,
		CreatedAt:   created,
	}
}

func TestWithinTransaction_Rollback(t *testing.T) {
	m := New()
	ctx := context.Background()
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.InsertStockTransaction(ctx, stockTx("kept", day, day)))

	failure := errors.New("boom")
	err := m.WithinTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, m.InsertStockTransaction(ctx, stockTx("dropped", day, day)))
		require.NoError(t, m.DeleteStockTransaction(ctx, "kept"))
		require.NoError(t, m.UpsertHolding(ctx, model.Holding{PortfolioID: "pf", StockID: "aapl"}))

		// nested calls join the outer transaction
		return m.WithinTransaction(ctx, func(ctx context.Context) error {
			return failure
		})
	})
	require.ErrorIs(t, err, failure)

	_, err = m.GetStockTransaction(ctx, "kept")
	require.NoError(t, err)
	_, err = m.GetStockTransaction(ctx, "dropped")
	require.ErrorIs(t, err, repository.ErrNotFound)

	holdings, err := m.GetHoldings(ctx, "pf")
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestWithinTransaction_Commit(t *testing.T) {
	m := New()
	ctx := context.Background()
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	err := m.WithinTransaction(ctx, func(ctx context.Context) error {
		return m.InsertStockTransaction(ctx, stockTx("a", day, day))
	})
	require.NoError(t, err)

	txs, err := m.ListStockTransactions(ctx, "pf")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestGetStockTransactions_ReplayOrder(t *testing.T) {
	m := New()
	ctx := context.Background()
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.InsertStockTransaction(ctx, stockTx("c", day.Add(time.Hour), day)))
	require.NoError(t, m.InsertStockTransaction(ctx, stockTx("b", day, day.Add(time.Second))))
	require.NoError(t, m.InsertStockTransaction(ctx, stockTx("z", day, day)))
	require.NoError(t, m.InsertStockTransaction(ctx, stockTx("a", day, day)))

	other := stockTx("other", day, day)
	other.StockID = "msft"
	require.NoError(t, m.InsertStockTransaction(ctx, other))

	txs, err := m.GetStockTransactions(ctx, "pf", "aapl")
	require.NoError(t, err)

	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	assert.Equal(t, []string{"a", "z", "b", "c"}, ids)
}

func TestStocks(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.InsertStock(ctx, model.Stock{ID: "1", Ticker: "AAPL"}))
	require.ErrorIs(t, m.InsertStock(ctx, model.Stock{ID: "2", Ticker: "aapl"}), repository.ErrAlreadyExists)

	s, err := m.GetStockByTicker(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "1", s.ID)

	_, err = m.GetStock(ctx, "2")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOptionLinks(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.InsertOptionTransaction(ctx, model.OptionTransaction{ID: "close", PortfolioID: "pf", OptionSymbol: "X", LinkedStockTxID: "stock"}))
	require.NoError(t, m.InsertOptionTransaction(ctx, model.OptionTransaction{ID: "open", PortfolioID: "pf", OptionSymbol: "X"}))

	tx, err := m.GetOptionTransactionByLinkedStockTx(ctx, "stock")
	require.NoError(t, err)
	assert.Equal(t, "close", tx.ID)

	_, err = m.GetOptionTransactionByLinkedStockTx(ctx, "")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
