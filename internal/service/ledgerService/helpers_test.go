package ledgerService

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KotFed0t/invest_ledger/config"
	"github.com/KotFed0t/invest_ledger/data/repository/memory"
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCacheMiss = errors.New("cache miss")

type fakeCache struct {
	mu       sync.Mutex
	fx       map[string]decimal.Decimal
	holdings map[string][]model.Holding
	versions map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		fx:       make(map[string]decimal.Decimal),
		holdings: make(map[string][]model.Holding),
		versions: make(map[string]int64),
	}
}

func holdingsCacheKey(portfolioID string, version int64) string {
	return fmt.Sprintf("%s:%d", portfolioID, version)
}

func fxKey(from, to string, date time.Time) string {
	return from + "/" + to + "/" + date.Format(time.DateOnly)
}

func (c *fakeCache) GetFxRate(_ context.Context, from, to string, date time.Time) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rate, ok := c.fx[fxKey(from, to, date)]
	if !ok {
		return decimal.Zero, errCacheMiss
	}
	return rate, nil
}

func (c *fakeCache) SetFxRate(_ context.Context, from, to string, date time.Time, rate decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fx[fxKey(from, to, date)] = rate
	return nil
}

func (c *fakeCache) SetFxRates(_ context.Context, to string, date time.Time, rates map[string]decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for from, rate := range rates {
		c.fx[fxKey(from, to, date)] = rate
	}
	return nil
}

func (c *fakeCache) HoldingsVersion(_ context.Context, portfolioID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[portfolioID], nil
}

func (c *fakeCache) GetHoldings(_ context.Context, portfolioID string, version int64) ([]model.Holding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.holdings[holdingsCacheKey(portfolioID, version)]
	if !ok {
		return nil, errCacheMiss
	}
	return h, nil
}

func (c *fakeCache) SetHoldings(_ context.Context, portfolioID string, version int64, holdings []model.Holding) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdings[holdingsCacheKey(portfolioID, version)] = holdings
	return nil
}

func (c *fakeCache) FlushPortfolioCache(_ context.Context, portfolioID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[portfolioID]++
	return nil
}

type fakeFxApi struct {
	rates map[string]decimal.Decimal
	calls atomic.Int32
}

func (f *fakeFxApi) GetRate(_ context.Context, from, to string, _ time.Time) (decimal.Decimal, error) {
	f.calls.Add(1)
	rate, ok := f.rates[from+"/"+to]
	if !ok {
		return decimal.Zero, errors.New("no rate")
	}
	return rate, nil
}

type fakeReportGenerator struct {
	got model.PortfolioReport
}

func (g *fakeReportGenerator) Generate(_ context.Context, report model.PortfolioReport) ([]byte, string, error) {
	g.got = report
	return []byte("xlsx"), ".xlsx", nil
}

type fakeCloudStorage struct {
	filename string
	content  []byte
}

func (s *fakeCloudStorage) UploadFile(_ context.Context, reader io.Reader, filename string) (string, error) {
	b, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	s.filename = filename
	s.content = b
	return "https://drive.example/" + filename, nil
}

func (s *fakeCloudStorage) DeleteOldFiles(context.Context) error {
	return nil
}

// failingRepo breaks the option insert of an assignment/exercise close.
type failingRepo struct {
	*memory.Memory
}

func (r *failingRepo) InsertOptionTransaction(ctx context.Context, tx model.OptionTransaction) error {
	if tx.LinkedStockTxID != "" {
		return errors.New("connection reset by peer")
	}
	return r.Memory.InsertOptionTransaction(ctx, tx)
}

type testEnv struct {
	svc     *LedgerService
	repo    *memory.Memory
	cache   *fakeCache
	fx      *fakeFxApi
	report  *fakeReportGenerator
	storage *fakeCloudStorage
}

var baseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func d(days int) time.Time {
	return baseTime.AddDate(0, 0, days).Add(15 * time.Hour)
}

func newTestEnv(t *testing.T, wrap ...func(*memory.Memory) Repository) *testEnv {
	t.Helper()

	env := &testEnv{
		repo:    memory.New(),
		cache:   newFakeCache(),
		fx:      &fakeFxApi{rates: map[string]decimal.Decimal{"USD/CZK": decimal.RequireFromString("23.5")}},
		report:  &fakeReportGenerator{},
		storage: &fakeCloudStorage{},
	}

	var repo Repository = env.repo
	for _, w := range wrap {
		repo = w(env.repo)
	}

	cfg := &config.Config{Ledger: config.Ledger{BaseCurrency: "USD", ReportPrefix: "ledger", WarmUpCurrencies: []string{"USD", "CZK"}}}
	env.svc = New(cfg, repo, env.cache, env.fx, env.report, env.storage)

	var tick atomic.Int64
	env.svc.now = func() time.Time {
		return baseTime.Add(time.Duration(tick.Add(1)) * time.Millisecond)
	}

	return env
}

func (e *testEnv) portfolio(t *testing.T) string {
	t.Helper()
	p, err := e.svc.CreatePortfolio(context.Background(), "main", "", "")
	require.NoError(t, err)
	return p.ID
}

func (e *testEnv) stockTx(t *testing.T, portfolioID string, txType model.TransactionType, at int, shares, price, source string) model.StockTransaction {
	t.Helper()
	tx, err := e.svc.AddStockTransaction(context.Background(), stockInput(portfolioID, txType, at, shares, price, source))
	require.NoError(t, err)
	return tx
}

func stockInput(portfolioID string, txType model.TransactionType, at int, shares, price, source string) model.NewStockTransaction {
	return model.NewStockTransaction{
		PortfolioID:         portfolioID,
		Ticker:              "AAPL",
		StockName:           "Apple Inc.",
		Type:                txType,
		Shares:              dec(shares),
		PricePerShare:       dec(price),
		Currency:            "USD",
		ExecutedAt:          d(at),
		SourceTransactionID: source,
	}
}

func optionInput(portfolioID string, optionType model.OptionType, action model.OptionAction, at int, contracts int64, premium string) model.NewOptionTransaction {
	in := model.NewOptionTransaction{
		PortfolioID:    portfolioID,
		Symbol:         "AAPL",
		OptionType:     optionType,
		StrikePrice:    dec("50"),
		ExpirationDate: time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC),
		Action:         action,
		Contracts:      contracts,
		Currency:       "USD",
		Date:           d(at),
	}
	if premium != "" {
		in.Premium = decPtr(premium)
	}
	return in
}

func (e *testEnv) openOption(t *testing.T, portfolioID string, optionType model.OptionType, action model.OptionAction, at int, contracts int64, premium string) model.OptionTransaction {
	t.Helper()
	tx, err := e.svc.AddOptionTransaction(context.Background(), optionInput(portfolioID, optionType, action, at, contracts, premium))
	require.NoError(t, err)
	return tx
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
