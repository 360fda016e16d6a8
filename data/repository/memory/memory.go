package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/KotFed0t/invest_ledger/data/repository"
	"github.com/KotFed0t/invest_ledger/internal/accounting"
	"github.com/KotFed0t/invest_ledger/internal/model"
)

type state struct {
	portfolios     map[string]model.Portfolio
	stocks         map[string]model.Stock
	stockTxs       map[string]model.StockTransaction
	holdings       map[string]model.Holding // portfolioID/stockID
	optionTxs      map[string]model.OptionTransaction
	optionHoldings map[string]model.OptionHolding // portfolioID/optionSymbol
}

func (s *state) clone() *state {
	return &state{
		portfolios:     maps.Clone(s.portfolios),
		stocks:         maps.Clone(s.stocks),
		stockTxs:       maps.Clone(s.stockTxs),
		holdings:       maps.Clone(s.holdings),
		optionTxs:      maps.Clone(s.optionTxs),
		optionHoldings: maps.Clone(s.optionHoldings),
	}
}

type txKey struct{}

// Memory is an in-process store. A transaction holds the store mutex for its
// whole duration and restores a snapshot when the function fails, so
// transactions are serializable.
type Memory struct {
	mu sync.Mutex
	st *state
}

func New() *Memory {
	return &Memory{st: &state{
		portfolios:     make(map[string]model.Portfolio),
		stocks:         make(map[string]model.Stock),
		stockTxs:       make(map[string]model.StockTransaction),
		holdings:       make(map[string]model.Holding),
		optionTxs:      make(map[string]model.OptionTransaction),
		optionHoldings: make(map[string]model.OptionHolding),
	}}
}

func (m *Memory) WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error {
	if inTx(ctx) {
		return tFunc(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := tFunc(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// LockAggregate is a no-op: a transaction already owns the whole store.
func (m *Memory) LockAggregate(ctx context.Context, key string) error {
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// lock takes the store mutex unless the caller already runs inside a transaction.
func (m *Memory) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func holdingKey(portfolioID, id string) string {
	return portfolioID + "/" + id
}

/* ---- portfolios ---- */

func (m *Memory) CreatePortfolio(ctx context.Context, p model.Portfolio) error {
	defer m.lock(ctx)()
	if _, ok := m.st.portfolios[p.ID]; ok {
		return repository.ErrAlreadyExists
	}
	m.st.portfolios[p.ID] = p
	return nil
}

func (m *Memory) GetPortfolio(ctx context.Context, id string) (model.Portfolio, error) {
	defer m.lock(ctx)()
	p, ok := m.st.portfolios[id]
	if !ok {
		return model.Portfolio{}, repository.ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListPortfolios(ctx context.Context) ([]model.Portfolio, error) {
	defer m.lock(ctx)()
	res := slices.Collect(maps.Values(m.st.portfolios))
	slices.SortFunc(res, func(a, b model.Portfolio) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return res, nil
}

/* ---- stocks ---- */

func (m *Memory) InsertStock(ctx context.Context, stock model.Stock) error {
	defer m.lock(ctx)()
	for _, s := range m.st.stocks {
		if strings.EqualFold(s.Ticker, stock.Ticker) {
			return repository.ErrAlreadyExists
		}
	}
	m.st.stocks[stock.ID] = stock
	return nil
}

func (m *Memory) GetStock(ctx context.Context, id string) (model.Stock, error) {
	defer m.lock(ctx)()
	s, ok := m.st.stocks[id]
	if !ok {
		return model.Stock{}, repository.ErrNotFound
	}
	return s, nil
}

func (m *Memory) GetStockByTicker(ctx context.Context, ticker string) (model.Stock, error) {
	defer m.lock(ctx)()
	for _, s := range m.st.stocks {
		if strings.EqualFold(s.Ticker, ticker) {
			return s, nil
		}
	}
	return model.Stock{}, repository.ErrNotFound
}

/* ---- stock transactions ---- */

func (m *Memory) InsertStockTransaction(ctx context.Context, tx model.StockTransaction) error {
	defer m.lock(ctx)()
	if _, ok := m.st.stockTxs[tx.ID]; ok {
		return repository.ErrAlreadyExists
	}
	m.st.stockTxs[tx.ID] = tx
	return nil
}

func (m *Memory) UpdateStockTransaction(ctx context.Context, tx model.StockTransaction) error {
	defer m.lock(ctx)()
	if _, ok := m.st.stockTxs[tx.ID]; !ok {
		return repository.ErrNotFound
	}
	m.st.stockTxs[tx.ID] = tx
	return nil
}

func (m *Memory) DeleteStockTransaction(ctx context.Context, id string) error {
	defer m.lock(ctx)()
	if _, ok := m.st.stockTxs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.st.stockTxs, id)
	return nil
}

func (m *Memory) GetStockTransaction(ctx context.Context, id string) (model.StockTransaction, error) {
	defer m.lock(ctx)()
	tx, ok := m.st.stockTxs[id]
	if !ok {
		return model.StockTransaction{}, repository.ErrNotFound
	}
	return tx, nil
}

func (m *Memory) GetStockTransactions(ctx context.Context, portfolioID, stockID string) ([]model.StockTransaction, error) {
	defer m.lock(ctx)()
	res := make([]model.StockTransaction, 0)
	for _, tx := range m.st.stockTxs {
		if tx.PortfolioID == portfolioID && tx.StockID == stockID {
			res = append(res, tx)
		}
	}
	accounting.SortStockTransactions(res)
	return res, nil
}

func (m *Memory) ListStockTransactions(ctx context.Context, portfolioID string) ([]model.StockTransaction, error) {
	defer m.lock(ctx)()
	res := make([]model.StockTransaction, 0)
	for _, tx := range m.st.stockTxs {
		if tx.PortfolioID == portfolioID {
			res = append(res, tx)
		}
	}
	accounting.SortStockTransactions(res)
	return res, nil
}

func (m *Memory) CountDependentSells(ctx context.Context, buyID string) (int, error) {
	defer m.lock(ctx)()
	n := 0
	for _, tx := range m.st.stockTxs {
		if tx.Type == model.Sell && tx.SourceTransactionID == buyID {
			n++
		}
	}
	return n, nil
}

/* ---- holdings ---- */

func (m *Memory) UpsertHolding(ctx context.Context, h model.Holding) error {
	defer m.lock(ctx)()
	m.st.holdings[holdingKey(h.PortfolioID, h.StockID)] = h
	return nil
}

func (m *Memory) DeleteHolding(ctx context.Context, portfolioID, stockID string) error {
	defer m.lock(ctx)()
	delete(m.st.holdings, holdingKey(portfolioID, stockID))
	return nil
}

func (m *Memory) GetHoldings(ctx context.Context, portfolioID string) ([]model.Holding, error) {
	defer m.lock(ctx)()
	res := make([]model.Holding, 0)
	for _, h := range m.st.holdings {
		if h.PortfolioID == portfolioID {
			res = append(res, h)
		}
	}
	slices.SortFunc(res, func(a, b model.Holding) int { return strings.Compare(a.Ticker, b.Ticker) })
	return res, nil
}

/* ---- option transactions ---- */

func (m *Memory) InsertOptionTransaction(ctx context.Context, tx model.OptionTransaction) error {
	defer m.lock(ctx)()
	if _, ok := m.st.optionTxs[tx.ID]; ok {
		return repository.ErrAlreadyExists
	}
	m.st.optionTxs[tx.ID] = tx
	return nil
}

func (m *Memory) UpdateOptionTransaction(ctx context.Context, tx model.OptionTransaction) error {
	defer m.lock(ctx)()
	if _, ok := m.st.optionTxs[tx.ID]; !ok {
		return repository.ErrNotFound
	}
	m.st.optionTxs[tx.ID] = tx
	return nil
}

func (m *Memory) DeleteOptionTransaction(ctx context.Context, id string) error {
	defer m.lock(ctx)()
	if _, ok := m.st.optionTxs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.st.optionTxs, id)
	return nil
}

func (m *Memory) GetOptionTransaction(ctx context.Context, id string) (model.OptionTransaction, error) {
	defer m.lock(ctx)()
	tx, ok := m.st.optionTxs[id]
	if !ok {
		return model.OptionTransaction{}, repository.ErrNotFound
	}
	return tx, nil
}

func (m *Memory) GetOptionTransactionByLinkedStockTx(ctx context.Context, stockTxID string) (model.OptionTransaction, error) {
	defer m.lock(ctx)()
	for _, tx := range m.st.optionTxs {
		if stockTxID != "" && tx.LinkedStockTxID == stockTxID {
			return tx, nil
		}
	}
	return model.OptionTransaction{}, repository.ErrNotFound
}

func (m *Memory) GetOptionTransactions(ctx context.Context, portfolioID, optionSymbol string) ([]model.OptionTransaction, error) {
	defer m.lock(ctx)()
	res := make([]model.OptionTransaction, 0)
	for _, tx := range m.st.optionTxs {
		if tx.PortfolioID == portfolioID && tx.OptionSymbol == optionSymbol {
			res = append(res, tx)
		}
	}
	accounting.SortOptionTransactions(res)
	return res, nil
}

func (m *Memory) ListOptionTransactions(ctx context.Context, portfolioID string) ([]model.OptionTransaction, error) {
	defer m.lock(ctx)()
	res := make([]model.OptionTransaction, 0)
	for _, tx := range m.st.optionTxs {
		if tx.PortfolioID == portfolioID {
			res = append(res, tx)
		}
	}
	accounting.SortOptionTransactions(res)
	return res, nil
}

/* ---- option holdings ---- */

func (m *Memory) UpsertOptionHolding(ctx context.Context, h model.OptionHolding) error {
	defer m.lock(ctx)()
	m.st.optionHoldings[holdingKey(h.PortfolioID, h.OptionSymbol)] = h
	return nil
}

func (m *Memory) DeleteOptionHolding(ctx context.Context, portfolioID, optionSymbol string) error {
	defer m.lock(ctx)()
	delete(m.st.optionHoldings, holdingKey(portfolioID, optionSymbol))
	return nil
}

func (m *Memory) GetOptionHoldings(ctx context.Context, portfolioID string) ([]model.OptionHolding, error) {
	defer m.lock(ctx)()
	res := make([]model.OptionHolding, 0)
	for _, h := range m.st.optionHoldings {
		if h.PortfolioID == portfolioID {
			res = append(res, h)
		}
	}
	slices.SortFunc(res, func(a, b model.OptionHolding) int {
		if c := a.ExpirationDate.Compare(b.ExpirationDate); c != 0 {
			return c
		}
		return strings.Compare(a.OptionSymbol, b.OptionSymbol)
	})
	return res, nil
}
