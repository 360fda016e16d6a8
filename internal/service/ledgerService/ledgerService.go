package ledgerService

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/KotFed0t/invest_ledger/config"
	"github.com/KotFed0t/invest_ledger/data/repository"
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/service"
	"github.com/KotFed0t/invest_ledger/utils"
	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"
)

const defaultFxRatesLocalSize = 1024

type FxApi interface {
	GetRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error)
}

type Cache interface {
	GetFxRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error)
	SetFxRate(ctx context.Context, from, to string, date time.Time, rate decimal.Decimal) error
	SetFxRates(ctx context.Context, to string, date time.Time, rates map[string]decimal.Decimal) error
	HoldingsVersion(ctx context.Context, portfolioID string) (int64, error)
	GetHoldings(ctx context.Context, portfolioID string, version int64) ([]model.Holding, error)
	SetHoldings(ctx context.Context, portfolioID string, version int64, holdings []model.Holding) error
	FlushPortfolioCache(ctx context.Context, portfolioID string) error
}

type ReportGenerator interface {
	Generate(ctx context.Context, report model.PortfolioReport) (fileBytes []byte, fileExtension string, err error)
}

type CloudStorage interface {
	UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error)
	DeleteOldFiles(ctx context.Context) error
}

// Repository is the transaction store. History reads return rows ordered
// the way they are replayed.
type Repository interface {
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error
	// LockAggregate serializes writers of one aggregate until the surrounding transaction ends.
	LockAggregate(ctx context.Context, key string) error

	CreatePortfolio(ctx context.Context, portfolio model.Portfolio) error
	GetPortfolio(ctx context.Context, id string) (model.Portfolio, error)
	ListPortfolios(ctx context.Context) ([]model.Portfolio, error)

	InsertStock(ctx context.Context, stock model.Stock) error
	GetStock(ctx context.Context, id string) (model.Stock, error)
	GetStockByTicker(ctx context.Context, ticker string) (model.Stock, error)

	InsertStockTransaction(ctx context.Context, tx model.StockTransaction) error
	UpdateStockTransaction(ctx context.Context, tx model.StockTransaction) error
	DeleteStockTransaction(ctx context.Context, id string) error
	GetStockTransaction(ctx context.Context, id string) (model.StockTransaction, error)
	GetStockTransactions(ctx context.Context, portfolioID, stockID string) ([]model.StockTransaction, error)
	ListStockTransactions(ctx context.Context, portfolioID string) ([]model.StockTransaction, error)
	CountDependentSells(ctx context.Context, buyID string) (int, error)

	UpsertHolding(ctx context.Context, holding model.Holding) error
	DeleteHolding(ctx context.Context, portfolioID, stockID string) error
	GetHoldings(ctx context.Context, portfolioID string) ([]model.Holding, error)

	InsertOptionTransaction(ctx context.Context, tx model.OptionTransaction) error
	UpdateOptionTransaction(ctx context.Context, tx model.OptionTransaction) error
	DeleteOptionTransaction(ctx context.Context, id string) error
	GetOptionTransaction(ctx context.Context, id string) (model.OptionTransaction, error)
	GetOptionTransactionByLinkedStockTx(ctx context.Context, stockTxID string) (model.OptionTransaction, error)
	GetOptionTransactions(ctx context.Context, portfolioID, optionSymbol string) ([]model.OptionTransaction, error)
	ListOptionTransactions(ctx context.Context, portfolioID string) ([]model.OptionTransaction, error)

	UpsertOptionHolding(ctx context.Context, holding model.OptionHolding) error
	DeleteOptionHolding(ctx context.Context, portfolioID, optionSymbol string) error
	GetOptionHoldings(ctx context.Context, portfolioID string) ([]model.OptionHolding, error)
}

type LedgerService struct {
	cfg             *config.Config
	repo            Repository
	cache           Cache
	fxApi           FxApi
	reportGenerator ReportGenerator
	cloudStorage    CloudStorage
	locks           *aggregateLocks
	fxRates         *lru.Cache // resolved historical rates, in front of Cache
	now             func() time.Time
}

func New(
	cfg *config.Config,
	repo Repository,
	cache Cache,
	fxApi FxApi,
	reportGenerator ReportGenerator,
	cloudStorage CloudStorage,
) *LedgerService {
	size := cfg.Cache.FxRatesLocalSize
	if size <= 0 {
		size = defaultFxRatesLocalSize
	}
	// lru.New fails only on a non-positive size
	fxRates, _ := lru.New(size)

	return &LedgerService{
		cfg:             cfg,
		repo:            repo,
		cache:           cache,
		fxApi:           fxApi,
		reportGenerator: reportGenerator,
		cloudStorage:    cloudStorage,
		locks:           newAggregateLocks(),
		fxRates:         fxRates,
		now:             time.Now,
	}
}

// notFound maps a repository miss to the caller-facing kind.
func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", service.ErrNotFound, what)
	}
	return err
}

func (s *LedgerService) flushPortfolioCache(ctx context.Context, portfolioID string) {
	if err := s.cache.FlushPortfolioCache(ctx, portfolioID); err != nil {
		slog.Warn(
			"can't flush portfolio cache",
			slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
			slog.String("portfolioID", portfolioID),
			slog.String("err", err.Error()),
		)
	}
}
