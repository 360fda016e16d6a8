package ledgerService

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/KotFed0t/invest_ledger/data/repository"
	"github.com/KotFed0t/invest_ledger/internal/accounting"
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/service"
	"github.com/KotFed0t/invest_ledger/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (s *LedgerService) getOrCreateStock(ctx context.Context, ticker, name, currency string, priceScale *decimal.Decimal) (model.Stock, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	stock, err := s.repo.GetStockByTicker(ctx, ticker)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.Stock{}, err
	}

	if currency == "" {
		return model.Stock{}, service.Validationf("currency is required for new stock %s", ticker)
	}
	if name == "" {
		name = ticker
	}
	scale := decimal.NewFromInt(1)
	if priceScale != nil {
		scale = *priceScale
	}

	stock = model.Stock{
		ID:         uuid.NewString(),
		Ticker:     ticker,
		Name:       name,
		Currency:   strings.ToUpper(currency),
		PriceScale: scale,
	}

	err = s.repo.InsertStock(ctx, stock)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return s.repo.GetStockByTicker(ctx, ticker)
	}
	if err != nil {
		return model.Stock{}, err
	}

	return stock, nil
}

// saveHolding materializes a replay. A position without any transaction left is removed.
func (s *LedgerService) saveHolding(ctx context.Context, portfolioID string, stock model.Stock, history []model.StockTransaction, replay accounting.HoldingReplay) error {
	if len(history) == 0 {
		return s.repo.DeleteHolding(ctx, portfolioID, stock.ID)
	}

	h := replay.Holding
	h.PortfolioID = portfolioID
	h.UpdatedAt = s.now()
	return s.repo.UpsertHolding(ctx, h)
}

func (s *LedgerService) AddStockTransaction(ctx context.Context, in model.NewStockTransaction) (model.StockTransaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.AddStockTransaction"

	slog.Debug("AddStockTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", in.Ticker), slog.String("type", string(in.Type)))
	defer func() {
		slog.Debug("AddStockTransaction finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", in.Ticker))
	}()

	if err := validateNewStockTransaction(in); err != nil {
		return model.StockTransaction{}, err
	}

	portfolio, err := s.GetPortfolio(ctx, in.PortfolioID)
	if err != nil {
		return model.StockTransaction{}, err
	}

	stock, err := s.getOrCreateStock(ctx, in.Ticker, in.StockName, in.Currency, in.PriceScale)
	if err != nil {
		slog.Error("got error from getOrCreateStock", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.StockTransaction{}, err
	}

	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = stock.Currency
	}

	fxRate, err := s.resolveFxRate(ctx, in.FxRateToBase, currency, portfolio.BaseCurrency, in.ExecutedAt)
	if err != nil {
		return model.StockTransaction{}, err
	}

	tx := model.StockTransaction{
		ID:                  uuid.NewString(),
		PortfolioID:         portfolio.ID,
		StockID:             stock.ID,
		Type:                in.Type,
		Shares:              in.Shares,
		PricePerShare:       in.PricePerShare,
		Currency:            currency,
		FxRateToBase:        fxRate,
		Fees:                in.Fees,
		ExecutedAt:          in.ExecutedAt,
		SourceTransactionID: in.SourceTransactionID,
		Notes:               in.Notes,
		CreatedAt:           s.now(),
	}

	key := stockKey(portfolio.ID, stock.ID)
	unlock := s.locks.Lock(key)
	defer unlock()

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockAggregate(ctx, key); err != nil {
			return err
		}

		history, err := s.repo.GetStockTransactions(ctx, portfolio.ID, stock.ID)
		if err != nil {
			return err
		}

		history = append(history, tx)
		replay, err := guardStockHistory(stock, history)
		if err != nil {
			return err
		}

		if err = s.repo.InsertStockTransaction(ctx, tx); err != nil {
			return err
		}

		return s.saveHolding(ctx, portfolio.ID, stock, history, replay)
	})
	if err != nil {
		slog.Error("can't add stock transaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.StockTransaction{}, err
	}

	s.flushPortfolioCache(ctx, portfolio.ID)

	return tx, nil
}

func applyStockChanges(tx model.StockTransaction, c model.StockTransactionChanges) model.StockTransaction {
	if c.Shares != nil {
		tx.Shares = *c.Shares
	}
	if c.PricePerShare != nil {
		tx.PricePerShare = *c.PricePerShare
	}
	if c.FxRateToBase != nil {
		tx.FxRateToBase = *c.FxRateToBase
	}
	if c.Fees != nil {
		tx.Fees = *c.Fees
	}
	if c.ExecutedAt != nil {
		tx.ExecutedAt = *c.ExecutedAt
	}
	if c.Notes != nil {
		tx.Notes = *c.Notes
	}
	return tx
}

// checkNotLinked rejects direct edits of a stock transaction produced by an option close.
func (s *LedgerService) checkNotLinked(ctx context.Context, stockTxID string) error {
	linked, err := s.repo.GetOptionTransactionByLinkedStockTx(ctx, stockTxID)
	if err == nil {
		return service.Violation(service.ErrLinkedTransaction,
			errors.New("stock transaction "+stockTxID+" was created by option transaction "+linked.ID+", change the option transaction instead"))
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

func (s *LedgerService) UpdateStockTransaction(ctx context.Context, id string, changes model.StockTransactionChanges) (model.StockTransaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.UpdateStockTransaction"

	slog.Debug("UpdateStockTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.String("id", id))
	defer func() {
		slog.Debug("UpdateStockTransaction finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("id", id))
	}()

	if err := validateStockChanges(changes); err != nil {
		return model.StockTransaction{}, err
	}

	current, err := s.repo.GetStockTransaction(ctx, id)
	if err != nil {
		return model.StockTransaction{}, notFound(err, "stock transaction "+id)
	}
	if err = s.checkNotLinked(ctx, id); err != nil {
		return model.StockTransaction{}, err
	}

	stock, err := s.repo.GetStock(ctx, current.StockID)
	if err != nil {
		return model.StockTransaction{}, notFound(err, "stock "+current.StockID)
	}

	key := stockKey(current.PortfolioID, current.StockID)
	unlock := s.locks.Lock(key)
	defer unlock()

	var updated model.StockTransaction
	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockAggregate(ctx, key); err != nil {
			return err
		}

		current, err := s.repo.GetStockTransaction(ctx, id)
		if err != nil {
			return notFound(err, "stock transaction "+id)
		}
		updated = applyStockChanges(current, changes)

		history, err := s.repo.GetStockTransactions(ctx, current.PortfolioID, current.StockID)
		if err != nil {
			return err
		}
		for i := range history {
			if history[i].ID == id {
				history[i] = updated
			}
		}

		replay, err := guardStockHistory(stock, history)
		if err != nil {
			return err
		}

		if err = s.repo.UpdateStockTransaction(ctx, updated); err != nil {
			return err
		}

		return s.saveHolding(ctx, current.PortfolioID, stock, history, replay)
	})
	if err != nil {
		slog.Error("can't update stock transaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.StockTransaction{}, err
	}

	s.flushPortfolioCache(ctx, current.PortfolioID)

	return updated, nil
}

func (s *LedgerService) DeleteStockTransaction(ctx context.Context, id string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.DeleteStockTransaction"

	slog.Debug("DeleteStockTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.String("id", id))
	defer func() {
		slog.Debug("DeleteStockTransaction finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("id", id))
	}()

	current, err := s.repo.GetStockTransaction(ctx, id)
	if err != nil {
		return notFound(err, "stock transaction "+id)
	}
	if err = s.checkNotLinked(ctx, id); err != nil {
		return err
	}

	stock, err := s.repo.GetStock(ctx, current.StockID)
	if err != nil {
		return notFound(err, "stock "+current.StockID)
	}

	key := stockKey(current.PortfolioID, current.StockID)
	unlock := s.locks.Lock(key)
	defer unlock()

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockAggregate(ctx, key); err != nil {
			return err
		}
		return s.deleteStockTransactions(ctx, stock, current.PortfolioID, map[string]bool{id: true})
	})
	if err != nil {
		slog.Error("can't delete stock transaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	s.flushPortfolioCache(ctx, current.PortfolioID)

	return nil
}

// deleteStockTransactions removes ids from one position and recomputes it.
// It must run inside a transaction holding the position's lock.
func (s *LedgerService) deleteStockTransactions(ctx context.Context, stock model.Stock, portfolioID string, ids map[string]bool) error {
	history, err := s.repo.GetStockTransactions(ctx, portfolioID, stock.ID)
	if err != nil {
		return err
	}

	var deleting map[string]bool
	if len(ids) > 1 {
		deleting = ids
	}
	found := 0
	for _, tx := range history {
		if !ids[tx.ID] {
			continue
		}
		found++
		if err = s.guardBuyDeletion(ctx, tx, deleting); err != nil {
			return err
		}
	}
	if found != len(ids) {
		return notFound(repository.ErrNotFound, "stock transaction")
	}

	remaining := without(history, stockTxID, ids)
	replay, err := guardStockHistory(stock, remaining)
	if err != nil {
		return err
	}

	for id := range ids {
		if err = s.repo.DeleteStockTransaction(ctx, id); err != nil {
			return err
		}
	}

	return s.saveHolding(ctx, portfolioID, stock, remaining, replay)
}

func (s *LedgerService) ListStockTransactions(ctx context.Context, portfolioID string) ([]model.StockTransaction, error) {
	if _, err := s.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.repo.ListStockTransactions(ctx, portfolioID)
}
