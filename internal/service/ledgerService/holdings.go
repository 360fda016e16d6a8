package ledgerService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/utils"
)

// GetHoldings returns open stock positions. The read is lock-free and may
// lag one in-flight mutation.
func (s *LedgerService) GetHoldings(ctx context.Context, portfolioID string) ([]model.Holding, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.GetHoldings"

	slog.Debug("GetHoldings start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	defer func() {
		slog.Debug("GetHoldings finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	}()

	// the generation is read before the repository so a flush racing this
	// read leaves the result under a key nobody asks for anymore
	version, versionErr := s.cache.HoldingsVersion(ctx, portfolioID)
	if versionErr != nil {
		slog.Warn("can't get holdings cache version", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", versionErr.Error()))
	} else {
		holdings, err := s.cache.GetHoldings(ctx, portfolioID, version)
		if err == nil {
			return holdings, nil
		}
		slog.Warn("can't get holdings from cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	if _, err := s.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}

	all, err := s.repo.GetHoldings(ctx, portfolioID)
	if err != nil {
		slog.Error("got error from repo.GetHoldings", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	holdings := make([]model.Holding, 0, len(all))
	for _, h := range all {
		if h.Shares.IsPositive() {
			holdings = append(holdings, h)
		}
	}

	if versionErr == nil {
		if err = s.cache.SetHoldings(ctx, portfolioID, version, holdings); err != nil {
			slog.Warn("can't set holdings to cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}

	return holdings, nil
}

// GetAvailableLots lists the lots of a position that still hold shares, oldest first.
func (s *LedgerService) GetAvailableLots(ctx context.Context, portfolioID, ticker string) ([]model.Lot, error) {
	if _, err := s.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}

	stock, err := s.repo.GetStockByTicker(ctx, strings.ToUpper(strings.TrimSpace(ticker)))
	if err != nil {
		return nil, notFound(err, "stock "+ticker)
	}

	history, err := s.repo.GetStockTransactions(ctx, portfolioID, stock.ID)
	if err != nil {
		return nil, err
	}

	replay, err := guardStockHistory(stock, history)
	if err != nil {
		return nil, err
	}

	return replay.Lots, nil
}

// GetOptionHoldings returns option positions with open contracts.
func (s *LedgerService) GetOptionHoldings(ctx context.Context, portfolioID string) ([]model.OptionHolding, error) {
	if _, err := s.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}

	all, err := s.repo.GetOptionHoldings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	res := make([]model.OptionHolding, 0, len(all))
	for _, h := range all {
		if h.Contracts > 0 {
			res = append(res, h)
		}
	}
	return res, nil
}

// RecomputePortfolio replays every position of a portfolio from its full
// history and rewrites the materialized rows.
func (s *LedgerService) RecomputePortfolio(ctx context.Context, portfolioID string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.RecomputePortfolio"

	slog.Debug("RecomputePortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	defer func() {
		slog.Debug("RecomputePortfolio finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	}()

	if _, err := s.GetPortfolio(ctx, portfolioID); err != nil {
		return err
	}

	stockTxs, err := s.repo.ListStockTransactions(ctx, portfolioID)
	if err != nil {
		return err
	}
	optionTxs, err := s.repo.ListOptionTransactions(ctx, portfolioID)
	if err != nil {
		return err
	}

	var errs []error

	seen := make(map[string]bool)
	for _, tx := range stockTxs {
		if seen[tx.StockID] {
			continue
		}
		seen[tx.StockID] = true
		if err = s.recomputeStock(ctx, portfolioID, tx.StockID); err != nil {
			errs = append(errs, fmt.Errorf("stock %s: %w", tx.StockID, err))
		}
	}

	for _, tx := range optionTxs {
		if seen[tx.OptionSymbol] {
			continue
		}
		seen[tx.OptionSymbol] = true
		if err = s.recomputeOption(ctx, portfolioID, tx.OptionSymbol); err != nil {
			errs = append(errs, fmt.Errorf("option %s: %w", tx.OptionSymbol, err))
		}
	}

	s.flushPortfolioCache(ctx, portfolioID)

	return errors.Join(errs...)
}

func (s *LedgerService) recomputeStock(ctx context.Context, portfolioID, stockID string) error {
	stock, err := s.repo.GetStock(ctx, stockID)
	if err != nil {
		return notFound(err, "stock "+stockID)
	}

	key := stockKey(portfolioID, stockID)
	unlock := s.locks.Lock(key)
	defer unlock()

	return s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockAggregate(ctx, key); err != nil {
			return err
		}
		history, err := s.repo.GetStockTransactions(ctx, portfolioID, stockID)
		if err != nil {
			return err
		}
		replay, err := guardStockHistory(stock, history)
		if err != nil {
			return err
		}
		return s.saveHolding(ctx, portfolioID, stock, history, replay)
	})
}

func (s *LedgerService) recomputeOption(ctx context.Context, portfolioID, optionSymbol string) error {
	key := optionKey(portfolioID, optionSymbol)
	unlock := s.locks.Lock(key)
	defer unlock()

	return s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockAggregate(ctx, key); err != nil {
			return err
		}
		rows, err := s.repo.GetOptionTransactions(ctx, portfolioID, optionSymbol)
		if err != nil {
			return err
		}
		replay, err := guardOptionHistory(rows)
		if err != nil {
			return err
		}
		return s.syncOptionRows(ctx, portfolioID, optionSymbol, rows, replay, "")
	})
}

// ReconcileHoldings recomputes every portfolio. It runs as a scheduled job.
func (s *LedgerService) ReconcileHoldings(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.ReconcileHoldings"

	portfolios, err := s.repo.ListPortfolios(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range portfolios {
		if err = s.RecomputePortfolio(ctx, p.ID); err != nil {
			slog.Error("can't recompute portfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", p.ID), slog.String("err", err.Error()))
			errs = append(errs, err)
		}
	}

	slog.Info("holdings reconciled", slog.String("rqID", rqID), slog.Int("portfolios", len(portfolios)), slog.Int("failed", len(errs)))

	return errors.Join(errs...)
}
