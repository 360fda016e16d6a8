package ledgerService

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const expiringWindow = 7 * 24 * time.Hour

func (s *LedgerService) GetStats(ctx context.Context, portfolioID string) (model.Stats, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.GetStats"

	slog.Debug("GetStats start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	defer func() {
		slog.Debug("GetStats finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	}()

	if _, err := s.GetPortfolio(ctx, portfolioID); err != nil {
		return model.Stats{}, err
	}

	var (
		holdings       []model.Holding
		optionHoldings []model.OptionHolding
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		holdings, err = s.repo.GetHoldings(gCtx, portfolioID)
		return err
	})
	g.Go(func() (err error) {
		optionHoldings, err = s.repo.GetOptionHoldings(gCtx, portfolioID)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Error("can't load holdings", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Stats{}, err
	}

	return buildStats(holdings, optionHoldings, s.now()), nil
}

func buildStats(holdings []model.Holding, optionHoldings []model.OptionHolding, now time.Time) model.Stats {
	stats := model.Stats{
		TotalCost:         decimal.Zero,
		TotalInvestedBase: decimal.Zero,
		StockRealizedPnL:  decimal.Zero,
		OptionsTotalCost:  decimal.Zero,
		OptionRealizedPnL: decimal.Zero,
	}

	for _, h := range holdings {
		stats.StockRealizedPnL = stats.StockRealizedPnL.Add(h.RealizedPnL)
		if !h.Shares.IsPositive() {
			continue
		}
		stats.HoldingsCount++
		stats.TotalCost = stats.TotalCost.Add(h.TotalCost)
		stats.TotalInvestedBase = stats.TotalInvestedBase.Add(h.TotalInvestedBase)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, h := range optionHoldings {
		stats.OptionRealizedPnL = stats.OptionRealizedPnL.Add(h.RealizedPnL)
		if h.Contracts <= 0 {
			continue
		}

		stats.TotalPositions++
		if h.Position == model.Long {
			stats.LongPositions++
		} else {
			stats.ShortPositions++
		}
		if h.OptionType == model.Call {
			stats.Calls++
		} else {
			stats.Puts++
		}
		if !h.ExpirationDate.Before(today) && h.ExpirationDate.Sub(today) <= expiringWindow {
			stats.ExpiringThisWeek++
		}
		stats.OptionsTotalCost = stats.OptionsTotalCost.Add(h.TotalCost)
	}

	stats.TotalRealizedPnL = stats.StockRealizedPnL.Add(stats.OptionRealizedPnL)

	return stats
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetRealizedTimeline groups realized P&L by trade date. Zero from/to leave the range open.
func (s *LedgerService) GetRealizedTimeline(ctx context.Context, portfolioID string, from, to time.Time) ([]model.RealizedPoint, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.GetRealizedTimeline"

	slog.Debug("GetRealizedTimeline start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	defer func() {
		slog.Debug("GetRealizedTimeline finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	}()

	if _, err := s.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}

	stockTxs, err := s.repo.ListStockTransactions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	optionTxs, err := s.repo.ListOptionTransactions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	points := make(map[time.Time]*model.RealizedPoint)
	point := func(t time.Time) *model.RealizedPoint {
		d := day(t)
		p, ok := points[d]
		if !ok {
			p = &model.RealizedPoint{Date: d, Stocks: decimal.Zero, Options: decimal.Zero}
			points[d] = p
		}
		return p
	}

	byStock := make(map[string][]model.StockTransaction)
	byID := make(map[string]model.StockTransaction, len(stockTxs))
	for _, tx := range stockTxs {
		byStock[tx.StockID] = append(byStock[tx.StockID], tx)
		byID[tx.ID] = tx
	}

	for stockID, history := range byStock {
		stock, err := s.repo.GetStock(ctx, stockID)
		if err != nil {
			return nil, notFound(err, "stock "+stockID)
		}
		replay, err := guardStockHistory(stock, history)
		if err != nil {
			return nil, err
		}
		for _, sell := range replay.Sells {
			p := point(byID[sell.TransactionID].ExecutedAt)
			p.Stocks = p.Stocks.Add(sell.RealizedPnL)
		}
	}

	for _, tx := range optionTxs {
		if tx.Action.IsOpening() || tx.TotalPremium == nil {
			continue
		}
		p := point(tx.Date)
		p.Options = p.Options.Add(*tx.TotalPremium)
	}

	res := make([]model.RealizedPoint, 0, len(points))
	for _, p := range points {
		res = append(res, *p)
	}
	slices.SortFunc(res, func(a, b model.RealizedPoint) int { return a.Date.Compare(b.Date) })

	cumulative := decimal.Zero
	filtered := res[:0]
	for _, p := range res {
		p.Total = p.Stocks.Add(p.Options)
		cumulative = cumulative.Add(p.Total)
		p.Cumulative = cumulative

		if !from.IsZero() && p.Date.Before(day(from)) {
			continue
		}
		if !to.IsZero() && p.Date.After(day(to)) {
			continue
		}
		filtered = append(filtered, p)
	}

	return filtered, nil
}
