package ledgerService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/KotFed0t/invest_ledger/internal/externalApi"
	"github.com/KotFed0t/invest_ledger/internal/service"
	"github.com/KotFed0t/invest_ledger/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// resolveFxRate returns the rate snapshotted on a transaction: the explicit
// one when the caller supplied it, otherwise the provider rate for the trade date.
// It performs network I/O and must be called before any aggregate lock is taken.
func (s *LedgerService) resolveFxRate(ctx context.Context, explicit *decimal.Decimal, from, to string, date time.Time) (decimal.Decimal, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.resolveFxRate"

	if explicit != nil {
		return *explicit, nil
	}
	if strings.EqualFold(from, to) {
		return decimal.NewFromInt(1), nil
	}

	localKey := fxLocalKey(from, to, date)
	if v, ok := s.fxRates.Get(localKey); ok {
		return v.(decimal.Decimal), nil
	}

	rate, err := s.cache.GetFxRate(ctx, from, to, date)
	if err == nil {
		s.fxRates.Add(localKey, rate)
		return rate, nil
	}

	slog.Warn("can't get fx rate from cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))

	rate, err = s.fxApi.GetRate(ctx, from, to, date)
	if err != nil {
		if errors.Is(err, externalApi.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("%w: fx rate %s/%s", service.ErrNotFound, from, to)
		}
		slog.Error("can't get fx rate from fxApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return decimal.Zero, fmt.Errorf("resolve fx rate %s/%s: %w", from, to, err)
	}

	if err = s.cache.SetFxRate(ctx, from, to, date, rate); err != nil {
		slog.Warn("can't set fx rate to cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}
	s.fxRates.Add(localKey, rate)

	return rate, nil
}

// Historical rates are immutable, local entries never expire.
func fxLocalKey(from, to string, date time.Time) string {
	return strings.ToUpper(from) + "/" + strings.ToUpper(to) + "/" + date.UTC().Format(time.DateOnly)
}

// WarmUpFxRates prefetches today's rates of the configured currencies into the cache.
func (s *LedgerService) WarmUpFxRates(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.WarmUpFxRates"

	slog.Debug("WarmUpFxRates start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("WarmUpFxRates finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	base := s.cfg.Ledger.BaseCurrency
	today := s.now().UTC().Truncate(24 * time.Hour)

	var (
		mu    sync.Mutex
		rates = make(map[string]decimal.Decimal, len(s.cfg.Ledger.WarmUpCurrencies))
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, currency := range s.cfg.Ledger.WarmUpCurrencies {
		if strings.EqualFold(currency, base) {
			continue
		}
		g.Go(func() error {
			rate, err := s.fxApi.GetRate(gCtx, currency, base, today)
			if err != nil {
				return fmt.Errorf("get rate %s/%s: %w", currency, base, err)
			}
			mu.Lock()
			rates[currency] = rate
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("can't warm up fx rates", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return s.cache.SetFxRates(ctx, base, today, rates)
}
