package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/invest_ledger/config"
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/utils"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

type RedisCache struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisCache(redisClient *redis.Client, cfg *config.Config) *RedisCache {
	return &RedisCache{redis: redisClient, cfg: cfg}
}

func fxRateKey(from, to string, date time.Time) string {
	return fmt.Sprintf("fx:%s:%s:%s", from, to, date.Format(time.DateOnly))
}

func holdingsKey(portfolioID string, version int64) string {
	return fmt.Sprintf("holdings:%s:%d", portfolioID, version)
}

func holdingsVersionKey(portfolioID string) string {
	return "holdings:ver:" + portfolioID
}

// HoldingsVersion returns the generation of the cached holdings of a
// portfolio. Values are only read and written under the generation they
// were computed for, so a reader that raced a flush cannot revive a stale list.
func (r *RedisCache) HoldingsVersion(ctx context.Context, portfolioID string) (int64, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	version, err := r.redis.Get(ctx, holdingsVersionKey(portfolioID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return 0, err
	}

	return version, nil
}

func (r *RedisCache) SetFxRate(ctx context.Context, from, to string, date time.Time, rate decimal.Decimal) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	key := fxRateKey(from, to, date)

	if err := r.redis.Set(ctx, key, rate.String(), r.cfg.Cache.FxRatesExpiration).Err(); err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return err
	}

	return nil
}

// SetFxRates stores rates of several currencies to one target currency for a single date.
func (r *RedisCache) SetFxRates(ctx context.Context, to string, date time.Time, rates map[string]decimal.Decimal) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("start SetFxRates", slog.String("rqID", rqID))

	pipe := r.redis.Pipeline()
	for from, rate := range rates {
		pipe.Set(ctx, fxRateKey(from, to, date), rate.String(), r.cfg.Cache.FxRatesExpiration)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("failed on pipe.Exec", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetFxRates completed", slog.String("rqID", rqID), slog.Int("rates", len(rates)))

	return nil
}

func (r *RedisCache) GetFxRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	key := fxRateKey(from, to, date)
	slog.Debug("GetFxRate start", slog.String("rqID", rqID), slog.String("key", key))

	res, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		return decimal.Zero, err
	}

	rate, err := decimal.NewFromString(res)
	if err != nil {
		slog.Error("can't parse fx rate from cache", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("resultFromRedis", res))
		return decimal.Zero, errors.New("can't parse fx rate")
	}

	slog.Debug("GetFxRate finished", slog.String("rqID", rqID))

	return rate, nil
}

// SetHoldings stores the open positions of a portfolio as one msgpack value.
func (r *RedisCache) SetHoldings(ctx context.Context, portfolioID string, version int64, holdings []model.Holding) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("start SetHoldings", slog.String("rqID", rqID))

	b, err := msgpack.Marshal(holdings)
	if err != nil {
		slog.Error("can't marshall holdings in SetHoldings", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return errors.New("can't marshall holdings")
	}

	if err = r.redis.Set(ctx, holdingsKey(portfolioID, version), b, r.cfg.Cache.HoldingsExpiration).Err(); err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetHoldings completed", slog.String("rqID", rqID))

	return nil
}

func (r *RedisCache) GetHoldings(ctx context.Context, portfolioID string, version int64) ([]model.Holding, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("GetHoldings start", slog.String("rqID", rqID))

	res, err := r.redis.Get(ctx, holdingsKey(portfolioID, version)).Bytes()
	if err != nil {
		return nil, err
	}

	var holdings []model.Holding
	if err = msgpack.Unmarshal(res, &holdings); err != nil {
		slog.Error("can't unmarshall holdings in GetHoldings", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return nil, errors.New("can't unmarshall holdings")
	}

	slog.Debug("GetHoldings finished", slog.String("rqID", rqID))

	return holdings, nil
}

// FlushPortfolioCache moves a portfolio to a new cache generation. Entries of
// older generations expire on their own. FX rates are shared and stay.
func (r *RedisCache) FlushPortfolioCache(ctx context.Context, portfolioID string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	if err := r.redis.Incr(ctx, holdingsVersionKey(portfolioID)).Err(); err != nil {
		slog.Error("failed on redis.Incr", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	return nil
}
