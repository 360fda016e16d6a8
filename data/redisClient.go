package data

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/invest_ledger/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the cache and session store. The ledger keeps
// working from Postgres when a cached read fails later, but startup requires Redis.
func NewRedisClient(ctx context.Context, cfg *config.Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pong, err := rdb.Ping(pingCtx).Result()
	if err != nil {
		slog.Error("Error while connecting Redis", slog.String("err", err.Error()))
		panic(err)
	}
	slog.Info("Redis connected", slog.String("pong", pong), slog.Int("db", cfg.Redis.DB))

	return rdb
}
