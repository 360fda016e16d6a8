package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/KotFed0t/invest_ledger/config"
	"github.com/KotFed0t/invest_ledger/data"
	"github.com/KotFed0t/invest_ledger/data/cache"
	"github.com/KotFed0t/invest_ledger/data/repository/postgres"
	"github.com/KotFed0t/invest_ledger/data/session"
	"github.com/KotFed0t/invest_ledger/internal/externalApi/cloudStorageApi/googleDriveApi"
	"github.com/KotFed0t/invest_ledger/internal/externalApi/fxApi"
	"github.com/KotFed0t/invest_ledger/internal/reportGenerator/xslsxGenerator"
	"github.com/KotFed0t/invest_ledger/internal/scheduler"
	"github.com/KotFed0t/invest_ledger/internal/service/ledgerService"
	"github.com/KotFed0t/invest_ledger/internal/tgbot"
	"github.com/KotFed0t/invest_ledger/internal/transport/telegram"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgClient := data.NewPostgresClient(ctx, cfg)
	defer pgClient.Close()

	pgRepo := postgres.NewPostgres(cfg, pgClient)

	redisClient := data.NewRedisClient(ctx, cfg)
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, cfg)
	redisSession := session.NewRedisSession(redisClient, cfg)

	fxApiClient := fxApi.New(cfg)

	reportGenerator := xslsxGenerator.New()

	googleCloudStorage, err := googleDriveApi.New(ctx, cfg)
	if err != nil {
		slog.Error("can't init google drive api", slog.String("err", err.Error()))
		os.Exit(1)
	}

	ledgerSrv := ledgerService.New(cfg, pgRepo, redisCache, fxApiClient, reportGenerator, googleCloudStorage)

	sched := scheduler.New()
	err = errors.Join(
		sched.NewIntervalJob("warm up fx rates", ledgerSrv.WarmUpFxRates, cfg.Jobs.WarmUpFxRatesInterval, true),
		sched.NewCrontabJob("reconcile holdings", ledgerSrv.ReconcileHoldings, cfg.Jobs.ReconcileHoldingsCron, false),
		sched.NewCrontabJob("delete old reports", ledgerSrv.DeleteOldReports, cfg.Jobs.DeleteOldReportsCron, false),
	)
	if err != nil {
		slog.Error("can't schedule jobs", slog.String("err", err.Error()))
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	tgController := telegram.NewController(cfg, ledgerSrv, redisSession)

	tgBot, err := tgbot.New(cfg, tgController, redisSession)
	if err != nil {
		slog.Error("can't init tgbot", slog.String("err", err.Error()))
		os.Exit(1)
	}
	tgBot.Start()
	defer tgBot.Stop()

	<-ctx.Done()
	slog.Info("shutting down")
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
