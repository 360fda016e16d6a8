package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/invest_ledger/config"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const (
	defaultConnAttempts = 10
	connTimeout         = time.Second
)

func postgresDSN(cfg config.Postgres) string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s password=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.DbName,
		cfg.SSLMode,
		cfg.Password,
	)
}

// NewPostgresClient connects with retries, applies pool settings and runs pending migrations.
// The ledger cannot work without its store, so every failure panics.
func NewPostgresClient(ctx context.Context, cfg *config.Config) *sqlx.DB {
	var (
		db  *sqlx.DB
		err error
	)

	for attempt := 1; attempt <= defaultConnAttempts; attempt++ {
		connCtx, cancel := context.WithTimeout(ctx, connTimeout*5)
		db, err = sqlx.ConnectContext(connCtx, "pgx", postgresDSN(cfg.Postgres))
		cancel()
		if err == nil {
			break
		}

		slog.Info("Postgres is trying to connect", slog.Int("attempt", attempt), slog.String("err", err.Error()))
		time.Sleep(connTimeout)
	}

	if err != nil {
		slog.Error("Postgres connection attempts exhausted")
		panic(err)
	}

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxIdleTime(time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second)
	if err = db.PingContext(ctx); err != nil {
		slog.Error("Postgres ping error")
		panic(err)
	}
	slog.Info("Postgres connected")

	if err = migratePostgres(db, cfg.Postgres.MigrationDir); err != nil {
		slog.Error("postgres migration failed", slog.String("err", err.Error()))
		panic(err)
	}
	slog.Info("postgres migrated successfully")

	return db
}

func migratePostgres(db *sqlx.DB, migrationDir string) error {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres.WithInstance: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate.NewWithDatabaseInstance: %w", err)
	}

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("m.Up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("m.Version: %w", err)
	}
	slog.Info("postgres schema version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))

	return nil
}
