package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel          string `env:"LOG_LEVEL"`
	Postgres          Postgres
	Telegram          Telegram
	Redis             Redis
	API               API
	Cache             Cache
	Jobs              Jobs
	GoogleDrive       GoogleDrive
	Ledger            Ledger
	SessionExpiration time.Duration `env:"SESSION_EXPIRATION"`
}

type Postgres struct {
	Host            string `env:"PG_HOST"`
	Port            int    `env:"PG_PORT"`
	DbName          string `env:"PG_DB_NAME"`
	Password        string `env:"PG_PASSWORD"`
	User            string `env:"PG_USER"`
	SSLMode         string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxOpenConns    int    `env:"PG_MAX_OPEN_CONNS"`
	ConnMaxLifetime int    `env:"PG_CONN_MAX_LIFETIME"`
	MaxIdleConns    int    `env:"PG_MAX_IDLE_CONNS"`
	ConnMaxIdleTime int    `env:"PG_CONN_MAX_IDLE_TIME"`
	MigrationDir    string `env:"PG_MIGRATION_DIR" envDefault:"data/migrations"`
}

type Telegram struct {
	Token      string        `env:"TELEGRAM_TOKEN"`
	UpdTimeout time.Duration `env:"TELEGRAM_UPD_TIMEOUT"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`
}

type API struct {
	Debug   bool          `env:"API_DEBUG"`
	Timeout time.Duration `env:"API_TIMEOUT"`
	FxApi   FxApi
}

type FxApi struct {
	Url string `env:"FX_API_URL"`
}

type Cache struct {
	FxRatesExpiration  time.Duration `env:"CACHE_FX_RATES_EXPIRATION" envDefault:"1h"`
	HoldingsExpiration time.Duration `env:"CACHE_HOLDINGS_EXPIRATION" envDefault:"10m"`
	FxRatesLocalSize   int           `env:"CACHE_FX_RATES_LOCAL_SIZE" envDefault:"1024"`
}

type Jobs struct {
	WarmUpFxRatesInterval time.Duration `env:"WARM_UP_FX_RATES_JOB_INTERVAL"`
	ReconcileHoldingsCron string        `env:"RECONCILE_HOLDINGS_JOB_CRONTAB" envDefault:"0 3 * * *"`
	DeleteOldReportsCron  string        `env:"DELETE_OLD_REPORTS_JOB_CRONTAB" envDefault:"30 3 * * *"`
}

type GoogleDrive struct {
	CredentialsFile string        `env:"GOOGLE_DRIVE_CREDENTIALS_FILE"`
	FileTTL         time.Duration `env:"GOOGLE_DRIVE_FILE_TTL" envDefault:"24h"`
}

type Ledger struct {
	BaseCurrency     string   `env:"LEDGER_BASE_CURRENCY" envDefault:"CZK"`
	WarmUpCurrencies []string `env:"LEDGER_WARM_UP_CURRENCIES" envDefault:"USD,EUR,GBP"`
	ReportPrefix     string   `env:"LEDGER_REPORT_PREFIX" envDefault:"ledger"`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{RequiredIfNoDef: true}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
