package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADELOOP_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADELOOP_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Algo ──
	setStr(&cfg.Algo.Name, "TRADELOOP_ALGO_NAME")
	setStr(&cfg.Algo.Strategy, "TRADELOOP_ALGO_STRATEGY")
	setStringSlice(&cfg.Algo.Symbols, "TRADELOOP_ALGO_SYMBOLS")
	setFloat64(&cfg.Algo.Quantity, "TRADELOOP_ALGO_QUANTITY")

	// ── Calendar ──
	setStr(&cfg.Calendar.Timezone, "TRADELOOP_CALENDAR_TIMEZONE")
	setStr(&cfg.Calendar.Open, "TRADELOOP_CALENDAR_OPEN")
	setStr(&cfg.Calendar.Close, "TRADELOOP_CALENDAR_CLOSE")
	setDuration(&cfg.Calendar.PreOpen, "TRADELOOP_CALENDAR_PRE_OPEN")
	setStringSlice(&cfg.Calendar.Holidays, "TRADELOOP_CALENDAR_HOLIDAYS")

	// ── Backtest ──
	setStr(&cfg.Backtest.Start, "TRADELOOP_BACKTEST_START")
	setStr(&cfg.Backtest.End, "TRADELOOP_BACKTEST_END")
	setDuration(&cfg.Backtest.BarPeriod, "TRADELOOP_BACKTEST_BAR_PERIOD")
	setFloat64(&cfg.Backtest.InitialCapital, "TRADELOOP_BACKTEST_INITIAL_CAPITAL")
	setUint64(&cfg.Backtest.Seed, "TRADELOOP_BACKTEST_SEED")
	setStr(&cfg.Backtest.OutputPath, "TRADELOOP_BACKTEST_OUTPUT_PATH")

	// ── Live ──
	setDuration(&cfg.Live.Period, "TRADELOOP_LIVE_PERIOD")
	setDuration(&cfg.Live.LockTTL, "TRADELOOP_LIVE_LOCK_TTL")
	setFloat64(&cfg.Live.InitialCapital, "TRADELOOP_LIVE_INITIAL_CAPITAL")
	setDuration(&cfg.Live.MaxPriceAge, "TRADELOOP_LIVE_MAX_PRICE_AGE")
	setStr(&cfg.Live.CommandChannel, "TRADELOOP_LIVE_COMMAND_CHANNEL")
	setStr(&cfg.Live.PerfChannel, "TRADELOOP_LIVE_PERF_CHANNEL")
	setStr(&cfg.Live.PerfStream, "TRADELOOP_LIVE_PERF_STREAM")
	setBool(&cfg.Live.SyntheticFeed, "TRADELOOP_LIVE_SYNTHETIC_FEED")

	// ── Execution ──
	setStr(&cfg.Execution.FillModel, "TRADELOOP_EXECUTION_FILL_MODEL")
	setFloat64(&cfg.Execution.CommissionBps, "TRADELOOP_EXECUTION_COMMISSION_BPS")
	setFloat64(&cfg.Execution.MinCommission, "TRADELOOP_EXECUTION_MIN_COMMISSION")

	// ── Blotter ──
	setInt(&cfg.Blotter.MaxLedgerDays, "TRADELOOP_BLOTTER_MAX_LEDGER_DAYS")
	setInt(&cfg.Blotter.EvictChunk, "TRADELOOP_BLOTTER_EVICT_CHUNK")
	setInt(&cfg.Blotter.ReconcileEvery, "TRADELOOP_BLOTTER_RECONCILE_EVERY")
	setFloat64(&cfg.Blotter.DriftTolerance, "TRADELOOP_BLOTTER_DRIFT_TOLERANCE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "TRADELOOP_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TRADELOOP_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TRADELOOP_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADELOOP_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADELOOP_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADELOOP_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADELOOP_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADELOOP_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADELOOP_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADELOOP_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADELOOP_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADELOOP_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADELOOP_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADELOOP_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADELOOP_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADELOOP_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADELOOP_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADELOOP_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRADELOOP_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRADELOOP_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADELOOP_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADELOOP_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADELOOP_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADELOOP_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADELOOP_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADELOOP_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADELOOP_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADELOOP_SERVER_PORT")
	setStr(&cfg.Server.AuthToken, "TRADELOOP_SERVER_AUTH_TOKEN")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADELOOP_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.CommandRateLimit, "TRADELOOP_SERVER_COMMAND_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADELOOP_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADELOOP_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADELOOP_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADELOOP_NOTIFY_EVENTS")

	// ── Profiling ──
	setStr(&cfg.Profiling.ServerAddress, "TRADELOOP_PROFILING_SERVER_ADDRESS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADELOOP_MODE")
	setStr(&cfg.LogLevel, "TRADELOOP_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
