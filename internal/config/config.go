// Package config defines the top-level configuration for tradeloop and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADELOOP_* environment variables.
type Config struct {
	Algo      AlgoConfig      `toml:"algo"`
	Calendar  CalendarConfig  `toml:"calendar"`
	Backtest  BacktestConfig  `toml:"backtest"`
	Live      LiveConfig      `toml:"live"`
	Execution ExecutionConfig `toml:"execution"`
	Controls  ControlsConfig  `toml:"controls"`
	Blotter   BlotterConfig   `toml:"blotter"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Profiling ProfilingConfig `toml:"profiling"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// AlgoConfig names the run and selects the strategy.
type AlgoConfig struct {
	Name     string         `toml:"name"`
	Strategy string         `toml:"strategy"`
	Symbols  []string       `toml:"symbols"`
	Quantity float64        `toml:"quantity"`
	Params   map[string]any `toml:"params"`
}

// CalendarConfig describes the exchange sessions.
type CalendarConfig struct {
	Timezone string   `toml:"timezone"`
	Open     string   `toml:"open"`
	Close    string   `toml:"close"`
	PreOpen  duration `toml:"pre_open"`
	Holidays []string `toml:"holidays"`
	// Sessions, when set, replaces the weekday rule with an explicit list.
	Sessions []string `toml:"sessions"`
}

// BacktestConfig holds simulated-run parameters.
type BacktestConfig struct {
	Start          string             `toml:"start"`
	End            string             `toml:"end"`
	BarPeriod      duration           `toml:"bar_period"`
	InitialCapital float64            `toml:"initial_capital"`
	Seed           uint64             `toml:"seed"`
	Volatility     float64            `toml:"volatility"`
	StartPrices    map[string]float64 `toml:"start_prices"`
	// OutputPath, when set, receives the performance snapshots as JSON.
	OutputPath string `toml:"output_path"`
}

// LiveConfig holds realtime-run parameters.
type LiveConfig struct {
	Period         duration `toml:"period"`
	LockTTL        duration `toml:"lock_ttl"`
	InitialCapital float64  `toml:"initial_capital"`
	MaxPriceAge    duration `toml:"max_price_age"`
	CommandChannel string   `toml:"command_channel"`
	PerfChannel    string   `toml:"perf_channel"`
	PerfStream     string   `toml:"perf_stream"`
	CommandQueue   int      `toml:"command_queue"`

	// SyntheticFeed writes a seeded random walk (backtest.seed, volatility,
	// start_prices) into the price cache when no external feed does.
	SyntheticFeed bool `toml:"synthetic_feed"`
}

// ExecutionConfig configures the simulated engine.
type ExecutionConfig struct {
	FillModel        string             `toml:"fill_model"` // "full" or "random"
	MaxSlippage      float64            `toml:"max_slippage"`
	MinFillFraction  float64            `toml:"min_fill_fraction"`
	CommissionBps    float64            `toml:"commission_bps"`
	CommissionPerQty float64            `toml:"commission_per_qty"`
	MinCommission    float64            `toml:"min_commission"`
	MarginRates      map[string]float64 `toml:"margin_rates"`
}

// ControlsConfig holds the pre-trade limits. Zero disables a limit.
type ControlsConfig struct {
	MaxOrderQty         float64  `toml:"max_order_qty"`
	MaxOrderNotional    float64  `toml:"max_order_notional"`
	MaxPositionQty      float64  `toml:"max_position_qty"`
	MaxPositionNotional float64  `toml:"max_position_notional"`
	MaxGrossExposure    float64  `toml:"max_gross_exposure"`
	MaxLeverage         float64  `toml:"max_leverage"`
	MaxDailyOrders      int      `toml:"max_daily_orders"`
	LongOnly            bool     `toml:"long_only"`
	Blacklist           []string `toml:"blacklist"`
}

// BlotterConfig holds reconciliation parameters.
type BlotterConfig struct {
	MaxLedgerDays  int     `toml:"max_ledger_days"`
	EvictChunk     int     `toml:"evict_chunk"`
	ReconcileEvery int     `toml:"reconcile_every"`
	DriftTolerance float64 `toml:"drift_tolerance"`
}

// PostgresConfig holds PostgreSQL connection parameters. The store is only
// used when Enabled is set.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	AuthToken   string   `toml:"auth_token"`
	CORSOrigins []string `toml:"cors_origins"`

	// CommandRateLimit caps POSTed commands per client per minute when redis
	// is enabled. Zero disables the limit.
	CommandRateLimit int `toml:"command_rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ProfilingConfig enables continuous profiling when ServerAddress is set.
type ProfilingConfig struct {
	ServerAddress string `toml:"server_address"`
	AppName       string `toml:"app_name"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Algo: AlgoConfig{
			Name:     "tradeloop",
			Strategy: "scheduled_buy",
			Symbols:  []string{"ACME"},
			Quantity: 10,
			Params:   map[string]any{},
		},
		Calendar: CalendarConfig{
			Timezone: "America/New_York",
			Open:     "09:30",
			Close:    "16:00",
			PreOpen:  duration{30 * time.Minute},
		},
		Backtest: BacktestConfig{
			BarPeriod:      duration{time.Minute},
			InitialCapital: 100_000,
			Seed:           1,
			Volatility:     0.001,
			StartPrices:    map[string]float64{},
		},
		Live: LiveConfig{
			Period:         duration{time.Minute},
			LockTTL:        duration{30 * time.Second},
			InitialCapital: 100_000,
			MaxPriceAge:    duration{5 * time.Minute},
			CommandChannel: "tradeloop:commands",
			PerfChannel:    "tradeloop:perf",
			PerfStream:     "tradeloop:perf:history",
			CommandQueue:   64,
		},
		Execution: ExecutionConfig{
			FillModel:       "full",
			MinFillFraction: 1,
			CommissionBps:   1,
			MarginRates:     map[string]float64{},
		},
		Blotter: BlotterConfig{
			MaxLedgerDays:  250,
			EvictChunk:     20,
			ReconcileEvery: 0,
			DriftTolerance: 0.01,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradeloop-ledger",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             8000,
			CORSOrigins:      []string{"http://localhost:3000"},
			CommandRateLimit: 30,
		},
		Notify: NotifyConfig{
			Events: []string{"reconcile_mismatch", "run_error", "run_fatal", "run_state"},
		},
		Profiling: ProfilingConfig{
			AppName: "tradeloop",
		},
		Mode:     "backtest",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"backtest": true,
	"paper":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validFillModels = map[string]bool{
	"full":   true,
	"random": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: backtest, paper)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Algo
	if strings.TrimSpace(c.Algo.Name) == "" {
		errs = append(errs, "algo: name must not be empty")
	}
	if c.Algo.Strategy == "" {
		errs = append(errs, "algo: strategy must not be empty")
	}

	// Calendar
	if c.Calendar.Timezone == "" {
		errs = append(errs, "calendar: timezone must not be empty")
	} else if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("calendar: unknown timezone %q", c.Calendar.Timezone))
	}
	if c.Calendar.PreOpen.Duration < 0 {
		errs = append(errs, "calendar: pre_open must not be negative")
	}

	// Mode-specific sections
	switch strings.ToLower(c.Mode) {
	case "backtest":
		start, errStart := time.Parse(time.DateOnly, c.Backtest.Start)
		if errStart != nil {
			errs = append(errs, fmt.Sprintf("backtest: start must be YYYY-MM-DD, got %q", c.Backtest.Start))
		}
		end, errEnd := time.Parse(time.DateOnly, c.Backtest.End)
		if errEnd != nil {
			errs = append(errs, fmt.Sprintf("backtest: end must be YYYY-MM-DD, got %q", c.Backtest.End))
		}
		if errStart == nil && errEnd == nil && end.Before(start) {
			errs = append(errs, "backtest: end must not be before start")
		}
		if c.Backtest.BarPeriod.Duration <= 0 {
			errs = append(errs, "backtest: bar_period must be > 0")
		}
		if c.Backtest.InitialCapital <= 0 {
			errs = append(errs, "backtest: initial_capital must be > 0")
		}
		if c.Backtest.Volatility < 0 {
			errs = append(errs, "backtest: volatility must be >= 0")
		}
	case "paper":
		if c.Live.Period.Duration <= 0 {
			errs = append(errs, "live: period must be > 0")
		}
		if c.Live.InitialCapital <= 0 {
			errs = append(errs, "live: initial_capital must be > 0")
		}
		if c.Live.LockTTL.Duration <= 0 {
			errs = append(errs, "live: lock_ttl must be > 0")
		}
		if c.Live.CommandQueue < 1 {
			errs = append(errs, "live: command_queue must be >= 1")
		}
		if !c.Redis.Enabled {
			errs = append(errs, "redis: must be enabled for paper mode (prices, commands, lock)")
		}
	}

	// Execution
	if !validFillModels[strings.ToLower(c.Execution.FillModel)] {
		errs = append(errs, fmt.Sprintf("execution: unknown fill_model %q (valid: full, random)", c.Execution.FillModel))
	}
	if c.Execution.CommissionBps < 0 || c.Execution.CommissionPerQty < 0 || c.Execution.MinCommission < 0 {
		errs = append(errs, "execution: commissions must be >= 0")
	}
	if c.Execution.CommissionBps > 0 && c.Execution.CommissionPerQty > 0 {
		errs = append(errs, "execution: set commission_bps or commission_per_qty, not both")
	}
	if c.Execution.FillModel == "random" {
		if c.Execution.MaxSlippage < 0 || c.Execution.MaxSlippage >= 1 {
			errs = append(errs, "execution: max_slippage must be in [0, 1)")
		}
		if c.Execution.MinFillFraction <= 0 || c.Execution.MinFillFraction > 1 {
			errs = append(errs, "execution: min_fill_fraction must be in (0, 1]")
		}
	}
	for kind, rate := range c.Execution.MarginRates {
		if rate <= 0 || rate > 1 {
			errs = append(errs, fmt.Sprintf("execution: margin rate for %s must be in (0, 1], got %v", kind, rate))
		}
	}

	// Blotter
	if c.Blotter.MaxLedgerDays < 1 {
		errs = append(errs, "blotter: max_ledger_days must be >= 1")
	}
	if c.Blotter.EvictChunk < 1 || c.Blotter.EvictChunk > c.Blotter.MaxLedgerDays {
		errs = append(errs, "blotter: evict_chunk must be between 1 and max_ledger_days")
	}
	if c.Blotter.ReconcileEvery < 0 {
		errs = append(errs, "blotter: reconcile_every must be >= 0")
	}
	if c.Blotter.DriftTolerance < 0 {
		errs = append(errs, "blotter: drift_tolerance must be >= 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.CommandRateLimit < 0 {
			errs = append(errs, "server: command_rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
