// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Chains     []ChainConfig    `mapstructure:"chains"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Feeds      FeedsConfig      `mapstructure:"feeds"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Costs      CostsConfig      `mapstructure:"costs"`
	Strategies []StrategyConfig `mapstructure:"strategies"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Intents    IntentsConfig    `mapstructure:"intents"`
	Feedback   FeedbackConfig   `mapstructure:"feedback"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Health     HealthConfig     `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	TUIMode     bool   `mapstructure:"-"` // set at runtime
}

// ChainConfig describes one chain and, optionally, the node used to sample
// heads and gas on it.
type ChainConfig struct {
	ID              uint64            `mapstructure:"id"`
	Name            string            `mapstructure:"name"`
	Layer           string            `mapstructure:"layer"` // L1 or L2
	BlockInterval   time.Duration     `mapstructure:"block_interval"`
	StaleAfter      time.Duration     `mapstructure:"stale_after"`
	NativeSymbol    string            `mapstructure:"native_symbol"`
	FallbackGasGwei float64           `mapstructure:"fallback_gas_gwei"`
	WebSocketURL    string            `mapstructure:"websocket_url"`
	HTTPURL         string            `mapstructure:"http_url"`
	GasPollInterval time.Duration     `mapstructure:"gas_poll_interval"`
	GasUnits        map[string]uint64 `mapstructure:"gas_units"` // swap, bridge, flash_loan
	MaxReconnects   int               `mapstructure:"max_reconnects"`
	InitialBackoff  time.Duration     `mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration     `mapstructure:"max_backoff"`
}

// HasRPC reports whether a node endpoint is configured.
func (c *ChainConfig) HasRPC() bool {
	return c.WebSocketURL != "" || c.HTTPURL != ""
}

// FallbackGasGweiDecimal returns the fallback gas price.
func (c *ChainConfig) FallbackGasGweiDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.FallbackGasGwei)
}

// RedisConfig holds the shared Redis connection.
type RedisConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	PoolSize   int    `mapstructure:"pool_size"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// FeedsConfig selects the feature sources.
type FeedsConfig struct {
	Redis     RedisFeedConfig     `mapstructure:"redis"`
	WebSocket WebSocketFeedConfig `mapstructure:"websocket"`
	Replay    ReplayConfig        `mapstructure:"replay"`
}

// RedisFeedConfig subscribes to feature frames on Redis.
type RedisFeedConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Channel string `mapstructure:"channel"` // glob patterns allowed
}

// WebSocketFeedConfig reads feature frames from a WebSocket stream.
type WebSocketFeedConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	URL       string `mapstructure:"url"`
	Subscribe string `mapstructure:"subscribe"` // frame sent after connect, optional
}

// ReplayConfig replays recorded JSONL feature frames.
type ReplayConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Path    string   `mapstructure:"path"`
	S3      S3Config `mapstructure:"s3"`
	Speed   float64  `mapstructure:"speed"` // 0 = as fast as possible, 1 = recorded pace
	Restamp bool     `mapstructure:"restamp"`
}

// S3Config locates a replay object in S3 or an S3-compatible store.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Key             string `mapstructure:"key"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// Enabled reports whether an S3 object is configured.
func (c *S3Config) Enabled() bool {
	return c.Bucket != "" && c.Key != ""
}

// PricingConfig configures reference USD prices.
type PricingConfig struct {
	Static      map[string]float64 `mapstructure:"static"`
	Stablecoins []string           `mapstructure:"stablecoins"`
	StaleAfter  time.Duration      `mapstructure:"stale_after"`
	Binance     BinanceConfig      `mapstructure:"binance"`
}

// BinanceConfig holds the Binance reference price stream settings.
type BinanceConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	WebSocketURL string   `mapstructure:"websocket_url"` // wss://stream.binance.us:9443 for US
	RESTURL      string   `mapstructure:"rest_url"`      // https://api.binance.us for US
	Symbols      []string `mapstructure:"symbols"`       // e.g. ETHUSDT
}

// DetectionConfig tunes the detectors.
type DetectionConfig struct {
	Detectors   []string `mapstructure:"detectors"` // triangular, cross_venue
	MarginBps   float64  `mapstructure:"margin_bps"`
	NotionalUSD float64  `mapstructure:"notional_usd"`
	MaxPerCycle int      `mapstructure:"max_per_cycle"`
}

// MarginBpsDecimal returns the detection margin.
func (c *DetectionConfig) MarginBpsDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MarginBps)
}

// NotionalUSDDecimal returns the detection trade size in USD.
func (c *DetectionConfig) NotionalUSDDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.NotionalUSD)
}

// CostsConfig tunes the cost models.
type CostsConfig struct {
	DefaultBridgeFeeBps  float64            `mapstructure:"default_bridge_fee_bps"`
	GasUnits             map[string]uint64  `mapstructure:"gas_units"`
	FlashLoanFeeBps      map[string]float64 `mapstructure:"flash_loan_fee_bps"`
	GasFallbackPenalty   float64            `mapstructure:"gas_fallback_penalty"`
	BridgeDefaultPenalty float64            `mapstructure:"bridge_default_penalty"`
}

// StrategyConfig is the file form of a trading strategy.
type StrategyConfig struct {
	Name              string        `mapstructure:"name"`
	Enabled           bool          `mapstructure:"enabled"`
	MinProfitUSD      float64       `mapstructure:"min_profit_usd"`
	MinProfitBps      float64       `mapstructure:"min_profit_bps"`
	MaxPositionUSD    float64       `mapstructure:"max_position_usd"`
	OwnCapitalUSD     float64       `mapstructure:"own_capital_usd"`
	ApprovedAssets    []string      `mapstructure:"approved_assets"`
	ApprovedChains    []uint64      `mapstructure:"approved_chains"`
	BlacklistedAssets []string      `mapstructure:"blacklisted_assets"`
	MaxLegs           int           `mapstructure:"max_legs"`
	MaxChains         int           `mapstructure:"max_chains"`
	MaxPathLatency    time.Duration `mapstructure:"max_path_latency"`
	MinConfidence     float64       `mapstructure:"min_confidence"`
}

// EngineConfig drives the decision cycle.
type EngineConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	TriggerOnHeads    bool          `mapstructure:"trigger_on_heads"`
	CycleDeadline     time.Duration `mapstructure:"cycle_deadline"`
	MaxCyclesPerSec   float64       `mapstructure:"max_cycles_per_sec"`
	EvalConcurrency   int           `mapstructure:"eval_concurrency"`
	DetectorTimeout   time.Duration `mapstructure:"detector_timeout"`
	RecentDecisionCap int           `mapstructure:"recent_decision_cap"`
}

// IntentsConfig controls TradeIntent publishing.
type IntentsConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	Channel              string        `mapstructure:"channel"`
	Deadline             time.Duration `mapstructure:"deadline"`
	SlippageToleranceBps float64       `mapstructure:"slippage_tolerance_bps"`
}

// FeedbackConfig controls outcome intake.
type FeedbackConfig struct {
	InboxEnabled bool   `mapstructure:"inbox_enabled"`
	InboxChannel string `mapstructure:"inbox_channel"`
}

// StorageConfig holds the optional persistence backends.
type StorageConfig struct {
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
}

// PostgresConfig configures the outcome store.
type PostgresConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// ClickHouseConfig configures the evaluation audit sink.
type ClickHouseConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Database  string        `mapstructure:"database"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	BatchSize int           `mapstructure:"batch_size"`
	Flush     time.Duration `mapstructure:"flush_interval"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ServiceName     string `mapstructure:"service_name"`
	TraceProvider   string `mapstructure:"trace_provider"`   // zipkin, otlp-grpc, otlp-http, stdout
	MetricsProvider string `mapstructure:"metrics_provider"` // prometheus, otlp
	OTLPEndpoint    string `mapstructure:"otlp_endpoint"`
	OTLPHeaders     string `mapstructure:"otlp_headers"`
	PrometheusPort  int    `mapstructure:"prometheus_port"`
}

// HealthConfig configures the health server.
type HealthConfig struct {
	Port          int     `mapstructure:"port"`
	MaxMemPercent float64 `mapstructure:"max_mem_percent"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// no config file, env vars and defaults only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")

	// Redis
	v.BindEnv("redis.addr", "ARB_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("redis.password", "ARB_REDIS_PASSWORD", "REDIS_PASSWORD")

	// Replay
	v.BindEnv("feeds.replay.s3.access_key_id", "ARB_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID")
	v.BindEnv("feeds.replay.s3.secret_access_key", "ARB_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("feeds.replay.s3.region", "ARB_S3_REGION", "AWS_REGION")

	// Binance
	v.BindEnv("pricing.binance.websocket_url", "ARB_BINANCE_WS_URL", "BINANCE_WS_URL")
	v.BindEnv("pricing.binance.rest_url", "ARB_BINANCE_REST_URL", "BINANCE_REST_URL")

	// Storage
	v.BindEnv("storage.postgres.dsn", "ARB_POSTGRES_DSN", "DATABASE_URL")
	v.BindEnv("storage.clickhouse.addr", "ARB_CLICKHOUSE_ADDR", "CLICKHOUSE_ADDR")
	v.BindEnv("storage.clickhouse.password", "ARB_CLICKHOUSE_PASSWORD", "CLICKHOUSE_PASSWORD")

	// Telemetry
	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "multichain-arb")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Mainnet chain set, no RPC endpoints
	v.SetDefault("chains", []map[string]any{
		{"id": 1, "name": "ethereum", "layer": "L1", "block_interval": "12s", "native_symbol": "ETH", "fallback_gas_gwei": 20},
		{"id": 42161, "name": "arbitrum", "layer": "L2", "block_interval": "250ms", "stale_after": "2s", "native_symbol": "ETH", "fallback_gas_gwei": 0.1},
		{"id": 10, "name": "optimism", "layer": "L2", "block_interval": "2s", "native_symbol": "ETH", "fallback_gas_gwei": 0.01},
		{"id": 8453, "name": "base", "layer": "L2", "block_interval": "2s", "native_symbol": "ETH", "fallback_gas_gwei": 0.01},
	})

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)

	// Feed defaults
	v.SetDefault("feeds.redis.channel", "features.*")
	v.SetDefault("feeds.replay.speed", 0)

	// Pricing defaults
	v.SetDefault("pricing.stablecoins", []string{"USDC", "USDT", "DAI"})
	v.SetDefault("pricing.stale_after", "30s")
	v.SetDefault("pricing.binance.enabled", false)
	v.SetDefault("pricing.binance.websocket_url", "wss://stream.binance.com:9443")
	v.SetDefault("pricing.binance.rest_url", "https://api.binance.com")
	v.SetDefault("pricing.binance.symbols", []string{"ETHUSDT", "BTCUSDT"})

	// Detection defaults
	v.SetDefault("detection.detectors", []string{"triangular", "cross_venue"})
	v.SetDefault("detection.margin_bps", 5)
	v.SetDefault("detection.notional_usd", 10_000)
	v.SetDefault("detection.max_per_cycle", 256)

	// Cost model defaults
	v.SetDefault("costs.default_bridge_fee_bps", 10)
	v.SetDefault("costs.gas_units", map[string]uint64{"swap": 150_000, "bridge": 300_000, "flash_loan": 200_000})
	v.SetDefault("costs.flash_loan_fee_bps", map[string]float64{"aave_v3": 5, "balancer": 0, "uniswap_v3": 5})
	v.SetDefault("costs.gas_fallback_penalty", 0.25)
	v.SetDefault("costs.bridge_default_penalty", 0.1)

	// Strategy defaults
	v.SetDefault("strategies", []map[string]any{{
		"name": "default", "enabled": true,
		"min_profit_usd": 5, "min_profit_bps": 10, "max_position_usd": 50_000, "own_capital_usd": 25_000,
		"max_legs": 4, "max_chains": 2, "max_path_latency": "1h", "min_confidence": 0.5,
	}})

	// Engine defaults
	v.SetDefault("engine.interval", "2s")
	v.SetDefault("engine.trigger_on_heads", true)
	v.SetDefault("engine.cycle_deadline", "750ms")
	v.SetDefault("engine.max_cycles_per_sec", 4)
	v.SetDefault("engine.eval_concurrency", 8)
	v.SetDefault("engine.detector_timeout", "250ms")
	v.SetDefault("engine.recent_decision_cap", 50)

	// Intent defaults
	v.SetDefault("intents.channel", "intents")
	v.SetDefault("intents.deadline", "30s")
	v.SetDefault("intents.slippage_tolerance_bps", 50)

	// Feedback defaults
	v.SetDefault("feedback.inbox_channel", "outcomes")

	// Storage defaults
	v.SetDefault("storage.clickhouse.database", "default")
	v.SetDefault("storage.clickhouse.username", "default")
	v.SetDefault("storage.clickhouse.batch_size", 500)
	v.SetDefault("storage.clickhouse.flush_interval", "5s")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "multichain-arb")
	v.SetDefault("telemetry.trace_provider", "zipkin")
	v.SetDefault("telemetry.metrics_provider", "prometheus")
	v.SetDefault("telemetry.prometheus_port", 9090)

	// Health defaults
	v.SetDefault("health.port", 8081)
	v.SetDefault("health.max_mem_percent", 95)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain is required")
	}
	seen := make(map[uint64]struct{}, len(c.Chains))
	for i, ch := range c.Chains {
		if ch.ID == 0 {
			return fmt.Errorf("chains[%d].id is required", i)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("chains[%d]: duplicate chain id %d", i, ch.ID)
		}
		seen[ch.ID] = struct{}{}
		if ch.Layer != "L1" && ch.Layer != "L2" {
			return fmt.Errorf("chains[%d].layer must be L1 or L2, got %q", i, ch.Layer)
		}
		if ch.FallbackGasGwei < 0 {
			return fmt.Errorf("chains[%d].fallback_gas_gwei must not be negative", i)
		}
	}

	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	names := make(map[string]struct{}, len(c.Strategies))
	for i, s := range c.Strategies {
		if s.Name == "" {
			return fmt.Errorf("strategies[%d].name is required", i)
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("strategies[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = struct{}{}
		for _, id := range s.ApprovedChains {
			if _, ok := seen[id]; !ok {
				return fmt.Errorf("strategy %q approves unknown chain %d", s.Name, id)
			}
		}
	}

	if c.Engine.Interval <= 0 && !c.Engine.TriggerOnHeads {
		return fmt.Errorf("engine needs an interval or head triggers")
	}
	if c.Engine.CycleDeadline <= 0 {
		return fmt.Errorf("engine.cycle_deadline must be positive")
	}
	if c.Detection.NotionalUSD <= 0 {
		return fmt.Errorf("detection.notional_usd must be positive")
	}

	needsRedis := c.Feeds.Redis.Enabled || c.Intents.Enabled || c.Feedback.InboxEnabled
	if needsRedis && !c.Redis.Enabled {
		return fmt.Errorf("redis.enabled is required by feeds.redis, intents or feedback inbox")
	}
	if c.Feeds.WebSocket.Enabled && c.Feeds.WebSocket.URL == "" {
		return fmt.Errorf("feeds.websocket.url is required")
	}
	if c.Feeds.Replay.Enabled && c.Feeds.Replay.Path == "" && !c.Feeds.Replay.S3.Enabled() {
		return fmt.Errorf("feeds.replay needs a path or an s3 bucket and key")
	}
	if c.Pricing.Binance.Enabled && len(c.Pricing.Binance.Symbols) == 0 {
		return fmt.Errorf("pricing.binance.symbols cannot be empty")
	}
	if c.Storage.Postgres.Enabled && c.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn is required")
	}
	if c.Storage.ClickHouse.Enabled && c.Storage.ClickHouse.Addr == "" {
		return fmt.Errorf("storage.clickhouse.addr is required")
	}
	return nil
}

// Chain returns the chain config with id.
func (c *Config) Chain(id uint64) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChainConfig{}, false
}
