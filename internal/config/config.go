package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"pegwatch/internal/logging"
)

// SupplySourceEtherscan and SupplySourceRPC select where token supply
// figures are read from.
const (
	SupplySourceEtherscan = "etherscan"
	SupplySourceRPC       = "rpc"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Assets    []Asset         `mapstructure:"assets"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retention RetentionConfig `mapstructure:"retention"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// Asset describes one tracked stablecoin.
type Asset struct {
	Symbol      string  `mapstructure:"symbol"`
	Name        string  `mapstructure:"name"`
	CoingeckoID string  `mapstructure:"coingecko_id"`
	Contract    string  `mapstructure:"contract"`
	Decimals    int32   `mapstructure:"decimals"`
	Peg         float64 `mapstructure:"peg"`
}

// SchedulerConfig governs sampling cadence and cycle concurrency.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	Workers       int           `mapstructure:"workers"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
}

// RetentionConfig bounds the in-memory sample history per asset.
type RetentionConfig struct {
	MaxSamples int           `mapstructure:"max_samples"`
	MaxAge     time.Duration `mapstructure:"max_age"`
}

// AnalyzerConfig tunes peg-deviation anomaly detection.
type AnalyzerConfig struct {
	Window              int     `mapstructure:"window"`
	StddevMultiplier    float64 `mapstructure:"stddev_multiplier"`
	AnomalyThresholdPct float64 `mapstructure:"anomaly_threshold_pct"`
}

// ProvidersConfig groups upstream API connectivity.
type ProvidersConfig struct {
	SupplySource string          `mapstructure:"supply_source"`
	Coingecko    CoingeckoConfig `mapstructure:"coingecko"`
	Etherscan    EtherscanConfig `mapstructure:"etherscan"`
	Defillama    DefillamaConfig `mapstructure:"defillama"`
	Chain        ChainConfig     `mapstructure:"chain"`
}

// CoingeckoConfig captures market-data API connectivity.
type CoingeckoConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RateLimitPerMin int           `mapstructure:"rate_limit_per_min"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// EtherscanConfig captures on-chain explorer connectivity.
type EtherscanConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	HolderCounts   bool          `mapstructure:"holder_counts"`
}

// DefillamaConfig captures TVL API connectivity.
type DefillamaConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	Chain          string        `mapstructure:"chain"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ChainConfig covers direct Ethereum RPC access for the rpc supply source.
type ChainConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines anomaly alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram alert delivery.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
	HistoryDays   int `mapstructure:"history_days"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	// .env is optional; real keys usually arrive via the process environment.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PEGWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Assets) == 0 {
		cfg.Assets = defaultAssets()
	}
	for i := range cfg.Assets {
		if cfg.Assets[i].Peg == 0 {
			cfg.Assets[i].Peg = 1.0
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pegwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.workers", 3)
	v.SetDefault("scheduler.fetch_timeout", "30s")

	v.SetDefault("retention.max_samples", 8640)
	v.SetDefault("retention.max_age", "720h")

	v.SetDefault("analyzer.window", 96)
	v.SetDefault("analyzer.stddev_multiplier", 3.0)
	v.SetDefault("analyzer.anomaly_threshold_pct", 2.0)

	v.SetDefault("providers.supply_source", SupplySourceEtherscan)

	v.SetDefault("providers.coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("providers.coingecko.request_timeout", "10s")
	v.SetDefault("providers.coingecko.max_retries", 3)
	v.SetDefault("providers.coingecko.rate_limit_per_min", 50)
	v.SetDefault("providers.coingecko.user_agent", "pegwatch/1.0")

	v.SetDefault("providers.etherscan.base_url", "https://api.etherscan.io/api")
	v.SetDefault("providers.etherscan.request_timeout", "10s")
	v.SetDefault("providers.etherscan.max_retries", 3)
	v.SetDefault("providers.etherscan.holder_counts", true)

	v.SetDefault("providers.defillama.enabled", true)
	v.SetDefault("providers.defillama.base_url", "https://api.llama.fi")
	v.SetDefault("providers.defillama.chain", "Ethereum")
	v.SetDefault("providers.defillama.request_timeout", "10s")

	v.SetDefault("providers.chain.request_timeout", "10s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 2000)
	v.SetDefault("export.history_days", 30)
}

func defaultAssets() []Asset {
	return []Asset{
		{
			Symbol:      "USDT",
			Name:        "Tether",
			CoingeckoID: "tether",
			Contract:    "0xdAC17F958D2ee523a2206206994597C13D831ec7",
			Decimals:    6,
			Peg:         1.0,
		},
		{
			Symbol:      "USDC",
			Name:        "USD Coin",
			CoingeckoID: "usd-coin",
			Contract:    "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			Decimals:    6,
			Peg:         1.0,
		},
		{
			Symbol:      "DAI",
			Name:        "Dai",
			CoingeckoID: "dai",
			Contract:    "0x6B175474E89094C44Da98b954EedeAC495271d0F",
			Decimals:    18,
			Peg:         1.0,
		},
	}
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be greater than zero")
	}
	if c.Retention.MaxSamples <= 0 {
		return fmt.Errorf("retention.max_samples must be greater than zero")
	}
	if c.Analyzer.Window < 2 {
		return fmt.Errorf("analyzer.window must be at least 2")
	}
	if c.Analyzer.StddevMultiplier <= 0 {
		return fmt.Errorf("analyzer.stddev_multiplier must be greater than zero")
	}
	if c.Analyzer.AnomalyThresholdPct <= 0 {
		return fmt.Errorf("analyzer.anomaly_threshold_pct must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	switch c.Providers.SupplySource {
	case SupplySourceEtherscan, SupplySourceRPC:
	default:
		return fmt.Errorf("providers.supply_source must be %q or %q", SupplySourceEtherscan, SupplySourceRPC)
	}
	if c.Providers.SupplySource == SupplySourceRPC && c.Providers.Chain.RPCURL == "" {
		return fmt.Errorf("providers.chain.rpc_url is required when supply_source is rpc")
	}
	seen := make(map[string]struct{}, len(c.Assets))
	for _, asset := range c.Assets {
		if asset.Symbol == "" {
			return fmt.Errorf("assets entries require a symbol")
		}
		if asset.CoingeckoID == "" {
			return fmt.Errorf("asset %s requires coingecko_id", asset.Symbol)
		}
		if _, dup := seen[asset.Symbol]; dup {
			return fmt.Errorf("asset %s configured twice", asset.Symbol)
		}
		seen[asset.Symbol] = struct{}{}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// AssetBySymbol returns the configured asset matching symbol.
func (c *Config) AssetBySymbol(symbol string) (Asset, bool) {
	for _, asset := range c.Assets {
		if strings.EqualFold(asset.Symbol, symbol) {
			return asset, true
		}
	}
	return Asset{}, false
}

// Symbols lists the configured asset symbols in declaration order.
func (c *Config) Symbols() []string {
	out := make([]string, 0, len(c.Assets))
	for _, asset := range c.Assets {
		out = append(out, asset.Symbol)
	}
	return out
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
