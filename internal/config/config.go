package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all static configuration for the application. Numeric risk
// tunables here are only the startup defaults; the live values come from the
// parameter cache backed by the database.
type Config struct {
	Exchanges Exchanges `mapstructure:"exchanges"`
	Trading   Trading   `mapstructure:"trading"`
	Risk      Risk      `mapstructure:"risk"`
	Shadow    Shadow    `mapstructure:"shadow"`
	Alert     Alert     `mapstructure:"alert"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Exchanges holds per-venue connection settings keyed by venue id.
type Exchanges struct {
	Enabled        []string           `mapstructure:"enabled"`
	RateLimit      float64            `mapstructure:"rate_limit"`
	RateLimitBurst int                `mapstructure:"rate_limit_burst"`
	Fees           map[string]FeePair `mapstructure:"fees"`
}

// FeePair holds the maker/taker fee rates for a venue, as fractions
// (0.0026 means 0.26%).
type FeePair struct {
	Maker float64 `mapstructure:"maker"`
	Taker float64 `mapstructure:"taker"`
}

// Trading holds the configuration for the decision loop.
type Trading struct {
	Pairs                  []string `mapstructure:"pairs"`
	DryRun                 bool     `mapstructure:"dry_run"`
	RefreshIntervalSeconds int      `mapstructure:"refresh_interval_seconds"`
	BalanceRefreshCycles   int      `mapstructure:"balance_refresh_cycles"`
	MinSpreadPercent       float64  `mapstructure:"min_spread_percent"`
	MaxSlippagePercent     float64  `mapstructure:"max_slippage_percent"`
	SafetyMarginSpread     float64  `mapstructure:"safety_margin_spread"`
	DefaultFeePercent      float64  `mapstructure:"default_fee_percent"`
	HeartbeatSeconds       int      `mapstructure:"heartbeat_seconds"`
}

// Risk holds the startup defaults for the risk guard.
type Risk struct {
	MaxCapitalPerTradeUSD      float64 `mapstructure:"max_capital_per_trade_usd"`
	MaxDailyLossUSD            float64 `mapstructure:"max_daily_loss_usd"`
	MaxOpenTrades              int     `mapstructure:"max_open_trades"`
	MaxBalanceUsagePerExchange float64 `mapstructure:"max_balance_usage_per_exchange"`
	MaxTradesPerHour           int     `mapstructure:"max_trades_per_hour"`
	MaxAPIErrors               int     `mapstructure:"max_api_errors"`
	APIErrorWindowSeconds      int     `mapstructure:"api_error_window_seconds"`
	VolatilityThreshold        float64 `mapstructure:"volatility_threshold"`
	VolatilityWindowSize       int     `mapstructure:"volatility_window_size"`
	MaxSymbolExposureUSD       float64 `mapstructure:"max_symbol_exposure_usd"`
	NoDataAlertSeconds         int     `mapstructure:"no_data_alert_seconds"`
	SymbolDisableHours         int     `mapstructure:"symbol_disable_hours"`
	MinPositionSizeUSD         float64 `mapstructure:"min_position_size_usd"`
	MaxPositionSizeUSD         float64 `mapstructure:"max_position_size_usd"`
	ParamChangeLimitPercent    float64 `mapstructure:"param_change_limit_percent"`
	ParamReloadSeconds         int     `mapstructure:"param_reload_seconds"`
}

// Shadow holds the configuration for the shadow simulator.
type Shadow struct {
	Enabled bool `mapstructure:"enabled"`
}

// Alert holds the configuration for outbound alerting.
type Alert struct {
	TelegramEnabled bool `mapstructure:"telegram_enabled"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Server holds the configuration for the dashboard web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN       string `mapstructure:"dsn"`
	ShadowDSN string `mapstructure:"shadow_dsn"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

func setDefaults() {
	viper.SetDefault("exchanges.enabled", []string{"kraken", "okx", "binance"})
	viper.SetDefault("exchanges.rate_limit", 10) // requests per second per venue
	viper.SetDefault("exchanges.rate_limit_burst", 5)

	viper.SetDefault("trading.pairs", []string{"BTC/USDT", "ETH/USDT"})
	viper.SetDefault("trading.dry_run", true)
	viper.SetDefault("trading.refresh_interval_seconds", 5)
	viper.SetDefault("trading.balance_refresh_cycles", 6)
	viper.SetDefault("trading.min_spread_percent", 0.3)
	viper.SetDefault("trading.max_slippage_percent", 0.15)
	viper.SetDefault("trading.safety_margin_spread", 0.15)
	viper.SetDefault("trading.default_fee_percent", 0.1)
	viper.SetDefault("trading.heartbeat_seconds", 20)

	viper.SetDefault("risk.max_capital_per_trade_usd", 500.0)
	viper.SetDefault("risk.max_daily_loss_usd", 1000.0)
	viper.SetDefault("risk.max_open_trades", 5)
	viper.SetDefault("risk.max_balance_usage_per_exchange", 0.5)
	viper.SetDefault("risk.max_trades_per_hour", 50)
	viper.SetDefault("risk.max_api_errors", 20)
	viper.SetDefault("risk.api_error_window_seconds", 300)
	viper.SetDefault("risk.volatility_threshold", 2.0)
	viper.SetDefault("risk.volatility_window_size", 10)
	viper.SetDefault("risk.max_symbol_exposure_usd", 2000.0)
	viper.SetDefault("risk.no_data_alert_seconds", 120)
	viper.SetDefault("risk.symbol_disable_hours", 6)
	viper.SetDefault("risk.min_position_size_usd", 10.0)
	viper.SetDefault("risk.max_position_size_usd", 1000.0)
	viper.SetDefault("risk.param_change_limit_percent", 10.0)
	viper.SetDefault("risk.param_reload_seconds", 30)

	viper.SetDefault("shadow.enabled", true)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")

	viper.SetDefault("server.port", 8080)

	viper.SetDefault("database.dsn", "trades.db")
	viper.SetDefault("database.shadow_dsn", "shadow.db")
}
