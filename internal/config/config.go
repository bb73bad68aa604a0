package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	VenueHyperliquid = "hyperliquid"
	VenueBinance     = "binance"
)

type Config struct {
	Log         LoggingConfig     `yaml:"log"`
	State       StateConfig       `yaml:"state"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Engine      EngineConfig      `yaml:"engine"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Hyperliquid HyperliquidConfig `yaml:"hyperliquid"`
	Binance     BinanceConfig     `yaml:"binance"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Timescale   TimescaleConfig   `yaml:"timescale"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// EngineConfig is the decision-engine knob surface. Rates and spreads are
// fractions per funding interval (0.0002 = 0.02%), notionals are USD.
type EngineConfig struct {
	Symbol                 string        `yaml:"symbol"`
	VenueA                 string        `yaml:"venue_a"`
	VenueB                 string        `yaml:"venue_b"`
	MinFundingSpread       float64       `yaml:"min_funding_spread"`
	UseDynamicSpread       bool          `yaml:"use_dynamic_spread"`
	SpreadBufferMultiplier float64       `yaml:"spread_buffer_multiplier"`
	VolatilityLookback     time.Duration `yaml:"volatility_lookback"`
	MaxPositionNotional    float64       `yaml:"max_position_notional"`
	MaxDailyNotional       float64       `yaml:"max_daily_notional"`
	Leverage               int           `yaml:"leverage"`
	AutoCloseInterval      time.Duration `yaml:"auto_close_interval"`
	MaxBasisDivergence     float64       `yaml:"max_basis_divergence"`
	StopLossSpread         float64       `yaml:"stop_loss_spread"`
	OpportunityInterval    time.Duration `yaml:"opportunity_interval"`
	SweepInterval          time.Duration `yaml:"sweep_interval"`
}

type ExecutionConfig struct {
	Enabled     bool    `yaml:"enabled"`
	SlippageBps float64 `yaml:"slippage_bps"`
}

type HyperliquidConfig struct {
	Symbol string     `yaml:"symbol"`
	REST   RESTConfig `yaml:"rest"`
	WS     WSConfig   `yaml:"ws"`
}

type BinanceConfig struct {
	Symbol            string  `yaml:"symbol"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type TelegramConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Token                  string        `yaml:"token"`
	ChatID                 string        `yaml:"chat_id"`
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/funding-arb-bot.db"
	}
	if cfg.Engine.VenueA == "" {
		cfg.Engine.VenueA = VenueHyperliquid
	}
	if cfg.Engine.VenueB == "" {
		cfg.Engine.VenueB = VenueBinance
	}
	if cfg.Engine.MinFundingSpread == 0 {
		cfg.Engine.MinFundingSpread = 0.0002
	}
	if cfg.Engine.SpreadBufferMultiplier == 0 {
		cfg.Engine.SpreadBufferMultiplier = 1.2
	}
	if cfg.Engine.VolatilityLookback == 0 {
		cfg.Engine.VolatilityLookback = 24 * time.Hour
	}
	if cfg.Engine.MaxPositionNotional == 0 {
		cfg.Engine.MaxPositionNotional = 10000
	}
	if cfg.Engine.MaxDailyNotional == 0 {
		cfg.Engine.MaxDailyNotional = 50000
	}
	if cfg.Engine.Leverage == 0 {
		cfg.Engine.Leverage = 2
	}
	if cfg.Engine.AutoCloseInterval == 0 {
		cfg.Engine.AutoCloseInterval = 8 * time.Hour
	}
	if cfg.Engine.MaxBasisDivergence == 0 {
		cfg.Engine.MaxBasisDivergence = 0.01
	}
	if cfg.Engine.StopLossSpread == 0 {
		cfg.Engine.StopLossSpread = -0.0001
	}
	if cfg.Engine.OpportunityInterval == 0 {
		cfg.Engine.OpportunityInterval = time.Hour
	}
	if cfg.Engine.SweepInterval == 0 {
		cfg.Engine.SweepInterval = time.Minute
	}
	if cfg.Execution.SlippageBps == 0 {
		cfg.Execution.SlippageBps = 20
	}
	if cfg.Hyperliquid.REST.BaseURL == "" {
		cfg.Hyperliquid.REST.BaseURL = "https://api.hyperliquid.xyz"
	}
	if cfg.Hyperliquid.REST.Timeout == 0 {
		cfg.Hyperliquid.REST.Timeout = 10 * time.Second
	}
	if cfg.Hyperliquid.WS.URL == "" {
		cfg.Hyperliquid.WS.URL = "wss://api.hyperliquid.xyz/ws"
	}
	if cfg.Hyperliquid.WS.ReconnectDelay == 0 {
		cfg.Hyperliquid.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.Hyperliquid.WS.PingInterval == 0 {
		cfg.Hyperliquid.WS.PingInterval = 30 * time.Second
	}
	if cfg.Binance.RequestsPerSecond == 0 {
		cfg.Binance.RequestsPerSecond = 5
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
}

func validate(cfg *Config) error {
	if cfg.Engine.Symbol == "" {
		return errors.New("engine.symbol is required")
	}
	if err := validateVenueName(cfg.Engine.VenueA); err != nil {
		return fmt.Errorf("engine.venue_a: %w", err)
	}
	if err := validateVenueName(cfg.Engine.VenueB); err != nil {
		return fmt.Errorf("engine.venue_b: %w", err)
	}
	if cfg.Engine.VenueA == cfg.Engine.VenueB {
		return errors.New("engine.venue_a and engine.venue_b must differ")
	}
	if cfg.Engine.MinFundingSpread <= 0 {
		return errors.New("engine.min_funding_spread must be > 0")
	}
	if cfg.Engine.MaxPositionNotional <= 0 {
		return errors.New("engine.max_position_notional must be > 0")
	}
	if cfg.Engine.MaxDailyNotional < cfg.Engine.MaxPositionNotional {
		return errors.New("engine.max_daily_notional must be >= engine.max_position_notional")
	}
	if cfg.Engine.Leverage <= 0 {
		return errors.New("engine.leverage must be > 0")
	}
	if cfg.Engine.StopLossSpread >= 0 {
		return errors.New("engine.stop_loss_spread must be < 0")
	}
	if cfg.Engine.MaxBasisDivergence <= 0 {
		return errors.New("engine.max_basis_divergence must be > 0")
	}
	if usesVenue(cfg, VenueHyperliquid) && cfg.Hyperliquid.Symbol == "" {
		return errors.New("hyperliquid.symbol is required")
	}
	if usesVenue(cfg, VenueBinance) && cfg.Binance.Symbol == "" {
		return errors.New("binance.symbol is required")
	}
	return nil
}

func validateVenueName(name string) error {
	switch name {
	case VenueHyperliquid, VenueBinance:
		return nil
	default:
		return fmt.Errorf("unknown venue %q", name)
	}
}

func usesVenue(cfg *Config, name string) bool {
	return cfg.Engine.VenueA == name || cfg.Engine.VenueB == name
}
