package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dipbot/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every application setting. Secrets can be overridden
// through environment variables after the file is loaded.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Binance struct {
		RestURL   string `yaml:"rest_url"`
		WSURL     string `yaml:"ws_url"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		UseStream bool   `yaml:"use_stream"`
	} `yaml:"binance"`

	Trading struct {
		Symbols                []string        `yaml:"symbols"`
		QuoteAsset             string          `yaml:"quote_asset"`
		InvestmentAmount       decimal.Decimal `yaml:"investment_amount"`
		DipThreshold           decimal.Decimal `yaml:"dip_threshold"`
		RipThreshold           decimal.Decimal `yaml:"rip_threshold"`
		PollIntervalSec        int             `yaml:"poll_interval_sec"`
		IdleIntervalSec        int             `yaml:"idle_interval_sec"`
		MinHoldSec             int             `yaml:"min_hold_sec"`
		DrawdownLimit          decimal.Decimal `yaml:"drawdown_limit"`
		AnchorResetIntervalSec int             `yaml:"anchor_reset_interval_sec"` // 0 = reference tracks the live price while flat
		MaxRetries             int             `yaml:"max_retries"`
		RetryDelaySec          int             `yaml:"retry_delay_sec"`
		Autostart              bool            `yaml:"autostart"`
	} `yaml:"trading"`

	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies
// environment overrides and defaults, then validates.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Trading.QuoteAsset == "" {
		c.Trading.QuoteAsset = "USDT"
	}
	if c.Trading.PollIntervalSec <= 0 {
		c.Trading.PollIntervalSec = 60
	}
	if c.Trading.IdleIntervalSec <= 0 {
		c.Trading.IdleIntervalSec = 5
	}
	if c.Trading.MaxRetries <= 0 {
		c.Trading.MaxRetries = 3
	}
	if c.Trading.RetryDelaySec <= 0 {
		c.Trading.RetryDelaySec = 2
	}
	if c.Trading.DrawdownLimit.IsZero() {
		c.Trading.DrawdownLimit = decimal.NewFromFloat(0.05)
	}
	if c.Binance.RestURL == "" {
		c.Binance.RestURL = "https://api.binance.com"
	}
	if c.Binance.WSURL == "" {
		c.Binance.WSURL = "wss://stream.binance.com:9443"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "data/trades.csv"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/dipbot.db"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "localhost:9615"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return &domain.ConfigError{Field: "trading.symbols", Err: errors.New("at least one symbol is required")}
	}
	if !c.Trading.InvestmentAmount.IsPositive() {
		return &domain.ConfigError{Field: "trading.investment_amount", Err: errors.New("must be positive")}
	}
	if !fractional(c.Trading.DipThreshold) {
		return &domain.ConfigError{Field: "trading.dip_threshold", Err: errors.New("must be in (0, 1)")}
	}
	if !fractional(c.Trading.RipThreshold) {
		return &domain.ConfigError{Field: "trading.rip_threshold", Err: errors.New("must be in (0, 1)")}
	}
	if !fractional(c.Trading.DrawdownLimit) {
		return &domain.ConfigError{Field: "trading.drawdown_limit", Err: errors.New("must be in (0, 1)")}
	}
	if c.Trading.MinHoldSec < 0 {
		return &domain.ConfigError{Field: "trading.min_hold_sec", Err: errors.New("must not be negative")}
	}
	if c.Trading.AnchorResetIntervalSec < 0 {
		return &domain.ConfigError{Field: "trading.anchor_reset_interval_sec", Err: errors.New("must not be negative")}
	}
	if !strings.HasPrefix(c.Binance.WSURL, "ws://") && !strings.HasPrefix(c.Binance.WSURL, "wss://") {
		return &domain.ConfigError{Field: "binance.ws_url", Err: fmt.Errorf("invalid WS URL: %s", c.Binance.WSURL)}
	}
	return nil
}

// PollInterval returns the active-loop cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Trading.PollIntervalSec) * time.Second
}

// IdleInterval returns the reduced cadence used while paused.
func (c *Config) IdleInterval() time.Duration {
	return time.Duration(c.Trading.IdleIntervalSec) * time.Second
}

// MinHold returns the minimum hold duration before a sell is permitted.
func (c *Config) MinHold() time.Duration {
	return time.Duration(c.Trading.MinHoldSec) * time.Second
}

// AnchorResetInterval returns the periodic anchor-reset interval,
// zero when the reference tracks the live price continuously.
func (c *Config) AnchorResetInterval() time.Duration {
	return time.Duration(c.Trading.AnchorResetIntervalSec) * time.Second
}

// RetryDelay returns the fixed delay between retry attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Trading.RetryDelaySec) * time.Second
}

func fractional(d decimal.Decimal) bool {
	return d.IsPositive() && d.LessThan(decimal.NewFromInt(1))
}

// overrideWithEnv replaces secrets with environment values when present.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("DIPBOT_BINANCE_KEY"); key != "" {
		cfg.Binance.APIKey = key
	}
	if secret := os.Getenv("DIPBOT_BINANCE_SECRET"); secret != "" {
		cfg.Binance.APISecret = secret
	}
	if token := os.Getenv("DIPBOT_TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if chat := os.Getenv("DIPBOT_TELEGRAM_CHAT_ID"); chat != "" {
		if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
}
