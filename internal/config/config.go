package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"advisor-quorum/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Providers ProvidersConfig `mapstructure:"providers"`
	TwoPhase  TwoPhaseConfig  `mapstructure:"two_phase"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the premium-call log.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// ProvidersConfig declares the static provider tiers and premium routing.
type ProvidersConfig struct {
	Free          []string `mapstructure:"free"`
	CryptoPrimary string   `mapstructure:"crypto_primary"`
	MarketPrimary string   `mapstructure:"market_primary"`
	Tiebreaker    string   `mapstructure:"tiebreaker"`
}

// TwoPhaseConfig holds the two-phase aggregation policy knobs.
type TwoPhaseConfig struct {
	Enabled                     bool    `mapstructure:"enabled"`
	Phase1MinQuorum             int     `mapstructure:"phase1_min_quorum"`
	Phase1ConfidenceThreshold   float64 `mapstructure:"phase1_confidence_threshold"`
	Phase1AgreementThreshold    float64 `mapstructure:"phase1_agreement_threshold"`
	RequirePremiumForHighStakes bool    `mapstructure:"require_premium_for_high_stakes"`
	HighStakesPositionThreshold float64 `mapstructure:"high_stakes_position_threshold"`
	MaxPremiumCallsPerDay       int     `mapstructure:"max_premium_calls_per_day"`
	CodexAsTiebreaker           bool    `mapstructure:"codex_as_tiebreaker"`
}

// AlertingConfig routes operational notifications (quorum failures, budget exhaustion).
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ADVISORQUORUM")
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
	v.SetDefault("app.name", "advisorquorum")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("providers.free", []string{
		"ollama-llama3",
		"ollama-mistral",
		"ollama-qwen",
		"ollama-gemma",
		"ollama-phi",
		"ollama-deepseek",
	})
	v.SetDefault("providers.crypto_primary", "claude-cli")
	v.SetDefault("providers.market_primary", "gemini-cli")
	v.SetDefault("providers.tiebreaker", "codex-cli")

	v.SetDefault("two_phase.enabled", true)
	v.SetDefault("two_phase.phase1_min_quorum", 3)
	v.SetDefault("two_phase.phase1_confidence_threshold", 0.75)
	v.SetDefault("two_phase.phase1_agreement_threshold", 0.60)
	v.SetDefault("two_phase.require_premium_for_high_stakes", true)
	v.SetDefault("two_phase.high_stakes_position_threshold", 1000.0)
	v.SetDefault("two_phase.max_premium_calls_per_day", 50)
	v.SetDefault("two_phase.codex_as_tiebreaker", true)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x61647175))
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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.TwoPhase.Phase1MinQuorum <= 0 {
		return fmt.Errorf("two_phase.phase1_min_quorum must be greater than zero")
	}
	if c.TwoPhase.Phase1ConfidenceThreshold < 0 || c.TwoPhase.Phase1ConfidenceThreshold > 1 {
		return fmt.Errorf("two_phase.phase1_confidence_threshold must be within [0,1]")
	}
	if c.TwoPhase.Phase1AgreementThreshold < 0 || c.TwoPhase.Phase1AgreementThreshold > 1 {
		return fmt.Errorf("two_phase.phase1_agreement_threshold must be within [0,1]")
	}
	if c.TwoPhase.HighStakesPositionThreshold < 0 {
		return fmt.Errorf("two_phase.high_stakes_position_threshold cannot be negative")
	}
	if c.TwoPhase.MaxPremiumCallsPerDay < 0 {
		return fmt.Errorf("two_phase.max_premium_calls_per_day cannot be negative")
	}
	if len(c.Providers.Free) == 0 {
		return fmt.Errorf("providers.free 至少需要一个免费层 provider")
	}
	if c.Providers.CryptoPrimary == "" || c.Providers.MarketPrimary == "" {
		return fmt.Errorf("providers.crypto_primary and providers.market_primary are required")
	}
	if c.Providers.Tiebreaker == c.Providers.CryptoPrimary || c.Providers.Tiebreaker == c.Providers.MarketPrimary {
		return fmt.Errorf("providers.tiebreaker must be distinct from both primaries")
	}
	if c.Providers.Tiebreaker == "" {
		return fmt.Errorf("providers.tiebreaker is required")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
