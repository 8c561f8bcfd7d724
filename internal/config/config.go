package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	ML          MLConfig        `mapstructure:"ml"`
	Stream      StreamConfig    `mapstructure:"stream"`
	RiskGate    RiskGateConfig  `mapstructure:"risk_gate"`
	Flow        FlowConfig      `mapstructure:"flow"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	DatabaseURL string `mapstructure:"database_url"`
	MaxConns    int    `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// MLConfig carries the rollout flags and weight blob locations for the
// tier/confidence classifiers.
type MLConfig struct {
	ConfidenceEnabled   bool   `mapstructure:"confidence_enabled"`
	ConfidencePercent   int    `mapstructure:"confidence_percent"`
	TierEnabled         bool   `mapstructure:"tier_enabled"`
	TierPercent         int    `mapstructure:"tier_percent"`
	ConfidenceModelPath string `mapstructure:"confidence_model_path"`
	TierModelPath       string `mapstructure:"tier_model_path"`
}

// StreamConfig tunes the setup reconciler and display policy.
type StreamConfig struct {
	RetentionMs      int `mapstructure:"retention_ms"`
	DowngradeGraceMs int `mapstructure:"downgrade_grace_ms"`
	PrimaryLimit     int `mapstructure:"primary_limit"`
}

// RiskGateConfig tunes the entry gate caps and floors.
type RiskGateConfig struct {
	MaxEntryZoneWidthPoints float64 `mapstructure:"max_entry_zone_width_points"`
	MaxStopDistancePoints   float64 `mapstructure:"max_stop_distance_points"`
	MinConfluenceScore      float64 `mapstructure:"min_confluence_score"`
	MinAlignmentScore       float64 `mapstructure:"min_alignment_score"`
	MinConfidencePercent    float64 `mapstructure:"min_confidence_percent"`
}

// FlowConfig tunes flow telemetry staleness.
type FlowConfig struct {
	StaleAfterMs int `mapstructure:"stale_after_ms"`
}

type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RetentionDuration returns the reconciler retention window.
func (c StreamConfig) RetentionDuration() time.Duration {
	return time.Duration(c.RetentionMs) * time.Millisecond
}

// DowngradeGraceDuration returns the triggered-downgrade grace window.
func (c StreamConfig) DowngradeGraceDuration() time.Duration {
	return time.Duration(c.DowngradeGraceMs) * time.Millisecond
}

// StaleAfterDuration returns the flow staleness window.
func (c FlowConfig) StaleAfterDuration() time.Duration {
	return time.Duration(c.StaleAfterMs) * time.Millisecond
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// missing config file is fine, defaults plus env apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"*"})

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.dbname", "command_core")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_conns", 10)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("ml.confidence_enabled", false)
	viper.SetDefault("ml.confidence_percent", 50)
	viper.SetDefault("ml.tier_enabled", false)
	viper.SetDefault("ml.tier_percent", 35)

	viper.SetDefault("stream.retention_ms", 30_000)
	viper.SetDefault("stream.downgrade_grace_ms", 12_000)
	viper.SetDefault("stream.primary_limit", 2)

	viper.SetDefault("risk_gate.max_entry_zone_width_points", 8.0)
	viper.SetDefault("risk_gate.max_stop_distance_points", 18.0)
	viper.SetDefault("risk_gate.min_confluence_score", 3.0)
	viper.SetDefault("risk_gate.min_alignment_score", 0.0)
	viper.SetDefault("risk_gate.min_confidence_percent", 0.0)

	viper.SetDefault("flow.stale_after_ms", 60_000)

	viper.SetDefault("telemetry.enabled", false)
}
