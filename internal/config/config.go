package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

var ErrMissingToken = errors.New("DISCORD_TOKEN is required")

type Config struct {
	DiscordToken      string           `yaml:"discord_token"`
	DatabaseURL       string           `yaml:"database_url"`
	LogLevel          string           `yaml:"log_level"`
	DefaultLogChannel string           `yaml:"default_log_channel"`
	Protection        ProtectionConfig `yaml:"protection"`
	Metrics           MetricsConfig    `yaml:"metrics"`
}

type ProtectionConfig struct {
	TickSeconds        int      `yaml:"tick_seconds"`
	SpikeWindowSeconds int      `yaml:"spike_window_seconds"`
	RetentionSeconds   int      `yaml:"retention_seconds"`
	KickTimeoutSeconds int      `yaml:"kick_timeout_seconds"`
	KickConcurrency    int      `yaml:"kick_concurrency"`
	SpikeThreshold     int      `yaml:"spike_threshold"`
	ActionThreshold    int      `yaml:"action_threshold"`
	Blacklist          []string `yaml:"blacklist"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func DefaultConfig() Config {
	return Config{
		DatabaseURL: "/data/raidguard.db",
		LogLevel:    "info",
		Protection: ProtectionConfig{
			TickSeconds:        60,
			SpikeWindowSeconds: 60,
			RetentionSeconds:   300,
			KickTimeoutSeconds: 10,
			KickConcurrency:    4,
			SpikeThreshold:     5,
			ActionThreshold:    5,
			Blacklist:          []string{"raid", "bot", "free", "nitro", "hack"},
		},
		Metrics: MetricsConfig{Enabled: false, Addr: ":9090"},
	}
}

// Load reads .env (optional), then the yaml file at CONFIG_PATH, then the
// environment. Later sources win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, ErrMissingToken
	}
	normalize(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.DefaultLogChannel = envString("DEFAULT_LOG_CHANNEL", cfg.DefaultLogChannel)
	cfg.Protection.TickSeconds = envInt("PROTECTION_TICK_SECONDS", cfg.Protection.TickSeconds)
	cfg.Protection.SpikeWindowSeconds = envInt("PROTECTION_SPIKE_WINDOW_SECONDS", cfg.Protection.SpikeWindowSeconds)
	cfg.Protection.RetentionSeconds = envInt("PROTECTION_RETENTION_SECONDS", cfg.Protection.RetentionSeconds)
	cfg.Protection.KickTimeoutSeconds = envInt("PROTECTION_KICK_TIMEOUT_SECONDS", cfg.Protection.KickTimeoutSeconds)
	cfg.Protection.KickConcurrency = envInt("PROTECTION_KICK_CONCURRENCY", cfg.Protection.KickConcurrency)
	cfg.Protection.SpikeThreshold = envInt("SPIKE_THRESHOLD", cfg.Protection.SpikeThreshold)
	cfg.Protection.ActionThreshold = envInt("ACTION_THRESHOLD", cfg.Protection.ActionThreshold)
	cfg.Protection.Blacklist = envList("USERNAME_BLACKLIST", cfg.Protection.Blacklist)
	cfg.Metrics.Enabled = envBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Addr = envString("METRICS_ADDR", cfg.Metrics.Addr)
}

// normalize replaces non-positive values with defaults. The retention never
// drops below the spike window.
func normalize(cfg *Config) {
	defaults := DefaultConfig().Protection
	p := &cfg.Protection
	if p.TickSeconds <= 0 {
		p.TickSeconds = defaults.TickSeconds
	}
	if p.SpikeWindowSeconds <= 0 {
		p.SpikeWindowSeconds = defaults.SpikeWindowSeconds
	}
	if p.RetentionSeconds <= 0 {
		p.RetentionSeconds = defaults.RetentionSeconds
	}
	if p.RetentionSeconds < p.SpikeWindowSeconds {
		p.RetentionSeconds = p.SpikeWindowSeconds
	}
	if p.KickTimeoutSeconds <= 0 {
		p.KickTimeoutSeconds = defaults.KickTimeoutSeconds
	}
	if p.KickConcurrency <= 0 {
		p.KickConcurrency = defaults.KickConcurrency
	}
	if p.SpikeThreshold <= 0 {
		p.SpikeThreshold = defaults.SpikeThreshold
	}
	if p.ActionThreshold <= 0 {
		p.ActionThreshold = p.SpikeThreshold
	}
}

func (p ProtectionConfig) TickInterval() time.Duration {
	return time.Duration(p.TickSeconds) * time.Second
}

func (p ProtectionConfig) SpikeWindow() time.Duration {
	return time.Duration(p.SpikeWindowSeconds) * time.Second
}

func (p ProtectionConfig) Retention() time.Duration {
	return time.Duration(p.RetentionSeconds) * time.Second
}

func (p ProtectionConfig) KickTimeout() time.Duration {
	return time.Duration(p.KickTimeoutSeconds) * time.Second
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

// envList reads a comma separated list; blank items are dropped.
func envList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
