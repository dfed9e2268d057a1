package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects and tunes the alert store
type DatabaseConfig struct {
	// Driver is "sqlite" (pure Go), "sqlite3" (cgo) or "postgres"
	Driver         string `mapstructure:"driver"`
	Path           string `mapstructure:"path"`
	DSN            string `mapstructure:"dsn"`
	MigrationsPath string `mapstructure:"migrations_path"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
	MaxConnections int    `mapstructure:"max_connections"`
	// SampleRetentionDays bounds how long ingested metric samples are kept
	SampleRetentionDays int `mapstructure:"sample_retention_days"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	// ActorClaim is the JWT claim used as the acknowledging actor id
	ActorClaim string `mapstructure:"actor_claim"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type WebSocketConfig struct {
	PingInterval   int `mapstructure:"ping_interval"`
	PongTimeout    int `mapstructure:"pong_timeout"`
	WriteTimeout   int `mapstructure:"write_timeout"`
	MaxMessageSize int `mapstructure:"max_message_size"`
}

// KafkaConfig configures the alert event stream
type KafkaConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	Compression  string   `mapstructure:"compression"`
	MaxAttempts  int      `mapstructure:"max_attempts"`
	BatchTimeout string   `mapstructure:"batch_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
}

// MonitoringConfig configures the threshold monitoring cycle and alert lifecycle
type MonitoringConfig struct {
	Enabled                bool              `mapstructure:"enabled"`
	CheckIntervalMinutes   int               `mapstructure:"check_interval_minutes"`
	AlertCooldownMinutes   int               `mapstructure:"alert_cooldown_minutes"`
	EscalationEnabled      bool              `mapstructure:"escalation_enabled"`
	EscalationDelayMinutes int               `mapstructure:"escalation_delay_minutes"`
	MetricWindow           string            `mapstructure:"metric_window"`
	Thresholds             []ThresholdConfig `mapstructure:"thresholds"`
	ThresholdsFile         string            `mapstructure:"thresholds_file"`
}

// ThresholdConfig is one metric threshold as written in configuration
type ThresholdConfig struct {
	Metric         string   `mapstructure:"metric" yaml:"metric"`
	Label          string   `mapstructure:"label" yaml:"label,omitempty"`
	Category       string   `mapstructure:"category" yaml:"category,omitempty"`
	Unit           string   `mapstructure:"unit" yaml:"unit,omitempty"`
	Target         float64  `mapstructure:"target" yaml:"target"`
	Warning        float64  `mapstructure:"warning" yaml:"warning"`
	Critical       float64  `mapstructure:"critical" yaml:"critical"`
	Direction      string   `mapstructure:"direction" yaml:"direction"`
	Recommendation string   `mapstructure:"recommendation" yaml:"recommendation,omitempty"`
	DefaultValue   *float64 `mapstructure:"default_value" yaml:"default_value,omitempty"`
}

// AnalysisConfig configures the insight analysis cycle
type AnalysisConfig struct {
	Enabled         bool                  `mapstructure:"enabled"`
	IntervalMinutes int                   `mapstructure:"interval_minutes"`
	ProducerTimeout string                `mapstructure:"producer_timeout"`
	TrendProducers  []TrendProducerConfig `mapstructure:"trend_producers"`
}

// TrendProducerConfig declares a window-over-window trend producer
type TrendProducerConfig struct {
	ID              string  `mapstructure:"id"`
	Metric          string  `mapstructure:"metric"`
	Label           string  `mapstructure:"label"`
	RouteID         string  `mapstructure:"route_id"`
	Category        string  `mapstructure:"category"`
	Window          string  `mapstructure:"window"`
	ChangeThreshold float64 `mapstructure:"change_threshold"`
	Recommendation  string  `mapstructure:"recommendation"`
}

// DedupConfig configures duplicate insight suppression
type DedupConfig struct {
	HoursBack           int             `mapstructure:"hours_back"`
	SimilarityThreshold float64         `mapstructure:"similarity_threshold"`
	MaxKeywords         int             `mapstructure:"max_keywords"`
	RecentLimit         int             `mapstructure:"recent_limit"`
	FuzzyWindowHours    int             `mapstructure:"fuzzy_window_hours"`
	RateLimit           RateLimitConfig `mapstructure:"rate_limit"`
}

// LookBack is the longest window any dedup rule reads history for
func (d DedupConfig) LookBack() time.Duration {
	window := time.Duration(d.HoursBack) * time.Hour
	if fuzzy := time.Duration(d.FuzzyWindowHours) * time.Hour; fuzzy > window {
		window = fuzzy
	}
	if rate := time.Duration(d.RateLimit.WindowMinutes) * time.Minute; rate > window {
		window = rate
	}
	return window
}

// RateLimitConfig is the per-producer spam guard
type RateLimitConfig struct {
	Max           int    `mapstructure:"max"`
	WindowMinutes int    `mapstructure:"window_minutes"`
	Mode          string `mapstructure:"mode"`
}

// RedisConfig enables a shared dedup history for multiple engine instances
type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	KeyPrefix    string `mapstructure:"key_prefix"`
	// HistoryTTL bounds how long dedup records are kept
	HistoryTTL string `mapstructure:"history_ttl"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from path, or from the default search paths
// when path is empty
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Set defaults
	setDefaults(v)

	// Read environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Override specific values from env
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.path", "DATABASE_PATH")
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Monitoring.ThresholdsFile != "" {
		thresholds, err := LoadThresholds(config.Monitoring.ThresholdsFile)
		if err != nil {
			return nil, err
		}
		config.Monitoring.Thresholds = thresholds
	}

	// Validate the configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	var errors []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errors = append(errors, "server.port must be between 1 and 65535")
	}
	if c.Server.Host == "" {
		errors = append(errors, "server.host is required")
	}

	switch c.Database.Driver {
	case "sqlite", "sqlite3":
		if c.Database.Path == "" {
			errors = append(errors, "database.path is required for sqlite drivers")
		}
	case "postgres":
		if c.Database.DSN == "" {
			errors = append(errors, "database.dsn is required for the postgres driver")
		}
	default:
		errors = append(errors, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}

	if c.Auth.Enabled && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "your-secret-key-here") {
		errors = append(errors, "auth.jwt_secret must be set to a secure value when enabled")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errors = append(errors, "kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			errors = append(errors, "kafka.topic is required when kafka is enabled")
		}
		errors = appendDurationError(errors, "kafka.batch_timeout", c.Kafka.BatchTimeout)
		errors = appendDurationError(errors, "kafka.write_timeout", c.Kafka.WriteTimeout)
	}

	if c.Monitoring.CheckIntervalMinutes <= 0 {
		errors = append(errors, "monitoring.check_interval_minutes must be greater than 0")
	}
	if c.Monitoring.AlertCooldownMinutes < 0 {
		errors = append(errors, "monitoring.alert_cooldown_minutes must not be negative")
	}
	if c.Monitoring.EscalationEnabled && c.Monitoring.EscalationDelayMinutes <= 0 {
		errors = append(errors, "monitoring.escalation_delay_minutes must be greater than 0 when escalation is enabled")
	}
	errors = appendDurationError(errors, "monitoring.metric_window", c.Monitoring.MetricWindow)

	seen := make(map[string]bool)
	for i, t := range c.Monitoring.Thresholds {
		if t.Metric == "" {
			errors = append(errors, fmt.Sprintf("monitoring.thresholds[%d].metric is required", i))
			continue
		}
		if seen[t.Metric] {
			errors = append(errors, fmt.Sprintf("monitoring.thresholds: duplicate metric %s", t.Metric))
		}
		seen[t.Metric] = true
	}

	if c.Analysis.IntervalMinutes <= 0 {
		errors = append(errors, "analysis.interval_minutes must be greater than 0")
	}
	errors = appendDurationError(errors, "analysis.producer_timeout", c.Analysis.ProducerTimeout)
	for i, p := range c.Analysis.TrendProducers {
		if p.ID == "" || p.Metric == "" {
			errors = append(errors, fmt.Sprintf("analysis.trend_producers[%d] requires id and metric", i))
		}
		errors = appendDurationError(errors, fmt.Sprintf("analysis.trend_producers[%d].window", i), p.Window)
	}

	if c.Dedup.HoursBack <= 0 {
		errors = append(errors, "dedup.hours_back must be greater than 0")
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		errors = append(errors, "dedup.similarity_threshold must be in (0, 1]")
	}
	switch c.Dedup.RateLimit.Mode {
	case "reject", "flag":
	default:
		errors = append(errors, "dedup.rate_limit.mode must be reject or flag")
	}

	if c.Redis.Enabled {
		if c.Redis.Host == "" || c.Redis.Port <= 0 {
			errors = append(errors, "redis.host and redis.port are required when redis is enabled")
		}
		errors = appendDurationError(errors, "redis.history_ttl", c.Redis.HistoryTTL)
		ttl := ParseDuration(c.Redis.HistoryTTL, 48*time.Hour)
		if lookBack := c.Dedup.LookBack(); ttl < lookBack {
			errors = append(errors, fmt.Sprintf("redis.history_ttl (%s) must cover the dedup look-back of %s", ttl, lookBack))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func appendDurationError(errors []string, key, value string) []string {
	if value == "" {
		return errors
	}
	if d, err := time.ParseDuration(value); err != nil || d <= 0 {
		return append(errors, fmt.Sprintf("%s must be a positive duration, got %q", key, value))
	}
	return errors
}

// ParseDuration parses a configured duration, returning fallback when the
// value is empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/alerts.db")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.sample_retention_days", 30)

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.actor_claim", "sub")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)

	// WebSocket defaults
	v.SetDefault("websocket.ping_interval", 30)
	v.SetDefault("websocket.pong_timeout", 60)
	v.SetDefault("websocket.write_timeout", 10)
	v.SetDefault("websocket.max_message_size", 512)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "rm-alert-events")
	v.SetDefault("kafka.compression", "snappy")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("kafka.batch_timeout", "50ms")
	v.SetDefault("kafka.write_timeout", "10s")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.check_interval_minutes", 5)
	v.SetDefault("monitoring.alert_cooldown_minutes", 60)
	v.SetDefault("monitoring.escalation_enabled", true)
	v.SetDefault("monitoring.escalation_delay_minutes", 30)
	v.SetDefault("monitoring.metric_window", "24h")

	// Analysis defaults
	v.SetDefault("analysis.enabled", true)
	v.SetDefault("analysis.interval_minutes", 15)
	v.SetDefault("analysis.producer_timeout", "30s")

	// Dedup defaults
	v.SetDefault("dedup.hours_back", 24)
	v.SetDefault("dedup.similarity_threshold", 0.7)
	v.SetDefault("dedup.max_keywords", 10)
	v.SetDefault("dedup.recent_limit", 20)
	v.SetDefault("dedup.fuzzy_window_hours", 0)
	v.SetDefault("dedup.rate_limit.max", 10)
	v.SetDefault("dedup.rate_limit.window_minutes", 60)
	v.SetDefault("dedup.rate_limit.mode", "reject")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.key_prefix", "rmalert:")
	v.SetDefault("redis.history_ttl", "48h")

	// Prometheus defaults
	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.path", "/metrics")
}
