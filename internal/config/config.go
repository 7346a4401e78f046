package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for our application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Export   ExportConfig   `mapstructure:"export"`
}

type ServerConfig struct {
	Port           int     `mapstructure:"port"`
	Host           string  `mapstructure:"host"`
	MetricsPort    int     `mapstructure:"metrics_port"`
	CacheSize      int     `mapstructure:"cache_size"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	Name              string `mapstructure:"name"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	SSLMode           string `mapstructure:"ssl_mode"`
	MaxConnections    int    `mapstructure:"max_connections"`
	ConnectionTimeout int    `mapstructure:"connection_timeout"`
}

// DSN returns the lib/pq keyword/value connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode, d.ConnectionTimeout,
	)
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ForecastConfig carries the defaults for pipeline runs.
type ForecastConfig struct {
	Frequency       string   `mapstructure:"frequency"`
	Year            int      `mapstructure:"year"`
	EvaluationStart string   `mapstructure:"evaluation_start"`
	Strategies      []string `mapstructure:"strategies"`
	Alpha           float64  `mapstructure:"alpha"`
	Beta            float64  `mapstructure:"beta"`
	Lag             int      `mapstructure:"lag"`
	LeadTime        int      `mapstructure:"lead_time"`
	Quantile        float64  `mapstructure:"quantile"`
	QuantileMethod  string   `mapstructure:"quantile_method"`
	Samples         int      `mapstructure:"n_samples"`
	Seed            *uint64  `mapstructure:"seed"`
	Workers         int      `mapstructure:"workers"`
	// Schedule is a cron expression for refreshing every facility; empty disables it.
	Schedule string `mapstructure:"schedule"`
}

// EvaluationStartTime parses EvaluationStart as RFC 3339 or a plain date.
func (f ForecastConfig) EvaluationStartTime() (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, f.EvaluationStart); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid forecast.evaluation_start %q", f.EvaluationStart)
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled reports whether predictions should be published.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// First unmarshal into a map to handle type conversions
	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw config: %w", err)
	}

	// Convert the map to YAML again
	data, err = yaml.Marshal(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw config: %w", err)
	}

	// Expand environment variables
	expandedData := os.ExpandEnv(string(data))

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBufferString(expandedData)); err != nil {
		return nil, fmt.Errorf("failed to read expanded config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values that would otherwise only fail deep inside a run.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Server.CacheSize <= 0 {
		return fmt.Errorf("invalid server.cache_size %d", c.Server.CacheSize)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}
	if len(c.Forecast.Strategies) == 0 {
		return fmt.Errorf("forecast.strategies must not be empty")
	}
	if _, err := c.Forecast.EvaluationStartTime(); err != nil {
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 50051)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.cache_size", 1000)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.connection_timeout", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("forecast.frequency", "hour")
	v.SetDefault("forecast.year", 2021)
	v.SetDefault("forecast.evaluation_start", "2021-12-01")
	v.SetDefault("forecast.strategies", []string{"naive", "croston", "tsb", "wss"})
	v.SetDefault("forecast.alpha", 0.3)
	v.SetDefault("forecast.beta", 0.2)
	v.SetDefault("forecast.lag", 1)
	v.SetDefault("forecast.lead_time", 1)
	v.SetDefault("forecast.quantile", 0.75)
	v.SetDefault("forecast.quantile_method", "linear")
	v.SetDefault("forecast.n_samples", 1000)
	v.SetDefault("forecast.workers", 1)

	v.SetDefault("kafka.topic", "curtailment-forecasts")
	v.SetDefault("export.dir", "out")
}
