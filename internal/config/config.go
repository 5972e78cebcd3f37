// Package config loads service configuration from the environment and an optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	Store            string        `mapstructure:"STORE"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	KafkaGroupID     string        `mapstructure:"KAFKA_GROUP_ID"`
	OTLPEndpoint     string        `mapstructure:"OTLP_ENDPOINT"`
	TraceSampleRate  float64       `mapstructure:"TRACE_SAMPLE_RATE"`
	Timezone         string        `mapstructure:"TIMEZONE"`
	SweepInterval    time.Duration `mapstructure:"SWEEP_INTERVAL"`
	DoseReminderLead time.Duration `mapstructure:"DOSE_REMINDER_LEAD"`
	SettingsCacheTTL time.Duration `mapstructure:"SETTINGS_CACHE_TTL"`
	FeedLimit        int           `mapstructure:"FEED_LIMIT"`
	Workers          int           `mapstructure:"WORKERS"`

	// parsed from comma lists
	KafkaBrokers []string          `mapstructure:"-"`
	APIKeys      map[string]string `mapstructure:"-"`

	location *time.Location
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "STORE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "KAFKA_BROKERS", "KAFKA_GROUP_ID", "OTLP_ENDPOINT", "TRACE_SAMPLE_RATE",
	"TIMEZONE", "API_KEYS", "SWEEP_INTERVAL", "DOSE_REMINDER_LEAD", "SETTINGS_CACHE_TTL",
	"FEED_LIMIT", "WORKERS",
}

// Load reads the environment, falling back to .env in the working directory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE", StorePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("KAFKA_GROUP_ID", "care-event-ingestor")
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("DOSE_REMINDER_LEAD", "15m")
	v.SetDefault("SETTINGS_CACHE_TTL", "5m")
	v.SetDefault("FEED_LIMIT", 50)
	v.SetDefault("WORKERS", 8)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// a missing .env is fine
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	apiKeys, err := parseAPIKeys(v.GetString("API_KEYS"))
	if err != nil {
		return nil, err
	}
	cfg.APIKeys = apiKeys
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseAPIKeys reads "key=client,key2=client2".
func parseAPIKeys(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitList(s) {
		key, client, ok := strings.Cut(pair, "=")
		if !ok || key == "" || client == "" {
			return nil, fmt.Errorf("API_KEYS entry %q must look like key=client", pair)
		}
		out[key] = client
	}
	return out, nil
}

// Validate checks the combination of settings. It also resolves TIMEZONE.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE=%s", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	for name, d := range map[string]time.Duration{
		"SWEEP_INTERVAL":     c.SweepInterval,
		"DOSE_REMINDER_LEAD": c.DoseReminderLead,
		"SETTINGS_CACHE_TTL": c.SettingsCacheTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATE must be within [0, 1], got %v", c.TraceSampleRate)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	c.location = loc
	return nil
}

// Location is the zone dose times are interpreted in. Valid after Validate.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// StreamingEnabled reports whether Kafka brokers are configured.
func (c *Config) StreamingEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
