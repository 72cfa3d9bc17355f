// Package config loads process configuration: built-in defaults, an optional
// YAML file named by KEEPSAKE_CONFIG, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    Server                `yaml:"server"`
	Log       LogConfig             `yaml:"log"`
	Database  DatabaseConfig        `yaml:"database"`
	Redis     RedisConfig           `yaml:"redis"`
	Kafka     KafkaConfig           `yaml:"kafka"`
	Auth      AuthConfig            `yaml:"auth"`
	Liveness  LivenessConfig        `yaml:"liveness"`
	Release   ReleaseConfig         `yaml:"release"`
	RateLimit RateLimitConfig       `yaml:"rate_limit"`
	Crypto    CryptoConfig          `yaml:"crypto"`
	Plans     map[string]PlanConfig `yaml:"plans"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	Environment     string        `yaml:"environment"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig selects the PostgreSQL backend. An empty URL runs the
// in-memory stores.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig backs the decryption failure tracker. Empty URL disables Redis.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig enables the audit mirror and notification command topics.
// No brokers means audit stays local and notifications are only logged.
type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	AuditTopic        string   `yaml:"audit_topic"`
	NotificationTopic string   `yaml:"notification_topic"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
}

type AuthConfig struct {
	JWTSigningKey string `yaml:"jwt_signing_key"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

type LivenessConfig struct {
	SchedulerEnabled bool          `yaml:"scheduler_enabled"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

type ReleaseConfig struct {
	TokenTTL          time.Duration `yaml:"token_ttl"`
	UnlockDelay       time.Duration `yaml:"unlock_delay"`
	AnomalyThreshold  int           `yaml:"anomaly_threshold"`
	AnomalyWindow     time.Duration `yaml:"anomaly_window"`
	FanOutConcurrency int           `yaml:"fan_out_concurrency"`
}

// RateLimitConfig caps requests per client IP on the public release routes.
// Zero PublicRequests turns the limiter off.
type RateLimitConfig struct {
	PublicRequests int           `yaml:"public_requests"`
	PublicWindow   time.Duration `yaml:"public_window"`
}

// CryptoConfig bounds concurrent key derivations; each holds 64 MiB.
type CryptoConfig struct {
	Workers int `yaml:"workers"`
}

type PlanConfig struct {
	DecryptionLimit        int `yaml:"decryption_limit"`
	BonusDecryptions       int `yaml:"bonus_decryptions"`
	HeartbeatFrequencyDays int `yaml:"heartbeat_frequency_days"`
	GracePeriodDays        int `yaml:"grace_period_days"`
}

const devSigningKey = "dev-secret-key-change-in-production"

func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8080",
			Environment:     "development",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			AuditTopic:        "keepsake.audit",
			NotificationTopic: "keepsake.notifications",
			Partitions:        3,
			ReplicationFactor: 1,
		},
		Auth: AuthConfig{
			JWTSigningKey: devSigningKey,
			Issuer:        "keepsake",
			Audience:      "keepsake-api",
		},
		Liveness: LivenessConfig{
			SchedulerEnabled: true,
			SweepInterval:    time.Hour,
		},
		Release: ReleaseConfig{
			TokenTTL:          24 * time.Hour,
			UnlockDelay:       24 * time.Hour,
			AnomalyThreshold:  10,
			AnomalyWindow:     15 * time.Minute,
			FanOutConcurrency: 4,
		},
		RateLimit: RateLimitConfig{
			PublicRequests: 60,
			PublicWindow:   time.Minute,
		},
		Crypto: CryptoConfig{Workers: 2},
		Plans: map[string]PlanConfig{
			"free":     {DecryptionLimit: 1, BonusDecryptions: 0, HeartbeatFrequencyDays: 90, GracePeriodDays: 7},
			"premium":  {DecryptionLimit: 3, BonusDecryptions: 2, HeartbeatFrequencyDays: 30, GracePeriodDays: 14},
			"lifetime": {DecryptionLimit: 10, BonusDecryptions: 5, HeartbeatFrequencyDays: 30, GracePeriodDays: 30},
		},
	}
}

// FromEnv loads configuration using the file named by KEEPSAKE_CONFIG, if any.
func FromEnv() (*Config, error) {
	return Load(os.Getenv("KEEPSAKE_CONFIG"))
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func (c *Config) loadFromEnv() error {
	setString(&c.Server.Addr, "KEEPSAKE_ADDR")
	setString(&c.Server.Environment, "KEEPSAKE_ENV")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Auth.JWTSigningKey, "JWT_SIGNING_KEY")
	setString(&c.Kafka.AuditTopic, "KAFKA_AUDIT_TOPIC")
	setString(&c.Kafka.NotificationTopic, "KAFKA_NOTIFICATION_TOPIC")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("SWEEP_SCHEDULER_ENABLED"); v != "" {
		c.Liveness.SchedulerEnabled = v == "true"
	}

	for _, d := range []struct {
		dst *time.Duration
		key string
	}{
		{&c.Liveness.SweepInterval, "SWEEP_INTERVAL"},
		{&c.Release.TokenTTL, "RELEASE_TOKEN_TTL"},
		{&c.Release.UnlockDelay, "UNLOCK_DELAY"},
		{&c.Release.AnomalyWindow, "ANOMALY_WINDOW"},
		{&c.RateLimit.PublicWindow, "PUBLIC_RATE_WINDOW"},
	} {
		if err := setDuration(d.dst, d.key); err != nil {
			return err
		}
	}

	for _, n := range []struct {
		dst *int
		key string
	}{
		{&c.Release.AnomalyThreshold, "ANOMALY_THRESHOLD"},
		{&c.Release.FanOutConcurrency, "FANOUT_CONCURRENCY"},
		{&c.Crypto.Workers, "CRYPTO_WORKERS"},
		{&c.RateLimit.PublicRequests, "PUBLIC_RATE_LIMIT"},
	} {
		if err := setInt(n.dst, n.key); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("JWT signing key is required"))
	}
	if c.IsProduction() && c.Auth.JWTSigningKey == devSigningKey {
		errs = append(errs, errors.New("JWT signing key must be set in production"))
	}
	if c.Liveness.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}
	if c.Release.TokenTTL <= 0 {
		errs = append(errs, errors.New("release token TTL must be positive"))
	}
	if c.Release.UnlockDelay < 0 {
		errs = append(errs, errors.New("unlock delay must not be negative"))
	}
	if c.Release.AnomalyThreshold <= 0 || c.Release.AnomalyWindow <= 0 {
		errs = append(errs, errors.New("anomaly threshold and window must be positive"))
	}
	if c.Release.FanOutConcurrency <= 0 {
		errs = append(errs, errors.New("fan-out concurrency must be positive"))
	}
	if c.RateLimit.PublicRequests < 0 || c.RateLimit.PublicWindow <= 0 {
		errs = append(errs, errors.New("public rate limit must not be negative and its window must be positive"))
	}
	if c.Crypto.Workers <= 0 {
		errs = append(errs, errors.New("crypto workers must be positive"))
	}
	if _, ok := c.Plans["free"]; !ok {
		errs = append(errs, errors.New(`plan "free" must be configured`))
	}
	for name, p := range c.Plans {
		if p.DecryptionLimit < 1 || p.BonusDecryptions < 0 {
			errs = append(errs, fmt.Errorf("plan %q: decryption limit must be >= 1 and bonus >= 0", name))
		}
		if p.HeartbeatFrequencyDays < 1 || p.GracePeriodDays < 0 {
			errs = append(errs, fmt.Errorf("plan %q: heartbeat frequency must be >= 1 day and grace >= 0", name))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
