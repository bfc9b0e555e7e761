package config

import (
	"fmt"
	"time"

	"github.com/sentineliq/riskd/pkg/constants"
)

// Config holds the application's configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Log         LogConfig         `mapstructure:"log"`
	RulesPath   string            `mapstructure:"rules_path"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	EnablePprof  bool   `mapstructure:"enable_pprof"`
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// LedgerConfig selects the audit ledger backend. SQLite is the default for
// single-node deployments; a Postgres DSN switches the driver.
type LedgerConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	DecisionTopic string        `mapstructure:"decision_topic"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	BatchSize     int           `mapstructure:"batch_size"`
	BatchTimeout  time.Duration `mapstructure:"batch_timeout"`
}

// Enabled reports whether a decision stream has been configured.
func (c *KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.DecisionTopic != ""
}

// EngineConfig tunes the decision pipeline. Zero values fall back to the
// documented defaults in pkg/constants.
type EngineConfig struct {
	MLWeight              float64 `mapstructure:"ml_weight"`
	ImpossibleTravelMiles float64 `mapstructure:"impossible_travel_miles"`
	RapidTransactionLimit int64   `mapstructure:"rapid_transaction_limit"`
	MultiDeviceLimit      int64   `mapstructure:"multi_device_limit"`

	UASimilarityThreshold float64 `mapstructure:"ua_similarity_threshold"`
	UAVersionDrift        int     `mapstructure:"ua_version_drift"`
	UAHistoryMaxEntries   int     `mapstructure:"ua_history_max_entries"`
}

func (c *EngineConfig) ApplyDefaults() {
	if c.MLWeight <= 0 || c.MLWeight >= 1 {
		c.MLWeight = constants.MLScoreWeight
	}
	if c.ImpossibleTravelMiles <= 0 {
		c.ImpossibleTravelMiles = constants.ImpossibleTravelMiles
	}
	if c.RapidTransactionLimit <= 0 {
		c.RapidTransactionLimit = constants.RapidTransactionLimit
	}
	if c.MultiDeviceLimit <= 0 {
		c.MultiDeviceLimit = constants.MultiDeviceLimit
	}
	if c.UASimilarityThreshold <= 0 || c.UASimilarityThreshold > 1 {
		c.UASimilarityThreshold = constants.UASimilarityThreshold
	}
	if c.UAVersionDrift <= 0 {
		c.UAVersionDrift = constants.UAVersionDriftAllowed
	}
	if c.UAHistoryMaxEntries <= 0 {
		c.UAHistoryMaxEntries = constants.UAHistoryMaxEntries
	}
}

// IdempotencyConfig tunes exactly-once record retention.
type IdempotencyConfig struct {
	LeaseTTL       time.Duration `mapstructure:"lease_ttl"`
	DefaultTTL     time.Duration `mapstructure:"default_ttl"`
	TransactionTTL time.Duration `mapstructure:"transaction_ttl"`
	AuthTTL        time.Duration `mapstructure:"auth_ttl"`
}

func (c *IdempotencyConfig) ApplyDefaults() {
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = constants.IdempotencyLeaseTTL
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = constants.IdempotencyDefaultTTL
	}
	if c.TransactionTTL <= 0 {
		c.TransactionTTL = constants.IdempotencyTransactionTTL
	}
	if c.AuthTTL <= 0 {
		c.AuthTTL = constants.IdempotencyAuthTTL
	}
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Ledger.Driver != "sqlite" && c.Ledger.Driver != "postgres" {
		return fmt.Errorf("unsupported ledger driver: %q", c.Ledger.Driver)
	}
	if c.Ledger.DSN == "" {
		return fmt.Errorf("ledger dsn is required")
	}
	return nil
}
