package config

import (
	"fmt"
	"strings"

	"github.com/sentineliq/riskd/internal/domain/models"
	"github.com/spf13/viper"
)

// LoadConfig loads the configuration from file, environment variables, and defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.dsn", "riskd_ledger.db")
	v.SetDefault("kafka.decision_topic", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("rules_path", "configs/rules.yaml")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath("/etc/riskd/")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("RISKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Engine.ApplyDefaults()
	cfg.Idempotency.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadRuleSet loads the declarative rule document from a yaml file. Rules are
// loaded once at engine start; hot reload is deliberately not supported.
func LoadRuleSet(path string) (*models.RuleSet, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	var rs models.RuleSet
	if err := v.Unmarshal(&rs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}

	if rs.Thresholds == (models.Thresholds{}) {
		rs.Thresholds = models.Thresholds{Review: 0.30, Challenge: 0.60, Block: 0.80}
	}
	if !rs.Thresholds.Monotonic() {
		return nil, fmt.Errorf("thresholds must be strictly increasing: %+v", rs.Thresholds)
	}

	return &rs, nil
}
