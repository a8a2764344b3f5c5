// Package config provides a reusable loader for the witness network's
// configuration files and environment variables. It is versioned so that
// applications can depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/quorumcoin/witness-network/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a witness network
// simulation. It mirrors the structure of the YAML files under
// cmd/quorumcoin/config.
type Config struct {
	Network struct {
		ID                string `mapstructure:"id" json:"id"`
		NumAgents         int    `mapstructure:"num_agents" json:"num_agents"`
		RequiredWitnesses int    `mapstructure:"required_witnesses" json:"required_witnesses"`
		PeerTimeoutMS     int    `mapstructure:"peer_timeout_ms" json:"peer_timeout_ms"`
		MaxRetries        int    `mapstructure:"max_retries" json:"max_retries"`
	} `mapstructure:"network" json:"network"`

	Agent struct {
		MaxFailuresBeforeBan int     `mapstructure:"max_failures_before_ban" json:"max_failures_before_ban"`
		RecencyCacheCap      int     `mapstructure:"recency_cache_cap" json:"recency_cache_cap"`
		BloomExpectedItems   uint    `mapstructure:"bloom_expected_items" json:"bloom_expected_items"`
		BloomFalsePositive   float64 `mapstructure:"bloom_false_positive" json:"bloom_false_positive"`
	} `mapstructure:"agent" json:"agent"`

	Persistence struct {
		DataDir        string `mapstructure:"data_dir" json:"data_dir"`
		SnapshotEveryS int    `mapstructure:"snapshot_every_s" json:"snapshot_every_s"`
	} `mapstructure:"persistence" json:"persistence"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is
// loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/quorumcoin/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env, loaded by godotenv in cmd/quorumcoin

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the QUORUM_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("QUORUM_ENV", ""))
}
