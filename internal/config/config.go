// Package config loads service configuration from defaults, an optional
// config file and RECONCILER_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the full service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Matching MatchingConfig
	Batch    BatchConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Path string
}

// MatchingConfig holds the decision-policy thresholds. These are policy
// constants inferred from labeled data, not universal truths; recalibrate
// against real confirmations before changing them.
type MatchingConfig struct {
	AutoThreshold   int `mapstructure:"auto_threshold"`
	ReviewThreshold int `mapstructure:"review_threshold"`
	AutoGap         int `mapstructure:"auto_gap"`
	ConflictGap     int `mapstructure:"conflict_gap"`
	TopCandidates   int `mapstructure:"top_candidates"`
}

type BatchConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
	Workers   int `mapstructure:"workers"`
}

// Load reads configuration. Env var overrides use prefix RECONCILER_, with
// dots replaced by underscores (e.g. RECONCILER_MATCHING_AUTO_THRESHOLD).
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("database.path", "reconciler.db")
	v.SetDefault("matching.auto_threshold", 90)
	v.SetDefault("matching.review_threshold", 75)
	v.SetDefault("matching.auto_gap", 10)
	v.SetDefault("matching.conflict_gap", 5)
	v.SetDefault("matching.top_candidates", 5)
	v.SetDefault("batch.chunk_size", 500)
	v.SetDefault("batch.workers", 4)

	v.SetConfigType("toml")
	if cfgPath := os.Getenv("RECONCILER_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("reconciler")
	}

	v.SetEnvPrefix("RECONCILER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// config file is optional
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
