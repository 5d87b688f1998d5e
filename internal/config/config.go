// Package config loads process-wide configuration the way
// 0xtitan6-polymarket-mm's internal/config/config.go does: viper reads a
// YAML file plus environment-variable overrides; Binance credentials may come
// from either, and BINANCE_API_KEY/BINANCE_API_SECRET override both.
// Generalized from Polymarket wallet/API settings to exchange
// credentials, artifact paths, and the optional Telegram/Redis/metrics
// backends SPEC_FULL.md wires in.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/discretionary-eng/discretionary-engine/internal/xerrors"
	"github.com/spf13/viper"
)

// Config is the top-level process configuration.
type Config struct {
	Testnet     bool             `mapstructure:"testnet"`
	ArtifactsDir string          `mapstructure:"artifacts_dir"`
	Binance     BinanceConfig    `mapstructure:"binance"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
}

type BinanceConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads an optional YAML file at path (if it exists) with
// DISCRETIONARY_ENGINE_* environment variable overrides, the same
// SetEnvPrefix/AutomaticEnv shape the teacher uses for POLY_*.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DISCRETIONARY_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("artifacts_dir", defaultArtifactsDir())
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("metrics.addr", ":9090")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, xerrors.Configuration(fmt.Sprintf("while reading config file %s", path), err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, xerrors.Configuration("while unmarshalling config", err)
	}

	if key := os.Getenv("BINANCE_API_KEY"); key != "" {
		cfg.Binance.APIKey = key
	}
	if secret := os.Getenv("BINANCE_API_SECRET"); secret != "" {
		cfg.Binance.APISecret = secret
	}

	return &cfg, nil
}

// Validate checks the fields required to run against a live exchange.
func (c *Config) Validate() error {
	if c.Binance.APIKey == "" || c.Binance.APISecret == "" {
		return xerrors.Configuration("validating config", errors.New("binance credentials missing (set BINANCE_API_KEY / BINANCE_API_SECRET)"))
	}
	return nil
}

func defaultArtifactsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".discretionary_engine"
	}
	return filepath.Join(home, ".discretionary_engine")
}
