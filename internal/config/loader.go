// Package config loads the bridge configuration: defaults, then environment
// variables with the PIOBRIDGE_ prefix, then runtime overrides, in rising
// precedence.
package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/piolab/piobridge/pkg/backend"
)

// envPrefix namespaces all environment overrides.
const envPrefix = "PIOBRIDGE"

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BackendConfig configures the control-API client.
type BackendConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

// BridgeConfig configures bridge-level behavior.
type BridgeConfig struct {
	// UnitFilter restricts operations and worker listings to units whose
	// names match this glob. Empty means all units.
	UnitFilter string `mapstructure:"unit_filter"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// HealthConfig configures the health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the full bridge configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Logging LoggingConfig `mapstructure:"logging"`
	Health  HealthConfig  `mapstructure:"health"`
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// Load builds the configuration. Optional override maps (nested, matching
// the config structure) take precedence over environment variables, which
// take precedence over defaults. The result is also stored for GetConfig.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	_ = ctx

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvAliases(v)

	for _, override := range overrides {
		applyOverride(v, "", override)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil before
// the first Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("backend.base_url", backend.DefaultBaseURL)
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.rate_limit", 0.0)

	v.SetDefault("bridge.unit_filter", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("health.enabled", true)
}

// bindEnvAliases maps short env var names alongside the fully-qualified
// PIOBRIDGE_SECTION_KEY forms AutomaticEnv already provides.
func bindEnvAliases(v *viper.Viper) {
	aliases := map[string][]string{
		"server.host":             {"PIOBRIDGE_HOST"},
		"server.port":             {"PIOBRIDGE_PORT"},
		"server.read_timeout":     {"PIOBRIDGE_READ_TIMEOUT"},
		"server.write_timeout":    {"PIOBRIDGE_WRITE_TIMEOUT"},
		"server.shutdown_timeout": {"PIOBRIDGE_SHUTDOWN_TIMEOUT"},
		"backend.base_url":        {"PIOBRIDGE_BACKEND_URL"},
		"backend.timeout":         {"PIOBRIDGE_BACKEND_TIMEOUT"},
		"bridge.unit_filter":      {"PIOBRIDGE_UNIT_FILTER"},
		"logging.level":           {"PIOBRIDGE_LOG_LEVEL"},
		"logging.profile":         {"PIOBRIDGE_LOG_PROFILE"},
	}
	for key, names := range aliases {
		// The canonical name must stay bound too; BindEnv replaces the
		// AutomaticEnv mapping for this key.
		canonical := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(append([]string{key, canonical}, names...)...)
	}
}

// applyOverride flattens a nested override map into dotted keys; viper's
// Set has the highest precedence.
func applyOverride(v *viper.Viper, prefix string, values map[string]any) {
	for key, value := range values {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			applyOverride(v, full, nested)
			continue
		}
		v.Set(full, value)
	}
}
