// Package config loads dqflow settings from an optional config file and
// DQFLOW_ environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/razeghi71/dqflow/session"
	"github.com/razeghi71/dqflow/workspace"
)

// EnvPrefix is the prefix of environment overrides. DQFLOW_SESSIONS_IDLE
// sets sessions.idle.
const EnvPrefix = "DQFLOW_"

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Data     DataConfig     `mapstructure:"data"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// EngineConfig selects the engine used by the CLI. An empty URL runs the
// in-process workspace.
type EngineConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DataConfig locates the dataset directory.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// WorkersConfig bounds concurrent operations.
type WorkersConfig struct {
	Max int `mapstructure:"max"`
}

// SessionsConfig caps sessions and sets idle eviction.
type SessionsConfig struct {
	Max   int           `mapstructure:"max"`
	Idle  time.Duration `mapstructure:"idle"`
	Sweep time.Duration `mapstructure:"sweep"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Debug bool   `mapstructure:"debug"`
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("engine.url", "")
	v.SetDefault("engine.timeout", "30s")
	v.SetDefault("data.dir", "./data")
	v.SetDefault("workers.max", 8)
	v.SetDefault("sessions.max", 1000)
	v.SetDefault("sessions.idle", "30m")
	v.SetDefault("sessions.sweep", "1m")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.level", "info")
}

// Load reads path, if given, then applies DQFLOW_ environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		// DQFLOW_DATA_DIR -> data.dir
		prop := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, EnvPrefix), "_", "."))
		v.Set(prop, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch {
	case c.Workers.Max <= 0:
		return fmt.Errorf("workers.max must be positive, got %d", c.Workers.Max)
	case c.Sessions.Max < 0:
		return fmt.Errorf("sessions.max must not be negative, got %d", c.Sessions.Max)
	case c.Sessions.Idle < 0 || c.Sessions.Sweep < 0:
		return fmt.Errorf("session durations must not be negative")
	case c.Engine.URL == "" && c.Data.Dir == "":
		return fmt.Errorf("data.dir is required for the in-process engine")
	}
	return nil
}

// Workspace returns the in-process engine options.
func (c Config) Workspace() workspace.Options {
	return workspace.Options{
		DataDir:          c.Data.Dir,
		MaxConcurrentOps: c.Workers.Max,
		Sessions: session.Options{
			MaxSessions:   c.Sessions.Max,
			IdleTTL:       c.Sessions.Idle,
			EvictInterval: c.Sessions.Sweep,
		},
	}
}
