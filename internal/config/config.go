// Package config provides Viper-based configuration loading for the reward
// harness.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// StoreConfig holds episode persistence settings.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `mapstructure:"path"`
	// FlushSize is how many steps the recorder buffers before a batch insert.
	FlushSize int `mapstructure:"flush_size"`
}

// ScriptingConfig holds script host limits.
type ScriptingConfig struct {
	// InstructionLimit caps Lua opcodes per call.
	InstructionLimit int `mapstructure:"instruction_limit"`
	// CallTimeout is the wall-clock budget per script call.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// SessionConfig holds per-session defaults.
type SessionConfig struct {
	// MaxSteps truncates episodes when reached. 0 = unlimited.
	MaxSteps uint64 `mapstructure:"max_steps"`
	// HistorySize caps the reward curve buffer.
	HistorySize int `mapstructure:"history_size"`
	// Frameskip is how many frames a skipping stepper aggregates per action.
	Frameskip int `mapstructure:"frameskip"`
}

// ReplayConfig holds batch scoring settings.
type ReplayConfig struct {
	// Workers is the scoring worker count. 0 = one per CPU.
	Workers int `mapstructure:"workers"`
}

// IntegrationsConfig holds external integration loading settings.
type IntegrationsConfig struct {
	// Dir is an optional directory of custom game integrations.
	Dir string `mapstructure:"dir"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging      LoggingConfig      `mapstructure:"logging"`
	Store        StoreConfig        `mapstructure:"store"`
	Scripting    ScriptingConfig    `mapstructure:"scripting"`
	Session      SessionConfig      `mapstructure:"session"`
	Replay       ReplayConfig       `mapstructure:"replay"`
	Integrations IntegrationsConfig `mapstructure:"integrations"`
}

// Validate checks all configuration invariants.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateStore(c.Store); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateScripting(c.Scripting); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSession(c.Session); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateReplay(c.Replay); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateStore(s StoreConfig) error {
	var errs []string
	if s.Path == "" {
		errs = append(errs, "store.path must not be empty")
	}
	if s.FlushSize < 1 {
		errs = append(errs, fmt.Sprintf("store.flush_size must be >= 1, got %d", s.FlushSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateScripting(s ScriptingConfig) error {
	var errs []string
	if s.InstructionLimit < 1 {
		errs = append(errs, fmt.Sprintf("scripting.instruction_limit must be >= 1, got %d", s.InstructionLimit))
	}
	if s.CallTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("scripting.call_timeout must be positive, got %s", s.CallTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSession(s SessionConfig) error {
	var errs []string
	if s.HistorySize < 2 {
		errs = append(errs, fmt.Sprintf("session.history_size must be >= 2, got %d", s.HistorySize))
	}
	if s.Frameskip < 1 {
		errs = append(errs, fmt.Sprintf("session.frameskip must be >= 1, got %d", s.Frameskip))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateReplay(r ReplayConfig) error {
	if r.Workers < 0 {
		return fmt.Errorf("replay.workers must be >= 0, got %d", r.Workers)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with RETRO_ prefix
	v.SetEnvPrefix("RETRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always unmarshal and validate cleanly
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("store.path", "retro.db")
	v.SetDefault("store.flush_size", 50)

	v.SetDefault("scripting.instruction_limit", 100_000)
	v.SetDefault("scripting.call_timeout", "1s")

	v.SetDefault("session.max_steps", 0)
	v.SetDefault("session.history_size", 512)
	v.SetDefault("session.frameskip", 4)

	v.SetDefault("replay.workers", 0)

	v.SetDefault("integrations.dir", "")
}
