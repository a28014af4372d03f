package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/billm/baaaht/pipechan/pkg/types"
)

// Config represents the complete configuration for pipechan
type Config struct {
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Pipe    PipeConfig    `json:"pipe" yaml:"pipe"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
	Output string `json:"output" yaml:"output"` // stdout, stderr, file path
}

// PipeConfig contains named pipe channel configuration
type PipeConfig struct {
	Path           string        `json:"path" yaml:"path"`
	Backoff        time.Duration `json:"backoff" yaml:"backoff"`
	MaxMessageSize int           `json:"max_message_size" yaml:"max_message_size"` // bytes, 0 = unbounded
}

// applyDefaults fills in zero-valued config fields with their defaults
// This is called after loading from YAML so partial configs stay usable
func applyDefaults(cfg *Config) {
	defaultLogging := DefaultLoggingConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = defaultLogging.Output
	}

	defaultPipe := DefaultPipeConfig()
	if cfg.Pipe.Path == "" {
		cfg.Pipe.Path = defaultPipe.Path
	}
	if cfg.Pipe.Backoff == 0 {
		cfg.Pipe.Backoff = defaultPipe.Backoff
	}
}

// applyEnvOverrides overrides config values from environment variables.
// Malformed numeric values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvLogOutput); v != "" {
		cfg.Logging.Output = v
	}

	if v := os.Getenv(EnvPipePath); v != "" {
		cfg.Pipe.Path = v
	}
	if v := os.Getenv(EnvPipeBackoff); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvPipeBackoff, err)
		}
		cfg.Pipe.Backoff = d
	}
	if v := os.Getenv(EnvPipeMaxMessageSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvPipeMaxMessageSize, err)
		}
		cfg.Pipe.MaxMessageSize = n
	}

	return nil
}

// Load loads the configuration from the default config file (if present),
// then applies environment variable overrides and validates the result
func Load() (*Config, error) {
	var cfg *Config

	configPath, err := GetDefaultConfigPath()
	if err == nil {
		if _, err := os.Stat(configPath); err == nil {
			cfg, err = LoadFromFile(configPath)
			if err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to check config file: %w", err)
		}
	}

	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for validity
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level))
	}
	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid log format: %s (must be json or text)", c.Logging.Format))
	}

	if c.Pipe.Path == "" {
		return types.NewError(types.ErrCodeInvalidArgument, "pipe path cannot be empty")
	}
	if c.Pipe.Backoff <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "pipe backoff must be positive")
	}
	if c.Pipe.MaxMessageSize < 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "pipe max message size cannot be negative")
	}

	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Logging: %s, Pipe: %s}", c.Logging, c.Pipe)
}

// ApplyOverrides applies CLI flag-style overrides to the configuration.
// It runs after defaults, the YAML file and environment variables.
func (c *Config) ApplyOverrides(opts OverrideOptions) {
	if opts.LogLevel != "" {
		c.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		c.Logging.Format = opts.LogFormat
	}
	if opts.LogOutput != "" {
		c.Logging.Output = opts.LogOutput
	}

	if opts.PipePath != "" {
		c.Pipe.Path = opts.PipePath
	}
	if opts.PipeBackoff != "" {
		if d, err := time.ParseDuration(opts.PipeBackoff); err == nil {
			c.Pipe.Backoff = d
		}
	}
	if opts.MaxMessageSize > 0 {
		c.Pipe.MaxMessageSize = opts.MaxMessageSize
	}
}

// OverrideOptions contains override options typically set via CLI flags
type OverrideOptions struct {
	// Logging options
	LogLevel  string
	LogFormat string
	LogOutput string

	// Pipe options
	PipePath       string
	PipeBackoff    string
	MaxMessageSize int
}

func (c LoggingConfig) String() string {
	return fmt.Sprintf("LoggingConfig{Level: %s, Format: %s, Output: %s}",
		c.Level, c.Format, c.Output)
}

func (c PipeConfig) String() string {
	return fmt.Sprintf("PipeConfig{Path: %s, Backoff: %s, MaxMessageSize: %d}",
		c.Path, c.Backoff, c.MaxMessageSize)
}
