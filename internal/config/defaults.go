package config

import (
	"os"
	"path/filepath"
	"time"
)

// testConfigPath is an override for the default config path used in testing
// If set, GetDefaultConfigPath will return this value instead of the standard path
var testConfigPath string

// SetTestConfigPath sets a custom config path for testing purposes
// This should only be called from tests
func SetTestConfigPath(path string) {
	testConfigPath = path
}

// GetConfigDir returns the pipechan configuration directory
// Uses ~/.config/pipechan/ on Unix systems
func GetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "pipechan"), nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() (string, error) {
	if testConfigPath != "" {
		return testConfigPath, nil
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

const (
	// Environment variable names
	EnvPipePath           = "PIPECHAN_PATH"
	EnvPipeBackoff        = "PIPECHAN_BACKOFF"
	EnvPipeMaxMessageSize = "PIPECHAN_MAX_MESSAGE_SIZE"
	EnvLogLevel           = "LOG_LEVEL"
	EnvLogFormat          = "LOG_FORMAT"
	EnvLogOutput          = "LOG_OUTPUT"
)

const (
	// Default Logging settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultLogOutput = "stderr"

	// Default Pipe settings
	DefaultPipePath = "/tmp/pipechan.fifo"

	// DefaultPipeBackoff is how long a sender waits before retrying an open
	// that failed because no receiver holds the read end.
	DefaultPipeBackoff = 50 * time.Millisecond

	// DefaultMaxMessageSize of zero leaves frame lengths unbounded.
	DefaultMaxMessageSize = 0
)

// DefaultLoggingConfig returns the default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  DefaultLogLevel,
		Format: DefaultLogFormat,
		Output: DefaultLogOutput,
	}
}

// DefaultPipeConfig returns the default pipe configuration
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		Path:           DefaultPipePath,
		Backoff:        DefaultPipeBackoff,
		MaxMessageSize: DefaultMaxMessageSize,
	}
}

// DefaultConfig returns a complete configuration populated with defaults
func DefaultConfig() *Config {
	return &Config{
		Logging: DefaultLoggingConfig(),
		Pipe:    DefaultPipeConfig(),
	}
}
