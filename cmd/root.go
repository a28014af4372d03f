package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/billm/baaaht/pipechan/internal/config"
	"github.com/billm/baaaht/pipechan/internal/logger"
	"github.com/billm/baaaht/pipechan/pkg/pipe"
	"github.com/billm/baaaht/pipechan/pkg/types"
	"github.com/spf13/cobra"
)

// Version is the pipechan release version
const Version = "0.1.0"

var (
	// CLI flags
	cfgFile        string
	logLevel       string
	logFormat      string
	logOutput      string
	pipePath       string
	backoff        string
	maxMessageSize int

	// Global variables
	rootLog *logger.Logger
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pipechan",
	Short: "pipechan - message channel over a named pipe",
	Long: `pipechan moves length-prefixed messages between two processes through a
POSIX named pipe. Either side may start first; the pipe is created on demand
and a side that goes away can be replaced without restarting the other.`,
	Version:            Version,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// setup loads the configuration and builds the logger shared by every
// subcommand
func setup(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg = c

	if err := initLogger(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	rootLog.Debug("Configuration loaded", "pipe", cfg.Pipe.String())
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if rootLog == nil {
		return nil
	}
	return rootLog.Close()
}

// initLogger initializes the root logger from the resolved configuration
func initLogger(lc config.LoggingConfig) error {
	log, err := logger.New(lc)
	if err != nil {
		return err
	}
	rootLog = log
	return nil
}

// loadConfig loads the configuration file (or defaults plus environment)
// and applies CLI overrides on top
func loadConfig() (*config.Config, error) {
	var (
		c   *config.Config
		err error
	)
	if cfgFile != "" {
		c, err = config.LoadFromFile(cfgFile)
	} else {
		c, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if backoff != "" {
		if _, err := time.ParseDuration(backoff); err != nil {
			return nil, types.WrapError(types.ErrCodeInvalidArgument, "invalid --backoff value: "+backoff, err)
		}
	}

	c.ApplyOverrides(config.OverrideOptions{
		LogLevel:       logLevel,
		LogFormat:      logFormat,
		LogOutput:      logOutput,
		PipePath:       pipePath,
		PipeBackoff:    backoff,
		MaxMessageSize: maxMessageSize,
	})

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// pipeOptions returns the endpoint options derived from the configuration
func pipeOptions() []pipe.Option {
	return []pipe.Option{
		pipe.WithConfig(cfg.Pipe),
		pipe.WithLogger(rootLog),
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file path (default: ~/.config/pipechan/config.yaml if present)")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (default: from config or env)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format: json, text (default: from config or env)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "",
		"Log output: stdout, stderr, or file path (default: from config or env)")

	// Pipe flags
	rootCmd.PersistentFlags().StringVar(&pipePath, "path", "",
		"Path of the named pipe (default: /tmp/pipechan.fifo)")
	rootCmd.PersistentFlags().StringVar(&backoff, "backoff", "",
		"Wait between open attempts while no receiver is present, e.g. 50ms")
	rootCmd.PersistentFlags().IntVar(&maxMessageSize, "max-message-size", 0,
		"Largest payload accepted by recv in bytes (default: unbounded)")

	rootCmd.AddCommand(mkfifoCmd, sendCmd, recvCmd)
}
