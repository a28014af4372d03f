package pipe

import (
	"time"

	"github.com/billm/baaaht/pipechan/internal/config"
	"github.com/billm/baaaht/pipechan/internal/logger"
)

type options struct {
	logger         *logger.Logger
	backoff        time.Duration
	maxMessageSize int
}

func defaultOptions() options {
	return options{
		backoff:        config.DefaultPipeBackoff,
		maxMessageSize: config.DefaultMaxMessageSize,
	}
}

// Option configures an endpoint when it is opened.
type Option func(*options)

// WithLogger sets the logger endpoints report state transitions to. Without
// it nothing is logged.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithBackoff sets how long a Sender waits between open attempts while no
// receiver is present. Non-positive values are ignored.
func WithBackoff(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.backoff = d
		}
	}
}

// WithMaxMessageSize bounds the payload length a Receiver accepts. Zero
// means unbounded.
func WithMaxMessageSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxMessageSize = n
		}
	}
}

// WithConfig applies the backoff and size limit from a PipeConfig.
func WithConfig(cfg config.PipeConfig) Option {
	return func(o *options) {
		WithBackoff(cfg.Backoff)(o)
		WithMaxMessageSize(cfg.MaxMessageSize)(o)
	}
}
