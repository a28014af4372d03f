package pipe

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/billm/baaaht/pipechan/internal/logger"
	"github.com/billm/baaaht/pipechan/pkg/fifo"
	"github.com/billm/baaaht/pipechan/pkg/types"
)

// State is the connection state of an endpoint.
type State string

const (
	StateOpening   State = "opening"
	StateOpen      State = "open"
	StateReopening State = "reopening"
	StateClosed    State = "closed"
	// StateError is terminal: every later call returns the stored error.
	StateError State = "error"
)

// Stats represents endpoint statistics
type Stats struct {
	Path     string `json:"path"`
	State    State  `json:"state"`
	Messages uint64 `json:"messages"`
	Bytes    uint64 `json:"bytes"`
	Reopens  uint64 `json:"reopens"`
}

// String returns a string representation of the stats
func (s Stats) String() string {
	return fmt.Sprintf("Stats{Path: %s, State: %s, Messages: %d, Bytes: %d, Reopens: %d}",
		s.Path, s.State, s.Messages, s.Bytes, s.Reopens)
}

// openFunc opens one end of the FIFO, running the role's retry policy.
type openFunc func(ctx context.Context) (*os.File, error)

// endpoint holds what Sender and Receiver share: the path, the current
// handle and the bookkeeping around replacing it.
type endpoint struct {
	path   string
	opts   options
	logger *logger.Logger

	mu       sync.RWMutex
	file     *os.File
	state    State
	err      error
	messages uint64
	bytes    uint64
	reopens  uint64
}

func newEndpoint(path, component string, opts []Option) (*endpoint, error) {
	if path == "" {
		return nil, types.NewError(types.ErrCodeInvalidArgument, "pipe path cannot be empty")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = logger.NewNop()
	}

	return &endpoint{
		path:   path,
		opts:   o,
		logger: log.With("component", component, "path", path),
		state:  StateOpening,
	}, nil
}

// Path returns the filesystem path of the FIFO.
func (e *endpoint) Path() string {
	return e.path
}

// State returns the current connection state.
func (e *endpoint) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Stats returns endpoint statistics
func (e *endpoint) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Stats{
		Path:     e.path,
		State:    e.state,
		Messages: e.messages,
		Bytes:    e.bytes,
		Reopens:  e.reopens,
	}
}

// Close releases the pipe handle. It is safe to call more than once.
func (e *endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return nil
	}
	e.state = StateClosed

	if e.file == nil {
		return nil
	}
	f := e.file
	e.file = nil
	if err := f.Close(); err != nil {
		return types.WrapError(types.ErrCodeSystem, "failed to close "+e.path, err)
	}
	e.logger.Debug("Pipe endpoint closed")
	return nil
}

// handle returns the live handle, opening one first when a previous attempt
// was canceled and left the endpoint without one.
func (e *endpoint) handle(ctx context.Context, open openFunc) (*os.File, error) {
	e.mu.RLock()
	f, state, err := e.file, e.state, e.err
	e.mu.RUnlock()

	switch {
	case state == StateClosed:
		return nil, e.closedError()
	case state == StateError:
		return nil, err
	case f != nil:
		return f, nil
	}

	f, err = open(ctx)
	if err != nil {
		return nil, e.fail(err)
	}
	return f, e.attach(f)
}

// attach installs f as the current handle unless the endpoint was closed
// in the meantime.
func (e *endpoint) attach(f *os.File) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		f.Close()
		return e.closedError()
	}
	e.file = f
	e.state = StateOpen
	return nil
}

// reopen replaces the dead handle with a fresh one. The old handle is closed
// only after open returns: a FIFO discards its buffer once no reader holds
// it, and a replacement writer may already have written a frame.
func (e *endpoint) reopen(ctx context.Context, open openFunc) (*os.File, error) {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return nil, e.closedError()
	}
	old := e.file
	e.file = nil
	e.state = StateReopening
	e.reopens++
	e.mu.Unlock()

	f, err := open(ctx)
	if old != nil {
		old.Close()
	}
	if err != nil {
		return nil, e.fail(err)
	}
	if err := e.attach(f); err != nil {
		return nil, err
	}
	return f, nil
}

// fail records err as terminal. Cancellation is not terminal: the endpoint
// is left without a handle and the next call opens a new one.
func (e *endpoint) fail(err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.state == StateClosed:
		return e.closedError()
	case types.IsErrCode(err, types.ErrCodeCanceled):
		return err
	}
	e.state = StateError
	e.err = err
	return err
}

func (e *endpoint) isClosed() bool {
	return e.State() == StateClosed
}

func (e *endpoint) closedError() error {
	return types.NewError(types.ErrCodeUnavailable, "pipe endpoint is closed: "+e.path)
}

// record counts one delivered message.
func (e *endpoint) record(n int) {
	e.mu.Lock()
	e.messages++
	e.bytes += uint64(n)
	e.mu.Unlock()
}

// provision creates the missing FIFO. Losing a creation race to another
// endpoint is fine; the node exists either way.
func (e *endpoint) provision() error {
	err := fifo.Provision(e.path)
	switch fifo.Classify(err) {
	case fifo.ClassNone:
		e.logger.Debug("Created fifo", "mode", fmt.Sprintf("%#o", fifo.Mode))
		return nil
	case fifo.ClassAlreadyExists:
		e.logger.Debug("Fifo created concurrently by another endpoint")
		return nil
	default:
		return types.WrapError(types.ErrCodeSystem, "failed to create fifo "+e.path, err)
	}
}

// verify rejects handles that do not refer to a FIFO.
func (e *endpoint) verify(f *os.File) error {
	fi, err := f.Stat()
	if err != nil {
		return types.WrapError(types.ErrCodeSystem, "failed to stat "+e.path, err)
	}
	if fi.Mode()&fs.ModeNamedPipe == 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "path exists and is not a fifo: "+e.path)
	}
	return nil
}

// canceled returns a coded error if ctx is done.
func (e *endpoint) canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return types.WrapError(types.ErrCodeCanceled, "open canceled for "+e.path, err)
	}
	return nil
}

// sleep waits for d or until ctx is done.
func (e *endpoint) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return e.canceled(ctx)
	case <-timer.C:
		return nil
	}
}
