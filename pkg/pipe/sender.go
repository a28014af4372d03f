package pipe

import (
	"context"
	"fmt"
	"os"

	"github.com/billm/baaaht/pipechan/pkg/fifo"
	"github.com/billm/baaaht/pipechan/pkg/frame"
	"github.com/billm/baaaht/pipechan/pkg/types"
	"golang.org/x/sys/unix"
)

// Sender owns the write end of a FIFO.
type Sender struct {
	*endpoint
}

// OpenSender opens the write end of the FIFO at path, creating the FIFO if
// needed and waiting for a receiver to appear. It only returns once the
// pipe is open, ctx is canceled or an unrecoverable error occurs.
func OpenSender(ctx context.Context, path string, opts ...Option) (*Sender, error) {
	e, err := newEndpoint(path, "pipe_sender", opts)
	if err != nil {
		return nil, err
	}

	s := &Sender{endpoint: e}
	if _, err := s.handle(ctx, s.openWriteEnd); err != nil {
		return nil, err
	}
	s.logger.Debug("Pipe sender opened")
	return s, nil
}

// openWriteEnd runs the sender open policy: back off while there is no
// receiver, create the node when it is missing, fail on anything else.
func (s *Sender) openWriteEnd(ctx context.Context) (*os.File, error) {
	for {
		if err := s.canceled(ctx); err != nil {
			return nil, err
		}

		f, err := os.OpenFile(s.path, os.O_WRONLY|unix.O_NONBLOCK, 0)
		switch fifo.Classify(err) {
		case fifo.ClassNone:
			if err := s.verify(f); err != nil {
				f.Close()
				return nil, err
			}
			return f, nil

		case fifo.ClassNoReceiver:
			if err := s.sleep(ctx, s.opts.backoff); err != nil {
				return nil, err
			}

		case fifo.ClassMissingNode:
			if err := s.provision(); err != nil {
				return nil, err
			}

		default:
			return nil, types.WrapError(types.ErrCodeSystem, "failed to open write end of "+s.path, err)
		}
	}
}

// Send writes payload as one frame. If the receiver has gone away the write
// end is reopened (waiting for a new receiver as OpenSender does) and the
// whole frame is written again, so Send returns nil only once a live pipe
// accepted the complete frame.
func (s *Sender) Send(ctx context.Context, payload []byte) error {
	f, err := s.handle(ctx, s.openWriteEnd)
	if err != nil {
		return err
	}

	msg := frame.Encode(payload)
	for {
		_, err := f.Write(msg)
		switch fifo.Classify(err) {
		case fifo.ClassNone:
			s.record(len(payload))
			return nil

		case fifo.ClassBrokenPipe:
			s.logger.Debug("Receiver disconnected, reopening write end")
			if f, err = s.reopen(ctx, s.openWriteEnd); err != nil {
				return err
			}

		default:
			if s.isClosed() {
				return s.closedError()
			}
			return s.fail(types.WrapError(types.ErrCodeSystem, "failed to write frame to "+s.path, err))
		}
	}
}

// String returns a string representation of the sender
func (s *Sender) String() string {
	return fmt.Sprintf("Sender{%s}", s.Stats())
}
