package pipe

import (
	"context"
	"fmt"
	"os"

	"github.com/billm/baaaht/pipechan/pkg/fifo"
	"github.com/billm/baaaht/pipechan/pkg/frame"
	"github.com/billm/baaaht/pipechan/pkg/types"
)

// Receiver owns the read end of a FIFO.
type Receiver struct {
	*endpoint
}

// OpenReceiver opens the read end of the FIFO at path, creating the FIFO if
// needed. Opening the read end blocks until a writer opens the pipe; ctx is
// only consulted between attempts.
func OpenReceiver(ctx context.Context, path string, opts ...Option) (*Receiver, error) {
	e, err := newEndpoint(path, "pipe_receiver", opts)
	if err != nil {
		return nil, err
	}

	r := &Receiver{endpoint: e}
	if _, err := r.handle(ctx, r.openReadEnd); err != nil {
		return nil, err
	}
	r.logger.Debug("Pipe receiver opened")
	return r, nil
}

// openReadEnd runs the receiver open policy: create the node when it is
// missing and retry at once, fail on anything else.
func (r *Receiver) openReadEnd(ctx context.Context) (*os.File, error) {
	for {
		if err := r.canceled(ctx); err != nil {
			return nil, err
		}

		f, err := os.OpenFile(r.path, os.O_RDONLY, 0)
		switch fifo.Classify(err) {
		case fifo.ClassNone:
			if err := r.verify(f); err != nil {
				f.Close()
				return nil, err
			}
			return f, nil

		case fifo.ClassMissingNode:
			if err := r.provision(); err != nil {
				return nil, err
			}

		default:
			return nil, types.WrapError(types.ErrCodeSystem, "failed to open read end of "+r.path, err)
		}
	}
}

// Receive returns the payload of the next frame. A writer that closes
// before a full header arrived is waited out: the read end is reopened and
// the header read starts over. Failures after the header are fatal.
func (r *Receiver) Receive(ctx context.Context) ([]byte, error) {
	f, err := r.handle(ctx, r.openReadEnd)
	if err != nil {
		return nil, err
	}

	var n uint64
	for {
		n, err = frame.ReadHeader(f)
		if err == nil {
			break
		}
		if r.isClosed() {
			return nil, r.closedError()
		}
		if fifo.Classify(err) != fifo.ClassStreamClosed {
			return nil, r.fail(types.WrapError(types.ErrCodeSystem, "failed to read frame header from "+r.path, err))
		}

		r.logger.Debug("Writer disconnected, reopening read end")
		if f, err = r.reopen(ctx, r.openReadEnd); err != nil {
			return nil, err
		}
	}

	payload, err := frame.ReadPayload(f, n, r.opts.maxMessageSize)
	switch {
	case err == nil:
		r.record(len(payload))
		return payload, nil
	case r.isClosed():
		return nil, r.closedError()
	case types.IsErrCode(err, types.ErrCodeResourceExhausted):
		return nil, r.fail(err)
	default:
		return nil, r.fail(types.WrapError(types.ErrCodeSystem, "failed to read frame payload from "+r.path, err))
	}
}

// String returns a string representation of the receiver
func (r *Receiver) String() string {
	return fmt.Sprintf("Receiver{%s}", r.Stats())
}
