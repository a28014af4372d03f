package pipe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/billm/baaaht/pipechan/pkg/fifo"
	"github.com/billm/baaaht/pipechan/pkg/frame"
	"github.com/billm/baaaht/pipechan/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const testTimeout = 5 * time.Second

type result[T any] struct {
	val T
	err error
}

// async runs fn in a goroutine and delivers its outcome on the returned channel.
func async[T any](fn func() (T, error)) <-chan result[T] {
	ch := make(chan result[T], 1)
	go func() {
		v, err := fn()
		ch <- result[T]{v, err}
	}()
	return ch
}

func await[T any](t *testing.T, ch <-chan result[T]) (T, error) {
	t.Helper()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for pipe operation")
	}
	var zero T
	return zero, nil
}

func openReceiverAsync(path string, opts ...Option) <-chan result[*Receiver] {
	return async(func() (*Receiver, error) {
		return OpenReceiver(context.Background(), path, opts...)
	})
}

func receiveAsync(rx *Receiver) <-chan result[[]byte] {
	return async(func() ([]byte, error) {
		return rx.Receive(context.Background())
	})
}

// openPair connects a Sender and a Receiver on path.
func openPair(t *testing.T, path string, opts ...Option) (*Sender, *Receiver) {
	t.Helper()

	rxCh := openReceiverAsync(path, opts...)

	tx, err := OpenSender(context.Background(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { tx.Close() })

	rx, err := await(t, rxCh)
	require.NoError(t, err)
	t.Cleanup(func() { rx.Close() })

	return tx, rx
}

func testPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.fifo")
}

func TestHelloScenario(t *testing.T) {
	path := testPath(t)

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	rxCh := openReceiverAsync(path)

	tx, err := OpenSender(context.Background(), path)
	require.NoError(t, err)
	defer tx.Close()

	rx, err := await(t, rxCh)
	require.NoError(t, err)
	defer rx.Close()

	require.NoError(t, tx.Send(context.Background(), []byte("hello")))

	got, err := rx.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	assert.Equal(t, uint64(1), tx.Stats().Messages)
	assert.Equal(t, uint64(5), rx.Stats().Bytes)
}

func TestWireFormat(t *testing.T) {
	path := testPath(t)
	require.NoError(t, fifo.Provision(path))

	rawCh := async(func() (*os.File, error) {
		return os.OpenFile(path, os.O_RDONLY, 0)
	})

	tx, err := OpenSender(context.Background(), path)
	require.NoError(t, err)
	defer tx.Close()

	raw, err := await(t, rawCh)
	require.NoError(t, err)
	defer raw.Close()

	require.NoError(t, tx.Send(context.Background(), []byte("hello")))

	buf := make([]byte, frame.HeaderSize+5)
	_, err = io.ReadFull(raw, buf)
	require.NoError(t, err)

	want := make([]byte, frame.HeaderSize)
	want[0] = 5
	assert.Equal(t, want, buf[:frame.HeaderSize])
	assert.Equal(t, []byte("hello"), buf[frame.HeaderSize:])
}

func TestRoundTrip(t *testing.T) {
	tx, rx := openPair(t, testPath(t))

	payloads := [][]byte{
		{},
		[]byte("a"),
		[]byte("hello"),
		{0x00, 0xff, 0x00, 0x10},
		bytes.Repeat([]byte("x"), 4096),
		bytes.Repeat([]byte{0xab}, 256*1024), // larger than the default pipe buffer
	}

	sent := async(func() (struct{}, error) {
		for _, p := range payloads {
			if err := tx.Send(context.Background(), p); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})

	for i, want := range payloads {
		got, err := await(t, receiveAsync(rx))
		require.NoError(t, err, "payload %d", i)
		assert.Equal(t, len(want), len(got), "payload %d", i)
		assert.True(t, bytes.Equal(want, got), "payload %d differs", i)
	}

	_, err := await(t, sent)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payloads)), rx.Stats().Messages)
}

func TestLazyCreationReceiverFirst(t *testing.T) {
	path := testPath(t)

	rxCh := openReceiverAsync(path)

	require.Eventually(t, func() bool {
		ok, err := fifo.IsFIFO(path)
		return err == nil && ok
	}, testTimeout, 10*time.Millisecond)

	// unblock the receiver with a plain writer
	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer w.Close()

	rx, err := await(t, rxCh)
	require.NoError(t, err)
	defer rx.Close()
	assert.Equal(t, StateOpen, rx.State())
}

func TestPeerWait(t *testing.T) {
	path := testPath(t)

	txCh := async(func() (*Sender, error) {
		return OpenSender(context.Background(), path, WithBackoff(10*time.Millisecond))
	})

	// the sender creates the node but keeps waiting for a receiver
	require.Eventually(t, func() bool {
		ok, err := fifo.IsFIFO(path)
		return err == nil && ok
	}, testTimeout, 10*time.Millisecond)

	select {
	case r := <-txCh:
		t.Fatalf("sender open completed without a receiver: err=%v", r.err)
	case <-time.After(200 * time.Millisecond):
	}

	rxCh := openReceiverAsync(path)

	tx, err := await(t, txCh)
	require.NoError(t, err)
	defer tx.Close()

	rx, err := await(t, rxCh)
	require.NoError(t, err)
	defer rx.Close()

	require.NoError(t, tx.Send(context.Background(), []byte("late")))
	got, err := rx.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), got)
}

func TestReaderReconnect(t *testing.T) {
	path := testPath(t)
	tx, rx1 := openPair(t, path, WithBackoff(10*time.Millisecond))

	require.NoError(t, tx.Send(context.Background(), []byte("one")))
	got, err := rx1.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)

	require.NoError(t, rx1.Close())

	rx2Ch := async(func() ([]byte, error) {
		rx2, err := OpenReceiver(context.Background(), path)
		if err != nil {
			return nil, err
		}
		defer rx2.Close()
		return rx2.Receive(context.Background())
	})

	require.NoError(t, tx.Send(context.Background(), []byte("two")))

	got, err = await(t, rx2Ch)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)
	assert.Equal(t, StateOpen, tx.State())
}

func TestReaderReconnectBrokenPipe(t *testing.T) {
	path := testPath(t)
	tx, rx1 := openPair(t, path, WithBackoff(10*time.Millisecond))
	require.NoError(t, rx1.Close())

	// no reader at all: the write breaks and the sender waits for a new one
	sent := async(func() (struct{}, error) {
		return struct{}{}, tx.Send(context.Background(), []byte("after"))
	})

	require.Eventually(t, func() bool {
		return tx.State() == StateReopening
	}, testTimeout, 5*time.Millisecond)

	rx2, err := await(t, openReceiverAsync(path))
	require.NoError(t, err)
	defer rx2.Close()

	_, err = await(t, sent)
	require.NoError(t, err)

	got, err := rx2.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("after"), got)
	assert.Equal(t, uint64(1), tx.Stats().Reopens)
}

func TestWriterReconnect(t *testing.T) {
	path := testPath(t)
	tx1, rx := openPair(t, path)

	require.NoError(t, tx1.Send(context.Background(), []byte("first")))
	got, err := rx.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	pending := receiveAsync(rx)

	require.NoError(t, tx1.Close())

	// the receiver notices the writer left and waits for a new one
	require.Eventually(t, func() bool {
		return rx.State() == StateReopening
	}, testTimeout, 5*time.Millisecond)

	tx2, err := OpenSender(context.Background(), path)
	require.NoError(t, err)
	defer tx2.Close()

	require.NoError(t, tx2.Send(context.Background(), []byte("second")))

	got, err = await(t, pending)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
	assert.Equal(t, uint64(1), rx.Stats().Reopens)
	assert.Equal(t, StateOpen, rx.State())
}

func TestWriterDisconnectMidHeader(t *testing.T) {
	path := testPath(t)
	require.NoError(t, fifo.Provision(path))

	rxCh := openReceiverAsync(path)

	w1, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	rx, err := await(t, rxCh)
	require.NoError(t, err)
	defer rx.Close()

	pending := receiveAsync(rx)

	// half a header, then the writer vanishes
	_, err = w1.Write([]byte{7, 0})
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	require.Eventually(t, func() bool {
		return rx.State() == StateReopening
	}, testTimeout, 5*time.Millisecond)

	w2, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer w2.Close()
	require.NoError(t, frame.Write(w2, []byte("fresh")))

	got, err := await(t, pending)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), got)
}

func TestWriterDisconnectMidPayloadIsFatal(t *testing.T) {
	path := testPath(t)
	require.NoError(t, fifo.Provision(path))

	rxCh := openReceiverAsync(path)

	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	rx, err := await(t, rxCh)
	require.NoError(t, err)
	defer rx.Close()

	var hdr [frame.HeaderSize]byte
	frame.PutHeader(hdr[:], 10)
	_, err = w.Write(append(hdr[:], "abc"...))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = await(t, receiveAsync(rx))
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeSystem))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, StateError, rx.State())

	// terminal: the same error comes back without touching the pipe
	_, again := rx.Receive(context.Background())
	assert.Equal(t, err, again)
}

func TestOversizedHeaderUnbounded(t *testing.T) {
	if frame.HeaderSize < 8 {
		t.Skip("needs a 64-bit length header")
	}

	path := testPath(t)
	require.NoError(t, fifo.Provision(path))

	rxCh := openReceiverAsync(path)

	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	rx, err := await(t, rxCh)
	require.NoError(t, err)
	defer rx.Close()

	n := uint64(1) << 50
	var hdr [frame.HeaderSize]byte
	frame.PutHeader(hdr[:], int(n))
	_, err = w.Write(append(hdr[:], "abc"...))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var got result[[]byte]
	require.NotPanics(t, func() {
		got.val, got.err = await(t, receiveAsync(rx))
	})
	require.Error(t, got.err)
	assert.True(t, types.IsErrCode(got.err, types.ErrCodeSystem))
	assert.True(t, errors.Is(got.err, io.ErrUnexpectedEOF))
	assert.Equal(t, StateError, rx.State())
}

func TestReopenKeepsBufferedFrame(t *testing.T) {
	path := testPath(t)
	tx, rx := openPair(t, path)
	require.NoError(t, tx.Close())

	// a replacement writer delivers a frame and leaves before the new read
	// end is open; the old read end still holds the pipe buffer
	f, err := rx.reopen(context.Background(), func(ctx context.Context) (*os.File, error) {
		w, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			return nil, err
		}
		if err := frame.Write(w, []byte("in flight")); err != nil {
			w.Close()
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	})
	require.NoError(t, err)

	got, err := frame.Read(f, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("in flight"), got)
	assert.Equal(t, StateOpen, rx.State())
	assert.Equal(t, uint64(1), rx.Stats().Reopens)
}

func TestMaxMessageSize(t *testing.T) {
	tx, rx := openPair(t, testPath(t), WithMaxMessageSize(4))

	sent := async(func() (struct{}, error) {
		return struct{}{}, tx.Send(context.Background(), []byte("too long"))
	})

	_, err := await(t, receiveAsync(rx))
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeResourceExhausted))
	assert.Equal(t, StateError, rx.State())

	_, err = await(t, sent)
	require.NoError(t, err)
}

func TestOpenSenderCanceled(t *testing.T) {
	path := testPath(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := OpenSender(ctx, path)
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeCanceled))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// the node was still created while waiting
	ok, err := fifo.IsFIFO(path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenFatalErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("empty path", func(t *testing.T) {
		_, err := OpenSender(context.Background(), "")
		assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))

		_, err = OpenReceiver(context.Background(), "")
		assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))
	})

	t.Run("missing parent directory", func(t *testing.T) {
		path := filepath.Join(dir, "missing", "x.fifo")

		_, err := OpenSender(context.Background(), path)
		require.Error(t, err)
		assert.True(t, types.IsErrCode(err, types.ErrCodeSystem))
		assert.True(t, errors.Is(err, unix.ENOENT))

		_, err = OpenReceiver(context.Background(), path)
		require.Error(t, err)
		assert.True(t, types.IsErrCode(err, types.ErrCodeSystem))
	})

	t.Run("regular file", func(t *testing.T) {
		path := filepath.Join(dir, "regular")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		_, err := OpenSender(context.Background(), path)
		assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))

		_, err = OpenReceiver(context.Background(), path)
		assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))
	})
}

func TestCloseUnblocksReceive(t *testing.T) {
	_, rx := openPair(t, testPath(t))

	pending := receiveAsync(rx)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, rx.Close())

	_, err := await(t, pending)
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeUnavailable))
	assert.Equal(t, StateClosed, rx.State())
}

func TestUseAfterClose(t *testing.T) {
	tx, rx := openPair(t, testPath(t))

	require.NoError(t, tx.Close())
	require.NoError(t, tx.Close())
	require.NoError(t, rx.Close())

	err := tx.Send(context.Background(), []byte("x"))
	assert.True(t, types.IsErrCode(err, types.ErrCodeUnavailable))

	_, err = rx.Receive(context.Background())
	assert.True(t, types.IsErrCode(err, types.ErrCodeUnavailable))
}

func TestOptions(t *testing.T) {
	o := defaultOptions()
	WithBackoff(-1)(&o)
	WithMaxMessageSize(-5)(&o)
	assert.Equal(t, 50*time.Millisecond, o.backoff)
	assert.Equal(t, 0, o.maxMessageSize)

	WithBackoff(time.Second)(&o)
	WithMaxMessageSize(128)(&o)
	assert.Equal(t, time.Second, o.backoff)
	assert.Equal(t, 128, o.maxMessageSize)
}

func TestStatsString(t *testing.T) {
	tx, _ := openPair(t, testPath(t))

	assert.Equal(t, tx.Stats().Path, tx.Path())
	assert.Contains(t, tx.String(), "State: open")
	assert.Contains(t, tx.String(), "Messages: 0")
}
