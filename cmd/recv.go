package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/billm/baaaht/pipechan/pkg/pipe"
	"github.com/billm/baaaht/pipechan/pkg/types"
	"github.com/spf13/cobra"
)

var (
	recvCount  int
	recvPretty bool
)

var recvCmd = &cobra.Command{
	Use:   "recv",
	Short: "Receive messages from the named pipe",
	Long: `Recv opens the read end of the pipe and prints every message on its own
line. Senders may come and go; recv keeps waiting for the next one until
--count messages were received or it is interrupted.`,
	Args: cobra.NoArgs,
	RunE: runRecv,
}

func runRecv(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	path, opts := cfg.Pipe.Path, pipeOptions()

	rx, err := interruptible(ctx, path, func() (*pipe.Receiver, error) {
		return pipe.OpenReceiver(ctx, path, opts...)
	}, func(late *pipe.Receiver) {
		late.Close()
	})
	if err != nil {
		if types.IsErrCode(err, types.ErrCodeCanceled) {
			rootLog.Info("Receive interrupted before a writer connected")
			return nil
		}
		return err
	}
	defer rx.Close()

	for seq := 1; recvCount <= 0 || seq <= recvCount; seq++ {
		msg, err := interruptible(ctx, path, func() ([]byte, error) {
			return rx.Receive(ctx)
		}, nil)
		if err != nil {
			if types.IsErrCode(err, types.ErrCodeCanceled) {
				rootLog.Info("Receive interrupted", "received", seq-1)
				return nil
			}
			return err
		}
		if err := printMessage(out, seq, msg); err != nil {
			return err
		}
	}
	return nil
}

// interruptible runs fn on its own goroutine so an interrupt is honored
// even while the read end is blocked opening the pipe. A value fn produces
// after the interrupt is handed to release, if set.
func interruptible[T any](ctx context.Context, path string, fn func() (T, error), release func(T)) (T, error) {
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		if release != nil {
			go func() {
				if r := <-ch; r.err == nil {
					release(r.val)
				}
			}()
		}
		var zero T
		return zero, types.WrapError(types.ErrCodeCanceled, "interrupted while waiting on "+path, ctx.Err())
	}
}

func printMessage(w io.Writer, seq int, msg []byte) error {
	if !recvPretty {
		_, err := fmt.Fprintf(w, "%s\n", msg)
		return err
	}
	_, err := fmt.Fprintln(w, renderMessage(seq, msg))
	return err
}

func init() {
	recvCmd.Flags().IntVarP(&recvCount, "count", "n", 0,
		"Exit after this many messages (default: run until interrupted)")
	recvCmd.Flags().BoolVar(&recvPretty, "pretty", false,
		"Render each message with a styled header")
}
