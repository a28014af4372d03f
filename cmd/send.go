package cmd

import (
	"bufio"

	"github.com/billm/baaaht/pipechan/pkg/pipe"
	"github.com/billm/baaaht/pipechan/pkg/types"
	"github.com/spf13/cobra"
)

// maxLineSize bounds a single stdin line read by send
const maxLineSize = 16 << 20

var sendCmd = &cobra.Command{
	Use:   "send [message...]",
	Short: "Send messages through the named pipe",
	Long: `Send opens the write end of the pipe, waiting for a receiver if none is
present yet, and sends every argument as one message. Without arguments each
line read from stdin is sent as one message.`,
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tx, err := pipe.OpenSender(ctx, cfg.Pipe.Path, pipeOptions()...)
	if err != nil {
		return err
	}
	defer tx.Close()

	if len(args) > 0 {
		for _, arg := range args {
			if err := tx.Send(ctx, []byte(arg)); err != nil {
				return err
			}
		}
	} else {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			if err := tx.Send(ctx, scanner.Bytes()); err != nil {
				return err
			}
		}
		if err := scanner.Err(); err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "failed to read stdin", err)
		}
	}

	stats := tx.Stats()
	rootLog.Info("Messages sent", "count", stats.Messages, "bytes", stats.Bytes, "reopens", stats.Reopens)
	return nil
}
