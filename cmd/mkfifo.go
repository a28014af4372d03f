package cmd

import (
	"fmt"

	"github.com/billm/baaaht/pipechan/pkg/fifo"
	"github.com/spf13/cobra"
)

var mkfifoCmd = &cobra.Command{
	Use:   "mkfifo",
	Short: "Create the named pipe if it does not exist",
	Args:  cobra.NoArgs,
	RunE:  runMkfifo,
}

func runMkfifo(cmd *cobra.Command, args []string) error {
	if err := fifo.Ensure(cfg.Pipe.Path); err != nil {
		return err
	}
	rootLog.Info("Fifo ready", "path", cfg.Pipe.Path)
	fmt.Fprintln(cmd.OutOrStdout(), cfg.Pipe.Path)
	return nil
}
