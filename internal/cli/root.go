// Package cli wires the drawbridge commands: serve runs the relay,
// token mints connection tokens for it.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the root command for the drawbridge CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "drawbridge",
		Short: "Drawbridge - collaborative drawing relay",
		Long:  "A websocket relay for shared drawing boards: rooms, broadcast fan-out, and asynchronous shape persistence.",
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}
