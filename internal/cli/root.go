// Package cli implements the cobra command tree the wireloop binary
// exposes: "run" drives the packet-dispatch run loop, "version" prints
// build metadata.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every subcommand.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand builds the wireloop command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "wireloop",
		Short: "wireloop - packet-driven event execution core",
		Long:  "A virtual-clock, watchdog-guarded run loop over packet and timer sources.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewVersionCommand())
	cmd.AddCommand(NewInterfacesCommand())

	return cmd
}
