// Command wireloop runs the packet-driven event execution core: a
// virtual-clock, watchdog-guarded run loop over packet and timer
// sources.
package main

import (
	"context"
	"fmt"
	"os"

	"wireloop/internal/cli"
)

func main() {
	ctx := context.Background()
	root := cli.NewRootCommand()
	root.SilenceUsage = true
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
