// Command sandboxx inspects and replays recorded sandbox state.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/sandboxx/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
