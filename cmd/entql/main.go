// Command entql validates CUE entity schemas, prints their SQLite DDL and
// runs expression-tree queries against a database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/entql/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		// Commands print their own structured errors; bare errors (bad
		// flags, missing config) still need a line on stderr.
		if !cli.Reported(err) {
			fmt.Fprintln(os.Stderr, "entql:", err)
		}
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
