// Command storekit validates, compiles and runs option documents.
// Build with: go build -o bin/storekit ./cmd/storekit
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/roach88/storekit/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
