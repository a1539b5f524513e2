// Package main provides the ledger command-line interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/listenupapp/ledger-server/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cc := newCommandContext()
	err := newRootCommand(cc).ExecuteContext(ctx)
	cc.shutdown()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(errors.CodeOf(err).ExitCode())
	}
}

