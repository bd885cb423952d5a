package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sxn-dev/sxn/internal/sxnerr"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	cancel()
	if err == nil {
		return
	}

	fmt.Fprintln(root.ErrOrStderr(), err)
	if kind, ok := sxnerr.KindOf(err); ok {
		os.Exit(kind.ExitCode())
	}
	os.Exit(1)
}
