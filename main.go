package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logx "github.com/langfuse-nodes/server/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logx.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}
