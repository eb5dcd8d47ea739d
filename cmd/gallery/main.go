package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := execute(ctx, os.Stdout, os.Args[1:])
	stop()

	if err != nil {
		slog.Error("Gallery exited with error", "error", err)
		os.Exit(1)
	}
}
