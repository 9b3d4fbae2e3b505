package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{out: os.Stdout, errOut: os.Stderr}
	if err := c.execute(ctx, c.rootCmd(), os.Args[1:]); err != nil {
		stop()
		os.Exit(1)
	}
}
