package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/okian/worthrank/internal/loadgen"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	loadgen.Execute(ctx)
}
