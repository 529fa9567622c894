package util

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/small-frappuccino/bruhbot/pkg/log"
)

// WaitForInterrupt blocks until SIGINT/SIGTERM arrives or ctx is cancelled.
func WaitForInterrupt(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.ApplicationLogger().Info("Received interrupt; shutting down")
}
