package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// rootContext returns a context canceled on SIGINT/SIGTERM, adapted from
// the teacher's RootContext: logs which side asked for shutdown before
// canceling.
func rootContext(logger *zap.SugaredLogger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer cancel()

		requester := "unknown"
		select {
		case <-sig:
			requester = "signal"
		case <-ctx.Done():
			requester = "caller"
		}
		logger.Warnw("shutdown requested", "requester", requester)
	}()

	return ctx, cancel
}
