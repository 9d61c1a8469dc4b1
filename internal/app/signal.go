package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownTimeout bounds the graceful shutdown after the first signal.
const ShutdownTimeout = 30 * time.Second

// SignalContext returns a context cancelled on SIGINT or SIGTERM. A second
// signal, or ShutdownTimeout without done being called, exits the process.
func SignalContext(parent context.Context, log *zap.Logger) (ctx context.Context, done func()) {
	ctx, cancel := context.WithCancel(parent)
	finished := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			log.Info("received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-finished:
			return
		}

		select {
		case sig := <-sigCh:
			log.Warn("received second signal, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(ShutdownTimeout):
			log.Error("graceful shutdown timed out, forcing exit", zap.Duration("timeout", ShutdownTimeout))
			os.Exit(1)
		case <-finished:
		}
	}()

	var closed bool
	return ctx, func() {
		if closed {
			return
		}
		closed = true
		signal.Stop(sigCh)
		close(finished)
		cancel()
	}
}
