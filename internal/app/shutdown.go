// Package app provides application shutdown handling.
package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ShutdownTimeout is the maximum time to wait for in-flight requests to complete.
const ShutdownTimeout = 30 * time.Second

// Drainer stops admitting new requests and waits for in-flight ones to
// finish. Satisfied by resilience.ShutdownCoordinator; may be nil when no
// drain step is wanted.
type Drainer interface {
	InitiateShutdown()
	WaitForDrain(ctx context.Context) error
}

// GracefulShutdown handles OS signals and shuts down the server gracefully.
// It blocks until SIGINT or SIGTERM is received, then stops admitting new
// requests via drainer (when non-nil), waits for in-flight requests to
// finish, and finally closes the listener. The done channel receives nil on
// successful shutdown, or an error if the drain timed out or shutdown failed.
func GracefulShutdown(server *http.Server, drainer Drainer, done chan<- error) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit) // Clean up signal handler to prevent goroutine leak

	<-quit // Block until signal received

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var drainErr error
	if drainer != nil {
		drainer.InitiateShutdown()
		drainErr = drainer.WaitForDrain(ctx)
	}

	if err := server.Shutdown(ctx); err != nil {
		done <- err
		return
	}
	done <- drainErr
}
