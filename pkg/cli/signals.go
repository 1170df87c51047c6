package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownSignals are the signals that stop a running command.
var ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// SignalContext returns a context cancelled on the first SIGINT or
// SIGTERM. A second signal is left to the default handler and kills the
// process. Call stop to release the handler.
func SignalContext(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	ctx, stop = signal.NotifyContext(parent, ShutdownSignals...)
	go func() {
		<-ctx.Done()
		// Restore default handling so a second signal forces exit.
		stop()
	}()
	return ctx, stop
}
