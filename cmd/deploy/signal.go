package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// interruptible returns a context that is cancelled on the first SIGINT or
// SIGTERM. Handlers in flight are cancelled and reported as incomplete; a
// second signal kills the process.
func interruptible(ctx context.Context, w io.Writer) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sig)
		select {
		case s := <-sig:
			fmt.Fprintf(w, "\n%s: stopping deploy, waiting for running operations to cancel\n", s)
			fmt.Fprintln(w, "Interrupt again to exit immediately")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx
}
