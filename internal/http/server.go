// README: HTTP server lifecycle; serve until the context ends, then drain
// in-flight requests before returning.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const shutdownGrace = 10 * time.Second

// Run blocks until the listener fails or ctx is cancelled. On cancellation the
// server drains for up to shutdownGrace before giving up. A clean shutdown
// returns nil.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
