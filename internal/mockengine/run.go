package mockengine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Serve listens on cfg.Addr and serves engine until ctx is cancelled, then
// shuts down gracefully within cfg.ShutdownTimeout.
func Serve(ctx context.Context, cfg Config, engine Engine, logger zerolog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}
	return serveListener(ctx, ln, cfg.ShutdownTimeout, engine, logger)
}

func serveListener(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration, engine Engine, logger zerolog.Logger) error {
	srv := &http.Server{
		Handler:           NewServer(engine, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("addr", ln.Addr().String()).
		Int("prefill_tokens_per_sec", engine.PrefillTokensPerSec).
		Int("decode_tokens_per_sec", engine.DecodeTokensPerSec).
		Str("model", engine.Model).
		Msg("mock engine listening")

	errc := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err == nil {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info().Msg("mock engine stopped")
	return nil
}
