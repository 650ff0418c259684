package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
)

// Start runs the HTTP server until ctx is canceled or the listener fails.
// It does not shut the server down; call Shutdown afterwards.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := s.E.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
