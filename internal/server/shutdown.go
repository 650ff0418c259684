package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Shutdown closes every WebSocket connection with "going away", stops the
// room actors and then stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down server")

	var errs []error
	if err := s.registry.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing rooms: %w", err))
	}
	if err := s.E.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping http server: %w", err))
	}
	return errors.Join(errs...)
}
