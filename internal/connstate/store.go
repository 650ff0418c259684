// Package connstate stores the small record attached to each live connection.
//
// The record lives outside the room actor that owns the connection, so a room
// can be torn down and respawned between two messages and still recover who
// every connection belongs to. Reads never fail: a missing, unreadable or
// invalid record is reported as "no state".
package connstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/validation"
)

// State is the record attached to one connection.
type State struct {
	User       *domain.User `json:"user" validate:"omitempty"`
	AttachedAt time.Time    `json:"attached_at,omitzero"`
}

// Identified reports whether a user is attached.
func (s State) Identified() bool {
	return s.User != nil
}

// Backend persists raw attachment bytes keyed by connection id.
// Get returns domain.ErrStateNotFound when nothing is stored under the key.
type Backend interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Expirer is implemented by backends whose records expire on their own.
// Touch restarts the expiry of key and is a no-op when key is absent.
type Expirer interface {
	Touch(ctx context.Context, key string) error
}

// Store serializes, validates and persists connection state through a Backend.
type Store struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout bounds every backend call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithClock overrides the clock used to stamp attachments.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store on top of backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		timeout: 2 * time.Second,
		logger:  slog.Default().With("component", "connstate"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Attach records user as the identity of connID. Attaching again replaces
// the previous record and refreshes its timestamp.
func (s *Store) Attach(ctx context.Context, connID string, user domain.User) error {
	st := State{User: &user, AttachedAt: s.now().UTC()}
	if err := validation.Struct(&st); err != nil {
		return fmt.Errorf("invalid connection state: %w", err)
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode connection state: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.backend.Put(ctx, connID, data); err != nil {
		return fmt.Errorf("attach connection state %s: %w", connID, err)
	}
	return nil
}

// Read returns the state attached to connID, or the zero State when there is
// none or the stored record cannot be trusted.
func (s *Store) Read(ctx context.Context, connID string) State {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.backend.Get(ctx, connID)
	if err != nil {
		if !errors.Is(err, domain.ErrStateNotFound) {
			s.logger.Warn("Failed to read connection state", "conn_id", connID, "error", err)
		}
		return State{}
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Debug("Discarding undecodable connection state", "conn_id", connID, "error", err)
		return State{}
	}
	if err := validation.Struct(&st); err != nil {
		s.logger.Debug("Discarding invalid connection state", "conn_id", connID, "error", err)
		return State{}
	}
	return st
}

// Clear removes any state attached to connID. Clearing an absent record is
// not an error.
func (s *Store) Clear(ctx context.Context, connID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.backend.Delete(ctx, connID); err != nil && !errors.Is(err, domain.ErrStateNotFound) {
		return fmt.Errorf("clear connection state %s: %w", connID, err)
	}
	return nil
}

// Touch keeps the state attached to connID from expiring while the connection
// is live. Backends without expiry ignore it.
func (s *Store) Touch(ctx context.Context, connID string) error {
	e, ok := s.backend.(Expirer)
	if !ok {
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := e.Touch(ctx, connID); err != nil {
		return fmt.Errorf("touch connection state %s: %w", connID, err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
