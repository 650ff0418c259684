// Package websocket connects browser WebSocket sessions to hub rooms.
package websocket

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/huddle/internal/hub"
)

// Config tunes every connection accepted by the Bridge.
type Config struct {
	// SendBuffer is the number of outbound frames queued per connection
	// before further frames are dropped.
	SendBuffer int
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// ReadLimit is the largest inbound frame accepted, in bytes.
	ReadLimit int64
	// AllowedOrigins are host patterns accepted in the Origin header. When
	// empty, any origin is accepted.
	AllowedOrigins []string
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		ReadLimit:    64 << 10,
	}
}

// Bridge upgrades HTTP requests to WebSocket connections and joins them to
// the room named by the request path.
type Bridge struct {
	registry *hub.Registry
	router   *hub.Router
	cfg      Config
	logger   *slog.Logger
}

// NewBridge creates a Bridge that resolves paths with router and joins rooms
// through registry.
func NewBridge(registry *hub.Registry, router *hub.Router, cfg Config) *Bridge {
	defaults := DefaultConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaults.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaults.ReadLimit
	}

	return &Bridge{
		registry: registry,
		router:   router,
		cfg:      cfg,
		logger:   slog.Default().With("component", "websocket"),
	}
}

// Handler serves GET /parties/:party/:room. Unknown rooms are answered with
// 404 before the upgrade. The handler blocks for the life of the connection.
func (b *Bridge) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		key, err := b.router.Resolve(c.Param("party"), c.Param("room"))
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}

		opts := &websocket.AcceptOptions{
			OriginPatterns:     b.cfg.AllowedOrigins,
			InsecureSkipVerify: len(b.cfg.AllowedOrigins) == 0,
		}
		conn, err := websocket.Accept(c.Response(), c.Request(), opts)
		if err != nil {
			// Accept has already written the HTTP error response.
			b.logger.Warn("Failed to upgrade connection to WebSocket", "room", key.String(), "error", err)
			return nil
		}
		conn.SetReadLimit(b.cfg.ReadLimit)

		client := newClient(uuid.NewString(), conn, b.cfg, b.logger.With("room", key.String()))

		ctx := c.Request().Context()
		sess, err := b.registry.Join(ctx, key, client)
		if err != nil {
			b.logger.Warn("Failed to join room", "room", key.String(), "error", err)
			conn.Close(websocket.StatusTryAgainLater, "room unavailable")
			return nil
		}

		go client.writePump()
		client.readPump(ctx, sess)
		return nil
	}
}
