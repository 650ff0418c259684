package server

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/huddle/internal/handlers"
	"github.com/nfrund/huddle/internal/hub"
	"github.com/nfrund/huddle/internal/metrics"
	"github.com/nfrund/huddle/internal/middleware"
	"github.com/nfrund/huddle/internal/validation"
	"github.com/nfrund/huddle/internal/websocket"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E *echo.Echo

	registry    *hub.Registry
	roomHandler *handlers.RoomHandler
	bridge      *websocket.Bridge
	metrics     *metrics.Metrics
}

// New creates a new Server instance. Routes are added by RegisterRoutes.
func New(registry *hub.Registry, router *hub.Router, bridge *websocket.Bridge, m *metrics.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.EchoValidator{}

	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Use(middleware.AccessLog())
	e.Use(echomw.Recover())

	return &Server{
		E:           e,
		registry:    registry,
		roomHandler: handlers.NewRoomHandler(registry, router),
		bridge:      bridge,
		metrics:     m,
	}
}

// Registry is a getter for the server's room registry, useful for testing.
func (s *Server) Registry() *hub.Registry {
	return s.registry
}
