package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	parties := s.E.Group("/parties/:party")
	parties.GET("/:room", s.bridge.Handler())
	parties.POST("/:room", s.roomHandler.Broadcast)
	parties.GET("/:room/presence", s.roomHandler.Presence)

	if s.metrics != nil {
		s.E.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
}
