// Package handlers holds the plain HTTP endpoints of the realtime hub: the
// presence snapshot and the collaborator broadcast entry point.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/hub"
	"github.com/nfrund/huddle/internal/middleware"
	"github.com/nfrund/huddle/internal/protocol"
)

// RoomHandler serves the HTTP side of a room.
type RoomHandler struct {
	registry *hub.Registry
	router   *hub.Router
}

// NewRoomHandler creates a RoomHandler.
func NewRoomHandler(registry *hub.Registry, router *hub.Router) *RoomHandler {
	return &RoomHandler{
		registry: registry,
		router:   router,
	}
}

// resolve binds and validates the room path parameters.
func (h *RoomHandler) resolve(c echo.Context) (hub.Key, error) {
	var params RoomParams
	if err := (&echo.DefaultBinder{}).BindPathParams(c, &params); err != nil {
		return hub.Key{}, httpError(err)
	}
	if err := c.Validate(&params); err != nil {
		return hub.Key{}, httpError(domain.ErrRoomNotFound)
	}
	key, err := h.router.Resolve(params.Party, params.Room)
	if err != nil {
		return hub.Key{}, httpError(err)
	}
	return key, nil
}

// Presence handles GET /parties/:party/:room/presence and returns the users
// currently present in the room.
func (h *RoomHandler) Presence(c echo.Context) error {
	key, err := h.resolve(c)
	if err != nil {
		return err
	}

	users, err := h.registry.Presence(c.Request().Context(), key)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, PresenceResponse{
		Room:  key.String(),
		Users: users,
	})
}

// Broadcast handles POST /parties/:party/:room. The body must be a single
// channel or thread event; it is relayed to every connection of the room.
func (h *RoomHandler) Broadcast(c echo.Context) error {
	key, err := h.resolve(c)
	if err != nil {
		return err
	}
	logger := middleware.FromContext(c.Request().Context())

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxEventBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, ErrorResponse{
			Code:    "read_failed",
			Message: err.Error(),
		})
	}
	if len(body) > maxEventBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, ErrorResponse{
			Code:    "too_large",
			Message: "event body exceeds limit",
		})
	}

	frame, err := protocol.DecodeDomainEvent(body)
	if err != nil {
		logger.Debug("Rejected broadcast", "room", key.String(), "error", err)
		return httpError(err)
	}

	if err := h.registry.Publish(c.Request().Context(), key, frame); err != nil {
		logger.Warn("Failed to publish broadcast", "room", key.String(), "error", err)
		return httpError(err)
	}

	logger.Info("Broadcast accepted", "room", key.String(), "type", frame.FrameType())
	return c.JSON(http.StatusAccepted, BroadcastResponse{
		Room: key.String(),
		Type: string(frame.FrameType()),
	})
}

// httpError maps domain sentinels onto HTTP errors.
func httpError(err error) error {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrorResponse{
			Code:    "room_not_found",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrMalformedFrame):
		return echo.NewHTTPError(http.StatusBadRequest, ErrorResponse{
			Code:    "malformed_frame",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrRoomClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "shutting_down",
			Message: err.Error(),
		})
	default:
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusInternalServerError, ErrorResponse{
			Code:    "internal",
			Message: err.Error(),
		})
	}
}
