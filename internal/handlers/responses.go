package handlers

import (
	"github.com/nfrund/huddle/internal/domain"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PresenceResponse is the body of the presence snapshot endpoint.
type PresenceResponse struct {
	Room  string        `json:"room"`
	Users []domain.User `json:"users"`
}

// BroadcastResponse acknowledges an accepted domain event.
type BroadcastResponse struct {
	Room string `json:"room"`
	Type string `json:"type"`
}
