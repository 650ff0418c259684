package hub

import (
	"encoding/json"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/pubsub"
)

// ConnectionEvent describes a connection joining or leaving a room.
type ConnectionEvent struct {
	Room   string      `json:"room"`
	ConnID string      `json:"conn_id"`
	Reason LeaveReason `json:"reason,omitempty"`
}

// PresenceChangedEvent carries a room's recomputed presence set.
type PresenceChangedEvent struct {
	Room  string        `json:"room"`
	Users []domain.User `json:"users"`
}

var (
	// EventConnectionOpened is published after a connection has joined its room.
	EventConnectionOpened = pubsub.NewEvent[ConnectionEvent](
		"realtime.connection.opened",
		"Published when a client connection joins a room",
		`{"room":"chat/channel-42","conn_id":"0b6f2d3e-5a44-4f5e-9a57-0d8e6f0d2a11"}`,
	)

	// EventConnectionClosed is published after a connection has left its room.
	EventConnectionClosed = pubsub.NewEvent[ConnectionEvent](
		"realtime.connection.closed",
		"Published when a client connection leaves a room",
		`{"room":"chat/channel-42","conn_id":"0b6f2d3e-5a44-4f5e-9a57-0d8e6f0d2a11","reason":"error"}`,
	)

	// EventPresenceChanged is published each time a room broadcasts a new presence set.
	EventPresenceChanged = pubsub.NewEvent[PresenceChangedEvent](
		"realtime.presence.changed",
		"Published when a room's presence set is recomputed and broadcast",
		`{"room":"chat/channel-42","users":[{"id":"u1","full_name":"Alice","email":null,"picture":null}]}`,
	)

	// EventBroadcastRequested carries a domain event that a collaborator wants
	// relayed into the room named by the "room" metadata key.
	EventBroadcastRequested = pubsub.NewInboundEvent[json.RawMessage](
		"realtime.room.broadcast",
		"Consumed by the hub: relay a domain event to every connection of a room",
		`{"type":"message:replies:increment","payload":{"messageId":"m1","delta":1}}`,
	)
)
