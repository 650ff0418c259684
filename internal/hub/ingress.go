package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/pubsub"
)

// SubscribeBroadcasts relays domain events that collaborators publish on
// EventBroadcastRequested. The target room is taken from the message's
// "room" metadata and resolved with router. Events that are not valid
// domain events, or that name an unknown room, are rejected.
func (r *Registry) SubscribeBroadcasts(ctx context.Context, sub pubsub.Subscriber, router *Router) error {
	return pubsub.Subscribe(ctx, sub, EventBroadcastRequested, func(ctx context.Context, payload json.RawMessage, msg pubsub.Message) error {
		key, err := router.ResolveString(msg.Metadata[pubsub.MetaKeyRoom])
		if err != nil {
			return err
		}

		frame, err := protocol.DecodeDomainEvent(payload)
		if err != nil {
			return fmt.Errorf("broadcast into %s: %w", key, err)
		}

		return r.Publish(ctx, key, frame)
	})
}
