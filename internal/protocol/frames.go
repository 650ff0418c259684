// Package protocol defines the JSON frames exchanged between clients and the
// realtime hub and decodes raw frames into a closed set of typed variants.
//
// Frames are discriminated by their "type" field and grouped into three
// mutually exclusive schemas, tried in order: presence control, channel
// events and thread events. A frame that matches none of them is malformed.
package protocol

import (
	"encoding/json"

	"github.com/nfrund/huddle/internal/domain"
)

// FrameType is the value of a frame's "type" discriminator.
type FrameType string

const (
	TypeAddUser    FrameType = "add-user"
	TypeRemoveUser FrameType = "remove-user"
	TypePresence   FrameType = "presence"

	TypeMessageCreated   FrameType = "message:created"
	TypeMessageUpdated   FrameType = "message:updated"
	TypeReactionUpdated  FrameType = "reaction:updated"
	TypeRepliesIncrement FrameType = "message:replies:increment"

	TypeThreadReplyCreated    FrameType = "thread:reply:created"
	TypeThreadReactionUpdated FrameType = "thread:reaction:updated"
)

// Kind identifies which schema a decoded frame matched.
type Kind int

const (
	KindPresence Kind = iota
	KindChannel
	KindThread
)

func (k Kind) String() string {
	switch k {
	case KindPresence:
		return "presence"
	case KindChannel:
		return "channel"
	case KindThread:
		return "thread"
	default:
		return "unknown"
	}
}

// Frame is implemented by every decoded frame variant.
type Frame interface {
	Kind() Kind
	FrameType() FrameType
}

// AddUser identifies the sending connection as the given user.
type AddUser struct {
	Type    FrameType   `json:"type"`
	Payload domain.User `json:"payload"`
}

func (AddUser) Kind() Kind             { return KindPresence }
func (f AddUser) FrameType() FrameType { return f.Type }

// RemoveUser clears the identity of the sending connection.
type RemoveUser struct {
	Type    FrameType      `json:"type"`
	Payload domain.UserRef `json:"payload"`
}

func (RemoveUser) Kind() Kind             { return KindPresence }
func (f RemoveUser) FrameType() FrameType { return f.Type }

// PresencePayload lists the users currently present in a room.
type PresencePayload struct {
	Users []domain.User `json:"users" validate:"required,dive"`
}

// Presence is the server-to-client presence snapshot.
type Presence struct {
	Type    FrameType       `json:"type"`
	Payload PresencePayload `json:"payload"`
}

func (Presence) Kind() Kind             { return KindPresence }
func (f Presence) FrameType() FrameType { return f.Type }

// NewPresence builds a presence snapshot frame. A nil slice is encoded as an
// empty list.
func NewPresence(users []domain.User) *Presence {
	if users == nil {
		users = []domain.User{}
	}
	return &Presence{
		Type:    TypePresence,
		Payload: PresencePayload{Users: users},
	}
}

// ChannelEvent is a channel-scoped domain event. Payload holds one of
// *MessagePayload, *ReactionPayload or *RepliesPayload depending on Type.
type ChannelEvent struct {
	Type    FrameType `json:"type"`
	Payload any       `json:"payload"`
}

func (ChannelEvent) Kind() Kind             { return KindChannel }
func (f ChannelEvent) FrameType() FrameType { return f.Type }

// ThreadEvent is a thread-scoped domain event. Payload holds either
// *MessagePayload or *ThreadReactionPayload depending on Type.
type ThreadEvent struct {
	Type    FrameType `json:"type"`
	Payload any       `json:"payload"`
}

func (ThreadEvent) Kind() Kind             { return KindThread }
func (f ThreadEvent) FrameType() FrameType { return f.Type }

// GroupedReaction is the per-emoji reaction summary attached to a message.
type GroupedReaction struct {
	Emoji       *string  `json:"emoji" validate:"required"`
	Count       *float64 `json:"count" validate:"required"`
	ReactedByMe *bool    `json:"reactedByMe" validate:"required"`
}

// RealtimeMessage is the minimal message shape carried by realtime events.
// Identifiers are pointers so that a present empty string is told apart from
// a missing field.
type RealtimeMessage struct {
	ID           *string           `json:"id" validate:"required"`
	Content      Nullable[string]  `json:"content,omitzero"`
	ImageURL     Nullable[string]  `json:"imageUrl,omitzero" validate:"omitempty,url"`
	CreatedAt    *Timestamp        `json:"createdAt" validate:"required"`
	UpdatedAt    *Timestamp        `json:"updatedAt" validate:"required"`
	AuthorID     *string           `json:"authorId" validate:"required"`
	AuthorEmail  Nullable[string]  `json:"authorEmail,omitzero"`
	AuthorName   Nullable[string]  `json:"authorName,omitzero"`
	AuthorAvatar Nullable[string]  `json:"authorAvatar,omitzero"`
	ChannelID    *string           `json:"channelId" validate:"required"`
	ThreadID     Nullable[string]  `json:"threadId,omitzero"`
	Reactions    []GroupedReaction `json:"reactions,omitzero" validate:"omitempty,dive"`
	ReplyCount   *float64          `json:"replyCount,omitempty"`
}

// MessagePayload wraps a single message (created, updated, thread reply).
type MessagePayload struct {
	Message *RealtimeMessage `json:"message" validate:"required"`
}

// ReactionPayload replaces the reaction summary of a channel message.
type ReactionPayload struct {
	MessageID *string           `json:"messageId" validate:"required"`
	Reactions []GroupedReaction `json:"reactions" validate:"required,dive"`
}

// RepliesPayload adjusts the reply counter of a channel message.
type RepliesPayload struct {
	MessageID *string  `json:"messageId" validate:"required"`
	Delta     *float64 `json:"delta" validate:"required"`
}

// ThreadReactionPayload replaces the reaction summary of a message in a thread.
type ThreadReactionPayload struct {
	MessageID *string           `json:"messageId" validate:"required"`
	Reactions []GroupedReaction `json:"reactions" validate:"required,dive"`
	ThreadID  *string           `json:"threadId" validate:"required"`
}

// Encode serializes a frame to its wire form.
func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}
