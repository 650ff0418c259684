package protocol

import (
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/validation"
)

// wire decodes inbound frames. Field names must match exactly: encoding/json
// would also accept "TYPE" or "Id" for "type" and "id".
var wire = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	CaseSensitive:          true,
}.Froze()

// envelope is the discriminated outer shape shared by every frame.
type envelope struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type decodeFunc func(t FrameType, payload json.RawMessage) (Frame, error)

// schema is one group of mutually exclusive frame shapes.
type schema struct {
	kind  Kind
	cases map[FrameType]decodeFunc
}

// schemas are tried in order; the first structural match wins.
var schemas = []schema{
	{
		kind: KindPresence,
		cases: map[FrameType]decodeFunc{
			TypeAddUser: func(t FrameType, raw json.RawMessage) (Frame, error) {
				p, err := decodePayload[domain.User](raw)
				if err != nil {
					return nil, err
				}
				return &AddUser{Type: t, Payload: *p}, nil
			},
			TypeRemoveUser: func(t FrameType, raw json.RawMessage) (Frame, error) {
				p, err := decodePayload[domain.UserRef](raw)
				if err != nil {
					return nil, err
				}
				return &RemoveUser{Type: t, Payload: *p}, nil
			},
			TypePresence: func(t FrameType, raw json.RawMessage) (Frame, error) {
				p, err := decodePayload[PresencePayload](raw)
				if err != nil {
					return nil, err
				}
				return &Presence{Type: t, Payload: *p}, nil
			},
		},
	},
	{
		kind: KindChannel,
		cases: map[FrameType]decodeFunc{
			TypeMessageCreated:   channelCase[MessagePayload],
			TypeMessageUpdated:   channelCase[MessagePayload],
			TypeReactionUpdated:  channelCase[ReactionPayload],
			TypeRepliesIncrement: channelCase[RepliesPayload],
		},
	},
	{
		kind: KindThread,
		cases: map[FrameType]decodeFunc{
			TypeThreadReplyCreated:    threadCase[MessagePayload],
			TypeThreadReactionUpdated: threadCase[ThreadReactionPayload],
		},
	},
}

func channelCase[P any](t FrameType, raw json.RawMessage) (Frame, error) {
	p, err := decodePayload[P](raw)
	if err != nil {
		return nil, err
	}
	return &ChannelEvent{Type: t, Payload: p}, nil
}

func threadCase[P any](t FrameType, raw json.RawMessage) (Frame, error) {
	p, err := decodePayload[P](raw)
	if err != nil {
		return nil, err
	}
	return &ThreadEvent{Type: t, Payload: p}, nil
}

// decodePayload unmarshals and validates a payload. A missing payload is an
// error rather than a zero value.
func decodePayload[P any](raw json.RawMessage) (*P, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing payload")
	}
	var p P
	if err := wire.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if err := validation.Struct(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Decode parses a raw frame into one of the known variants. Any failure wraps
// domain.ErrMalformedFrame.
func Decode(data []byte) (Frame, error) {
	var env envelope
	if err := wire.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)
	}

	var lastErr error
	for _, s := range schemas {
		decode, ok := s.cases[env.Type]
		if !ok {
			continue
		}
		frame, err := decode(env.Type, env.Payload)
		if err == nil {
			return frame, nil
		}
		lastErr = fmt.Errorf("%s %q: %v", s.kind, env.Type, err)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedFrame, lastErr)
	}
	return nil, fmt.Errorf("%w: unknown frame type %q", domain.ErrMalformedFrame, env.Type)
}

// DecodeDomainEvent decodes a frame and accepts it only if it is a channel or
// thread event. It is the validation step for events injected by collaborators.
func DecodeDomainEvent(data []byte) (Frame, error) {
	frame, err := Decode(data)
	if err != nil {
		return nil, err
	}
	switch frame.Kind() {
	case KindChannel, KindThread:
		return frame, nil
	default:
		return nil, fmt.Errorf("%w: %q is not a domain event", domain.ErrMalformedFrame, frame.FrameType())
	}
}
