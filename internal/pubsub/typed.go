package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/nfrund/huddle/internal/topicmgr"
)

// Event[T] wraps a topic name and provides type-safe publishing and
// subscribing for payloads of type T.
type Event[T any] struct {
	topic topicmgr.Topic
}

// NewEvent creates a typed outbound event and registers it with the default
// topic manager. Metadata lists the JSON field names of T.
func NewEvent[T any](name, description, example string) Event[T] {
	return newEvent[T](name, description, example, topicmgr.DefineOutbound)
}

// NewInboundEvent is NewEvent for topics the hub consumes.
func NewInboundEvent[T any](name, description, example string) Event[T] {
	return newEvent[T](name, description, example, topicmgr.DefineInbound)
}

func newEvent[T any](name, description, example string, define func(topicmgr.TopicConfig) topicmgr.Topic) Event[T] {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	fields := make([]string, 0)
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			tag := t.Field(i).Tag.Get("json")
			if tag == "" || tag == "-" {
				continue
			}
			fieldName, _, _ := strings.Cut(tag, ",")
			fields = append(fields, fieldName)
		}
	}

	topic := define(topicmgr.TopicConfig{
		Name:        name,
		Description: description,
		Pattern:     name,
		Example:     example,
		Metadata: map[string]interface{}{
			"payload_fields": fields,
			"type_name":      t.Name(),
			"is_typed":       true,
		},
	})

	// Events are package-level variables; a bad definition is a programming error.
	topicmgr.Default().MustRegister(topic)

	return Event[T]{topic: topic}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.topic.Name()
}

// Topic returns the registered topic definition.
func (e Event[T]) Topic() topicmgr.Topic {
	return e.topic
}

// Publish sends a typed event with optional metadata.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], payload T, metadata map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event.Name(), err)
	}

	return p.Publish(ctx, Message{
		Topic:    event.Name(),
		Payload:  data,
		Metadata: metadata,
	})
}

// Subscribe decodes each message on the event's topic into T before calling handler.
func Subscribe[T any](ctx context.Context, s Subscriber, event Event[T], handler func(ctx context.Context, payload T, msg Message) error) error {
	return s.Subscribe(ctx, event.Name(), func(ctx context.Context, msg Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", event.Name(), err)
		}
		return handler(ctx, payload, msg)
	})
}
