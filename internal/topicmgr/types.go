package topicmgr

import (
	"time"
)

// Topic is a strongly-typed topic identifier.
type Topic interface {
	// Name returns the unique string identifier for this topic
	Name() string

	// Description returns human-readable documentation
	Description() string

	// Pattern returns the routing pattern
	Pattern() string

	// Example returns a sample payload
	Example() string

	// Metadata returns additional topic information
	Metadata() map[string]interface{}

	// Direction reports whether the hub publishes or consumes the topic
	Direction() Direction
}

// TypedTopic is the Topic implementation returned by the Define functions.
type TypedTopic struct {
	name        string
	description string
	pattern     string
	example     string
	metadata    map[string]interface{}
	direction   Direction
}

// Compile-time interface compliance check
var _ Topic = (*TypedTopic)(nil)

// TopicConfig holds configuration for creating a new topic
type TopicConfig struct {
	Name        string                 `json:"name"`        // Unique identifier
	Description string                 `json:"description"` // Human-readable description
	Pattern     string                 `json:"pattern"`     // Routing pattern
	Example     string                 `json:"example"`     // Usage example
	Metadata    map[string]interface{} `json:"metadata"`    // Additional data
}

// Direction tells whether messages on a topic flow out of or into the hub.
type Direction string

const (
	DirectionOutbound Direction = "outbound" // Lifecycle events the hub publishes
	DirectionInbound  Direction = "inbound"  // Events collaborators publish for the hub to relay
)

// RegistryEntry represents a topic entry in the registry with metadata
type RegistryEntry struct {
	Topic        Topic     `json:"topic"`
	RegisteredAt time.Time `json:"registered_at"`
}

// TopicError represents structured errors in the topic management system
type TopicError struct {
	Type    ErrorType `json:"type"`
	Topic   string    `json:"topic"`
	Message string    `json:"message"`
	Cause   error     `json:"cause,omitempty"`
}

// ErrorType defines the type of topic management error
type ErrorType string

const (
	ErrorTopicNotFound         ErrorType = "topic_not_found"
	ErrorDuplicateRegistration ErrorType = "duplicate_registration"
	ErrorValidationFailed      ErrorType = "validation_failed"
)

// Error implements the error interface
func (e *TopicError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *TopicError) Unwrap() error {
	return e.Cause
}

// Name returns the topic's unique identifier
func (t *TypedTopic) Name() string {
	return t.name
}

// Description returns human-readable documentation
func (t *TypedTopic) Description() string {
	return t.description
}

// Pattern returns the routing pattern
func (t *TypedTopic) Pattern() string {
	return t.pattern
}

// Example returns a usage example
func (t *TypedTopic) Example() string {
	return t.example
}

// Metadata returns a copy of the additional topic information
func (t *TypedTopic) Metadata() map[string]interface{} {
	result := make(map[string]interface{}, len(t.metadata))
	for k, v := range t.metadata {
		result[k] = v
	}
	return result
}

// Direction reports whether the hub publishes or consumes the topic
func (t *TypedTopic) Direction() Direction {
	return t.direction
}

// String returns the topic name for easy debugging
func (t *TypedTopic) String() string {
	return t.name
}
