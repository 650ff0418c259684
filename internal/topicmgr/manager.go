package topicmgr

import (
	"fmt"
	"sync"
)

// Manager validates and registers topics.
type Manager struct {
	registry  *Registry
	validator *Validator
}

// NewManager creates a new topic manager with registry and validator
func NewManager() *Manager {
	return &Manager{
		registry:  NewRegistry(),
		validator: NewValidator(),
	}
}

func define(config TopicConfig, direction Direction) Topic {
	return &TypedTopic{
		name:        config.Name,
		description: config.Description,
		pattern:     config.Pattern,
		example:     config.Example,
		metadata:    config.Metadata,
		direction:   direction,
	}
}

// DefineOutbound creates a topic the hub publishes to.
func DefineOutbound(config TopicConfig) Topic {
	return define(config, DirectionOutbound)
}

// DefineInbound creates a topic the hub consumes from.
func DefineInbound(config TopicConfig) Topic {
	return define(config, DirectionInbound)
}

// Register validates a topic and adds it to the registry. Registering the
// same topic value twice is a no-op; a different topic with a taken name is
// an ErrorDuplicateRegistration.
func (m *Manager) Register(topic Topic) error {
	if err := m.validator.ValidateDefinition(topic); err != nil {
		name := ""
		if topic != nil {
			name = topic.Name()
		}
		return &TopicError{
			Type:    ErrorValidationFailed,
			Topic:   name,
			Message: "topic validation failed",
			Cause:   err,
		}
	}

	return m.registry.Register(topic)
}

// RegisterAll registers each topic, stopping at the first error.
func (m *Manager) RegisterAll(topics ...Topic) error {
	for _, topic := range topics {
		if err := m.Register(topic); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister registers a topic and panics on error (for static initialization)
func (m *Manager) MustRegister(topic Topic) {
	if err := m.Register(topic); err != nil {
		panic(fmt.Sprintf("failed to register topic %s: %v", topic.Name(), err))
	}
}

// Get retrieves a topic by name
func (m *Manager) Get(name string) (Topic, bool) {
	return m.registry.Get(name)
}

// List returns all registered topics sorted by name
func (m *Manager) List() []Topic {
	return m.registry.List()
}

// ListByDirection returns the registered topics flowing in one direction
func (m *Manager) ListByDirection(direction Direction) []Topic {
	var topics []Topic
	for _, topic := range m.registry.List() {
		if topic.Direction() == direction {
			topics = append(topics, topic)
		}
	}
	return topics
}

// Count returns the total number of registered topics
func (m *Manager) Count() int {
	return m.registry.Count()
}

// Reset removes all registered topics (primarily for testing)
func (m *Manager) Reset() {
	m.registry.Reset()
}

var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// Default returns the default global manager
func Default() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManager = NewManager()
	})
	return defaultManager
}
