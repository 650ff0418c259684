package topicmgr

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator checks topic definitions against the naming convention.
type Validator struct {
	namePattern *regexp.Regexp
	prefixes    []string
}

// NewValidator creates a new topic validator
func NewValidator() *Validator {
	// Topic names are hierarchical: area.subject.action
	// Examples: realtime.connection.opened, presence.room.changed
	return &Validator{
		namePattern: regexp.MustCompile(`^[a-z][a-z0-9]*(\.[a-z][a-z0-9]*)*$`),
		prefixes: []string{
			"realtime.", // Connection lifecycle and relay topics
			"presence.", // Presence topics
		},
	}
}

// ValidateDefinition validates a topic definition
func (v *Validator) ValidateDefinition(topic Topic) error {
	if topic == nil {
		return fmt.Errorf("topic cannot be nil")
	}

	if err := v.ValidateName(topic.Name()); err != nil {
		return fmt.Errorf("invalid topic name: %w", err)
	}

	if strings.TrimSpace(topic.Description()) == "" {
		return fmt.Errorf("topic description cannot be empty")
	}

	if strings.TrimSpace(topic.Pattern()) == "" {
		return fmt.Errorf("topic pattern cannot be empty")
	}

	switch topic.Direction() {
	case DirectionInbound, DirectionOutbound:
	default:
		return fmt.Errorf("invalid topic direction: %q", topic.Direction())
	}

	return nil
}

// ValidateName checks if a topic name follows the naming convention
func (v *Validator) ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if len(name) > 100 {
		return fmt.Errorf("name too long (max 100 characters)")
	}

	if !v.namePattern.MatchString(name) {
		return fmt.Errorf("name must follow pattern: area.subject.action (lowercase, alphanumeric, dots only)")
	}

	for _, prefix := range v.prefixes {
		if strings.HasPrefix(name, prefix) {
			return nil
		}
	}
	return fmt.Errorf("name must start with one of %v", v.prefixes)
}
