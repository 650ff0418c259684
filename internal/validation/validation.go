// Package validation holds the shared struct validator used for wire frames,
// stored connection state and configuration.
package validation

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Default returns the process-wide validator. validator.Validate caches struct
// metadata and is safe for concurrent use, so a single instance is shared.
func Default() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
	})
	return instance
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	return Default().Struct(s)
}

// EchoValidator adapts the shared validator to echo's Validator interface.
type EchoValidator struct{}

// Validate implements echo.Validator.
func (EchoValidator) Validate(i any) error {
	return Struct(i)
}
