package protocol

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/nfrund/huddle/internal/validation"
)

// Nullable is an optional field that may also be explicitly null. It keeps the
// three wire states apart so that re-encoding reproduces what was received:
// an absent field stays absent and an explicit null stays null.
type Nullable[T any] struct {
	Value *T
	Set   bool
}

// Null returns a present-but-null value.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// Some returns a present value.
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Value: &v, Set: true}
}

// IsZero reports whether the field was absent, which omitzero relies on.
func (n Nullable[T]) IsZero() bool {
	return !n.Set
}

// IsNull reports whether the field was present with a null value.
func (n Nullable[T]) IsNull() bool {
	return n.Set && n.Value == nil
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Value)
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// Validation tags on a Nullable[string] apply to the string it holds. Absent
// and null values validate as nil, which omitempty skips.
func init() {
	validation.Default().RegisterCustomTypeFunc(func(v reflect.Value) any {
		n, ok := v.Interface().(Nullable[string])
		if !ok || n.Value == nil {
			return nil
		}
		return *n.Value
	}, Nullable[string]{})
}
