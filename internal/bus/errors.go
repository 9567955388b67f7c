package bus

import "errors"

// ErrValidation marks a value rejected at publish time for violating a
// stream's invariants (e.g. a state change whose From equals To). Go's
// type system enforces the bus's per-stream type contract structurally:
// each PublishX method only accepts its stream's value type, so no
// wrong-typed value can reach a queue in the first place.
var ErrValidation = errors.New("validation error")

// IsValidation reports whether err is (or wraps) ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
