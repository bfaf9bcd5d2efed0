package types

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across stores. Callers branch on these with
// errors.Is; stores wrap them with operation and store context.
var (
	// ErrUnsupported marks an operation a store structurally cannot
	// perform. It is always surfaced, never silently ignored, so callers
	// cannot assume persistence happened.
	ErrUnsupported = errors.New("operation not supported")

	// ErrReadOnly marks a write attempted on a read-only store.
	ErrReadOnly = errors.New("store is read-only")

	// ErrNotConnected marks an operation invoked before Connect.
	ErrNotConnected = errors.New("store is not connected")

	// ErrVersionUnsupported marks a capability gated on a backend version
	// the connected server does not meet.
	ErrVersionUnsupported = errors.New("backend version too old for operation")

	// ErrConfig marks an invalid store configuration, surfaced at
	// construction or connect time rather than deferred.
	ErrConfig = errors.New("invalid store configuration")
)

// Unsupportedf wraps ErrUnsupported with context about which store and
// operation were involved.
func Unsupportedf(store, op string) error {
	return fmt.Errorf("%s: no %s method: %w", store, op, ErrUnsupported)
}
