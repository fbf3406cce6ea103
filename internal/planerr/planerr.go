// Package planerr defines the two error kinds a planning call can fail with.
//
// InvalidConfig means the blueprint (forced or inferred) contradicts itself or a
// hardware-independent invariant and must never be retried. Unavailable means the
// blueprint is consistent but the current device cannot run it; it is the only kind
// an orchestrating caller may use to fall back to another algorithm family.
package planerr

import (
	"errors"
	"fmt"
)

// Kind categorizes a SetupError.
type Kind int

const (
	KindInvalidConfig Kind = iota + 1
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidConfig:
		return "invalid_config"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// SetupError is returned by every planning and validation step.
type SetupError struct {
	Kind   Kind
	Op     string // step that failed, e.g. "tiling.build"
	Reason string
	Err    error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s in %s: %s: %v", e.Kind, e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s in %s: %s", e.Kind, e.Op, e.Reason)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// InvalidConfig builds a KindInvalidConfig error.
func InvalidConfig(op, format string, args ...any) error {
	return &SetupError{Kind: KindInvalidConfig, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Unavailable builds a KindUnavailable error.
func Unavailable(op, format string, args ...any) error {
	return &SetupError{Kind: KindUnavailable, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Wrap re-tags err under op, keeping its kind when it already is a SetupError.
// Foreign errors are treated as invalid configuration.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindInvalidConfig
	var se *SetupError
	if errors.As(err, &se) {
		kind = se.Kind
	}
	return &SetupError{Kind: kind, Op: op, Reason: "setup failed", Err: err}
}

// KindOf returns the kind of err, or 0 if err is not a SetupError.
func KindOf(err error) Kind {
	var se *SetupError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// IsUnavailable reports whether err is a KindUnavailable SetupError.
func IsUnavailable(err error) bool {
	return KindOf(err) == KindUnavailable
}

// IsInvalidConfig reports whether err is a KindInvalidConfig SetupError.
func IsInvalidConfig(err error) bool {
	return KindOf(err) == KindInvalidConfig
}
