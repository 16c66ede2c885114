package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks a malformed or out-of-range reading. Nothing is
	// persisted when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers unknown records and records owned by another user.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when a caller asks for a channel it does
	// not own.
	ErrUnauthorized = errors.New("not authorized")

	// ErrTransientDelivery marks a failed event publish. It is logged and
	// counted, never returned to the caller of the triggering operation.
	ErrTransientDelivery = errors.New("event delivery failed")
)

// ValidationError lists every problem found on a rejected reading.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DeliveryError wraps a transport failure for one event on one channel.
type DeliveryError struct {
	Channel string
	Event   string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.Event, e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrTransientDelivery }
