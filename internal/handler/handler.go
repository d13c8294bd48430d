package handler

import (
	"context"
	"fmt"

	"github.com/mbusd/mbus/internal/message"
)

// Handler processes messages for one queue. One instance is constructed per
// queue per worker run and may keep state across its messages (tokens,
// cached clients).
type Handler interface {
	// Handle performs the work for one message. A non-nil error routes the
	// message to the dead-letter path.
	Handle(ctx context.Context, msg *message.Message) error
}

// Validator is the optional validation capability. Handlers that implement
// it have Validate called before Handle.
type Validator interface {
	Validate(ctx context.Context, msg *message.Message) error
}

// HasValidator reports whether the handler exposes the Validate capability.
func HasValidator(h Handler) bool {
	_, ok := h.(Validator)
	return ok
}

// ValidationError marks a failure raised by a handler's Validate phase.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// HandlingError marks a failure raised by a handler's Handle phase.
type HandlingError struct {
	Err error
}

func (e *HandlingError) Error() string { return e.Err.Error() }
func (e *HandlingError) Unwrap() error { return e.Err }

// Validate runs the handler's Validate capability if present, wrapping any
// failure as a ValidationError.
func Validate(ctx context.Context, h Handler, msg *message.Message) error {
	v, ok := h.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(ctx, msg); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// Handle runs the handler, wrapping any failure as a HandlingError.
func Handle(ctx context.Context, h Handler, msg *message.Message) error {
	if err := h.Handle(ctx, msg); err != nil {
		return &HandlingError{Err: err}
	}
	return nil
}

// Func adapts a plain function into a Handler.
type Func func(ctx context.Context, msg *message.Message) error

// Handle implements Handler.
func (f Func) Handle(ctx context.Context, msg *message.Message) error { return f(ctx, msg) }

// UnknownQueueError reports a requested queue missing from the store.
type UnknownQueueError struct {
	Queue string
}

func (e *UnknownQueueError) Error() string {
	return fmt.Sprintf("queue %q does not exist", e.Queue)
}

// UnregisteredQueueError reports a queue with no registered handler factory.
type UnregisteredQueueError struct {
	Queue string
}

func (e *UnregisteredQueueError) Error() string {
	return fmt.Sprintf("no handler registered for queue %q", e.Queue)
}

// MissingValidatorError reports a handler lacking the Validate capability
// when one is required.
type MissingValidatorError struct {
	Queue string
}

func (e *MissingValidatorError) Error() string {
	return fmt.Sprintf("no validator for queue %q", e.Queue)
}
