package handler

import (
	"context"
	"errors"

	"github.com/mbusd/mbus/internal/message"
)

// Builtin queue names with in-binary handlers, used to smoke-test a
// deployment end to end without wiring real business handlers.
const (
	// SmokeTestQueue accepts and discards every message.
	SmokeTestQueue = "smoke_test"
	// FailureTestQueue rejects every message, exercising the validation
	// and dead-letter paths.
	FailureTestQueue = "failure_test"
)

// Builtin returns a registry pre-loaded with the built-in test handlers.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(SmokeTestQueue, func() (Handler, error) { return &smokeTestHandler{}, nil })
	r.Register(FailureTestQueue, func() (Handler, error) { return &failureTestHandler{}, nil })
	return r
}

// smokeTestHandler accepts everything.
type smokeTestHandler struct{}

func (h *smokeTestHandler) Validate(context.Context, *message.Message) error { return nil }
func (h *smokeTestHandler) Handle(context.Context, *message.Message) error   { return nil }

// failureTestHandler fails both phases, for verifying that validation
// errors are reported and handling errors are dead-lettered.
type failureTestHandler struct{}

func (h *failureTestHandler) Validate(context.Context, *message.Message) error {
	return errors.New("validation failure requested by failure_test handler")
}

func (h *failureTestHandler) Handle(context.Context, *message.Message) error {
	return errors.New("handling failure requested by failure_test handler")
}
