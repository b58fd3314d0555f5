// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package comexeapp

import (
	"errors"
	"fmt"
)

// ErrInvalidOffset is the tier-2 recoverable error for operations against a
// registry offset that does not currently resolve to a present instance.
// Post/Join surface this as a boolean false rather than returning it; the
// wrapped error only appears in the Warn log record they emit.
var ErrInvalidOffset = errors.New("comexeapp: invalid instance offset")

// ErrUnknownEventVariant mirrors event.ErrUnknownVariant at this package's
// boundary, for callers that only import comexeapp.
var ErrUnknownEventVariant = errors.New("comexeapp: unknown event variant decoded")

// ErrMissingHandler is the tier-3 non-recoverable error raised when a
// decoded event names a handler that does not resolve on the host.
var ErrMissingHandler = errors.New("comexeapp: event handler global not found")

// FatalError carries a process exit code alongside a message, letting
// library code report a tier-3/4 failure without calling os.Exit itself.
// Application.terminateFatal consumes it directly from whichever
// instance's goroutine detected the failure, and calls the configured
// exit function with its Code.
type FatalError struct {
	Code    int
	Message string
	Cause   error
}

func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *FatalError) Unwrap() error { return e.Cause }

func fatalf(code int, cause error, format string, args ...any) *FatalError {
	return &FatalError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// asInvalidOffset wraps ErrInvalidOffset around offset so callers that
// receive it (today, only the structured logger) can errors.Is their way
// back to the sentinel without string matching.
func asInvalidOffset(offset uint64) error {
	return fmt.Errorf("%w: offset=%d", ErrInvalidOffset, offset)
}

// asUnknownEventVariant wraps ErrUnknownEventVariant around the decoder's
// own error, so a *FatalError built from it satisfies
// errors.Is(err, ErrUnknownEventVariant).
func asUnknownEventVariant(decodeErr error) error {
	return fmt.Errorf("%w: %v", ErrUnknownEventVariant, decodeErr)
}

// asMissingHandler wraps ErrMissingHandler around the handler name that
// failed to resolve on the host.
func asMissingHandler(handlerName string) error {
	return fmt.Errorf("%w: %s", ErrMissingHandler, handlerName)
}

// Exit codes, per the external interface contract.
const (
	ExitSuccess                  = 0
	ExitFatalAllocator           = 1
	ExitUnsupportedEventArgument = 2
	ExitMissingEventHandler      = 3
	ExitUnknownEventVariant      = 4
	ExitStartupScriptFailure     = 5
)
