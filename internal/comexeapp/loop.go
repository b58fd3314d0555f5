// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package comexeapp

import (
	"errors"
	"fmt"
	"io"

	"github.com/pascalcombier/comexe/internal/event"
	"github.com/pascalcombier/comexe/internal/instance"
	"github.com/pascalcombier/comexe/internal/logging"
)

// drainOnce implements drain(): swap the receive buffer for the temp
// buffer if anything is pending, walk every event in it by name-lookup
// dispatch on the instance's host, then reset the temp buffer. A decode
// failure or missing handler is non-recoverable and returned as a
// *FatalError; a script error from a handler that was found and invoked
// is logged to stderr and does not stop the drain.
func drainOnce(stderr io.Writer, inst *instance.Instance) error {
	drainBuffer, ok := inst.SwapBuffersIfPending()
	if !ok {
		return nil
	}
	defer drainBuffer.Reset()

	dec := event.NewDecoder(drainBuffer)
	for !dec.Done() {
		handlerName, args, err := dec.DecodeNext()
		if err != nil {
			if errors.Is(err, event.ErrUnknownVariant) {
				return fatalf(ExitUnknownEventVariant, asUnknownEventVariant(err), "comexeapp: unknown event variant decoded")
			}
			return fatalf(ExitUnknownEventVariant, asUnknownEventVariant(err), "comexeapp: truncated event stream")
		}

		if !inst.Host.GlobalExists(handlerName) {
			return fatalf(ExitMissingEventHandler, asMissingHandler(handlerName), "comexeapp: event handler %q not found", handlerName)
		}
		if err := inst.Host.CallGlobal(handlerName, args); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			logging.Warn("comexeapp.drain", "handler call failed", map[string]any{
				"instance": inst.ModuleName,
				"handler":  handlerName,
				"err":      err.Error(),
			})
		}
	}
	return nil
}

// RunOnce performs exactly one non-blocking drain, the script-facing
// event.runonce.
func RunOnce(stderr io.Writer, inst *instance.Instance) error {
	return drainOnce(stderr, inst)
}

// RunEventLoop drains repeatedly, blocking between drains until either
// more events arrive or a close has been requested, the script-facing
// event.runloop.
func RunEventLoop(stderr io.Writer, inst *instance.Instance) error {
	for {
		if err := drainOnce(stderr, inst); err != nil {
			return err
		}
		if !inst.WaitForWork() {
			return nil
		}
	}
}

// StopLoop requests that a running RunEventLoop exit after finishing its
// current drain, the script-facing event.stoploop.
func StopLoop(inst *instance.Instance) {
	inst.RequestLoopCloseAndSignal()
}
