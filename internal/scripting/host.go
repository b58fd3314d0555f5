// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package scripting defines the narrow capability interface the rest of
// the runtime uses to talk to an embedded scripting interpreter, plus a
// concrete implementation over goja. The interface is intentionally small:
// value classification/conversion for the six supported argument variants,
// invoking a named global function, a per-state "extra slot" for attaching
// the owning instance, preload-table registration, and a reference table
// for caller-provided functions.
package scripting

import (
	"errors"
	"fmt"

	"github.com/pascalcombier/comexe/internal/blob"
)

// Kind identifies which of the six supported argument variants a Value
// holds.
type Kind int

const (
	KindInteger Kind = iota
	KindDouble
	KindBoolean
	KindNil
	KindOpaque
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "INTEGER"
	case KindDouble:
		return "DOUBLE"
	case KindBoolean:
		return "BOOLEAN"
	case KindNil:
		return "NIL"
	case KindOpaque:
		return "OPAQUE"
	case KindString:
		return "STRING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(k))
	}
}

// Value is a decoded or pre-encode argument of one of the six supported
// variants. Only the field matching Kind is meaningful.
type Value struct {
	Kind    Kind
	Int     int64
	Double  float64
	Bool    bool
	Str     string
	Opaque  blob.Handle
}

// Ref is an opaque handle into the host's reference table, used for
// caller-provided functions such as event and warning handlers.
type Ref uint64

// NoRef is the zero value of Ref, meaning "not installed".
const NoRef Ref = 0

// ErrUnsupportedArgument is returned by Classify when a raw host value does
// not map onto one of the six supported variants. It names the offending
// stack index and the host's own type name, matching the spec's
// "unsupported variants are fatal ... with a message naming the index and
// type name" requirement; callers decide how to surface it (the event
// codec returns it unchanged, and the event.send/event.broadcast bindings
// raise it as a catchable script exception).
type ErrUnsupportedArgument struct {
	Index    int
	TypeName string
}

func (e *ErrUnsupportedArgument) Error() string {
	return fmt.Sprintf("unsupported argument at index %d: type %q", e.Index, e.TypeName)
}

// ErrHandlerNotFound is returned by CallGlobal when name does not resolve
// to a callable global. The event dispatcher treats this as a
// non-recoverable semantic error (spec exit code 3).
var ErrHandlerNotFound = errors.New("scripting: handler global not found")

// Host is the capability interface the runtime consumes from an embedded
// scripting interpreter. Implementations are never called from more than
// one goroutine at a time — the instance that owns a Host pins itself to a
// single OS thread for the Host's entire lifetime.
type Host interface {
	// Classify converts a single raw host value (as captured from a call
	// into the host, e.g. one JavaScript function argument) into a Value.
	// index is the argument's position, used only for error messages.
	Classify(index int, raw any) (Value, error)

	// ToNative converts a decoded Value into a value the host understands,
	// suitable for passing as a call argument.
	ToNative(v Value) any

	// CallGlobal looks up name as a global function and invokes it with
	// args converted via ToNative. Returns ErrHandlerNotFound if name does
	// not resolve to a callable value. A call that the host itself raises
	// an error from is returned as a wrapped error distinct from
	// ErrHandlerNotFound; callers log it and continue rather than treating
	// it as fatal.
	CallGlobal(name string, args []Value) error

	// GlobalExists reports whether name currently resolves to a callable
	// global, without invoking it.
	GlobalExists(name string) bool

	// SetExtraSlot/ExtraSlot attach and retrieve one opaque value to the
	// host's per-state extra storage; the runtime uses it to stash the
	// owning instance.
	SetExtraSlot(v any)
	ExtraSlot() any

	// Preload registers a named module loader. Registration only stores
	// the loader; nothing in the runtime invokes it when script code
	// requires a module.
	Preload(name string, loader func(Host) error)

	// Ref installs v (expected to be a host-native callable) into the
	// host's reference table and returns a handle to it. Unref releases a
	// previously installed reference; unref of an unknown ref is a no-op.
	Ref(v any) Ref
	Unref(ref Ref)
	Resolve(ref Ref) (any, bool)

	// CallRef invokes the callable previously installed under ref (e.g. a
	// warning function or an event handler set via seteventhandler),
	// rather than a named global. Returns ErrHandlerNotFound if ref is not
	// installed or does not resolve to a callable value.
	CallRef(ref Ref, args []Value) error
}
