// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scripting

import (
	"errors"
	"fmt"
	"math"

	"github.com/dop251/goja"

	"github.com/pascalcombier/comexe/internal/blob"
)

// handleWrapper carries an OPAQUE value through a goja.Runtime. goja
// exports an unmodified wrapped Go value back to its original type on
// Export, which is what makes an opaque, ownership-free round trip
// possible without a custom goja object type.
type handleWrapper struct {
	h blob.Handle
}

// GojaHost implements Host over a *goja.Runtime. It is grounded on
// goja-eventloop's adapter pattern of binding Go functions directly onto a
// Runtime's global scope; here that pattern is extended to classify and
// convert the six scalar argument variants the event protocol requires.
type GojaHost struct {
	runtime *goja.Runtime
	extra   any
	preload map[string]func(Host) error
	refs    map[Ref]any
	nextRef Ref
}

// NewGojaHost wraps an existing *goja.Runtime.
func NewGojaHost(runtime *goja.Runtime) *GojaHost {
	return &GojaHost{
		runtime: runtime,
		preload: make(map[string]func(Host) error),
		refs:    make(map[Ref]any),
	}
}

// Runtime returns the underlying goja runtime, for binding layers that
// need direct access (e.g. installing the thread/event/runtime modules).
func (g *GojaHost) Runtime() *goja.Runtime {
	return g.runtime
}

func typeName(val goja.Value) string {
	if val == nil {
		return "nil"
	}
	if t := val.ExportType(); t != nil {
		return t.String()
	}
	return val.String()
}

// Classify expects raw to be a goja.Value, as captured from a
// goja.FunctionCall's Arguments slice.
func (g *GojaHost) Classify(index int, raw any) (Value, error) {
	val, ok := raw.(goja.Value)
	if !ok {
		return Value{}, &ErrUnsupportedArgument{Index: index, TypeName: fmt.Sprintf("%T", raw)}
	}

	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return Value{Kind: KindNil}, nil
	}

	switch exported := val.Export().(type) {
	case bool:
		return Value{Kind: KindBoolean, Bool: exported}, nil
	case string:
		return Value{Kind: KindString, Str: exported}, nil
	case int64:
		return Value{Kind: KindInteger, Int: exported}, nil
	case float64:
		if isIntegerValued(exported) {
			return Value{Kind: KindInteger, Int: int64(exported)}, nil
		}
		return Value{Kind: KindDouble, Double: exported}, nil
	case handleWrapper:
		return Value{Kind: KindOpaque, Opaque: exported.h}, nil
	default:
		return Value{}, &ErrUnsupportedArgument{Index: index, TypeName: typeName(val)}
	}
}

// isIntegerValued is the host's "is integer?" predicate: ECMAScript has no
// separate integer subtype, so a JS number is treated as INTEGER when it
// has no fractional part, mirroring Number.isInteger.
func isIntegerValued(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}

// ToNative converts a Value into a goja.Value. NIL maps to JS null.
func (g *GojaHost) ToNative(v Value) any {
	switch v.Kind {
	case KindInteger:
		return g.runtime.ToValue(v.Int)
	case KindDouble:
		return g.runtime.ToValue(v.Double)
	case KindBoolean:
		return g.runtime.ToValue(v.Bool)
	case KindString:
		return g.runtime.ToValue(v.Str)
	case KindOpaque:
		return g.runtime.ToValue(handleWrapper{h: v.Opaque})
	case KindNil:
		fallthrough
	default:
		return goja.Null()
	}
}

func (g *GojaHost) lookupCallable(name string) (goja.Callable, bool) {
	fnVal := g.runtime.Get(name)
	if fnVal == nil || goja.IsUndefined(fnVal) || goja.IsNull(fnVal) {
		return nil, false
	}
	return goja.AssertFunction(fnVal)
}

// CallGlobal invokes the global function named name. Script-thrown errors
// are wrapped, not treated as ErrHandlerNotFound, so callers can tell "no
// such handler" (non-recoverable per spec) apart from "handler ran and
// threw" (logged, drain continues).
func (g *GojaHost) CallGlobal(name string, args []Value) error {
	callable, ok := g.lookupCallable(name)
	if !ok {
		return ErrHandlerNotFound
	}

	nativeArgs := make([]goja.Value, len(args))
	for i, a := range args {
		nativeArgs[i] = g.ToNative(a).(goja.Value)
	}

	_, err := callable(goja.Undefined(), nativeArgs...)
	if err != nil {
		var exception *goja.Exception
		if errors.As(err, &exception) {
			return fmt.Errorf("script handler %q: %s", name, exception.String())
		}
		return fmt.Errorf("script handler %q: %w", name, err)
	}
	return nil
}

// CallRef invokes the callable installed under ref, looked up through the
// reference table rather than the global scope.
func (g *GojaHost) CallRef(ref Ref, args []Value) error {
	stored, ok := g.refs[ref]
	if !ok {
		return ErrHandlerNotFound
	}
	callable, ok := goja.AssertFunction(stored.(goja.Value))
	if !ok {
		return ErrHandlerNotFound
	}

	nativeArgs := make([]goja.Value, len(args))
	for i, a := range args {
		nativeArgs[i] = g.ToNative(a).(goja.Value)
	}

	_, err := callable(goja.Undefined(), nativeArgs...)
	if err != nil {
		var exception *goja.Exception
		if errors.As(err, &exception) {
			return fmt.Errorf("script ref handler: %s", exception.String())
		}
		return fmt.Errorf("script ref handler: %w", err)
	}
	return nil
}

// GlobalExists reports whether name resolves to a callable global.
func (g *GojaHost) GlobalExists(name string) bool {
	_, ok := g.lookupCallable(name)
	return ok
}

// SetExtraSlot attaches v as the host's per-state extra value.
func (g *GojaHost) SetExtraSlot(v any) { g.extra = v }

// ExtraSlot returns the previously attached extra value, or nil.
func (g *GojaHost) ExtraSlot() any { return g.extra }

// Preload registers loader under name for lazy module resolution.
func (g *GojaHost) Preload(name string, loader func(Host) error) {
	g.preload[name] = loader
}

// Loader returns the loader registered for name, if any.
func (g *GojaHost) Loader(name string) (func(Host) error, bool) {
	loader, ok := g.preload[name]
	return loader, ok
}

// Ref installs v into the reference table and returns a fresh handle. Ref
// values start at 1; 0 (NoRef) is never issued.
func (g *GojaHost) Ref(v any) Ref {
	g.nextRef++
	id := g.nextRef
	g.refs[id] = v
	return id
}

// Unref removes ref from the reference table. Unref of an unknown or
// already-released ref is a no-op.
func (g *GojaHost) Unref(ref Ref) {
	delete(g.refs, ref)
}

// Resolve returns the value installed under ref, if still present.
func (g *GojaHost) Resolve(ref Ref) (any, bool) {
	v, ok := g.refs[ref]
	return v, ok
}
