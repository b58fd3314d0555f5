// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package comexeapp

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/pascalcombier/comexe/internal/instance"
	"github.com/pascalcombier/comexe/internal/platform"
	"github.com/pascalcombier/comexe/internal/scripting"
)

// Version metadata attached to the runtime module's constants table and
// printed by --comexe-version. comexeCommit and comexeBuildDate are
// placeholders a real release process would stamp in at build time via
// -ldflags.
const (
	comexeVersion   = "1.0.0"
	comexeCommit    = "unknown"
	comexeBuildDate = "unknown"
)

// VersionString is the exact text --comexe-version prints.
func VersionString() string {
	return fmt.Sprintf("comexe %s (commit %s, built %s)", comexeVersion, comexeCommit, comexeBuildDate)
}

// installBindings attaches the thread/event/runtime globals an instance's
// script sees, grounded on THREADS_FUNCTIONS/EVENTS_FUNCTIONS/
// COMRUNTIME_FUNCTIONS, plus a bare print global with no C-side
// counterpart (see DESIGN.md).
func installBindings(app *Application, inst *instance.Instance, host *scripting.GojaHost) {
	rt := host.Runtime()
	rt.Set("arg", app.Argv)
	rt.Set("print", buildPrintBinding(app))
	rt.Set("thread", buildThreadModule(app, inst, host))
	rt.Set("event", buildEventModule(app, inst, host))
	rt.Set("runtime", buildRuntimeModule(app, inst, host))
}

// buildPrintBinding writes every argument's string form to app.Stdout with
// no separator or trailing newline: a script that wants formatting builds
// its own string first.
func buildPrintBinding(app *Application) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		for _, arg := range call.Arguments {
			fmt.Fprint(app.Stdout, arg.String())
		}
		return goja.Undefined()
	}
}

func buildThreadModule(app *Application, inst *instance.Instance, host *scripting.GojaHost) *goja.Object {
	rt := host.Runtime()
	obj := rt.NewObject()

	obj.Set("create", func(call goja.FunctionCall) goja.Value {
		args := call.Arguments
		if len(args) < 1 || goja.IsUndefined(args[0]) {
			return goja.Null()
		}
		moduleName := args[0].String()
		exitEventName := ""
		if len(args) >= 2 && !goja.IsUndefined(args[1]) && !goja.IsNull(args[1]) {
			exitEventName = args[1].String()
		}
		child := CreateInstance(app, inst, moduleName, exitEventName)
		return rt.ToValue(int64(child.Offset))
	})

	obj.Set("getid", func() int64 {
		return int64(inst.Offset)
	})

	obj.Set("getname", func() string {
		return inst.ModuleName
	})

	obj.Set("join", func(offset int64) bool {
		return Join(app, uint64(offset))
	})

	return obj
}

// rawScriptArgs converts a slice of goja.FunctionCall arguments into the
// []any Host.Classify expects: each element is still a goja.Value,
// boxed as any, matching what GojaHost.Classify type-asserts back out.
func rawScriptArgs(values []goja.Value) []any {
	rawArgs := make([]any, len(values))
	for i, v := range values {
		rawArgs[i] = v
	}
	return rawArgs
}

func buildEventModule(app *Application, inst *instance.Instance, host *scripting.GojaHost) *goja.Object {
	rt := host.Runtime()
	obj := rt.NewObject()

	// runloop/runonce report a *FatalError (missing handler, unknown
	// decoded variant) by terminating the process directly, not by
	// throwing a catchable script exception: per §7 these are
	// non-recoverable semantic errors, immune to a script's own
	// try/catch, exactly like the original's exit() calls deep inside
	// the dispatch call stack.
	obj.Set("runloop", func() {
		if err := RunEventLoop(app.Stderr, inst); err != nil {
			var fatal *FatalError
			if errors.As(err, &fatal) {
				app.terminateFatal(fatal)
				return
			}
			panic(rt.NewGoError(err))
		}
	})

	obj.Set("stoploop", func() {
		StopLoop(inst)
	})

	obj.Set("runonce", func() {
		if err := RunOnce(app.Stderr, inst); err != nil {
			var fatal *FatalError
			if errors.As(err, &fatal) {
				app.terminateFatal(fatal)
				return
			}
			panic(rt.NewGoError(err))
		}
	})

	obj.Set("send", func(call goja.FunctionCall) goja.Value {
		args := call.Arguments
		if len(args) < 2 {
			panic(rt.NewTypeError("event.send requires (targetOffset, handlerName, ...args)"))
		}
		targetOffset := uint64(args[0].ToInteger())
		handlerName := args[1].String()
		ok, err := app.Post(host, targetOffset, handlerName, rawScriptArgs(args[2:]))
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return rt.ToValue(ok)
	})

	obj.Set("broadcast", func(call goja.FunctionCall) goja.Value {
		args := call.Arguments
		if len(args) < 1 {
			panic(rt.NewTypeError("event.broadcast requires (handlerName, ...args)"))
		}
		handlerName := args[0].String()
		if err := app.Broadcast(host, handlerName, rawScriptArgs(args[1:])); err != nil {
			panic(rt.NewGoError(err))
		}
		return goja.Undefined()
	})

	return obj
}

func buildRuntimeModule(app *Application, inst *instance.Instance, host *scripting.GojaHost) *goja.Object {
	rt := host.Runtime()
	obj := rt.NewObject()

	obj.Set("getloaderconfiguration", func() string {
		return app.LoaderConfiguration()
	})

	obj.Set("setloaderconfiguration", func(s string) {
		if err := app.SetLoaderConfiguration(s); err != nil {
			panic(rt.NewGoError(err))
		}
	})

	// setwarningfunction is idempotent: installing a new function first
	// unrefs whatever was installed before, and a nil/undefined argument
	// simply clears it.
	obj.Set("setwarningfunction", func(call goja.FunctionCall) goja.Value {
		if inst.WarningRef != scripting.NoRef {
			host.Unref(inst.WarningRef)
			inst.WarningRef = scripting.NoRef
		}
		arg := call.Argument(0)
		if !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			if _, ok := goja.AssertFunction(arg); !ok {
				panic(rt.NewTypeError("setwarningfunction expects a function"))
			}
			inst.WarningRef = host.Ref(arg)
		}
		return goja.Undefined()
	})

	// seteventhandler is one-shot only: nothing resets HandlerRef once it
	// is set, so every later call on the same instance is an error.
	obj.Set("seteventhandler", func(call goja.FunctionCall) goja.Value {
		if inst.HandlerRef != scripting.NoRef {
			panic(rt.NewTypeError("seteventhandler: a handler is already installed"))
		}
		arg := call.Argument(0)
		if _, ok := goja.AssertFunction(arg); !ok {
			panic(rt.NewTypeError("seteventhandler expects a function"))
		}
		inst.HandlerRef = host.Ref(arg)
		return goja.Undefined()
	})

	obj.Set("isatty", func(fd int) bool {
		return platform.IsATTY(fd)
	})

	obj.Set("ref", func(call goja.FunctionCall) goja.Value {
		ref := host.Ref(call.Argument(0))
		return rt.ToValue(int64(ref))
	})

	obj.Set("unref", func(ref int64) {
		host.Unref(scripting.Ref(ref))
	})

	obj.Set("stdin", int64(0))
	obj.Set("stdout", int64(1))
	obj.Set("stderr", int64(2))
	obj.Set("COMEXE_VERSION", comexeVersion)
	obj.Set("COMEXE_COMMIT", comexeCommit)
	obj.Set("COMEXE_BUILD_DATE", comexeBuildDate)

	return obj
}
