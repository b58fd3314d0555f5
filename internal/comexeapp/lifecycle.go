// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package comexeapp

import (
	"errors"
	"runtime"

	"github.com/dop251/goja"

	"github.com/pascalcombier/comexe/internal/instance"
	"github.com/pascalcombier/comexe/internal/logging"
	"github.com/pascalcombier/comexe/internal/scripting"
)

// CreateInstance allocates a fresh interpreter state and registry slot,
// starts the instance's bootstrap goroutine, and blocks until that
// goroutine has set ACTIVE, mirroring APP_CreateInstance's behavior of
// only returning a usable instance to its caller.
//
// parent may be app's root placeholder (for the very first, main
// instance) or any other live instance (for thread.create).
func CreateInstance(app *Application, parent *instance.Instance, moduleName, exitEventName string) *instance.Instance {
	host := scripting.NewGojaHost(goja.New())
	inst := instance.New(moduleName, exitEventName, exitEventName != "", parent, host)

	app.mu.Lock()
	offset := app.Registry.Add(inst)
	app.mu.Unlock()
	inst.Offset = offset
	host.SetExtraSlot(inst)

	installBindings(app, inst, host)

	go bootstrapInstance(app, inst, host)

	inst.WaitActive()
	logging.Info("comexeapp.lifecycle", "instance created", map[string]any{
		"offset": inst.Offset,
		"name":   inst.ModuleName,
	})
	return inst
}

// bootstrapInstance is the body of an instance's dedicated goroutine,
// grounded on LUA_LuaThread: mark active, load and run the startup
// script, and on success send this instance's exit event (if any) to its
// parent once the script returns control (it is expected to call
// event.runloop itself; falling out of the script body ends the thread).
func bootstrapInstance(app *Application, inst *instance.Instance, host *scripting.GojaHost) {
	// One OS thread per instance: goja.Runtime is not safe for concurrent
	// use, and pinning gives every instance's script the same single-
	// native-thread execution model the original ran under.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer inst.MarkDone()

	inst.SetActiveAndSignal()

	if _, err := host.Runtime().RunScript(inst.ModuleName, string(app.StartupScript)); err != nil {
		cause := err
		var exception *goja.Exception
		if errors.As(err, &exception) {
			cause = errors.New(exception.String())
		}
		app.terminateFatal(fatalf(ExitStartupScriptFailure, cause, "startup script failed for %q", inst.ModuleName))
		return
	}

	if inst.HasExitEvent {
		PostExit(inst)
	}
}

// Join blocks until the instance at offset has finished (its bootstrap
// goroutine returned), then removes it from the registry. It returns
// false immediately if offset does not currently resolve, matching
// LUA_JoinThread's boolean result; a second Join on an already-removed
// offset also returns false.
func Join(app *Application, offset uint64) bool {
	app.mu.Lock()
	object := app.Registry.Get(offset)
	valid := app.Registry.IsValid(offset)
	app.mu.Unlock()
	if !valid {
		logging.Warn("comexeapp.lifecycle", "join against unresolved offset", map[string]any{
			"err": asInvalidOffset(offset).Error(),
		})
		return false
	}

	target := object.(*instance.Instance)
	target.WaitDone()

	app.mu.Lock()
	app.Registry.Remove(offset)
	app.mu.Unlock()
	logging.Info("comexeapp.lifecycle", "instance torn down", map[string]any{
		"offset": offset,
		"name":   target.ModuleName,
	})
	return true
}
