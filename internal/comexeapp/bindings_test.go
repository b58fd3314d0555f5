// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package comexeapp

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func runScriptUntilDone(t *testing.T, app *Application, script string) {
	t.Helper()
	old := app.StartupScript
	app.StartupScript = []byte(script)
	defer func() { app.StartupScript = old }()

	inst := CreateInstance(app, app.Root(), "main", "")
	require.True(t, Join(app, inst.Offset))
}

func TestBindings_ThreadCreateGetIDGetNameJoin(t *testing.T) {
	var stderr bytes.Buffer
	app := New(nil, nil, WithStderr(&stderr))

	runScriptUntilDone(t, app, `
		if (thread.getname() === "main") {
			var id = thread.create("child");
			if (thread.getid() !== 1) throw new Error("getid mismatch: " + thread.getid());
			if (!thread.join(id)) throw new Error("join failed");
		} else if (thread.getname() !== "child") {
			throw new Error("getname mismatch: " + thread.getname());
		}
	`)

	require.Empty(t, stderr.String())
}

func TestBindings_EventSendAndRunOnceDeliversToSelf(t *testing.T) {
	var stderr bytes.Buffer
	app := New(nil, nil, WithStderr(&stderr))

	runScriptUntilDone(t, app, `
		var received = false;
		function greet(who) {
			if (who !== "world") throw new Error("bad arg: " + who);
			received = true;
		}
		event.send(thread.getid(), "greet", "world");
		event.runonce();
		if (!received) throw new Error("handler was not invoked");
	`)

	require.Empty(t, stderr.String())
}

func TestBindings_EventSendUnsupportedArgumentIsCatchableByScript(t *testing.T) {
	var stderr bytes.Buffer
	app := New(nil, nil, WithStderr(&stderr))

	runScriptUntilDone(t, app, `
		var caught = false;
		try {
			event.send(thread.getid(), "greet", { nested: {} });
		} catch (e) {
			caught = true;
		}
		if (!caught) throw new Error("expected event.send to throw a catchable exception");
	`)

	require.Empty(t, stderr.String())
}

func TestBindings_EventRunloopMissingHandlerIsNotCatchableAndTerminates(t *testing.T) {
	var stderr bytes.Buffer
	var mu sync.Mutex
	var exitCode int
	exited := make(chan struct{})

	app := New(nil, nil,
		WithStderr(&stderr),
		WithExitFunc(func(code int) {
			mu.Lock()
			exitCode = code
			mu.Unlock()
			close(exited)
		}),
	)
	app.StartupScript = []byte(`
		var caught = false;
		try {
			event.send(thread.getid(), "nosuchhandler");
			event.runloop();
		} catch (e) {
			caught = true;
		}
		if (caught) throw new Error("event.runloop's missing-handler error should not be catchable");
	`)

	CreateInstance(app, app.Root(), "main", "")

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("missing-handler fatal did not terminate the process")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, ExitMissingEventHandler, exitCode)
}

func TestBindings_EventBroadcastReachesSenderItself(t *testing.T) {
	var stderr bytes.Buffer
	app := New(nil, nil, WithStderr(&stderr))

	runScriptUntilDone(t, app, `
		var selfReceived = false;
		function tick() { selfReceived = true; }
		event.broadcast("tick");
		event.runonce();
		if (!selfReceived) throw new Error("broadcast did not reach the sender itself");
	`)

	require.Empty(t, stderr.String())
}

func TestBindings_RuntimeLoaderConfigurationRoundTrips(t *testing.T) {
	var stderr bytes.Buffer
	app := New(nil, nil, WithStderr(&stderr), WithLoaderConfigurationDefault("1RZ"))

	runScriptUntilDone(t, app, `
		if (runtime.getloaderconfiguration() !== "1RZ") throw new Error("unexpected default");
		runtime.setloaderconfiguration("0X");
		if (runtime.getloaderconfiguration() !== "0X") throw new Error("set did not take effect");
	`)

	require.Empty(t, stderr.String())
	require.Equal(t, "0X", app.LoaderConfiguration())
}

func TestBindings_RuntimeSetEventHandlerIsOneShot(t *testing.T) {
	var stderr bytes.Buffer
	app := New(nil, nil, WithStderr(&stderr))

	runScriptUntilDone(t, app, `
		runtime.seteventhandler(function(){});
		var caught = false;
		try {
			runtime.seteventhandler(function(){});
		} catch (e) {
			caught = true;
		}
		if (!caught) throw new Error("second seteventhandler call should have thrown");
	`)

	require.Empty(t, stderr.String())
}

func TestBindings_RuntimeSetWarningFunctionIsIdempotent(t *testing.T) {
	var stderr bytes.Buffer
	app := New(nil, nil, WithStderr(&stderr))

	runScriptUntilDone(t, app, `
		runtime.setwarningfunction(function(msg) {});
		runtime.setwarningfunction(function(msg) {});
		runtime.setwarningfunction(null);
	`)

	require.Empty(t, stderr.String())
}

func TestBindings_RuntimeRefUnrefRoundTrip(t *testing.T) {
	var stderr bytes.Buffer
	app := New(nil, nil, WithStderr(&stderr))

	runScriptUntilDone(t, app, `
		var r = runtime.ref(function(){});
		runtime.unref(r);
	`)

	require.Empty(t, stderr.String())
}

func TestBindings_RuntimeConstantsTable(t *testing.T) {
	var stderr bytes.Buffer
	app := New(nil, nil, WithStderr(&stderr))

	runScriptUntilDone(t, app, `
		if (runtime.stdin !== 0) throw new Error("stdin");
		if (runtime.stdout !== 1) throw new Error("stdout");
		if (runtime.stderr !== 2) throw new Error("stderr");
		if (typeof runtime.COMEXE_VERSION !== "string") throw new Error("COMEXE_VERSION");
	`)

	require.Empty(t, stderr.String())
}
