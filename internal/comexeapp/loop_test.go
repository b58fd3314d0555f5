// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package comexeapp

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pascalcombier/comexe/internal/instance"
	"github.com/pascalcombier/comexe/internal/scripting"
)

func newLoopTestInstance(host *scripting.MockHost) *instance.Instance {
	return instance.New("test", "", false, nil, host)
}

func TestRunOnce_DispatchesPendingEventsToRegisteredGlobal(t *testing.T) {
	host := scripting.NewMockHost()
	inst := newLoopTestInstance(host)

	received := make(chan []scripting.Value, 1)
	host.Globals["greet"] = func(args []scripting.Value) { received <- args }

	require.NoError(t, enqueue(host, inst, "greet", []any{scripting.Value{Kind: scripting.KindString, Str: "hi"}}))

	var stderr bytes.Buffer
	require.NoError(t, RunOnce(&stderr, inst))

	select {
	case args := <-received:
		require.Len(t, args, 1)
		require.Equal(t, "hi", args[0].Str)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
	require.Empty(t, stderr.String())
}

func TestRunOnce_MissingHandlerReturnsFatalError(t *testing.T) {
	host := scripting.NewMockHost()
	inst := newLoopTestInstance(host)

	require.NoError(t, enqueue(host, inst, "nosuchhandler", nil))

	var stderr bytes.Buffer
	err := RunOnce(&stderr, inst)
	require.Error(t, err)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	require.Equal(t, ExitMissingEventHandler, fatal.Code)
}

func TestRunOnce_RegisteredHandlerInvokedForEverySequentialEvent(t *testing.T) {
	host := scripting.NewMockHost()
	inst := newLoopTestInstance(host)

	calls := 0
	host.Globals["boom"] = func(args []scripting.Value) { calls++ }

	require.NoError(t, enqueue(host, inst, "boom", nil))
	require.NoError(t, enqueue(host, inst, "boom", nil))

	var stderr bytes.Buffer
	require.NoError(t, RunOnce(&stderr, inst))
	require.Equal(t, 2, calls)
}

func TestRunEventLoop_ExitsOnStopLoop(t *testing.T) {
	host := scripting.NewMockHost()
	inst := newLoopTestInstance(host)

	done := make(chan error, 1)
	go func() {
		var stderr bytes.Buffer
		done <- RunEventLoop(&stderr, inst)
	}()

	time.Sleep(10 * time.Millisecond)
	StopLoop(inst)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunEventLoop did not exit after StopLoop")
	}
}

func TestRunEventLoop_ProcessesEventsThenStops(t *testing.T) {
	host := scripting.NewMockHost()
	inst := newLoopTestInstance(host)

	received := make(chan struct{}, 1)
	host.Globals["tick"] = func(args []scripting.Value) { received <- struct{}{} }

	require.NoError(t, enqueue(host, inst, "tick", nil))

	done := make(chan error, 1)
	go func() {
		var stderr bytes.Buffer
		done <- RunEventLoop(&stderr, inst)
	}()

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("tick handler was not invoked")
	}

	StopLoop(inst)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunEventLoop did not exit after StopLoop")
	}
}

func TestDrainOnce_UnknownVariantIsFatal(t *testing.T) {
	host := scripting.NewMockHost()
	inst := newLoopTestInstance(host)

	// Corrupt the wire directly: a single stray blob with no START tag.
	inst.EventMu.Lock()
	inst.ReceiveBuffer.PushBlob([]byte{0xFF})
	inst.EventMu.Unlock()
	inst.SetEventsPendingAndSignal()

	var stderr bytes.Buffer
	err := RunOnce(&stderr, inst)
	require.Error(t, err)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	require.Equal(t, ExitUnknownEventVariant, fatal.Code)
}
