// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package instance

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pascalcombier/comexe/internal/event"
	"github.com/pascalcombier/comexe/internal/scripting"
)

func newTestInstance(name string, parent *Instance) *Instance {
	return New(name, "", false, parent, scripting.NewMockHost())
}

func TestInstance_StartsInactiveWithNoBitsSet(t *testing.T) {
	inst := newTestInstance("main", nil)
	require.False(t, inst.IsActive())
}

func TestInstance_SetActiveAndSignalWakesWaitActive(t *testing.T) {
	inst := newTestInstance("main", nil)

	done := make(chan struct{})
	go func() {
		inst.WaitActive()
		close(done)
	}()

	// Give WaitActive a chance to start blocking before signalling.
	time.Sleep(10 * time.Millisecond)
	inst.SetActiveAndSignal()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitActive did not observe ACTIVE")
	}
	require.True(t, inst.IsActive())
}

func TestInstance_WaitActiveReturnsImmediatelyIfAlreadyActive(t *testing.T) {
	inst := newTestInstance("main", nil)
	inst.SetActiveAndSignal()

	done := make(chan struct{})
	go func() {
		inst.WaitActive()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitActive blocked despite ACTIVE already set")
	}
}

func TestInstance_ParentIsWeakReference(t *testing.T) {
	parent := newTestInstance("parent", nil)
	child := newTestInstance("child", parent)
	require.Same(t, parent, child.Parent)
	require.Nil(t, parent.Parent)
}

func TestInstance_WaitForWorkBlocksUntilEventsPending(t *testing.T) {
	inst := newTestInstance("main", nil)

	resultCh := make(chan bool, 1)
	go func() {
		resultCh <- inst.WaitForWork()
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-resultCh:
		t.Fatal("WaitForWork returned before any signal")
	default:
	}

	inst.SetEventsPendingAndSignal()

	select {
	case shouldContinue := <-resultCh:
		require.True(t, shouldContinue)
	case <-time.After(time.Second):
		t.Fatal("WaitForWork did not wake on EVENTS_PENDING")
	}
}

func TestInstance_WaitForWorkReturnsFalseOnLoopClose(t *testing.T) {
	inst := newTestInstance("main", nil)
	inst.RequestLoopCloseAndSignal()
	require.False(t, inst.WaitForWork())
}

func TestInstance_SwapBuffersIfPendingEmptyReturnsFalse(t *testing.T) {
	inst := newTestInstance("main", nil)
	_, ok := inst.SwapBuffersIfPending()
	require.False(t, ok)
}

func TestInstance_SwapBuffersIfPendingDrainsAndClearsEventsPending(t *testing.T) {
	inst := newTestInstance("main", nil)

	event.EncodeValues(inst.ReceiveBuffer, "tick", nil)
	inst.SetEventsPendingAndSignal()

	drainBuf, ok := inst.SwapBuffersIfPending()
	require.True(t, ok)
	require.EqualValues(t, 3, drainBuf.Count()) // START, handler name, END

	dec := event.NewDecoder(drainBuf)
	name, args, err := dec.DecodeNext()
	require.NoError(t, err)
	require.Equal(t, "tick", name)
	require.Len(t, args, 0)

	// EVENTS_PENDING must have been cleared: a second WaitForWork call
	// blocks until explicitly re-signalled.
	resultCh := make(chan bool, 1)
	go func() { resultCh <- inst.WaitForWork() }()
	time.Sleep(10 * time.Millisecond)
	select {
	case <-resultCh:
		t.Fatal("WaitForWork should still be blocked after drain cleared EVENTS_PENDING")
	default:
	}
	inst.RequestLoopCloseAndSignal()
	<-resultCh

	// The now-empty ReceiveBuffer must be usable for new events.
	require.EqualValues(t, 0, inst.ReceiveBuffer.Count())
}

func TestInstance_ConcurrentProducersSerializeThroughEventMutex(t *testing.T) {
	inst := newTestInstance("main", nil)

	var wg sync.WaitGroup
	const producers = 8
	wg.Add(producers)
	for i := 0; i < producers; i++ {
		go func(n int) {
			defer wg.Done()
			inst.EventMu.Lock()
			event.EncodeValues(inst.ReceiveBuffer, "tick", nil)
			inst.EventMu.Unlock()
			inst.SetEventsPendingAndSignal()
		}(i)
	}
	wg.Wait()

	drainBuf, ok := inst.SwapBuffersIfPending()
	require.True(t, ok)

	dec := event.NewDecoder(drainBuf)
	count := 0
	for !dec.Done() {
		_, _, err := dec.DecodeNext()
		require.NoError(t, err)
		count++
	}
	require.Equal(t, producers, count)
}

func TestInstance_WaitDoneBlocksUntilMarkDone(t *testing.T) {
	inst := newTestInstance("main", nil)

	done := make(chan struct{})
	go func() {
		inst.WaitDone()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitDone returned before MarkDone")
	case <-time.After(10 * time.Millisecond):
	}

	inst.MarkDone()
	inst.MarkDone() // must not panic on double call

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitDone did not return after MarkDone")
	}
}
