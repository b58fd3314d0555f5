// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package instance implements the per-thread instance record: state bits
// guarded by a mutex and condition variable, and the pair of event buffers
// that form an instance's mailbox.
package instance

import (
	"sync"

	"github.com/pascalcombier/comexe/internal/blob"
	"github.com/pascalcombier/comexe/internal/scripting"
)

// doneState backs Instance.MarkDone/WaitDone: a channel closed exactly
// once, standing in for uv_thread_join's completion signal.
type doneState struct {
	once sync.Once
	ch   chan struct{}
}

func newDoneState() *doneState {
	return &doneState{ch: make(chan struct{})}
}

// State bits, protected by the instance's state mutex.
const (
	Active uint32 = 1 << iota
	EventsPending
	LoopCloseRequest
)

// PendingEventSlotCount and PendingEventRegionSize are the fixed initial
// capacity given to each instance's two event buffers.
const (
	PendingEventSlotCount  = 16
	PendingEventRegionSize = 512
)

// Instance is one (OS thread, interpreter state) pairing. Parent is a
// weak, non-owning reference: instances never keep their parent alive,
// and the registry (not this struct) is the owning store for the tree.
type Instance struct {
	ModuleName    string
	ExitEventName string
	HasExitEvent  bool
	Parent        *Instance
	Offset        uint64
	Host          scripting.Host

	HandlerRef scripting.Ref
	WarningRef scripting.Ref

	// EventMu protects ReceiveBuffer and TempBuffer. Producers hold it
	// only while encoding one event; the consumer holds it only for the
	// swap in SwapBuffersIfPending. Per the runtime's lock-ordering
	// contract this must never be acquired after the state mutex, only
	// before it.
	EventMu       sync.Mutex
	ReceiveBuffer *blob.Store
	TempBuffer    *blob.Store

	stateMu   sync.Mutex
	stateCond *sync.Cond
	stateBits uint32

	done *doneState
}

// New constructs an Instance with two freshly provisioned event buffers
// and no state bits set. The caller installs Offset once the instance has
// been added to the registry.
func New(moduleName, exitEventName string, hasExitEvent bool, parent *Instance, host scripting.Host) *Instance {
	inst := &Instance{
		ModuleName:    moduleName,
		ExitEventName: exitEventName,
		HasExitEvent:  hasExitEvent,
		Parent:        parent,
		Host:          host,
		ReceiveBuffer: blob.New(PendingEventSlotCount, PendingEventRegionSize),
		TempBuffer:    blob.New(PendingEventSlotCount, PendingEventRegionSize),
		HandlerRef:    scripting.NoRef,
		WarningRef:    scripting.NoRef,
		done:          newDoneState(),
	}
	inst.stateCond = sync.NewCond(&inst.stateMu)
	return inst
}

// MarkDone signals that this instance's thread has returned. Safe to call
// more than once; only the first call has an effect.
func (i *Instance) MarkDone() {
	i.done.once.Do(func() { close(i.done.ch) })
}

// WaitDone blocks until MarkDone has been called, the Go equivalent of
// uv_thread_join.
func (i *Instance) WaitDone() {
	<-i.done.ch
}

// SetActiveAndSignal sets the ACTIVE bit and wakes anyone blocked in
// WaitActive. Called once, by the instance's own thread, immediately
// after bootstrap begins.
func (i *Instance) SetActiveAndSignal() {
	i.stateMu.Lock()
	i.stateBits |= Active
	i.stateCond.Signal()
	i.stateMu.Unlock()
}

// WaitActive blocks until ACTIVE is set. Called by the creating thread
// after starting the new instance's goroutine.
func (i *Instance) WaitActive() {
	i.stateMu.Lock()
	for i.stateBits&Active == 0 {
		i.stateCond.Wait()
	}
	i.stateMu.Unlock()
}

// IsActive reports whether ACTIVE is currently set.
func (i *Instance) IsActive() bool {
	i.stateMu.Lock()
	defer i.stateMu.Unlock()
	return i.stateBits&Active != 0
}

// SetEventsPendingAndSignal sets EVENTS_PENDING and wakes the instance's
// event loop. Idempotent: setting an already-set bit and re-signalling a
// loop that is not waiting are both harmless.
func (i *Instance) SetEventsPendingAndSignal() {
	i.stateMu.Lock()
	i.stateBits |= EventsPending
	i.stateCond.Signal()
	i.stateMu.Unlock()
}

// RequestLoopCloseAndSignal sets LOOP_CLOSE_REQUEST and wakes the event
// loop. Once set it is never cleared; the loop observes it and exits
// after finishing its current drain.
func (i *Instance) RequestLoopCloseAndSignal() {
	i.stateMu.Lock()
	i.stateBits |= LoopCloseRequest
	i.stateCond.Signal()
	i.stateMu.Unlock()
}

// WaitForWork blocks until EVENTS_PENDING or LOOP_CLOSE_REQUEST is set,
// re-evaluating the predicate under the state mutex on every wake-up to
// absorb spurious wake-ups. It returns whether the loop should continue
// (false means LOOP_CLOSE_REQUEST won the race).
func (i *Instance) WaitForWork() (shouldContinue bool) {
	i.stateMu.Lock()
	defer i.stateMu.Unlock()
	for i.stateBits&(EventsPending|LoopCloseRequest) == 0 {
		i.stateCond.Wait()
	}
	return i.stateBits&LoopCloseRequest == 0
}

func (i *Instance) clearEventsPending() {
	i.stateMu.Lock()
	i.stateBits &^= EventsPending
	i.stateMu.Unlock()
}

// SwapBuffersIfPending implements the consumer half of drain(): under
// EventMu, if the receive buffer is empty it returns ok=false; otherwise
// it swaps receive and temp, clears EVENTS_PENDING (briefly taking the
// state mutex while still holding EventMu, preserving the
// registry->event->state acquisition order), and returns the buffer now
// holding the events to process. The caller drains that buffer outside
// any lock and is responsible for calling its Reset when done.
func (i *Instance) SwapBuffersIfPending() (drainBuffer *blob.Store, ok bool) {
	i.EventMu.Lock()
	defer i.EventMu.Unlock()

	if i.ReceiveBuffer.Count() == 0 {
		return nil, false
	}

	i.ReceiveBuffer, i.TempBuffer = i.TempBuffer, i.ReceiveBuffer
	i.clearEventsPending()
	return i.TempBuffer, true
}
