// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package comexeapp

import (
	"github.com/pascalcombier/comexe/internal/event"
	"github.com/pascalcombier/comexe/internal/instance"
	"github.com/pascalcombier/comexe/internal/logging"
	"github.com/pascalcombier/comexe/internal/scripting"
)

// enqueue performs the producer-side protocol common to every dispatch
// path: take the target's event mutex, encode under it, release, then set
// EVENTS_PENDING and signal under the target's state mutex. The two
// mutexes are never held simultaneously, matching the
// registry -> event -> state acquisition order (event is released before
// state is taken).
func enqueue(sourceHost scripting.Host, target *instance.Instance, handlerName string, rawArgs []any) error {
	target.EventMu.Lock()
	err := event.EncodeCall(target.ReceiveBuffer, sourceHost, handlerName, rawArgs)
	target.EventMu.Unlock()
	if err != nil {
		return err
	}
	target.SetEventsPendingAndSignal()
	return nil
}

func enqueueValues(target *instance.Instance, handlerName string, args []scripting.Value) {
	target.EventMu.Lock()
	event.EncodeValues(target.ReceiveBuffer, handlerName, args)
	target.EventMu.Unlock()
	target.SetEventsPendingAndSignal()
}

// Post enqueues one event onto targetOffset. It returns (true, nil) iff
// the offset was valid at the instant of lookup and the event was
// encoded; (false, nil) if the offset did not resolve (not an error, per
// §4.G); (true, err) if the offset resolved but one of rawArgs was an
// unsupported host type (a tier-1 configuration error the caller should
// surface to the script, not swallow as "target missing").
func (a *Application) Post(sourceHost scripting.Host, targetOffset uint64, handlerName string, rawArgs []any) (bool, error) {
	a.mu.Lock()
	valid := a.Registry.IsValid(targetOffset)
	var target *instance.Instance
	if valid {
		target = a.Registry.Get(targetOffset).(*instance.Instance)
	}
	a.mu.Unlock()

	if !valid {
		logging.Warn("comexeapp.post", "target offset does not resolve", map[string]any{
			"offset": targetOffset,
			"err":    asInvalidOffset(targetOffset).Error(),
		})
		return false, nil
	}
	if err := enqueue(sourceHost, target, handlerName, rawArgs); err != nil {
		return true, err
	}
	return true, nil
}

// Broadcast enqueues one event onto every currently-present instance,
// holding the registry mutex for the entire fan-out per §9's resolved
// Open Question. Instances created mid-broadcast may or may not receive
// it; that race is accepted, not fixed.
func (a *Application) Broadcast(sourceHost scripting.Host, handlerName string, rawArgs []any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var fanoutErr error
	var fanoutCount int
	a.Registry.Range(func(_ uint64, object any) {
		if fanoutErr != nil {
			return
		}
		fanoutErr = enqueue(sourceHost, object.(*instance.Instance), handlerName, rawArgs)
		fanoutCount++
	})
	logging.Info("comexeapp.broadcast", "fan-out complete", map[string]any{
		"handler": handlerName,
		"count":   fanoutCount,
	})
	return fanoutErr
}

// PostExit synthesizes (exiting.ExitEventName, exiting.Offset) into
// exiting's parent's queue. It bypasses the registry validity check
// Post performs: the exiting instance already holds a live, non-owning
// reference to its parent, so there is nothing to look up.
func PostExit(exiting *instance.Instance) {
	parent := exiting.Parent
	if parent == nil {
		return
	}
	enqueueValues(parent, exiting.ExitEventName, []scripting.Value{
		{Kind: scripting.KindInteger, Int: int64(exiting.Offset)},
	})
}

// NotifyExternal enqueues onto offset 1 (the main instance) only. It is
// the bridge for out-of-band OS notifications delivered on foreign
// threads that never hold a Host of their own.
func (a *Application) NotifyExternal(handlerName string, controlCode int64) bool {
	a.mu.Lock()
	valid := a.Registry.IsValid(1)
	var target *instance.Instance
	if valid {
		target = a.Registry.Get(1).(*instance.Instance)
	}
	a.mu.Unlock()

	if !valid {
		return false
	}
	enqueueValues(target, handlerName, []scripting.Value{{Kind: scripting.KindInteger, Int: controlCode}})
	return true
}
