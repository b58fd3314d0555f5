// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package registry implements a stable-index resizable object registry:
// a vector of opaque values indexed 1..capacity, with slot 0 permanently
// reserved and invalid, and removed offsets recycled oldest-first.
//
// Registry is not safe for concurrent use; callers (the application and
// dispatcher layers) are responsible for serializing access under their
// own mutex, per the lock-ordering contract described in the comexeapp
// package.
package registry

import "github.com/pascalcombier/comexe/internal/queue"

// InvalidOffset is the reserved, permanently-empty slot 0.
const InvalidOffset uint64 = 0

// Registry is a 1-based, append/remove object table with offset reuse.
// The zero value is not usable; construct with New.
type Registry struct {
	data     []any
	count    uint64
	capacity uint64
	removed  *queue.Queue
}

// New creates a Registry with the given initial capacity (rounded up to
// at least 1). Slot 0 is pre-reserved, so Count starts at 1.
func New(initialCapacity uint64) *Registry {
	if initialCapacity == 0 {
		initialCapacity = 1
	}
	return &Registry{
		data:     make([]any, initialCapacity),
		count:    1,
		capacity: initialCapacity,
		removed:  queue.New(int(initialCapacity)),
	}
}

func (r *Registry) resize() {
	newCapacity := r.capacity * 2
	newData := make([]any, newCapacity)
	copy(newData, r.data)
	r.data = newData
	r.capacity = newCapacity
}

func (r *Registry) findFreeOffset() uint64 {
	if r.removed.IsEmpty() {
		return r.count
	}
	return r.removed.Dequeue()
}

// Add inserts object into the registry and returns its new offset.
// Capacity is doubled first if the registry is at capacity. Offsets from
// the free queue are preferred over extending into fresh space, so reuse
// is always oldest-removed-first.
func (r *Registry) Add(object any) uint64 {
	if r.count >= r.capacity {
		r.resize()
	}
	offset := r.findFreeOffset()
	if offset == InvalidOffset {
		return InvalidOffset
	}
	r.data[offset] = object
	r.count++
	return offset
}

// Capacity returns the current backing-array capacity.
func (r *Registry) Capacity() uint64 {
	return r.capacity
}

// Count returns the number of occupied slots, including the reserved
// slot 0.
func (r *Registry) Count() uint64 {
	return r.count
}

// IsValid reports whether offset names a present, non-reserved entry.
func (r *Registry) IsValid(offset uint64) bool {
	return offset != InvalidOffset && offset < r.capacity && r.data[offset] != nil
}

// Get returns the object stored at offset, or nil if offset is not
// currently valid.
func (r *Registry) Get(offset uint64) any {
	if offset >= r.capacity {
		return nil
	}
	return r.data[offset]
}

// Remove clears offset's slot and enqueues it for reuse. Removing an
// already-invalid offset is a no-op.
func (r *Registry) Remove(offset uint64) {
	if !r.IsValid(offset) {
		return
	}
	r.data[offset] = nil
	r.count--
	r.removed.Enqueue(offset)
}

// Range calls fn for every currently-valid offset in ascending order,
// starting at 1. It is used by Broadcast, which must iterate 1..capacity
// under a single held lock (see comexeapp's Application.Broadcast).
func (r *Registry) Range(fn func(offset uint64, object any)) {
	for offset := uint64(1); offset < r.capacity; offset++ {
		if r.data[offset] != nil {
			fn(offset, r.data[offset])
		}
	}
}
