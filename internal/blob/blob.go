// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package blob implements an append-only, 8-byte-aligned, bump-style blob
// store: a contiguous byte region plus parallel size/offset arrays indexed
// by a monotonically increasing 1-based key (0 is reserved as invalid).
//
// Growth is by repeated doubling of the region (until a new allocation
// fits, floored at one OS page so early growth doesn't thrash through
// several tiny reallocations) and, independently, of the key-array slot
// count. Because blobs are addressed by an offset into the region rather
// than a raw pointer, growing the region is a plain slice copy: every
// previously issued key keeps resolving to the same logical bytes with no
// pointer-rebasing step required, unlike the pointer-array version this
// type is grounded on.
//
// Store is not safe for concurrent use; callers serialize access (the
// instance package does so under its event mutex).
package blob

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/pascalcombier/comexe/internal/platform"
)

// regionGrowthFloor is the OS page size, read once and cached: the first
// few region doublings of a freshly created store are rounded up to at
// least one page, so a store backing a chatty instance does not thrash
// through several tiny reallocations before settling into page-sized
// growth steps.
var regionGrowthFloor = sync.OnceValue(platform.PageSize)

// InvalidKey is the reserved, never-issued key value 0.
const InvalidKey uint64 = 0

// Handle is an opaque, non-owning pointer-sized value, used for the
// scripting host's OPAQUE argument variant. It carries no memory-safety
// guarantee; producer and consumer agree on its meaning out of band.
type Handle uint64

// Store is a bump-allocated, typed blob store.
type Store struct {
	region  []byte
	used    int
	sizes   []uint32
	offsets []uint32
	slotCap int
	count   int
}

func nearestPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// New creates a Store with the given initial slot count and initial
// region size in bytes, both rounded up to the next power of two.
func New(initialSlotCount, initialRegionSizeInBytes int) *Store {
	slotCap := nearestPowerOf2(initialSlotCount)
	regionCap := nearestPowerOf2(initialRegionSizeInBytes)
	return &Store{
		region:  make([]byte, regionCap),
		sizes:   make([]uint32, slotCap),
		offsets: make([]uint32, slotCap),
		slotCap: slotCap,
	}
}

// Reset rewinds the store to empty: the next-free cursor and blob count
// return to zero, and the next allocation issues key 1 again. Keys issued
// before a Reset must never be dereferenced afterward; IsKeyValid reports
// them as invalid only while they exceed the post-reset count, and later
// allocations reissue them for new blobs.
func (s *Store) Reset() {
	s.used = 0
	s.count = 0
}

// Count returns the number of blobs allocated since creation or the last
// Reset.
func (s *Store) Count() uint64 {
	return uint64(s.count)
}

// IsKeyValid reports whether key names a blob allocated in the current
// lifetime (since creation or the last Reset).
func (s *Store) IsKeyValid(key uint64) bool {
	return key != InvalidKey && key <= uint64(s.count)
}

func (s *Store) expandRegionIfNeeded(need int) {
	floor := nearestPowerOf2(regionGrowthFloor())
	for len(s.region)-s.used < need {
		size := len(s.region) * 2
		if size < floor {
			size = floor
		}
		grown := make([]byte, size)
		copy(grown, s.region[:s.used])
		s.region = grown
	}
}

func (s *Store) expandSlotsIfNeeded() {
	if s.count >= s.slotCap {
		newCap := s.slotCap * 2
		newSizes := make([]uint32, newCap)
		newOffsets := make([]uint32, newCap)
		copy(newSizes, s.sizes)
		copy(newOffsets, s.offsets)
		s.sizes = newSizes
		s.offsets = newOffsets
		s.slotCap = newCap
	}
}

// AllocateBlob reserves sizeInBytes bytes, 8-byte aligned, and returns the
// new key together with the writable region backing it. The region grows
// first (doubling until the aligned allocation fits); the slot arrays grow
// afterward if the blob count has reached their capacity. The size
// reported here, and later by Get, excludes alignment padding.
func (s *Store) AllocateBlob(sizeInBytes int) (key uint64, region []byte) {
	padding := (8 - (s.used % 8)) % 8
	s.expandRegionIfNeeded(padding + sizeInBytes)
	s.expandSlotsIfNeeded()

	start := s.used + padding
	s.used = start + sizeInBytes

	idx := s.count
	s.sizes[idx] = uint32(sizeInBytes)
	s.offsets[idx] = uint32(start)
	s.count++

	key = uint64(idx + 1)
	region = s.region[start : start+sizeInBytes : start+sizeInBytes]
	return key, region
}

// GetBlob returns the bytes stored under key, or ok=false if key is not
// valid in the current lifetime.
func (s *Store) GetBlob(key uint64) (data []byte, ok bool) {
	if !s.IsKeyValid(key) {
		return nil, false
	}
	idx := key - 1
	off := s.offsets[idx]
	sz := s.sizes[idx]
	return s.region[off : off+sz], true
}

// PushBlob copies data into a freshly allocated blob and returns its key.
func (s *Store) PushBlob(data []byte) uint64 {
	key, dst := s.AllocateBlob(len(data))
	copy(dst, data)
	return key
}

// PushInt32 stores a 4-byte signed integer.
func (s *Store) PushInt32(v int32) uint64 { return s.PushUint32(uint32(v)) }

// PushUint32 stores a 4-byte unsigned integer.
func (s *Store) PushUint32(v uint32) uint64 {
	key, data := s.AllocateBlob(4)
	binary.LittleEndian.PutUint32(data, v)
	return key
}

// PushInt64 stores an 8-byte signed integer.
func (s *Store) PushInt64(v int64) uint64 { return s.PushUint64(uint64(v)) }

// PushUint64 stores an 8-byte unsigned integer.
func (s *Store) PushUint64(v uint64) uint64 {
	key, data := s.AllocateBlob(8)
	binary.LittleEndian.PutUint64(data, v)
	return key
}

// PushDouble stores an 8-byte IEEE 754 double.
func (s *Store) PushDouble(v float64) uint64 {
	return s.PushUint64(math.Float64bits(v))
}

// PushBool stores a single-byte boolean.
func (s *Store) PushBool(v bool) uint64 {
	key, data := s.AllocateBlob(1)
	if v {
		data[0] = 1
	}
	return key
}

// PushString stores the raw bytes of str with no terminator; Go strings
// carry their own length and need none.
func (s *Store) PushString(str string) uint64 {
	return s.PushBlob([]byte(str))
}

// PushPointer stores an opaque, non-owning handle.
func (s *Store) PushPointer(h Handle) uint64 {
	return s.PushUint64(uint64(h))
}

// GetInt32 reads a 4-byte signed integer previously stored at key.
func (s *Store) GetInt32(key uint64) (int32, bool) {
	v, ok := s.GetUint32(key)
	return int32(v), ok
}

// GetUint32 reads a 4-byte unsigned integer previously stored at key.
func (s *Store) GetUint32(key uint64) (uint32, bool) {
	data, ok := s.GetBlob(key)
	if !ok || len(data) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data), true
}

// GetInt64 reads an 8-byte signed integer previously stored at key.
func (s *Store) GetInt64(key uint64) (int64, bool) {
	v, ok := s.GetUint64(key)
	return int64(v), ok
}

// GetUint64 reads an 8-byte unsigned integer previously stored at key.
func (s *Store) GetUint64(key uint64) (uint64, bool) {
	data, ok := s.GetBlob(key)
	if !ok || len(data) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(data), true
}

// GetDouble reads an 8-byte IEEE 754 double previously stored at key.
func (s *Store) GetDouble(key uint64) (float64, bool) {
	v, ok := s.GetUint64(key)
	return math.Float64frombits(v), ok
}

// GetBool reads a single-byte boolean previously stored at key.
func (s *Store) GetBool(key uint64) (bool, bool) {
	data, ok := s.GetBlob(key)
	if !ok || len(data) < 1 {
		return false, false
	}
	return data[0] != 0, true
}

// GetString reads a string previously stored at key. The returned string
// is a fresh copy and safe to retain past the store's lifetime.
func (s *Store) GetString(key uint64) (string, bool) {
	data, ok := s.GetBlob(key)
	if !ok {
		return "", false
	}
	return string(data), true
}

// GetPointer reads an opaque handle previously stored at key.
func (s *Store) GetPointer(key uint64) (Handle, bool) {
	v, ok := s.GetUint64(key)
	return Handle(v), ok
}

// SetInt32 overwrites the 4-byte value at key in place.
func (s *Store) SetInt32(key uint64, v int32) bool { return s.SetUint32(key, uint32(v)) }

// SetUint32 overwrites the 4-byte value at key in place.
func (s *Store) SetUint32(key uint64, v uint32) bool {
	data, ok := s.GetBlob(key)
	if !ok || len(data) < 4 {
		return false
	}
	binary.LittleEndian.PutUint32(data, v)
	return true
}

// SetInt64 overwrites the 8-byte value at key in place.
func (s *Store) SetInt64(key uint64, v int64) bool { return s.SetUint64(key, uint64(v)) }

// SetUint64 overwrites the 8-byte value at key in place.
func (s *Store) SetUint64(key uint64, v uint64) bool {
	data, ok := s.GetBlob(key)
	if !ok || len(data) < 8 {
		return false
	}
	binary.LittleEndian.PutUint64(data, v)
	return true
}

// SetDouble overwrites the 8-byte value at key in place.
func (s *Store) SetDouble(key uint64, v float64) bool {
	return s.SetUint64(key, math.Float64bits(v))
}

// SetBool overwrites the 1-byte value at key in place.
func (s *Store) SetBool(key uint64, v bool) bool {
	data, ok := s.GetBlob(key)
	if !ok || len(data) < 1 {
		return false
	}
	if v {
		data[0] = 1
	} else {
		data[0] = 0
	}
	return true
}

// SetPointer overwrites the opaque handle at key in place.
func (s *Store) SetPointer(key uint64, h Handle) bool {
	return s.SetUint64(key, uint64(h))
}
