// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package event implements the typed argument wire format laid on top of
// a blob store: one logical event is the sequence
//
//	START(arg_count), ARG_1, ..., ARG_n, END
//
// where the first argument is always a STRING naming the target handler.
// Each element of that sequence is encoded into exactly one blob, so the
// store's own "one key per allocation" guarantee gives the sequence its
// atomicity: a reader either sees a key or it does not yet exist, never a
// half-written one.
package event

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/pascalcombier/comexe/internal/blob"
	"github.com/pascalcombier/comexe/internal/scripting"
)

type tag byte

const (
	tagStart tag = iota + 1
	tagInteger
	tagDouble
	tagBoolean
	tagNil
	tagOpaque
	tagString
	tagEnd
)

// ErrUnknownVariant is returned by Decoder when a blob's tag byte does not
// match any known encoding. The spec treats this as a non-recoverable
// semantic error (exit code 4); it should never occur against buffers
// written by Encode in this same process.
var ErrUnknownVariant = errors.New("event: unknown variant decoded")

// ErrTruncated is returned when the buffer runs out of blobs mid-event,
// i.e. the producer side's invariant (exactly one START, matching END) was
// violated.
var ErrTruncated = errors.New("event: truncated event")

func encodeStart(argCount int) []byte {
	buf := make([]byte, 9)
	buf[0] = byte(tagStart)
	binary.LittleEndian.PutUint64(buf[1:], uint64(argCount))
	return buf
}

func encodeEnd() []byte {
	return []byte{byte(tagEnd)}
}

func encodeArg(v scripting.Value) []byte {
	switch v.Kind {
	case scripting.KindInteger:
		buf := make([]byte, 9)
		buf[0] = byte(tagInteger)
		binary.LittleEndian.PutUint64(buf[1:], uint64(v.Int))
		return buf
	case scripting.KindDouble:
		buf := make([]byte, 9)
		buf[0] = byte(tagDouble)
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(v.Double))
		return buf
	case scripting.KindBoolean:
		buf := make([]byte, 2)
		buf[0] = byte(tagBoolean)
		if v.Bool {
			buf[1] = 1
		}
		return buf
	case scripting.KindNil:
		return []byte{byte(tagNil)}
	case scripting.KindOpaque:
		buf := make([]byte, 9)
		buf[0] = byte(tagOpaque)
		binary.LittleEndian.PutUint64(buf[1:], uint64(v.Opaque))
		return buf
	case scripting.KindString:
		// The STRING header and its bytes are pushed as a single blob, so
		// the payload is inline in the same allocation: no external
		// pointer, matching the spec's string-ownership invariant.
		buf := make([]byte, 1+len(v.Str))
		buf[0] = byte(tagString)
		copy(buf[1:], v.Str)
		return buf
	default:
		panic(fmt.Sprintf("event: unreachable kind %v", v.Kind))
	}
}

// EncodeCall pushes one full event into store: a handler name (handled as
// the implicit first argument) followed by rawArgs, each classified by
// host. The effective argument count delivered to the handler on decode
// will be len(rawArgs).
func EncodeCall(store *blob.Store, host scripting.Host, handlerName string, rawArgs []any) error {
	// Classify every argument before pushing anything, so an unsupported
	// argument leaves no partial event behind in store.
	values := make([]scripting.Value, len(rawArgs))
	for i, raw := range rawArgs {
		v, err := host.Classify(i+1, raw)
		if err != nil {
			return err
		}
		values[i] = v
	}

	EncodeValues(store, handlerName, values)
	return nil
}

// EncodeValues is like EncodeCall but takes already-classified Values,
// used by internal producers (exit events, the external OS notifier) that
// build arguments directly instead of through a host call frame.
func EncodeValues(store *blob.Store, handlerName string, args []scripting.Value) {
	argCount := len(args) + 1
	store.PushBlob(encodeStart(argCount))
	store.PushBlob(encodeArg(scripting.Value{Kind: scripting.KindString, Str: handlerName}))
	for _, v := range args {
		store.PushBlob(encodeArg(v))
	}
	store.PushBlob(encodeEnd())
}

// Decoder walks a blob store from key 1 upward, decoding one event at a
// time.
type Decoder struct {
	store   *blob.Store
	nextKey uint64
}

// NewDecoder creates a Decoder positioned at the first key.
func NewDecoder(store *blob.Store) *Decoder {
	return &Decoder{store: store, nextKey: 1}
}

// Done reports whether every blob in the store has been consumed.
func (d *Decoder) Done() bool {
	return d.nextKey > d.store.Count()
}

func (d *Decoder) next() ([]byte, error) {
	data, ok := d.store.GetBlob(d.nextKey)
	if !ok {
		return nil, ErrTruncated
	}
	d.nextKey++
	return data, nil
}

func decodeArg(data []byte) (scripting.Value, error) {
	if len(data) == 0 {
		return scripting.Value{}, ErrUnknownVariant
	}
	switch tag(data[0]) {
	case tagInteger:
		return scripting.Value{Kind: scripting.KindInteger, Int: int64(binary.LittleEndian.Uint64(data[1:]))}, nil
	case tagDouble:
		return scripting.Value{Kind: scripting.KindDouble, Double: math.Float64frombits(binary.LittleEndian.Uint64(data[1:]))}, nil
	case tagBoolean:
		return scripting.Value{Kind: scripting.KindBoolean, Bool: data[1] != 0}, nil
	case tagNil:
		return scripting.Value{Kind: scripting.KindNil}, nil
	case tagOpaque:
		return scripting.Value{Kind: scripting.KindOpaque, Opaque: blob.Handle(binary.LittleEndian.Uint64(data[1:]))}, nil
	case tagString:
		return scripting.Value{Kind: scripting.KindString, Str: string(data[1:])}, nil
	default:
		return scripting.Value{}, ErrUnknownVariant
	}
}

// DecodeNext decodes one full event: the handler name and its effective
// argument list (excluding the handler name itself). It advances past the
// START, handler-name, all payload args, and the END blob.
func (d *Decoder) DecodeNext() (handlerName string, args []scripting.Value, err error) {
	startData, err := d.next()
	if err != nil {
		return "", nil, err
	}
	if len(startData) < 1 || tag(startData[0]) != tagStart {
		return "", nil, ErrUnknownVariant
	}
	argCount := int(binary.LittleEndian.Uint64(startData[1:]))
	if argCount < 1 {
		return "", nil, ErrTruncated
	}

	nameData, err := d.next()
	if err != nil {
		return "", nil, err
	}
	nameValue, err := decodeArg(nameData)
	if err != nil {
		return "", nil, err
	}
	if nameValue.Kind != scripting.KindString {
		return "", nil, ErrUnknownVariant
	}
	handlerName = nameValue.Str

	args = make([]scripting.Value, 0, argCount-1)
	for i := 0; i < argCount-1; i++ {
		argData, err := d.next()
		if err != nil {
			return "", nil, err
		}
		v, err := decodeArg(argData)
		if err != nil {
			return "", nil, err
		}
		args = append(args, v)
	}

	endData, err := d.next()
	if err != nil {
		return "", nil, err
	}
	if len(endData) < 1 || tag(endData[0]) != tagEnd {
		return "", nil, ErrUnknownVariant
	}

	return handlerName, args, nil
}
