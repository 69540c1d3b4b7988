// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package par

import (
	"bytes"
	"encoding/gob"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

// A ValueDecoder rebuilds a value of some registered type from its
// gob-encoded payload. Entries of this kind back ToClosure's wire
// form.
type ValueDecoder func([]byte) (interface{}, error)

// A ParDecoder rebuilds a Par computation from a gob-encoded payload.
// Entries of this kind back task- and spark-producing closures.
type ParDecoder func([]byte) (Par, error)

// A CombinatorDecoder rebuilds a higher-order closure (composition,
// application, or a strategy combinator) from a gob-encoded payload.
type CombinatorDecoder func([]byte) (Closure, error)

type registryEntry struct {
	value      ValueDecoder
	task       ParDecoder
	spark      ParDecoder
	combinator CombinatorDecoder
}

// The static table: an append-only mapping from label to code
// pointer, sealed before the runtime starts (see Seal). Go's
// deterministic package-initialization order gives registration its
// two key properties for free: every node running the same binary
// executes the same sequence of init funcs, so the table is populated
// identically and exactly once per process, exactly as bigslice's
// func.go relies on init-time Func() calls being ordered identically
// across a program's copies.
var (
	registryMu   sync.Mutex
	registry     = map[string]*registryEntry{}
	registryBusy int32
	sealed       int32
	checksum     uint64
)

func entryFor(label string) *registryEntry {
	e, ok := registry[label]
	if !ok {
		e = &registryEntry{}
		registry[label] = e
	}
	return e
}

func registerLocked(label string, set func(*registryEntry)) {
	if atomic.LoadInt32(&sealed) != 0 {
		panic(ErrRegistrySealed)
	}
	if atomic.AddInt32(&registryBusy, 1) != 1 {
		panic("par: concurrent registry mutation")
	}
	set(entryFor(label))
	if atomic.AddInt32(&registryBusy, -1) != 0 {
		panic("par: concurrent registry mutation")
	}
}

// RegisterValue installs a pure value-constructor entry under label,
// used to rebuild closures produced by ToClosure. decode must be
// deterministic and side-effect free.
func RegisterValue(label string, decode ValueDecoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registerLocked(label, func(e *registryEntry) { e.value = decode })
}

// RegisterTask installs a task-producing entry under label, used to
// execute a shipped closure of type Par a.
func RegisterTask(label string, decode ParDecoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registerLocked(label, func(e *registryEntry) { e.task = decode })
}

// RegisterSpark installs a spark-producing entry under label, used to
// execute a shipped closure of type Par (). Sparks and tasks share
// the label namespace but are looked up through distinct accessors so
// a label registered only as one cannot be materialized as the other.
func RegisterSpark(label string, decode ParDecoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registerLocked(label, func(e *registryEntry) { e.spark = decode })
}

// RegisterCombinator installs a strategy/combinator entry under
// label, used to re-compose higher-order closures (ApC, CompC, and
// strategy wrappers) after transport.
func RegisterCombinator(label string, decode CombinatorDecoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registerLocked(label, func(e *registryEntry) { e.combinator = decode })
}

// Seal freezes the static table. It must be called once, after all
// package-level init() registration has run and before the runtime
// starts accepting work; further Register* calls panic with
// ErrRegistrySealed. Seal also computes the table's Checksum, which
// the startup handshake (par/rpc) exchanges between peers to catch a
// divergent binary immediately rather than at the first RegistryMiss.
func Seal() {
	registryMu.Lock()
	defer registryMu.Unlock()
	if atomic.LoadInt32(&sealed) != 0 {
		return
	}
	labels := make([]string, 0, len(registry))
	for label := range registry {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	h := murmur3.New64()
	for _, label := range labels {
		h.Write([]byte(label))
		h.Write([]byte{0})
	}
	checksum = h.Sum64()
	atomic.StoreInt32(&sealed, 1)
	Debugf(2, "static table sealed: %d labels, checksum %x", len(labels), checksum)
}

// Sealed reports whether Seal has been called.
func Sealed() bool { return atomic.LoadInt32(&sealed) != 0 }

// Checksum returns the murmur3 hash of the sorted label set, valid
// after Seal. Two nodes running the same binary always compute the
// same checksum; a mismatch during the startup handshake indicates
// divergent binaries and is reported before any closure crosses the
// wire.
func Checksum() uint64 { return checksum }

func lookup(label string) (*registryEntry, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	e, ok := registry[label]
	return e, ok
}

// encodeValue gob-encodes x for use as a closure payload.
func encodeValue(x interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&x); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeValue gob-decodes a closure payload produced by encodeValue.
func decodeValue(b []byte) (interface{}, error) {
	var x interface{}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&x); err != nil {
		return nil, err
	}
	return x, nil
}

// DecodePayload is the exported form of decodeValue, used by par/strategy
// to decode its own spark/task argument structs from a Closure payload
// without duplicating the gob-of-interface{} convention this file
// establishes.
func DecodePayload(b []byte) (interface{}, error) { return decodeValue(b) }

// EncodePayload is the exported form of encodeValue, the write side of
// DecodePayload.
func EncodePayload(x interface{}) ([]byte, error) { return encodeValue(x) }
