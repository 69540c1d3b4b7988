// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"bytes"
	"encoding/gob"

	par "github.com/brezal/hdph-rs"
)

// Message payloads for each envelope tag. Each is encoded directly by
// gob.Encoder.Encode with its concrete type known at the call site,
// so (unlike Closure's own interface{}-valued payload) no separate
// registry entry is needed for these types.

type fishMsg struct {
	Fisher par.NodeId
	Seq    uint64
}

type scheduleMsg struct {
	Seq   uint64
	Spark par.Closure
}

type noWorkMsg struct {
	Seq uint64
}

type executeMsg struct {
	Clo par.Closure
}

type rputMsg struct {
	Slot  uint64
	Value interface{}
}

type quiesceMsg struct {
	Origin   par.NodeId
	Counters []nodeCounters
}

type nodeCounters struct {
	Node    par.NodeId
	Sparked int64
	Taken   int64
	Forked  int64
	Done    int64
}

func gobEncode(v interface{}) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic("engine: gob encode: " + err.Error())
	}
	return buf.Bytes()
}

func gobDecode(b []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
