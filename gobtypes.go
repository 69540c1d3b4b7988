// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package par

import "encoding/gob"

// encoding/gob requires every concrete type carried through an
// interface{} value to be registered, even built-in ones (see
// bigslice's func.go, which registers each Func argument type and
// []interface{} for the same reason). Closure payloads and GIVar
// values are both carried as interface{}, so the common scalar and
// slice types are registered here once, up front, the way func.go
// registers []interface{} in its own init. User programs that ship
// values of other concrete types must call gob.Register for them
// before Seal, exactly as they would for any gob-encoded interface
// value.
func init() {
	for _, v := range []interface{}{
		int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0), bool(false), string(""),
		[]interface{}{}, []int{}, []int64{}, []float64{}, []string{}, []bool{}, []byte{},
		map[string]interface{}{},
	} {
		gob.Register(v)
	}
}
