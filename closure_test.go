// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package par

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testValueLabel = "par_test.point"

type testPoint struct{ X, Y int }

func init() {
	gob.Register(testPoint{})
	RegisterValue(testValueLabel, func(b []byte) (interface{}, error) {
		return decodeValue(b)
	})
}

// gobRoundTrip simulates what crossing the wire does to a Closure: it
// encodes c the way a spark or task payload would, then decodes it
// into a fresh Closure with a nil thunk, forcing UnClosure to rebuild
// the value through the static registry instead of the original thunk.
func gobRoundTrip(t *testing.T, c Closure) Closure {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(&c))
	var out Closure
	require.NoError(t, gob.NewDecoder(&buf).Decode(&out))
	return out
}

func TestClosureRoundTrip(t *testing.T) {
	c := ToClosure(testValueLabel, testPoint{X: 3, Y: 4})

	// Locally, UnClosure runs the thunk directly.
	v, err := UnClosure(c)
	require.NoError(t, err)
	assert.Equal(t, testPoint{3, 4}, v)

	// After crossing the wire, UnClosure must reconstruct the same
	// value purely from (label, payload) via the static registry.
	wire := gobRoundTrip(t, c)
	v2, err := UnClosure(wire)
	require.NoError(t, err)
	assert.Equal(t, testPoint{3, 4}, v2)
}

func TestForceClosureIdempotent(t *testing.T) {
	c := ToClosure(testValueLabel, testPoint{X: 1, Y: 2})
	forced, err := ForceClosure(c)
	require.NoError(t, err)

	v, err := UnClosure(forced)
	require.NoError(t, err)
	assert.Equal(t, testPoint{1, 2}, v)

	forcedAgain, err := ForceClosure(forced)
	require.NoError(t, err)
	assert.Equal(t, forced.label, forcedAgain.label)
	assert.Equal(t, forced.payload, forcedAgain.payload)
	assert.Equal(t, forced.forced, forcedAgain.forced)
}

// TestForceClosureRelabelsCombinatorClosures exercises the case the
// label-stability bug actually bites: a combinator-labeled Closure
// (ApC/CompC) whose UnClosure produces a real, encodable value rather
// than an unencodable Par func. Forcing it must not leave it labeled
// labelApC, or a later wire round trip would try to decode the forced
// plain value through apC's closurePair decoder and fail or corrupt.
func TestForceClosureRelabelsCombinatorClosures(t *testing.T) {
	const doubleLabel = "par_test.force.double"
	RegisterValue(doubleLabel, func([]byte) (interface{}, error) {
		return func(x interface{}) interface{} { return 2 * x.(int) }, nil
	})
	f := StaticClosure(doubleLabel)
	x := ToClosure(testValueLabel+".force", 21)
	applied := ApC(f, x)
	require.Equal(t, labelApC, applied.label)

	forced, err := ForceClosure(applied)
	require.NoError(t, err)
	assert.Equal(t, labelForcedValue, forced.label)
	assert.NotEqual(t, labelApC, forced.label)

	// The forced Closure must still decode correctly after crossing
	// the wire, through labelForcedValue's decoder rather than apC's.
	wire := gobRoundTrip(t, forced)
	v, err := UnClosure(wire)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestStaticClosureIdentifiesFunctionByLabel(t *testing.T) {
	const label = "par_test.double"
	RegisterValue(label, func([]byte) (interface{}, error) {
		return func(x interface{}) interface{} { return 2 * x.(int) }, nil
	})
	f := StaticClosure(label)
	// Applying f to x directly should not require the registry, since
	// both closures still carry their local thunks.
	applied := ApC(f, ToClosure(testValueLabel+".static", 21))
	v, err := UnClosure(applied)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestApCAndCompC(t *testing.T) {
	incLabel, doubleLabel := "par_test.inc", "par_test.double2"
	RegisterValue(incLabel, func([]byte) (interface{}, error) {
		return func(x interface{}) interface{} { return x.(int) + 1 }, nil
	})
	RegisterValue(doubleLabel, func([]byte) (interface{}, error) {
		return func(x interface{}) interface{} { return 2 * x.(int) }, nil
	})
	inc := StaticClosure(incLabel)
	double := StaticClosure(doubleLabel)
	arg := ToClosure(testValueLabel+".n", 5)
	RegisterValue(testValueLabel+".n", func(b []byte) (interface{}, error) { return decodeValue(b) })

	applied := ApC(inc, arg)
	v, err := UnClosure(applied)
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	composed := CompC(double, inc) // double(inc(x))
	c, err := UnClosure(ApC(composed, arg))
	require.NoError(t, err)
	assert.Equal(t, 12, c)

	// The composed closure must also survive a wire round-trip.
	wire := gobRoundTrip(t, ApC(composed, arg))
	v2, err := UnClosure(wire)
	require.NoError(t, err)
	assert.Equal(t, 12, v2)
}
