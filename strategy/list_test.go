// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package strategy

import (
	"testing"

	par "github.com/brezal/hdph-rs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listTestLabel = "strategy_test.list.elem"

func init() {
	par.RegisterValue(listTestLabel, func(b []byte) (interface{}, error) {
		return par.DecodePayload(b)
	})
}

// closuresOf lifts each int in xs into a Closure via ToClosure. par.
// Closure's func field makes it unsuitable for value comparison, so
// tests decode back to ints (via values) to check equality instead of
// comparing Closures directly.
func closuresOf(xs ...int) []par.Closure {
	out := make([]par.Closure, len(xs))
	for i, x := range xs {
		out[i] = par.ToClosure(listTestLabel, x)
	}
	return out
}

func values(t *testing.T, cs []par.Closure) []int {
	t.Helper()
	out := make([]int, len(cs))
	for i, c := range cs {
		v, err := par.UnClosure(c)
		require.NoError(t, err)
		out[i] = v.(int)
	}
	return out
}

func TestChunkSplitsIntoContiguousRuns(t *testing.T) {
	xs := closuresOf(1, 2, 3, 4, 5)
	chunks := Chunk(3, xs)
	require.Len(t, chunks, 2)
	assert.Equal(t, []int{1, 2, 3}, values(t, chunks[0]))
	assert.Equal(t, []int{4, 5}, values(t, chunks[1]))
}

func TestChunkUnchunkRoundTrip(t *testing.T) {
	for _, k := range []int{1, 2, 3, 5, 100} {
		xs := closuresOf(1, 2, 3, 4, 5)
		got := Unchunk(Chunk(k, xs))
		assert.Equal(t, []int{1, 2, 3, 4, 5}, values(t, got), "k=%d", k)
	}
}

func TestChunkNonPositiveKTreatedAsOne(t *testing.T) {
	xs := closuresOf(1, 2, 3)
	chunks := Chunk(0, xs)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, []int{i + 1}, values(t, c))
	}
}

func TestChunkEmptyInput(t *testing.T) {
	assert.Empty(t, Chunk(3, nil))
	assert.Empty(t, Unchunk(nil))
}

func TestSliceInterleavesRoundRobin(t *testing.T) {
	xs := closuresOf(1, 2, 3, 4, 5)
	slices := Slice(3, xs)
	require.Len(t, slices, 3)
	assert.Equal(t, []int{1, 4}, values(t, slices[0]))
	assert.Equal(t, []int{2, 5}, values(t, slices[1]))
	assert.Equal(t, []int{3}, values(t, slices[2]))
}

func TestSliceUnsliceRoundTrip(t *testing.T) {
	for _, k := range []int{1, 2, 3, 4, 5, 7, 100} {
		xs := closuresOf(1, 2, 3, 4, 5)
		got := Unslice(Slice(k, xs))
		assert.Equal(t, []int{1, 2, 3, 4, 5}, values(t, got), "k=%d", k)
	}
}

func TestSliceUnsliceRoundTripEmptyInput(t *testing.T) {
	got := Unslice(Slice(4, nil))
	assert.Empty(t, got)
}

func TestSliceNonPositiveKTreatedAsOne(t *testing.T) {
	xs := closuresOf(1, 2, 3)
	slices := Slice(-5, xs)
	require.Len(t, slices, 1)
	assert.Equal(t, []int{1, 2, 3}, values(t, slices[0]))
}
