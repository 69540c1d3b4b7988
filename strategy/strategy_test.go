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

func TestUsingR0IsIdentityOnPlainValues(t *testing.T) {
	v, err := Using(42, R0)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestUsingRSeqForcesOneLevel(t *testing.T) {
	c := par.ToClosure(listTestLabel, 7)
	v, err := Using(c, RSeq)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	// RSeq leaves an already-plain value untouched.
	v2, err := Using(9, RSeq)
	require.NoError(t, err)
	assert.Equal(t, 9, v2)
}

func TestUsingRDeepSeqRecursesThroughSlices(t *testing.T) {
	inner := par.ToClosure(listTestLabel, 3)
	nested := []interface{}{inner, par.ToClosure(listTestLabel, 4), 5}
	v, err := Using(nested, RDeepSeq)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{3, 4, 5}, v)
}

func TestUsingForceCCKeepsAClosureShape(t *testing.T) {
	c := par.ToClosure(listTestLabel, 11)
	v, err := Using(c, ForceCC)
	require.NoError(t, err)
	forced, ok := v.(par.Closure)
	require.True(t, ok, "ForceCC must yield a re-shippable Closure, not a bare value")
	got, err := par.UnClosure(forced)
	require.NoError(t, err)
	assert.Equal(t, 11, got)
}

func TestUsingForceCCWrapsNonClosuresToo(t *testing.T) {
	v, err := Using(13, ForceCC)
	require.NoError(t, err)
	forced, ok := v.(par.Closure)
	require.True(t, ok, "ForceCC must wrap a bare value in a re-shippable Closure, not return it unchanged")
	got, err := par.UnClosure(forced)
	require.NoError(t, err)
	assert.Equal(t, 13, got)
}

func TestUsingUnknownStrategyErrors(t *testing.T) {
	_, err := Using(1, Strategy("strategy_test.does-not-exist"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unregistered strategy")
}

func TestRegisterCustomStrategy(t *testing.T) {
	const name Strategy = "strategy_test.triple"
	Register(name, func(x interface{}) (interface{}, error) { return x.(int) * 3, nil })
	v, err := Using(4, name)
	require.NoError(t, err)
	assert.Equal(t, 12, v)
}
