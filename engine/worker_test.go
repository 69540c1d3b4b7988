// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"testing"

	par "github.com/brezal/hdph-rs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparkToParOfPlainValueClosure(t *testing.T) {
	const label = "engine_test.worker.plain-value"
	par.RegisterValue(label, func(b []byte) (interface{}, error) { return par.DecodePayload(b) })
	clo := par.ToClosure(label, 42)

	p := sparkToPar(clo)
	v, err := p(nil)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSparkToParOfTaskClosureRunsItsPar(t *testing.T) {
	const label = "engine_test.worker.task"
	par.RegisterTask(label, func([]byte) (par.Par, error) {
		return par.Return("done"), nil
	})
	clo := par.NewTaskClosure(label, 0)

	p := sparkToPar(clo)
	v, err := p(nil)
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}
