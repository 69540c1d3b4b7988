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

const (
	mrIdentityLabel = "strategy_test.mapreduce.identity"
	mrSumLabel      = "strategy_test.mapreduce.sum"
)

func init() {
	par.RegisterValue(mrIdentityLabel, func([]byte) (interface{}, error) {
		return func(x interface{}) interface{} { return x }, nil
	})
	par.RegisterValue(mrSumLabel, func([]byte) (interface{}, error) {
		return func(x interface{}) interface{} {
			pair := x.(CombineArgs)
			return pair.A.(int) + pair.B.(int)
		}, nil
	})
}

func TestMapReduceRangeThreshSumsOneToOneThousand(t *testing.T) {
	w := newFakeWorker()
	f := par.StaticClosure(mrIdentityLabel)
	combine := par.StaticClosure(mrSumLabel)

	got, err := MapReduceRangeThresh(w, 16, 1, 1000, f, combine, 0)
	require.NoError(t, err)
	assert.Equal(t, 500500, got)
}

func TestMapReduceRangeThreshSingleSegmentBelowThreshold(t *testing.T) {
	w := newFakeWorker()
	f := par.StaticClosure(mrIdentityLabel)
	combine := par.StaticClosure(mrSumLabel)

	got, err := MapReduceRangeThresh(w, 1000, 1, 10, f, combine, 0)
	require.NoError(t, err)
	assert.Equal(t, 55, got)
}

func TestMapReduceRangeThreshSingleElementRange(t *testing.T) {
	w := newFakeWorker()
	f := par.StaticClosure(mrIdentityLabel)
	combine := par.StaticClosure(mrSumLabel)

	got, err := MapReduceRangeThresh(w, 4, 7, 7, f, combine, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestPushRandMapReduceRangeThreshOnSingleNode(t *testing.T) {
	w := newFakeWorker()
	f := par.StaticClosure(mrIdentityLabel)
	combine := par.StaticClosure(mrSumLabel)
	self, err := par.MyNode()
	require.NoError(t, err)

	got, err := PushRandMapReduceRangeThresh(w, []par.NodeId{self}, 4, 1, 100, f, combine, 0)
	require.NoError(t, err)
	assert.Equal(t, 5050, got)
}
