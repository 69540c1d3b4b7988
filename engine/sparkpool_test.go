// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"sync"
	"testing"

	par "github.com/brezal/hdph-rs"
	"github.com/stretchr/testify/assert"
)

func TestSparkPoolFIFOOrder(t *testing.T) {
	labels := []string{"engine_test.sparkpool.a", "engine_test.sparkpool.b", "engine_test.sparkpool.c"}
	for _, l := range labels {
		l := l
		par.RegisterValue(l, func([]byte) (interface{}, error) { return l, nil })
	}

	var p sparkPool
	assert.Equal(t, 0, p.len())

	for _, l := range labels {
		p.push(par.StaticClosure(l))
	}
	assert.Equal(t, 3, p.len())

	for _, want := range labels {
		c, ok := p.takeOne()
		assert.True(t, ok)
		v, err := par.UnClosure(c)
		assert.NoError(t, err)
		assert.Equal(t, want, v)
	}
	_, ok := p.takeOne()
	assert.False(t, ok, "takeOne on an empty pool must report false")
}

func TestSparkPoolConcurrentPushTakeConservesCount(t *testing.T) {
	var p sparkPool
	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			p.push(par.StaticClosure("x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, n, p.len())

	taken := 0
	for {
		if _, ok := p.takeOne(); !ok {
			break
		}
		taken++
	}
	assert.Equal(t, n, taken)
}
