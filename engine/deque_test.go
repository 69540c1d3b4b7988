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

func TestDequeLIFOOrder(t *testing.T) {
	var d deque
	assert.Equal(t, 0, d.len())

	order := []int{1, 2, 3}
	for _, i := range order {
		i := i
		d.push(par.Return(i))
	}
	assert.Equal(t, 3, d.len())

	for i := len(order) - 1; i >= 0; i-- {
		p, ok := d.pop()
		assert.True(t, ok)
		v, err := p(nil)
		assert.NoError(t, err)
		assert.Equal(t, order[i], v)
	}
	_, ok := d.pop()
	assert.False(t, ok, "pop on an empty deque must report false")
}

func TestDequeConcurrentPushPop(t *testing.T) {
	var d deque
	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			d.push(par.Return(i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, n, d.len())

	popped := 0
	for {
		if _, ok := d.pop(); !ok {
			break
		}
		popped++
	}
	assert.Equal(t, n, popped)
}
