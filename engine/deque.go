// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"sync"

	"github.com/brezal/hdph-rs"
)

// deque is a worker's local ready queue. It is owned exclusively by
// its worker: only that worker's goroutine ever pops from it, though
// Fork may be called by a task running on a *different* worker that
// wants to place work on this one (not used by the base scheduler,
// but kept general since strategies may want worker affinity later).
// Pushed/popped LIFO, favoring depth-first local execution the way a
// Cilk-style work-stealing deque does; only the spark pool, not this
// deque, is subject to stealing.
type deque struct {
	mu    sync.Mutex
	items []par.Par
}

func (d *deque) push(p par.Par) {
	d.mu.Lock()
	d.items = append(d.items, p)
	d.mu.Unlock()
}

func (d *deque) pop() (par.Par, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.items)
	if n == 0 {
		return nil, false
	}
	p := d.items[n-1]
	d.items[n-1] = nil
	d.items = d.items[:n-1]
	return p, true
}

func (d *deque) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
