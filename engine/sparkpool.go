// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"sync"

	par "github.com/brezal/hdph-rs"
)

// sparkPool is the node-wide pool of stealable Par () closures. It
// supports concurrent producers (local Spark calls, plus the FISH
// handler's takeOne consumer) and serializes access with a single
// mutex; at the scale of a spark pool (tens to thousands of pending
// closures, not a data-plane hot path) a plain mutex-guarded slice
// beats the complexity of a lock-free deque.
type sparkPool struct {
	mu    sync.Mutex
	items []par.Closure
}

func (p *sparkPool) push(c par.Closure) {
	p.mu.Lock()
	p.items = append(p.items, c)
	p.mu.Unlock()
}

// takeOne atomically removes and returns one spark, FIFO, or reports
// false if the pool is empty. FIFO order gives simultaneous fishers
// no advantage from arrival order at the tail vs. head, matching the
// design's "no affinity" tie-break rule.
func (p *sparkPool) takeOne() (par.Closure, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return par.Closure{}, false
	}
	c := p.items[0]
	p.items = p.items[1:]
	return c, true
}

func (p *sparkPool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
