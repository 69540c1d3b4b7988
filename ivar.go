// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package par

import (
	"context"
	"sync"

	"github.com/brezal/hdph-rs/internal/ctxsync"
)

// An IVar is a single-assignment cell: it holds no value (Empty)
// until exactly one Put succeeds, after which it holds that value
// forever (Full). Reads that arrive while the cell is Empty block
// until it is filled. The pattern mirrors bigslice's Task state
// machine (task.go: State/Broadcast/Wait over a closed-channel
// waitc), specialized to a single Empty/Full transition instead of a
// multi-state task lifecycle.
type IVar struct {
	mu    sync.Mutex
	cond  *ctxsync.Cond
	full  bool
	value interface{}
}

// NewIVar returns a new, Empty IVar.
func NewIVar() *IVar {
	v := &IVar{}
	v.cond = ctxsync.NewCond(&v.mu)
	return v
}

// Put transitions v from Empty to Full(x) and wakes every blocked
// Get. Calling Put on a Full cell is a protocol violation and returns
// ErrDoublePut without disturbing the cell's existing value.
func (v *IVar) Put(x interface{}) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.full {
		return ErrDoublePut
	}
	v.value = x
	v.full = true
	Debugf(7, "ivar: put, waking waiters")
	v.cond.Broadcast()
	return nil
}

// Get returns v's value once it is Full, blocking if v is currently
// Empty. It returns ctx.Err() if ctx is done before a Put occurs.
func (v *IVar) Get(ctx context.Context) (interface{}, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for !v.full {
		Debugf(7, "ivar: get blocking on empty cell")
		if err := v.cond.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return v.value, nil
}

// TryGet returns v's value and true if v is currently Full, or
// (nil, false) without blocking if v is Empty.
func (v *IVar) TryGet() (interface{}, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.full
}

// IsFull reports whether v currently holds a value.
func (v *IVar) IsFull() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.full
}
