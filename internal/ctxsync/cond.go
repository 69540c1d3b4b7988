// Package ctxsync provides synchronization primitives that are
// cancellable through a context.Context, for the blocking waits used
// by par's single-assignment cells.
package ctxsync

import (
	"context"
	"sync"
)

// A Cond is a condition variable with a context-aware Wait. It is
// used wherever a goroutine must block until some guarded state
// changes but must also honor caller-supplied deadlines and
// cancellation, such as IVar.Get waiting for a Put.
type Cond struct {
	l     sync.Locker
	waitc chan struct{}
}

// NewCond returns a new Cond guarded by l.
func NewCond(l sync.Locker) *Cond {
	return &Cond{l: l}
}

// Broadcast wakes all current waiters. The caller must hold l.
func (c *Cond) Broadcast() {
	if c.waitc != nil {
		close(c.waitc)
		c.waitc = nil
	}
}

// Wait blocks until the next Broadcast or until ctx is done,
// whichever comes first. The caller must hold l on entry; l is held
// again on return. If ctx completes first, Wait returns ctx.Err().
func (c *Cond) Wait(ctx context.Context) error {
	if c.waitc == nil {
		c.waitc = make(chan struct{})
	}
	waitc := c.waitc
	c.l.Unlock()
	var err error
	select {
	case <-waitc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	c.l.Lock()
	return err
}
