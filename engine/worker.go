// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"context"

	par "github.com/brezal/hdph-rs"
	"github.com/grailbio/base/log"
)

// A Worker is one of a node's N cooperative execution contexts. It
// owns a local deque of forked continuations and runs a single
// goroutine that alternates between draining that deque, taking
// sparks from the node-wide pool, and fishing peers when both are
// empty. Worker implements par.Worker, the capability interface Par
// computations use to fork, spark, push, and block.
//
// This generalizes bigslice's localExecutor (exec/local.go), which
// runs one goroutine per runnable task rather than a fixed pool of
// workers with local deques; the runtime's design calls for genuine
// work-stealing between a bounded set of workers, so a Cilk-style
// per-worker deque replaces bigslice's unbounded goroutine-per-task
// model.
type Worker struct {
	id    int
	sched *Scheduler
	dq    deque
	ctx   context.Context
}

var _ par.Worker = (*Worker)(nil)

// ID returns the worker's index within its node, 0..NumWorkers-1.
func (w *Worker) ID() int { return w.id }

// Fork implements par.Worker.
func (w *Worker) Fork(act par.Par) {
	w.sched.stats.IncTasksForked()
	w.dq.push(act)
}

// Spark implements par.Worker.
func (w *Worker) Spark(clo par.Closure) {
	w.sched.stats.IncSparksCreated()
	par.Debugf(3, "spark created on worker %d", w.id)
	w.sched.sparks.push(clo)
}

// PushTo implements par.Worker.
func (w *Worker) PushTo(ctx context.Context, node par.NodeId, clo par.Closure) error {
	return w.sched.pushTo(ctx, node, clo)
}

// Get implements par.Worker.
func (w *Worker) Get(ctx context.Context, v *par.IVar) (interface{}, error) {
	return v.Get(ctx)
}

// Context implements par.Worker.
func (w *Worker) Context() context.Context { return w.ctx }

// run drains w's local deque and the shared spark pool until the
// scheduler is stopped, fishing peers whenever both are empty.
func (w *Worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if act, ok := w.dq.pop(); ok {
			w.exec(act)
			continue
		}
		if clo, ok := w.sched.sparks.takeOne(); ok {
			w.sched.stats.IncSparksConverted()
			par.Debugf(3, "spark converted to task on worker %d", w.id)
			w.exec(sparkToPar(clo))
			continue
		}
		w.sched.fishOnce(ctx, w)
	}
}

func (w *Worker) exec(act par.Par) {
	defer func() {
		if r := recover(); r != nil {
			log.Error.Printf("worker %d: task panic: %v", w.id, r)
		}
	}()
	if _, err := act(w); err != nil {
		log.Error.Printf("worker %d: task error: %v", w.id, err)
	}
	w.sched.stats.IncTasksCompleted()
}

// sparkToPar adapts a spark (a Closure of type Par ()) into a Par
// value that the worker loop can execute uniformly alongside forked
// tasks.
func sparkToPar(clo par.Closure) par.Par {
	return func(w par.Worker) (interface{}, error) {
		v, err := par.UnClosure(clo)
		if err != nil {
			return nil, err
		}
		if p, ok := v.(par.Par); ok {
			return p(w)
		}
		return v, nil
	}
}
