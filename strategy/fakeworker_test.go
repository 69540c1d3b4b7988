// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package strategy

import (
	"context"
	"errors"
	"sync"

	par "github.com/brezal/hdph-rs"
)

// fakeWorker is a minimal single-threaded par.Worker good enough to
// drive SparkClosure/PushClosure-based skeletons to completion in a
// test: it queues forked continuations and sparks rather than running
// them concurrently, and a caller drains the queue after issuing the
// top-level call.
type fakeWorker struct {
	ctx context.Context

	mu     sync.Mutex
	queue  []par.Par
	sparks []par.Closure
}

func newFakeWorker() *fakeWorker {
	self := par.NewNodeId(0, "local:0")
	par.SetMyNode(self)
	par.SetAllNodes([]par.NodeId{self})
	return &fakeWorker{ctx: context.Background()}
}

func (w *fakeWorker) Fork(act par.Par) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queue = append(w.queue, act)
}

func (w *fakeWorker) Spark(clo par.Closure) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sparks = append(w.sparks, clo)
}

func (w *fakeWorker) PushTo(ctx context.Context, node par.NodeId, clo par.Closure) error {
	// A single-node fake worker treats a push to itself as a spark;
	// anything else is unreachable in these tests.
	me, _ := par.MyNode()
	if node != me {
		return errors.New("fakeWorker: PushTo to a remote node is not supported")
	}
	w.Spark(clo)
	return nil
}

func (w *fakeWorker) Get(ctx context.Context, v *par.IVar) (interface{}, error) {
	if err := w.drain(); err != nil {
		return nil, err
	}
	return v.Get(ctx)
}

func (w *fakeWorker) Context() context.Context { return w.ctx }

// drain runs every forked task and spark to quiescence, single
// threaded, including any further work they in turn Fork or Spark.
func (w *fakeWorker) drain() error {
	for {
		w.mu.Lock()
		switch {
		case len(w.queue) > 0:
			act := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()
			if _, err := act(w); err != nil {
				return err
			}
		case len(w.sparks) > 0:
			clo := w.sparks[0]
			w.sparks = w.sparks[1:]
			w.mu.Unlock()
			v, err := par.UnClosure(clo)
			if err != nil {
				return err
			}
			if p, ok := v.(par.Par); ok {
				if _, err := p(w); err != nil {
					return err
				}
			}
		default:
			w.mu.Unlock()
			return nil
		}
	}
}

var _ par.Worker = (*fakeWorker)(nil)
