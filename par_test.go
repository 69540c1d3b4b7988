// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package par

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorker is a minimal, single-threaded par.Worker: forked
// continuations and sparks queue up rather than running concurrently,
// and draining the queue is left to the test via drain. This is
// enough to exercise Bind/Spawn/SpawnAt without pulling in a whole
// par/engine scheduler.
type fakeWorker struct {
	ctx context.Context

	mu     sync.Mutex
	queue  []Par
	sparks []Closure
}

func newFakeWorker() *fakeWorker { return &fakeWorker{ctx: context.Background()} }

func (w *fakeWorker) Fork(act Par) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queue = append(w.queue, act)
}

func (w *fakeWorker) Spark(clo Closure) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sparks = append(w.sparks, clo)
}

func (w *fakeWorker) PushTo(ctx context.Context, node NodeId, clo Closure) error {
	return stderrors.New("fakeWorker: PushTo is not supported")
}

func (w *fakeWorker) Get(ctx context.Context, v *IVar) (interface{}, error) {
	return v.Get(ctx)
}

func (w *fakeWorker) Context() context.Context { return w.ctx }

// drain runs every forked task and spark to quiescence, single
// threaded. It stands in for a real scheduler's worker loop.
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
			v, err := UnClosure(clo)
			if err != nil {
				return err
			}
			if p, ok := v.(Par); ok {
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

var _ Worker = (*fakeWorker)(nil)

func TestBindSequencesComputations(t *testing.T) {
	w := newFakeWorker()
	p := Bind(Return(2), func(x interface{}) Par {
		return Return(x.(int) * 10)
	})
	v, err := p(w)
	require.NoError(t, err)
	assert.Equal(t, 20, v)
}

func TestFailPropagatesError(t *testing.T) {
	w := newFakeWorker()
	sentinel := stderrors.New("boom")
	_, err := Fail(sentinel)(w)
	assert.Same(t, sentinel, err)
}

func TestSpawnDeliversResultThroughGet(t *testing.T) {
	SetMyNode(NewNodeId(0, "local:0"))
	const label = "par_test.spawn-value"
	RegisterValue(label, func(b []byte) (interface{}, error) { return decodeValue(b) })

	w := newFakeWorker()
	v, err := Spawn(w, ToClosure(label, 99))
	require.NoError(t, err)
	assert.False(t, v.IsFull(), "Spawn must return before the sparked wrapper has run")

	require.NoError(t, w.drain())
	got, err := w.Get(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, 99, got)
}

func TestSpawnOfTaskClosureRunsItsPar(t *testing.T) {
	SetMyNode(NewNodeId(0, "local:0"))
	const label = "par_test.spawn-par-task"
	RegisterTask(label, func(b []byte) (Par, error) {
		return Return("computed"), nil
	})

	w := newFakeWorker()
	clo := NewTaskClosure(label, testPoint{})
	v, err := Spawn(w, clo)
	require.NoError(t, err)
	require.NoError(t, w.drain())
	got, err := w.Get(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "computed", got)
}
