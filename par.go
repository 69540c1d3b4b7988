// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package par

import (
	"context"
	"encoding/gob"
)

// A Par is a suspendable unit of computation: a plan that, given a
// handle to the worker executing it, produces a value or an error.
// Par computations call back into the Worker to fork local
// continuations, spark stealable work, push work to a named node, and
// block on single-assignment cells. This mirrors bigslice's
// Task.Do func([]Reader) Reader: work is a plain function closing
// over what it needs, invoked by the engine rather than by the user.
type Par func(w Worker) (interface{}, error)

// Worker is the capability surface a Par computation needs from the
// scheduler that runs it. par/engine's *Worker implements it; the
// interface lives here (rather than a concrete type) so that this
// package has no dependency on the scheduler package, matching
// bigslice's split between its core types (task.go) and its executor
// (exec/local.go).
type Worker interface {
	// Fork pushes act onto the worker's local deque for later
	// execution; the caller continues running.
	Fork(act Par)
	// Spark pushes clo, a closure of type Par (), into the node-wide
	// spark pool, where it becomes eligible for local execution or
	// theft by a fishing peer.
	Spark(clo Closure)
	// PushTo eagerly ships clo to node for execution there.
	PushTo(ctx context.Context, node NodeId, clo Closure) error
	// Get blocks the calling task until v is Full, or ctx is done.
	Get(ctx context.Context, v *IVar) (interface{}, error)
	// Context returns the ambient context for the running task.
	Context() context.Context
}

// Return produces a Par that yields x without touching the worker.
func Return(x interface{}) Par {
	return func(Worker) (interface{}, error) { return x, nil }
}

// Fail produces a Par that always fails with err.
func Fail(err error) Par {
	return func(Worker) (interface{}, error) { return nil, err }
}

// Bind sequences p, then feeds its result to f to produce the next
// Par, exactly as Haskell's Par monad's >>=. The skeletons in
// par/strategy do not use it; they call the Worker directly.
func Bind(p Par, f func(interface{}) Par) Par {
	return func(w Worker) (interface{}, error) {
		v, err := p(w)
		if err != nil {
			return nil, err
		}
		return f(v)(w)
	}
}

// Fork runs act on w's local deque; act starts after the calling task
// yields or completes, and the calling task is not blocked by it.
func Fork(w Worker, act Par) { w.Fork(act) }

// Spark places clo in the node-wide spark pool. Any node's idle
// worker may steal and execute it via the fishing protocol; it may
// also simply run locally if never stolen.
func Spark(w Worker, clo Closure) { w.Spark(clo) }

// PushTo eagerly sends clo to node for execution, bypassing the spark
// pool entirely.
func PushTo(ctx context.Context, w Worker, node NodeId, clo Closure) error {
	return w.PushTo(ctx, node, clo)
}

// Get blocks until v is Full and returns its value.
func Get(w Worker, v *IVar) (interface{}, error) { return w.Get(w.Context(), v) }

// Spawn allocates an IVar, globalises it, and sparks a wrapper
// closure that evaluates clo and writes the result into it via RPut.
// It returns the (still possibly Empty) IVar immediately.
func Spawn(w Worker, clo Closure) (*IVar, error) {
	v := NewIVar()
	gv, err := Glob(v)
	if err != nil {
		return nil, err
	}
	w.Spark(spawnWrapper(clo, gv))
	return v, nil
}

// SpawnAt behaves like Spawn but pushes the wrapper to node instead
// of sparking it, guaranteeing eager placement rather than making the
// work stealable.
func SpawnAt(ctx context.Context, w Worker, node NodeId, clo Closure) (*IVar, error) {
	v := NewIVar()
	gv, err := Glob(v)
	if err != nil {
		return nil, err
	}
	if err := w.PushTo(ctx, node, spawnWrapper(clo, gv)); err != nil {
		return nil, err
	}
	return v, nil
}

const labelSpawnWrapper = "par.spawnWrapper"

type spawnArgs struct {
	Clo Closure
	GV  GIVar
}

func init() {
	gob.Register(spawnArgs{})
	RegisterSpark(labelSpawnWrapper, func(b []byte) (Par, error) {
		args, err := decodeSpawnArgs(b)
		if err != nil {
			return nil, err
		}
		return spawnBody(args.Clo, args.GV), nil
	})
}

func decodeSpawnArgs(b []byte) (spawnArgs, error) {
	v, err := decodeValue(b)
	if err != nil {
		return spawnArgs{}, err
	}
	args, ok := v.(spawnArgs)
	if !ok {
		return spawnArgs{}, errRegistryMiss(labelSpawnWrapper)
	}
	return args, nil
}

func spawnWrapper(clo Closure, gv GIVar) Closure {
	payload, err := encodeValue(spawnArgs{Clo: clo, GV: gv})
	if err != nil {
		panic("par: spawnWrapper: " + err.Error())
	}
	return taskClosure(labelSpawnWrapper, payload, func(b []byte) (Par, error) {
		args, err := decodeSpawnArgs(b)
		if err != nil {
			return nil, err
		}
		return spawnBody(args.Clo, args.GV), nil
	})
}

func spawnBody(clo Closure, gv GIVar) Par {
	return func(w Worker) (interface{}, error) {
		v, err := UnClosure(clo)
		if err != nil {
			return nil, err
		}
		result, err := runValueAsPar(v, w)
		if err != nil {
			return nil, err
		}
		if err := RPut(w.Context(), gv, result); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// runValueAsPar interprets v, the result of UnClosure on a spawned
// closure, either as a Par to be run against w or as a plain value to
// return immediately. This lets Spawn accept both "pure" closures
// (ToClosure of a plain value) and closures wrapping further Par
// computations (NewTaskClosure).
func runValueAsPar(v interface{}, w Worker) (interface{}, error) {
	if p, ok := v.(Par); ok {
		return p(w)
	}
	return v, nil
}
