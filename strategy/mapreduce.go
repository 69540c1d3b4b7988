// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package strategy

import (
	"encoding/gob"
	"math/rand"

	par "github.com/brezal/hdph-rs"
)

const labelMapReduceTask = "par/strategy.mapReduceTask"

type mapReduceArgs struct {
	Lo, Hi    int
	Threshold int
	F         par.Closure
	Combine   par.Closure
	Init      interface{}
	Eager     bool
	Nodes     []par.NodeId
}

func init() {
	gob.Register(mapReduceArgs{})
	par.RegisterTask(labelMapReduceTask, decodeMapReduceTask)
}

func decodeMapReduceTask(b []byte) (par.Par, error) {
	args, err := decodeMapReduceArgs(b)
	if err != nil {
		return nil, err
	}
	return mapReduceBody(args), nil
}

func decodeMapReduceArgs(b []byte) (mapReduceArgs, error) {
	v, err := par.DecodePayload(b)
	if err != nil {
		return mapReduceArgs{}, err
	}
	args, ok := v.(mapReduceArgs)
	if !ok {
		return mapReduceArgs{}, par.ErrRegistryMiss(labelMapReduceTask)
	}
	return args, nil
}

func mapReduceClosure(args mapReduceArgs) par.Closure {
	return par.NewTaskClosure(labelMapReduceTask, args)
}

func mapReduceBody(args mapReduceArgs) par.Par {
	return func(w par.Worker) (interface{}, error) {
		if args.Hi-args.Lo <= args.Threshold {
			acc := args.Init
			for i := args.Lo; i <= args.Hi; i++ {
				leaf, err := applyClosureFn(args.F, i)
				if err != nil {
					return nil, err
				}
				next, err := applyClosureFn(args.Combine, CombineArgs{A: acc, B: leaf})
				if err != nil {
					return nil, err
				}
				acc = next
			}
			return acc, nil
		}

		mid := args.Lo + (args.Hi-args.Lo)/2
		upper := args
		upper.Lo, upper.Hi = mid+1, args.Hi
		upperClo := mapReduceClosure(upper)

		var (
			rv  *par.IVar
			err error
		)
		if args.Eager && len(args.Nodes) > 0 {
			node := args.Nodes[rand.Intn(len(args.Nodes))]
			rv, err = PushClosure(w.Context(), w, node, R0, upperClo)
		} else {
			rv, err = SparkClosure(w, R0, upperClo)
		}
		if err != nil {
			return nil, err
		}

		lower := args
		lower.Lo, lower.Hi = args.Lo, mid
		l, err := mapReduceBody(lower)(w)
		if err != nil {
			return nil, err
		}
		r, err := w.Get(w.Context(), rv)
		if err != nil {
			return nil, err
		}
		return applyClosureFn(args.Combine, CombineArgs{A: l, B: r})
	}
}

// MapReduceRangeThresh solves the inclusive integer range [lo, hi] by
// splitting recursively until a segment's hi-lo falls at or below
// threshold, at which point it folds combine over f(lo), f(lo+1), ...,
// f(hi) starting from init sequentially. Above threshold, the upper
// half is solved in parallel (sparked, or pushed to a random node
// from ns if eager is true) while the lower half is solved on the
// calling worker, and the two halves are combined left-to-right.
// combine is assumed associative. Every leaf segment starts its fold
// from init, so the tree of splits leaves the result unchanged only
// when init is an identity for combine.
func MapReduceRangeThresh(w par.Worker, threshold, lo, hi int, f, combine par.Closure, init interface{}) (interface{}, error) {
	args := mapReduceArgs{Lo: lo, Hi: hi, Threshold: threshold, F: f, Combine: combine, Init: init}
	return mapReduceBody(args)(w)
}

// PushRandMapReduceRangeThresh behaves like MapReduceRangeThresh but
// eagerly pushes each parallel half to a uniformly random node from
// ns instead of sparking it.
func PushRandMapReduceRangeThresh(w par.Worker, ns []par.NodeId, threshold, lo, hi int, f, combine par.Closure, init interface{}) (interface{}, error) {
	args := mapReduceArgs{Lo: lo, Hi: hi, Threshold: threshold, F: f, Combine: combine, Init: init, Eager: true, Nodes: ns}
	return mapReduceBody(args)(w)
}
