// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package strategy

import (
	"encoding/gob"
	"math/rand"

	par "github.com/brezal/hdph-rs"
	"github.com/grailbio/base/errors"
)

const labelDCTask = "par/strategy.dcTask"

type dcArgs struct {
	X         interface{}
	Trivial   par.Closure
	Decompose par.Closure
	Combine   par.Closure
	Solve     par.Closure
	Eager     bool
	Nodes     []par.NodeId
}

// CombineArgs is the argument a Combine closure passed to
// ParDivideAndConquer, PushRandDivideAndConquer, MapReduceRangeThresh,
// or PushRandMapReduceRangeThresh receives: the two partial results to
// fold together. It is exported so caller-supplied combine functions,
// living outside this package, can type-assert on it.
type CombineArgs struct {
	A, B interface{}
}

func init() {
	gob.Register(dcArgs{})
	gob.Register(CombineArgs{})
	par.RegisterTask(labelDCTask, decodeDCTask)
}

func decodeDCTask(b []byte) (par.Par, error) {
	args, err := decodeDCArgs(b)
	if err != nil {
		return nil, err
	}
	return dcBody(args), nil
}

func decodeDCArgs(b []byte) (dcArgs, error) {
	v, err := par.DecodePayload(b)
	if err != nil {
		return dcArgs{}, err
	}
	args, ok := v.(dcArgs)
	if !ok {
		return dcArgs{}, par.ErrRegistryMiss(labelDCTask)
	}
	return args, nil
}

func dcClosure(args dcArgs) par.Closure {
	return par.NewTaskClosure(labelDCTask, args)
}

// applyClosureFn applies f, a closure over a supported function
// value, to the plain Go value x by lifting x to a closure and
// reducing par.ApC(f, x) — the same route ParMap uses to apply its
// mapped function to each element.
func applyClosureFn(f par.Closure, x interface{}) (interface{}, error) {
	xc := par.ToClosure(elemLabel, x)
	v, err := par.UnClosure(par.ApC(f, xc))
	if err != nil {
		return nil, err
	}
	return v, nil
}

func dcBody(args dcArgs) par.Par {
	return func(w par.Worker) (interface{}, error) {
		trivialV, err := applyClosureFn(args.Trivial, args.X)
		if err != nil {
			return nil, err
		}
		if isTrivial, _ := trivialV.(bool); isTrivial {
			return applyClosureFn(args.Solve, args.X)
		}

		subsV, err := applyClosureFn(args.Decompose, args.X)
		if err != nil {
			return nil, err
		}
		subs, ok := subsV.([]interface{})
		if !ok {
			return nil, errDCShape()
		}

		ivars := make([]*par.IVar, len(subs))
		for i, sub := range subs {
			subArgs := args
			subArgs.X = sub
			subClo := dcClosure(subArgs)
			var (
				v   *par.IVar
				err error
			)
			if args.Eager && len(args.Nodes) > 0 {
				node := args.Nodes[rand.Intn(len(args.Nodes))]
				v, err = PushClosure(w.Context(), w, node, R0, subClo)
			} else {
				v, err = SparkClosure(w, R0, subClo)
			}
			if err != nil {
				return nil, err
			}
			ivars[i] = v
		}
		results, err := awaitAll(w, ivars)
		if err != nil {
			return nil, err
		}
		return combineAll(args.Combine, results)
	}
}

// combineAll left-folds combine over results, matching the design's
// "reduces left-to-right on each segment" rule for associative
// combinators.
func combineAll(combine par.Closure, results []interface{}) (interface{}, error) {
	if len(results) == 0 {
		return nil, nil
	}
	acc := results[0]
	for _, r := range results[1:] {
		next, err := applyClosureFn(combine, CombineArgs{A: acc, B: r})
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

func errDCShape() error {
	return errors.E(errors.Invalid, "strategy: decompose closure did not return []interface{}")
}

// ParDivideAndConquer solves x by recursively decomposing it into
// sparked subproblems until trivial holds, then combining solved
// leaves back up in left-to-right order. trivial, decompose, combine,
// and solve are closures over ordinary Go function values: trivial
// and solve are unary, decompose is unary returning []interface{},
// and combine accepts a CombineArgs{A, B} pair.
func ParDivideAndConquer(w par.Worker, trivial, decompose, combine, solve par.Closure, x interface{}) (interface{}, error) {
	return dcBody(dcArgs{X: x, Trivial: trivial, Decompose: decompose, Combine: combine, Solve: solve})(w)
}

// PushRandDivideAndConquer behaves like ParDivideAndConquer but
// eagerly pushes every subproblem to a uniformly random node from ns
// instead of sparking it.
func PushRandDivideAndConquer(w par.Worker, ns []par.NodeId, trivial, decompose, combine, solve par.Closure, x interface{}) (interface{}, error) {
	return dcBody(dcArgs{X: x, Trivial: trivial, Decompose: decompose, Combine: combine, Solve: solve, Eager: true, Nodes: ns})(w)
}
