// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package strategy

import (
	"context"
	"encoding/gob"

	par "github.com/brezal/hdph-rs"
)

// A ProtoStrategy evaluates clo under w and returns an IVar for its
// (still possibly pending) result, rather than blocking for the
// value the way a Strategy does. SparkClosure and PushClosure are the
// two proto-strategies the skeleton layer builds everything else on.
type ProtoStrategy func(w par.Worker, clo Closure) (*par.IVar, error)

// Closure is an alias kept local to this package so skeleton
// signatures read as "a closure argument", matching the naming used
// throughout the design; it is exactly par.Closure.
type Closure = par.Closure

const labelStratSpark = "par/strategy.sparkWrapper"

type stratWrapperArgs struct {
	Clo   par.Closure
	Strat Strategy
	GV    par.GIVar
}

func init() {
	gob.Register(stratWrapperArgs{})
	par.RegisterSpark(labelStratSpark, decodeStratWrapper)
}

func decodeStratWrapper(b []byte) (par.Par, error) {
	args, err := decodeStratArgs(b)
	if err != nil {
		return nil, err
	}
	return stratWrapperBody(args), nil
}

func decodeStratArgs(b []byte) (stratWrapperArgs, error) {
	v, err := par.DecodePayload(b)
	if err != nil {
		return stratWrapperArgs{}, err
	}
	args, ok := v.(stratWrapperArgs)
	if !ok {
		return stratWrapperArgs{}, par.ErrRegistryMiss(labelStratSpark)
	}
	return args, nil
}

func stratWrapperBody(args stratWrapperArgs) par.Par {
	return func(w par.Worker) (interface{}, error) {
		v, err := par.UnClosure(args.Clo)
		if err != nil {
			return nil, err
		}
		if p, ok := v.(par.Par); ok {
			v, err = p(w)
			if err != nil {
				return nil, err
			}
		}
		result, err := Using(v, args.Strat)
		if err != nil {
			return nil, err
		}
		if err := par.RPut(w.Context(), args.GV, result); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

func sparkWrapperClosure(clo par.Closure, s Strategy, gv par.GIVar) par.Closure {
	return par.NewSparkClosure(labelStratSpark, stratWrapperArgs{Clo: clo, Strat: s, GV: gv})
}

// SparkClosure allocates an IVar, globalises it, and sparks a wrapper
// that runs clo, applies s to its result (unClosure s in the design's
// terms — here s is looked up by name rather than itself unClosure'd,
// see Strategy), and writes the result via RPut. The IVar is returned
// immediately, still possibly Empty.
func SparkClosure(w par.Worker, s Strategy, clo par.Closure) (*par.IVar, error) {
	v := par.NewIVar()
	gv, err := par.Glob(v)
	if err != nil {
		return nil, err
	}
	w.Spark(sparkWrapperClosure(clo, s, gv))
	return v, nil
}

// PushClosure behaves like SparkClosure but eagerly ships the wrapper
// to node via EXECUTE instead of sparking it, guaranteeing placement
// rather than leaving it stealable.
func PushClosure(ctx context.Context, w par.Worker, node par.NodeId, s Strategy, clo par.Closure) (*par.IVar, error) {
	v := par.NewIVar()
	gv, err := par.Glob(v)
	if err != nil {
		return nil, err
	}
	if err := w.PushTo(ctx, node, sparkWrapperClosure(clo, s, gv)); err != nil {
		return nil, err
	}
	return v, nil
}
