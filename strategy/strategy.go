// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package strategy implements the evaluation-strategy and skeleton
// layer built on top of par: composable Strategy values, the
// sparkClosure/pushClosure proto-strategies, list strategies
// (chunked/sliced), the parMap family of task-farm skeletons, a
// divide-and-conquer skeleton, and a threshold map-reduce over an
// inclusive integer range.
//
// This has no direct counterpart in bigslice, whose Slice/Func layer
// solves a different problem (partitioned dataframe transforms rather
// than task-farm scheduling), so it is grounded instead on bigslice's
// closure-and-registry idiom (func.go, exec/local.go's task
// invocation) generalized to the parallel-strategies API sketched by
// ExaScience-pargo's Control.Parallel.Strategies port.
package strategy

import (
	"sync"

	par "github.com/brezal/hdph-rs"
	"github.com/grailbio/base/errors"
)

// Strategy names a registered evaluation strategy: a function applied
// to a value to decide how much of it gets forced before a spawn's
// result is written into its cell. Strategies must be nameable rather
// than carried as bare Go closures because sparkClosure/pushClosure
// wrappers may run on any node in the cluster; a Strategy crosses the
// wire as this string, exactly as a par.Closure crosses the wire as
// its label.
type Strategy string

// Built-in strategies, registered by this file's init.
const (
	// R0 is the identity strategy: it evaluates nothing beyond what is
	// already a plain Go value.
	R0 Strategy = "par/strategy.r0"
	// RSeq forces a par.Closure argument one level, to the value its
	// thunk produces, but does not descend into that value.
	RSeq Strategy = "par/strategy.rseq"
	// RDeepSeq recursively forces every par.Closure reachable from its
	// argument, including inside []interface{} slices.
	RDeepSeq Strategy = "par/strategy.rdeepseq"
	// ForceCC forces its argument into its evaluated, wire-stable
	// ForceClosure form rather than unwrapping it to a bare value —
	// wrapping a plain value in a closure first if it is not already
	// one; used by ParMapNF so map results remain re-shippable closures.
	ForceCC Strategy = "par/strategy.forceCC"
)

type evalFunc func(interface{}) (interface{}, error)

var (
	stratMu  sync.Mutex
	stratTab = map[Strategy]evalFunc{}
)

// Register installs a named strategy so sparkClosure/pushClosure
// wrappers on any node can look it up by name. User strategies must
// be registered on every node before Seal, exactly like a par
// closure label.
func Register(name Strategy, fn func(interface{}) (interface{}, error)) {
	stratMu.Lock()
	defer stratMu.Unlock()
	stratTab[name] = fn
}

func lookupStrategy(name Strategy) (evalFunc, bool) {
	stratMu.Lock()
	defer stratMu.Unlock()
	fn, ok := stratTab[name]
	return fn, ok
}

func init() {
	Register(R0, func(x interface{}) (interface{}, error) { return x, nil })
	Register(RSeq, rseqEval)
	Register(RDeepSeq, rdeepseqEval)
	Register(ForceCC, forceCCEval)
}

func rseqEval(x interface{}) (interface{}, error) {
	if c, ok := x.(par.Closure); ok {
		return par.UnClosure(c)
	}
	return x, nil
}

func rdeepseqEval(x interface{}) (interface{}, error) {
	switch v := x.(type) {
	case par.Closure:
		inner, err := par.UnClosure(v)
		if err != nil {
			return nil, err
		}
		return rdeepseqEval(inner)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			r, err := rdeepseqEval(e)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return x, nil
	}
}

func forceCCEval(x interface{}) (interface{}, error) {
	if c, ok := x.(par.Closure); ok {
		return par.ForceClosure(c)
	}
	return par.ForceClosure(par.ToClosure(forcedValueLabel, x))
}

// forcedValueLabel names the wire form ForceCC gives a value that did
// not already arrive as a par.Closure, so its ForceClosure result can
// still be shipped and later UnClosure'd like any other closure.
const forcedValueLabel = "par/strategy.forcedValue"

func init() {
	par.RegisterValue(forcedValueLabel, func(b []byte) (interface{}, error) {
		return par.DecodePayload(b)
	})
}

// Using applies s to x. Because Go values carry no laziness, its only
// observable effect is forcing any par.Closure reachable from x; for
// a bare value it always returns x unchanged, satisfying strategy
// identity for every built-in strategy.
func Using(x interface{}, s Strategy) (interface{}, error) {
	fn, ok := lookupStrategy(s)
	if !ok {
		return nil, errUnknownStrategy(s)
	}
	return fn(x)
}

func errUnknownStrategy(s Strategy) error {
	return errors.E(errors.Invalid, "strategy: unregistered strategy "+string(s))
}
