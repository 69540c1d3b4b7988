// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	par "github.com/brezal/hdph-rs"
	"github.com/brezal/hdph-rs/strategy"
	"github.com/grailbio/base/errors"
)

// The demo program's function closures. Every one is registered under
// a stable label at init time and referenced with par.StaticClosure,
// since a Go func value has no gob encoding of its own; only the
// label crosses the wire.
func init() {
	registerFunc("cmd/par.square", squareFn)
	registerFunc("cmd/par.fibTrivial", fibTrivialFn)
	registerFunc("cmd/par.fibDecompose", fibDecomposeFn)
	registerFunc("cmd/par.fibCombine", fibCombineFn)
	registerFunc("cmd/par.fibSolve", fibSolveFn)
}

func registerFunc(label string, fn func(interface{}) interface{}) {
	par.RegisterValue(label, func([]byte) (interface{}, error) { return fn, nil })
}

func squareFn(x interface{}) interface{} {
	n, _ := unwrapIntOrZero(x)
	return n * n
}

// fibTrivialFn is trivial once n is small enough to solve directly.
func fibTrivialFn(x interface{}) interface{} {
	n, _ := unwrapIntOrZero(x)
	return n < 2
}

func fibDecomposeFn(x interface{}) interface{} {
	n, _ := unwrapIntOrZero(x)
	return []interface{}{n - 1, n - 2}
}

func fibCombineFn(x interface{}) interface{} {
	pair := x.(strategy.CombineArgs)
	a, _ := unwrapIntOrZero(pair.A)
	b, _ := unwrapIntOrZero(pair.B)
	return a + b
}

func fibSolveFn(x interface{}) interface{} {
	n, _ := unwrapIntOrZero(x)
	return n
}

func unwrapIntOrZero(x interface{}) (int, bool) {
	n, ok := x.(int)
	return n, ok
}

func unwrapInt(x interface{}) (int, error) {
	n, ok := x.(int)
	if !ok {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("cmd/par: expected int, got %T", x))
	}
	return n, nil
}

// unwrapClosedInt unwraps a par.Closure produced under the ForceCC
// strategy (see strategy.ParMapNF) and expects the result to be an
// int, as squareFn's results are.
func unwrapClosedInt(x interface{}) (int, error) {
	c, ok := x.(par.Closure)
	if !ok {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("cmd/par: expected par.Closure, got %T", x))
	}
	v, err := par.UnClosure(c)
	if err != nil {
		return 0, err
	}
	return unwrapInt(v)
}
