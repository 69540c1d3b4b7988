// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package strategy

import (
	"context"
	"math/rand"

	par "github.com/brezal/hdph-rs"
	"github.com/grailbio/base/errors"
)

// ParClosureList sparks every element of xs under s via SparkClosure,
// then blocks for each result in input order. The list itself is not
// evaluated in parallel with the caller sparking it — only the
// resulting IVars' fulfillment is.
func ParClosureList(w par.Worker, s Strategy, xs []par.Closure) ([]interface{}, error) {
	ivars := make([]*par.IVar, len(xs))
	for i, x := range xs {
		v, err := SparkClosure(w, s, x)
		if err != nil {
			return nil, err
		}
		ivars[i] = v
	}
	return awaitAll(w, ivars)
}

// PushClosureList behaves like ParClosureList but eagerly places each
// element on a node from ns, cycling round-robin.
func PushClosureList(ctx context.Context, w par.Worker, s Strategy, ns []par.NodeId, xs []par.Closure) ([]interface{}, error) {
	if len(ns) == 0 {
		return nil, errNoNodes()
	}
	ivars := make([]*par.IVar, len(xs))
	for i, x := range xs {
		node := ns[i%len(ns)]
		v, err := PushClosure(ctx, w, node, s, x)
		if err != nil {
			return nil, err
		}
		ivars[i] = v
	}
	return awaitAll(w, ivars)
}

// PushRandClosureList behaves like PushClosureList but places each
// element on a uniformly random node from ns, independently per task.
func PushRandClosureList(ctx context.Context, w par.Worker, s Strategy, ns []par.NodeId, xs []par.Closure) ([]interface{}, error) {
	if len(ns) == 0 {
		return nil, errNoNodes()
	}
	ivars := make([]*par.IVar, len(xs))
	for i, x := range xs {
		node := ns[rand.Intn(len(ns))]
		v, err := PushClosure(ctx, w, node, s, x)
		if err != nil {
			return nil, err
		}
		ivars[i] = v
	}
	return awaitAll(w, ivars)
}

func awaitAll(w par.Worker, ivars []*par.IVar) ([]interface{}, error) {
	out := make([]interface{}, len(ivars))
	for i, v := range ivars {
		x, err := w.Get(w.Context(), v)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func errNoNodes() error {
	return errors.E(errors.Invalid, "strategy: push list given an empty node set")
}

// Chunk splits xs into contiguous runs of at most size k: Chunk(3,
// [c1..c5]) yields [[c1,c2,c3],[c4,c5]].
func Chunk(k int, xs []par.Closure) [][]par.Closure {
	if k <= 0 {
		k = 1
	}
	var out [][]par.Closure
	for len(xs) > 0 {
		n := k
		if n > len(xs) {
			n = len(xs)
		}
		out = append(out, xs[:n])
		xs = xs[n:]
	}
	return out
}

// Unchunk is Chunk's inverse: it concatenates the chunks back into a
// single flat sequence.
func Unchunk(chunks [][]par.Closure) []par.Closure {
	var out []par.Closure
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// Slice splits xs into k interleaved subsequences: Slice(3, [c1..c5])
// yields [[c1,c4],[c2,c5],[c3]].
func Slice(k int, xs []par.Closure) [][]par.Closure {
	if k <= 0 {
		k = 1
	}
	out := make([][]par.Closure, k)
	for i, x := range xs {
		out[i%k] = append(out[i%k], x)
	}
	return out
}

// Unslice is Slice's inverse: it interleaves the k subsequences back
// into a single flat sequence in original order.
func Unslice(slices [][]par.Closure) []par.Closure {
	var out []par.Closure
	i := 0
	for {
		added := false
		for _, s := range slices {
			if i < len(s) {
				out = append(out, s[i])
				added = true
			}
		}
		if !added {
			break
		}
		i++
	}
	return out
}

// EvalClusterBy evaluates x under s after clustering it with cluster,
// then reassembles the result with uncluster. Callers must ensure
// uncluster(cluster(x)) == x for every x they pass; that invariant is
// not checked here.
func EvalClusterBy(w par.Worker, cluster func(interface{}) interface{}, uncluster func(interface{}) interface{}, s Strategy, x interface{}) (interface{}, error) {
	clustered := cluster(x)
	result, err := Using(clustered, s)
	if err != nil {
		return nil, err
	}
	return uncluster(result), nil
}
