// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package strategy

import (
	"context"

	par "github.com/brezal/hdph-rs"
)

// ParMap lifts every element of xs to a closure, applies f (itself a
// closure over a supported function value) to each, evaluates the
// results under s via ParClosureList, and returns the plain values in
// input order.
func ParMap(w par.Worker, s Strategy, f par.Closure, xs []interface{}) ([]interface{}, error) {
	tasks := make([]par.Closure, len(xs))
	for i, x := range xs {
		tasks[i] = par.ApC(f, par.ToClosure(elemLabel, x))
	}
	return ParClosureList(w, s, tasks)
}

// ParMapNF is ParMap under the ForceCC strategy: every result is
// forced into its wire-stable closure form before being returned.
func ParMapNF(w par.Worker, f par.Closure, xs []interface{}) ([]interface{}, error) {
	return ParMap(w, ForceCC, f, xs)
}

// ParMapChunked partitions xs into chunks of size k, applies ParMap's
// closure-application step within each chunk, and flattens the
// result back to input order — the same values ParMap would produce,
// but sparked one chunk at a time: each element is still its own
// spark, and a chunk's results are all awaited before the next chunk
// is sparked.
func ParMapChunked(w par.Worker, s Strategy, k int, f par.Closure, xs []interface{}) ([]interface{}, error) {
	tasks := make([]par.Closure, len(xs))
	for i, x := range xs {
		tasks[i] = par.ApC(f, par.ToClosure(elemLabel, x))
	}
	chunks := Chunk(k, tasks)
	results := make([][]interface{}, len(chunks))
	for i, c := range chunks {
		r, err := ParClosureList(w, s, c)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	var out []interface{}
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// ParMapSliced behaves like ParMapChunked but partitions xs with
// Slice (k interleaved subsequences) instead of Chunk, and reassembles
// with Unslice's interleaving before returning.
func ParMapSliced(w par.Worker, s Strategy, k int, f par.Closure, xs []interface{}) ([]interface{}, error) {
	tasks := make([]par.Closure, len(xs))
	for i, x := range xs {
		tasks[i] = par.ApC(f, par.ToClosure(elemLabel, x))
	}
	slices := Slice(k, tasks)
	resultSlices := make([][]par.Closure, len(slices))
	for i, s2 := range slices {
		results, err := ParClosureList(w, s, s2)
		if err != nil {
			return nil, err
		}
		resultSlices[i] = wrapAsClosures(results)
	}
	unsliced := Unslice(resultSlices)
	return unwrapClosureValues(unsliced)
}

// PushMap behaves like ParMap but places each task on a node from ns,
// cycling round-robin, instead of sparking it.
func PushMap(ctx context.Context, w par.Worker, s Strategy, ns []par.NodeId, f par.Closure, xs []interface{}) ([]interface{}, error) {
	tasks := make([]par.Closure, len(xs))
	for i, x := range xs {
		tasks[i] = par.ApC(f, par.ToClosure(elemLabel, x))
	}
	return PushClosureList(ctx, w, s, ns, tasks)
}

// PushRandMap behaves like PushMap but places each task on a
// uniformly random node from ns, independently per task.
func PushRandMap(ctx context.Context, w par.Worker, s Strategy, ns []par.NodeId, f par.Closure, xs []interface{}) ([]interface{}, error) {
	tasks := make([]par.Closure, len(xs))
	for i, x := range xs {
		tasks[i] = par.ApC(f, par.ToClosure(elemLabel, x))
	}
	return PushRandClosureList(ctx, w, s, ns, tasks)
}

// ParMapM sparks f (a closure over a monadic, Par-returning function)
// applied to each element of xs and blocks for every result in input
// order, without an intervening evaluation strategy: f's own Par
// computation determines how much work happens remotely.
func ParMapM(w par.Worker, f par.Closure, xs []interface{}) ([]interface{}, error) {
	return ParMap(w, R0, f, xs)
}

// PushMapM behaves like ParMapM but places each task on a node from
// ns, cycling round-robin.
func PushMapM(ctx context.Context, w par.Worker, ns []par.NodeId, f par.Closure, xs []interface{}) ([]interface{}, error) {
	return PushMap(ctx, w, R0, ns, f, xs)
}

// ParMapM_ behaves like ParMapM but discards every result, returning
// only the first error encountered (if any).
func ParMapM_(w par.Worker, f par.Closure, xs []interface{}) error {
	_, err := ParMapM(w, f, xs)
	return err
}

// PushMapM_ behaves like PushMapM but discards every result.
func PushMapM_(ctx context.Context, w par.Worker, ns []par.NodeId, f par.Closure, xs []interface{}) error {
	_, err := PushMapM(ctx, w, ns, f, xs)
	return err
}

// PushRandMapM_ behaves like PushMapM_ but places each task on a
// uniformly random node from ns.
func PushRandMapM_(ctx context.Context, w par.Worker, ns []par.NodeId, f par.Closure, xs []interface{}) error {
	_, err := PushRandMap(ctx, w, R0, ns, f, xs)
	return err
}

const elemLabel = "par/strategy.elem"

func init() {
	par.RegisterValue(elemLabel, func(b []byte) (interface{}, error) {
		return par.DecodePayload(b)
	})
}

func wrapAsClosures(vs []interface{}) []par.Closure {
	out := make([]par.Closure, len(vs))
	for i, v := range vs {
		out[i] = par.ToClosure(elemLabel, v)
	}
	return out
}

func unwrapClosureValues(cs []par.Closure) ([]interface{}, error) {
	out := make([]interface{}, len(cs))
	for i, c := range cs {
		v, err := par.UnClosure(c)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
