// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package par

import (
	"bytes"
	"encoding/gob"
)

// combinator labels used by ApC and CompC to reconstruct application
// and composition on the far side of the wire. They are registered by
// this file's init, so they are available on every node without user
// action, exactly like bigslice's built-in gob.Register calls for its
// own wire-visible types.
const (
	labelApC  = "par.apC"
	labelCompC = "par.compC"

	// labelForcedValue is the wire label ForceClosure gives every
	// closure it forces, regardless of the closure's original label.
	// A forced task/spark/combinator closure's payload no longer has
	// the shape its original decoder expects (the decoder expects the
	// task's argument struct, not the task's result), so keeping the
	// original label would make a post-force GobEncode/GobDecode round
	// trip decode through the wrong decoder. Relabeling to this
	// RegisterValue entry, whose decoder is plain decodeValue, makes a
	// forced closure decode correctly no matter what it was forced
	// from.
	labelForcedValue = "par.forcedValue"
)

func init() {
	gob.Register(closurePair{})
	RegisterValue(labelForcedValue, decodeValue)
	RegisterCombinator(labelApC, func(b []byte) (Closure, error) {
		v, err := decodeValue(b)
		if err != nil {
			return Closure{}, err
		}
		pair, ok := v.(closurePair)
		if !ok {
			return Closure{}, errRegistryMiss(labelApC)
		}
		return apC(pair.A, pair.B), nil
	})
	RegisterCombinator(labelCompC, func(b []byte) (Closure, error) {
		v, err := decodeValue(b)
		if err != nil {
			return Closure{}, err
		}
		pair, ok := v.(closurePair)
		if !ok {
			return Closure{}, errRegistryMiss(labelCompC)
		}
		return compC(pair.A, pair.B), nil
	})
}

type closurePair struct {
	A, B Closure
}

// A Closure is a value that is both directly executable in-process
// (via UnClosure) and serializable for shipment to another node (via
// its (label, payload) wire form). It is the runtime's representation
// of "code as data": every shippable unit of work — a spark, a pushed
// task, an argument to a strategy — is a Closure.
//
// The zero Closure is not valid; construct one with ToClosure or a
// registered task/spark decoder.
type Closure struct {
	thunk   func() (interface{}, error)
	label   string
	payload []byte
	forced  bool
}

// ToClosure lifts x to a Closure whose thunk simply returns x and
// whose wire form names label, which must have been registered with
// RegisterValue for a type compatible with x. label is typically
// derived from the call site or from a symbol name known to be stable
// across the whole cluster's binary.
func ToClosure(label string, x interface{}) Closure {
	payload, err := encodeValue(x)
	if err != nil {
		panic("par: ToClosure: " + err.Error())
	}
	return Closure{
		thunk:   func() (interface{}, error) { return x, nil },
		label:   label,
		payload: payload,
	}
}

// StaticClosure returns a Closure over the function value registered
// under label via RegisterValue, carrying no payload of its own. A Go
// func value cannot be gob-encoded, so unlike ToClosure this does not
// try to serialize x directly: label alone identifies the function on
// every node, exactly as a task or spark label identifies its
// decoder. Its RegisterValue decoder should ignore the (nil) payload
// it is handed and simply return the closed-over func value. This is
// how caller code builds the function-valued closures — the f
// argument to ParMap, the trivial/decompose/combine/solve arguments
// to ParDivideAndConquer — that par/strategy applies via ApC.
func StaticClosure(label string) Closure {
	return Closure{
		label: label,
		thunk: func() (interface{}, error) {
			e, ok := lookup(label)
			if !ok || e.value == nil {
				return nil, errRegistryMiss(label)
			}
			return e.value(nil)
		},
	}
}

// taskClosure builds a Closure over a registered task/spark decoder,
// used internally by RegisterTask/RegisterSpark-backed call sites
// (par/strategy and par/engine) so that user code never constructs
// wire forms by hand.
func taskClosure(label string, payload []byte, decode ParDecoder) Closure {
	return Closure{
		label:   label,
		payload: payload,
		thunk: func() (interface{}, error) {
			p, err := decode(payload)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	}
}

// NewTaskClosure encodes args and returns a Closure over the task
// entry registered under label. It panics if label was not
// registered with RegisterTask.
func NewTaskClosure(label string, args interface{}) Closure {
	e, ok := lookup(label)
	if !ok || e.task == nil {
		panic("par: NewTaskClosure: no task entry for label " + label)
	}
	payload, err := encodeValue(args)
	if err != nil {
		panic("par: NewTaskClosure: " + err.Error())
	}
	return taskClosure(label, payload, e.task)
}

// NewSparkClosure encodes args and returns a Closure over the spark
// entry registered under label. It panics if label was not
// registered with RegisterSpark.
func NewSparkClosure(label string, args interface{}) Closure {
	e, ok := lookup(label)
	if !ok || e.spark == nil {
		panic("par: NewSparkClosure: no spark entry for label " + label)
	}
	payload, err := encodeValue(args)
	if err != nil {
		panic("par: NewSparkClosure: " + err.Error())
	}
	return taskClosure(label, payload, e.spark)
}

// UnClosure returns c's underlying value. If c arrived over the wire
// and has not yet been materialized locally (its thunk is nil), it is
// materialized now by looking up c.label in the static table; a
// missing label is a fatal protocol error (ErrRegistryMiss),
// signaling divergent binaries between nodes.
func UnClosure(c Closure) (interface{}, error) {
	if c.thunk != nil {
		return c.thunk()
	}
	e, ok := lookup(c.label)
	if !ok {
		return nil, errRegistryMiss(c.label)
	}
	switch {
	case e.value != nil:
		return e.value(c.payload)
	case e.task != nil:
		return e.task(c.payload)
	case e.spark != nil:
		return e.spark(c.payload)
	case e.combinator != nil:
		inner, err := e.combinator(c.payload)
		if err != nil {
			return nil, err
		}
		return UnClosure(inner)
	default:
		return nil, errRegistryMiss(c.label)
	}
}

// ForceClosure evaluates c's thunk to normal form and returns a new
// Closure whose wire form's payload IS the evaluated value, so a
// later GobEncode does not re-run the thunk. ForceClosure is
// idempotent: forcing an already-forced Closure returns it unchanged.
//
// The result is always relabeled to labelForcedValue rather than
// keeping c's original label: c's original decoder (a task, spark, or
// combinator entry) expects to decode its own argument shape, not the
// value UnClosure produced, so shipping the forced payload under the
// original label would decode successfully but produce garbage on the
// far side. labelForcedValue's decoder is the generic decodeValue,
// which matches the payload ForceClosure actually writes.
func ForceClosure(c Closure) (Closure, error) {
	if c.forced {
		return c, nil
	}
	v, err := UnClosure(c)
	if err != nil {
		return Closure{}, err
	}
	payload, err := encodeValue(v)
	if err != nil {
		return Closure{}, err
	}
	return Closure{
		thunk:   func() (interface{}, error) { return v, nil },
		label:   labelForcedValue,
		payload: payload,
		forced:  true,
	}, nil
}

// apC returns a Closure computing the application of f (a Closure
// over a func(interface{}) interface{}, or a func(interface{})
// (interface{}, error)) to x.
func apC(f, x Closure) Closure {
	payload, err := encodeValue(closurePair{A: f, B: x})
	if err != nil {
		panic("par: apC: " + err.Error())
	}
	return Closure{
		label:   labelApC,
		payload: payload,
		thunk: func() (interface{}, error) {
			fv, err := UnClosure(f)
			if err != nil {
				return nil, err
			}
			xv, err := UnClosure(x)
			if err != nil {
				return nil, err
			}
			return applyOne(fv, xv)
		},
	}
}

// ApC returns a Closure computing the application of f to x.
func ApC(f, x Closure) Closure { return apC(f, x) }

// compC returns a Closure representing the composition of g after f:
// compC(g, f) applied to x computes g(f(x)).
func compC(g, f Closure) Closure {
	payload, err := encodeValue(closurePair{A: g, B: f})
	if err != nil {
		panic("par: compC: " + err.Error())
	}
	return Closure{
		label:   labelCompC,
		payload: payload,
		thunk: func() (interface{}, error) {
			gv, err := UnClosure(g)
			if err != nil {
				return nil, err
			}
			fv, err := UnClosure(f)
			if err != nil {
				return nil, err
			}
			return composeOne(gv, fv)
		},
	}
}

// CompC returns a Closure representing the composition of g after f.
func CompC(g, f Closure) Closure { return compC(g, f) }

func applyOne(fv, xv interface{}) (interface{}, error) {
	switch f := fv.(type) {
	case func(interface{}) interface{}:
		return f(xv), nil
	case func(interface{}) (interface{}, error):
		return f(xv)
	default:
		return nil, errApply
	}
}

func composeOne(gv, fv interface{}) (interface{}, error) {
	return func(x interface{}) (interface{}, error) {
		mid, err := applyOne(fv, x)
		if err != nil {
			return nil, err
		}
		return applyOne(gv, mid)
	}, nil
}

var errApply = &closureTypeError{"apC: operand is not a supported function value"}

type closureTypeError struct{ msg string }

func (e *closureTypeError) Error() string { return e.msg }

// GobEncode implements gob.GobEncoder, allowing a Closure to be
// embedded directly inside any other gob-encoded message (task
// payloads, EXECUTE/RPUT envelopes). It ships c's (label, payload)
// wire form exactly as constructed: every constructor in this file
// (ToClosure, StaticClosure, taskClosure and its callers, apC, compC)
// already keeps payload consistent with label without evaluating the
// closure's thunk, which matters because a spark or task closure's
// thunk yields a Par value — a func — that cannot itself be
// gob-encoded. Forcing to normal form is a distinct, explicit
// operation (see ForceClosure and the ForceCC strategy), not a
// prerequisite for shipping a closure over the wire.
func (c Closure) GobEncode() ([]byte, error) {
	forced := c
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(forced.label); err != nil {
		return nil, err
	}
	if err := enc.Encode(forced.payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder. The resulting Closure has a
// nil thunk; it is materialized lazily by UnClosure on first use, per
// the wire-form contract.
func (c *Closure) GobDecode(b []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&c.label); err != nil {
		return err
	}
	if err := dec.Decode(&c.payload); err != nil {
		return err
	}
	c.thunk = nil
	c.forced = false
	return nil
}
