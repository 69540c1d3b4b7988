// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package strategy

// Fault-tolerant strategies are declared as an extension point but
// deliberately left unimplemented: the semantics an FT skeleton would
// need — which recovery records survive a peer's HEARTBEAT timeout,
// whether a re-sparked task can duplicate a completed one, how a
// PushClosure placement failure differs from a SparkClosure one —
// are not fully specified by anything this tree is grounded on.
// Building them here would mean inventing behavior rather than
// porting it, so the base strategies (SparkClosure, PushClosure, and
// everything built on them) never attempt recovery: a peer's
// disappearance while it holds a sparked task simply loses that
// task's result. When the peer's heartbeats time out, the scheduler
// logs a KindPeerUnreachable error and cancels this node's context, so
// a caller blocked in Get on the corresponding IVar returns the
// context's cancellation error.
//
// A production FT layer would live here as FTSparkClosure /
// FTPushClosure proto-strategies wrapping SparkClosure / PushClosure
// with a recovery-record table keyed by GIVar slot, replayed against
// a fresh node on HEARTBEAT timeout.
