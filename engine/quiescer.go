// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	par "github.com/brezal/hdph-rs"
	"github.com/brezal/hdph-rs/rpc"
)

// A Quiescer implements distributed termination detection. The main
// node periodically circulates a QUIESCE token carrying every node's
// (sparked, taken, forked, done) counters; when two consecutive
// rounds report identical, balanced counters across the whole
// cluster, work has genuinely stopped. This generalizes HdpH's
// quiescence-detection protocol, adapted here to a request/reply
// round over the same rpc.Endpoint used for fishing rather than a
// dedicated ring topology, since the runtime's peer set is already
// fully connected.
type Quiescer struct {
	sched *Scheduler

	mu       sync.Mutex
	pending  map[uint64]chan nodeCounters
	round    uint64
	lastSig  string
	stableAt int
}

func newQuiescer(s *Scheduler) *Quiescer {
	return &Quiescer{sched: s, pending: map[uint64]chan nodeCounters{}}
}

// runRoot is started only on the main node. It polls every node
// (including itself) for its current counters, checks for two
// consecutive matching quiescent rounds, and logs a termination
// violation if quiescence is reached while the main node itself still
// has unfilled globalised IVars; other nodes' globalised IVars are not
// checked.
func (q *Quiescer) runRoot(ctx context.Context) {
	ticker := time.NewTicker(q.sched.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		q.pollRound(ctx)
	}
}

func (q *Quiescer) pollRound(ctx context.Context) {
	nodes := par.AllNodes()
	counters := make([]nodeCounters, 0, len(nodes))
	counters = append(counters, q.localCounters())
	for _, n := range nodes {
		if n == q.sched.self {
			continue
		}
		if c, ok := q.askNode(ctx, n); ok {
			counters = append(counters, c)
		} else {
			// A non-responsive node breaks the round; quiescence cannot
			// be claimed this cycle.
			q.mu.Lock()
			q.stableAt = 0
			q.mu.Unlock()
			return
		}
	}
	q.sched.stats.IncQuiesceRounds()
	q.evaluate(counters)
}

func (q *Quiescer) localCounters() nodeCounters {
	c := q.sched.stats
	return nodeCounters{
		Node:    q.sched.self,
		Sparked: atomic.LoadInt64(&c.SparksCreated),
		Taken:   atomic.LoadInt64(&c.SparksConverted) + atomic.LoadInt64(&c.SparksStolen),
		Forked:  atomic.LoadInt64(&c.TasksForked),
		Done:    atomic.LoadInt64(&c.TasksCompleted),
	}
}

// askNode requests n's current counters by piggybacking on the
// QUIESCE tag: the root sends a probe whose single Counters entry is
// zeroed except for the round's sequence number in Node.Idx, and the
// peer answers with its own counters under that same sequence number.
func (q *Quiescer) askNode(ctx context.Context, n par.NodeId) (nodeCounters, bool) {
	seq := q.nextRound()
	replyc := make(chan nodeCounters, 1)
	q.mu.Lock()
	q.pending[seq] = replyc
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.pending, seq)
		q.mu.Unlock()
	}()

	probe := quiesceMsg{Origin: q.sched.self, Counters: []nodeCounters{{Node: par.NodeId{Idx: int(seq)}}}}
	env := rpc.Envelope{Tag: rpc.TagQuiesce, Payload: gobEncode(probe)}
	if err := q.sched.ep.Send(n.Addr, env); err != nil {
		return nodeCounters{}, false
	}
	select {
	case c := <-replyc:
		c.Node = n
		return c, true
	case <-time.After(q.sched.cfg.HeartbeatTimeout):
		return nodeCounters{}, false
	case <-ctx.Done():
		return nodeCounters{}, false
	}
}

func (q *Quiescer) nextRound() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.round++
	return q.round
}

// handle processes an inbound QUIESCE envelope, whether on the main
// node (as a reply to askNode) or on a leaf node (as a probe to
// answer).
func (q *Quiescer) handle(m quiesceMsg) {
	if !q.sched.cfg.MainNode {
		// This is a probe: reply with our own counters, echoing the
		// probe's synthetic sequence number back via NodeId.Idx.
		seq := uint64(m.Counters[0].Node.Idx)
		reply := q.localCounters()
		env := rpc.Envelope{
			Tag: rpc.TagQuiesce,
			Payload: gobEncode(quiesceMsg{
				Origin:   q.sched.self,
				Counters: []nodeCounters{{Node: par.NodeId{Idx: int(seq)}, Sparked: reply.Sparked, Taken: reply.Taken, Forked: reply.Forked, Done: reply.Done}},
			}),
		}
		if err := q.sched.ep.Send(m.Origin.Addr, env); err != nil {
			par.Debugf(2, "quiescer: replying to probe from %v: %v", m.Origin, err)
		}
		return
	}
	// This is a reply to one of our own probes.
	c := m.Counters[0]
	seq := uint64(c.Node.Idx)
	q.mu.Lock()
	replyc, ok := q.pending[seq]
	q.mu.Unlock()
	if !ok {
		return
	}
	select {
	case replyc <- c:
	default:
	}
}

// evaluate checks whether the cluster-wide counters are balanced
// (every spark taken, every fork completed) and, if so, whether this
// is the second consecutive round to report the same balanced
// signature; two matching rounds in a row rule out a spurious
// snapshot taken mid-flight of an in-transit message.
func (q *Quiescer) evaluate(counters []nodeCounters) {
	var sparked, taken, forked, done int64
	sig := ""
	for _, c := range counters {
		sparked += c.Sparked
		taken += c.Taken
		forked += c.Forked
		done += c.Done
		sig += fmt.Sprintf("%v:%d/%d/%d/%d;", c.Node, c.Sparked, c.Taken, c.Forked, c.Done)
	}
	balanced := sparked == taken && forked == done

	q.mu.Lock()
	if balanced && sig == q.lastSig {
		q.stableAt++
	} else {
		q.stableAt = 0
	}
	q.lastSig = sig
	stable := q.stableAt >= 1
	q.mu.Unlock()

	if !balanced || !stable {
		return
	}
	par.Debugf(1, "quiescer: cluster quiescent (sparked=%d taken=%d forked=%d done=%d)", sparked, taken, forked, done)
	if pending := par.PendingGlobals(); pending > 0 {
		par.Debugf(0, "quiescer: termination violation: %d unfilled globalised IVar(s) at quiescence", pending)
	}
}
