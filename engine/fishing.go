// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"time"

	par "github.com/brezal/hdph-rs"
	"github.com/brezal/hdph-rs/rpc"
	"github.com/grailbio/base/retry"
)

// fishOnce is called by an idle worker once its local deque and the
// node-wide spark pool are both empty. It picks a random peer,
// FISHes it, and blocks (with a bounded backoff between attempts)
// until either a spark arrives, a definitive NOWORK arrives, or the
// context is cancelled. On success the spark is forked directly onto
// w rather than routed back through the shared pool, mirroring HdpH's
// "steal converts directly to a task" rule.
func (s *Scheduler) fishOnce(ctx context.Context, w *Worker) {
	peer, ok := s.randomPeer()
	if !ok {
		// No peers at all: nothing to steal from. Avoid busy-spinning.
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Millisecond):
		}
		return
	}

	// Bound how many FISH round-trips this node keeps outstanding at
	// once to Config.MaxFish, exactly as localExecutor.limiter bounds
	// concurrent task runs: idle workers beyond the cap wait here
	// rather than flooding every peer with simultaneous FISHes.
	if err := s.fishLimiter.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.fishLimiter.Release(1)

	seq := s.nextFishSeq()
	replyc := make(chan fishReply, 1)
	s.fishMu.Lock()
	s.fishWait[seq] = replyc
	s.fishMu.Unlock()
	defer func() {
		s.fishMu.Lock()
		delete(s.fishWait, seq)
		s.fishMu.Unlock()
	}()

	env := rpc.Envelope{Tag: rpc.TagFish, Payload: gobEncode(fishMsg{Fisher: s.self, Seq: seq})}
	s.stats.IncFishesSent()
	par.Debugf(6, "worker %d fishing %v seq=%d", w.id, peer, seq)
	if err := s.ep.Send(peer.Addr, env); err != nil {
		// Peer likely down; back off briefly and let the caller retry
		// against a (possibly different) random peer next iteration.
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Millisecond):
		}
		return
	}

	select {
	case <-ctx.Done():
	case reply := <-replyc:
		if reply.hasWork {
			s.stats.IncSparksStolen()
			w.Fork(sparkToPar(reply.spark))
			return
		}
		s.backoffAfterNoWork(ctx)
	case <-time.After(s.cfg.HeartbeatTimeout):
		// Fisher gave up waiting on this peer; the map entry above is
		// cleaned up by the deferred delete regardless of outcome.
	}
}

// backoffAfterNoWork sleeps for the first step (1ms) of the retry
// policy shared across all fishes on this scheduler, bounding how fast
// a lightly loaded cluster spins on repeated FISH/NOWORK exchanges. It
// keeps no count of consecutive NOWORK replies, so the sleep is the
// same every time.
func (s *Scheduler) backoffAfterNoWork(ctx context.Context) {
	retries := 0
	_ = retry.Wait(ctx, fishBackoff, retries)
}

func (s *Scheduler) nextFishSeq() uint64 {
	s.fishMu.Lock()
	defer s.fishMu.Unlock()
	s.fishSeq++
	return s.fishSeq
}

func (s *Scheduler) deliverFishReply(seq uint64, r fishReply) {
	s.fishMu.Lock()
	ch, ok := s.fishWait[seq]
	s.fishMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- r:
	default:
	}
}

// handleFish answers an inbound FISH: if this node has a spark to
// spare, SCHEDULE it to the fisher; otherwise reply NOWORK. Sparks are
// taken from the node-wide pool, never from a worker's private deque,
// matching HdpH's rule that only sparks (not forked tasks) migrate.
func (s *Scheduler) handleFish(m fishMsg) {
	env := rpc.Envelope{Tag: rpc.TagNoWork, Payload: gobEncode(noWorkMsg{Seq: m.Seq})}
	if clo, ok := s.sparks.takeOne(); ok {
		s.stats.IncFishesServed()
		env = rpc.Envelope{Tag: rpc.TagSchedule, Payload: gobEncode(scheduleMsg{Seq: m.Seq, Spark: clo})}
	}
	s.stats.IncMessagesSent()
	if err := s.ep.Send(m.Fisher.Addr, env); err != nil {
		par.Debugf(2, "failed replying to fish from %v: %v", m.Fisher, err)
	}
}
