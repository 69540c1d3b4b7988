// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package engine implements the runtime's scheduler: a worker pool,
// a node-wide spark pool, the FISH/SCHEDULE/NOWORK work-stealing
// protocol, eager pushes, and distributed quiescence detection. It is
// grounded on bigslice's exec package (exec/local.go's per-task
// concurrency model, exec/bigmachine.go's RPC-service dispatch style,
// and exec/session.go's start/shutdown lifecycle) generalized from
// bigslice's dataframe task graph to the runtime's Par-monad tasks and
// sparks.
package engine

import (
	"context"
	"math/rand"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	par "github.com/brezal/hdph-rs"
	"github.com/brezal/hdph-rs/engine/stats"
	"github.com/brezal/hdph-rs/rpc"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config carries the runtime configuration options named in the
// design (§6 "Runtime configuration").
type Config struct {
	NumWorkers        int
	DebugLevel        int
	Peers             []string
	MainNode          bool
	MaxFish           int
	ChaosMonkey       bool
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	// MetricsAddr, if non-empty, is the address the main node serves
	// "/metrics" on (see par/engine/stats.Collector), per the
	// [DOMAIN] metrics section: a running cluster can be scraped by
	// Prometheus instead of only inspected through debug-level-1 log
	// lines. Non-main nodes ignore this field.
	MetricsAddr string
}

// fishBackoff is the retry policy consulted after a NOWORK reply: an
// exponential policy from 1ms to 200ms. backoffAfterNoWork always
// waits at retry count 0, so every NOWORK is followed by the same 1ms
// delay; the delay does not grow across repeated NOWORK replies.
var fishBackoff = retry.Backoff(time.Millisecond, 200*time.Millisecond, 1.75)

// A Scheduler owns one node's workers, spark pool, and communication
// endpoint, and implements rpc.Handler to dispatch inbound envelopes.
type Scheduler struct {
	cfg     Config
	self    par.NodeId
	workers []*Worker
	sparks  sparkPool
	stats   *stats.Counters
	ep      *rpc.Endpoint

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	fishMu      sync.Mutex
	fishSeq     uint64
	fishWait    map[uint64]chan fishReply
	fishLimiter *limiter.Limiter

	heartbeatMu sync.Mutex
	lastSeen    map[string]time.Time
	failed      map[string]bool

	quiescer *Quiescer
	chaos    *ChaosMonkey
}

type fishReply struct {
	spark   par.Closure
	hasWork bool
}

var _ rpc.Handler = (*Scheduler)(nil)
var _ par.RemoteSender = (*Scheduler)(nil)

// New constructs a Scheduler for the node identified by self, bound
// to the given listen address, but does not yet connect to peers or
// start workers; call Start for that.
func New(cfg Config, self par.NodeId) (*Scheduler, error) {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.GOMAXPROCS(0)
	}
	if cfg.MaxFish <= 0 {
		cfg.MaxFish = 1
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 2 * time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 6 * time.Second
	}
	sched := &Scheduler{
		cfg:         cfg,
		self:        self,
		stats:       &stats.Counters{},
		fishWait:    map[uint64]chan fishReply{},
		fishLimiter: limiter.New(),
		lastSeen:    map[string]time.Time{},
		failed:      map[string]bool{},
	}
	sched.fishLimiter.Release(cfg.MaxFish)
	ep, err := rpc.NewEndpoint(self.Addr, sched)
	if err != nil {
		return nil, err
	}
	sched.ep = ep
	sched.quiescer = newQuiescer(sched)
	if cfg.ChaosMonkey {
		sched.chaos = newChaosMonkey(sched)
	}
	return sched, nil
}

// Start connects to every peer, launches the worker pool, and begins
// the heartbeat and quiescence loops. It implements startup steps 3-5
// for this node (peer connection, worker start, and — on the main
// node — the caller is expected to run the user program afterward).
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.ep.Connect(s.ctx, s.cfg.Peers); err != nil {
		return errors.E(errors.Net, "connecting to peers", err)
	}
	par.SetRemoteSender(s)
	now := time.Now()
	s.heartbeatMu.Lock()
	for _, addr := range s.cfg.Peers {
		if addr != s.self.Addr {
			s.lastSeen[addr] = now
		}
	}
	s.heartbeatMu.Unlock()
	s.workers = make([]*Worker, s.cfg.NumWorkers)
	for i := range s.workers {
		w := &Worker{id: i, sched: s, ctx: s.ctx}
		s.workers[i] = w
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			w.run(s.ctx)
		}()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.ep.HeartbeatLoop(s.ctx, s.cfg.Peers, s.cfg.HeartbeatInterval)
	}()
	if len(s.cfg.Peers) > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.monitorHeartbeats(s.ctx)
		}()
	}
	if s.chaos != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.chaos.run(s.ctx)
		}()
	}
	if s.cfg.MainNode {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.quiescer.runRoot(s.ctx)
		}()
	}
	if s.cfg.MainNode && s.cfg.MetricsAddr != "" {
		srv, err := s.startMetricsServer()
		if err != nil {
			return errors.E(errors.Net, "starting metrics server", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			<-s.ctx.Done()
			srv.Close()
		}()
	}
	return nil
}

// startMetricsServer registers a stats.Collector for this node's
// counters with a fresh prometheus.Registry and serves it at
// "/metrics" on cfg.MetricsAddr, per the [DOMAIN] metrics section.
// Grounded on ChuLiYu-raft-recovery's metrics.StartServer, which
// registers its collectors and then calls promhttp.Handler via
// http.ListenAndServe; a dedicated Registry is used here instead of
// the package-global DefaultRegisterer so a user embedding this
// scheduler in a process with its own Prometheus metrics is not
// forced to share a namespace with par's.
func (s *Scheduler) startMetricsServer() (*http.Server, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(stats.NewCollector(s.self.String(), s.stats)); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}
	ln, err := net.Listen("tcp", s.cfg.MetricsAddr)
	if err != nil {
		return nil, err
	}
	par.Debugf(1, "metrics: serving /metrics on %s", s.cfg.MetricsAddr)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error.Printf("engine: metrics server: %v", err)
		}
	}()
	return srv, nil
}

// Stop cancels all workers and closes the communication endpoint.
// It logs final stats at debug level 1, per the design's debug table.
func (s *Scheduler) Stop() {
	par.Debugf(1, "final stats: %s", s.stats.String())
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.ep.Close()
}

// Done returns a channel closed once the scheduler has been stopped,
// either by an explicit Stop call or by a received SHUTDOWN. Callers
// that only need to block until the node goes down (worker nodes with
// no user program of their own) select on this instead of duplicating
// the cancellation the scheduler already tracks.
func (s *Scheduler) Done() <-chan struct{} { return s.ctx.Done() }

// Stats returns this node's scheduler counters, the same Counters
// startMetricsServer wraps in a stats.Collector.
func (s *Scheduler) Stats() *stats.Counters { return s.stats }

// Worker returns the scheduler's i'th worker, used by callers that
// need to inject the first Par computation (typically worker 0 on the
// main node, running the user's program).
func (s *Scheduler) Worker(i int) *Worker { return s.workers[i] }

// AnyWorker returns a worker chosen round-robin, used to place
// EXECUTE-pushed closures received from peers.
func (s *Scheduler) AnyWorker() *Worker {
	return s.workers[int(nextRoundRobin())%len(s.workers)]
}

var rrCounter uint64

func nextRoundRobin() uint64 {
	rrCounter++
	return rrCounter
}

// pushTo sends EXECUTE(clo) to node. On the remote side, the RPC
// handler forks it onto an arbitrary worker (see HandleExecute).
func (s *Scheduler) pushTo(ctx context.Context, node par.NodeId, clo par.Closure) error {
	env := rpc.Envelope{Tag: rpc.TagExecute, Payload: gobEncode(executeMsg{Clo: clo})}
	s.stats.IncMessagesSent()
	par.Debugf(4, "-> EXECUTE %v", node)
	if err := s.ep.Send(node.Addr, env); err != nil {
		return par.ErrPeerUnreachable(node, err)
	}
	return nil
}

// SendRPut implements par.RemoteSender.
func (s *Scheduler) SendRPut(ctx context.Context, owner par.NodeId, slot uint64, value interface{}) error {
	env := rpc.Envelope{Tag: rpc.TagRPut, Payload: gobEncode(rputMsg{Slot: slot, Value: value})}
	s.stats.IncMessagesSent()
	par.Debugf(4, "-> RPUT %v slot=%d", owner, slot)
	if err := s.ep.Send(owner.Addr, env); err != nil {
		return par.ErrPeerUnreachable(owner, err)
	}
	return nil
}

// randomPeer returns a uniformly random node other than self, or
// false if there are no peers.
func (s *Scheduler) randomPeer() (par.NodeId, bool) {
	all := par.AllNodes()
	var peers []par.NodeId
	for _, n := range all {
		if n != s.self {
			peers = append(peers, n)
		}
	}
	if len(peers) == 0 {
		return par.NodeId{}, false
	}
	return peers[rand.Intn(len(peers))], true
}

// nodeForAddr resolves addr to its NodeId via par.AllNodes, used to
// report a missed-heartbeat peer with the same identity errPeerUnreachable
// reports a failed send with.
func nodeForAddr(addr string) (par.NodeId, bool) {
	for _, n := range par.AllNodes() {
		if n.Addr == addr {
			return n, true
		}
	}
	return par.NodeId{}, false
}

// touchPeer records that addr was heard from just now, clearing any
// prior failed mark: a peer that resumes sending heartbeats is live
// again.
func (s *Scheduler) touchPeer(addr string) {
	s.heartbeatMu.Lock()
	s.lastSeen[addr] = time.Now()
	delete(s.failed, addr)
	s.heartbeatMu.Unlock()
}

// monitorHeartbeats polls lastSeen at a fraction of HeartbeatInterval
// and marks a peer failed the first time it exceeds HeartbeatTimeout
// without being heard from, per spec §4.5's HEARTBEAT row and §7's
// PeerUnreachable error kind ("HEARTBEAT losses detect failures").
// The base runtime carries no FT layer (strategy/ft.go), so a marked
// failure aborts this node's computation by cancelling its context,
// matching §7's propagation policy ("otherwise aborts the
// computation").
func (s *Scheduler) monitorHeartbeats(ctx context.Context) {
	interval := s.cfg.HeartbeatInterval / 2
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.checkHeartbeats()
		}
	}
}

func (s *Scheduler) checkHeartbeats() {
	now := time.Now()
	var newlyFailed []string
	s.heartbeatMu.Lock()
	for addr, seen := range s.lastSeen {
		if !s.failed[addr] && now.Sub(seen) > s.cfg.HeartbeatTimeout {
			s.failed[addr] = true
			newlyFailed = append(newlyFailed, addr)
		}
	}
	s.heartbeatMu.Unlock()
	for _, addr := range newlyFailed {
		node, ok := nodeForAddr(addr)
		if !ok {
			node = par.NodeId{Addr: addr}
		}
		err := par.ErrPeerUnreachable(node, errors.E(errors.Net, "heartbeat timeout exceeded"))
		par.Debugf(9, "peer failure: %v", err)
		log.Error.Printf("engine: %v", err)
		if s.cancel != nil {
			s.cancel()
		}
	}
}

// Handle implements rpc.Handler, dispatching by tag. Handlers enqueue
// work and return without blocking, per the design's communication
// layer contract.
func (s *Scheduler) Handle(from string, env rpc.Envelope) {
	s.stats.IncMessagesRecv()
	switch env.Tag {
	case rpc.TagFish:
		var m fishMsg
		if err := gobDecode(env.Payload, &m); err != nil {
			log.Error.Printf("engine: decode FISH: %v", err)
			return
		}
		par.Debugf(5, "<- FISH from %v", m.Fisher)
		s.handleFish(m)
	case rpc.TagSchedule:
		var m scheduleMsg
		if err := gobDecode(env.Payload, &m); err != nil {
			log.Error.Printf("engine: decode SCHEDULE: %v", err)
			return
		}
		par.Debugf(5, "<- SCHEDULE seq=%d", m.Seq)
		s.deliverFishReply(m.Seq, fishReply{spark: m.Spark, hasWork: true})
	case rpc.TagNoWork:
		var m noWorkMsg
		if err := gobDecode(env.Payload, &m); err != nil {
			log.Error.Printf("engine: decode NOWORK: %v", err)
			return
		}
		par.Debugf(5, "<- NOWORK seq=%d", m.Seq)
		s.deliverFishReply(m.Seq, fishReply{hasWork: false})
	case rpc.TagExecute:
		var m executeMsg
		if err := gobDecode(env.Payload, &m); err != nil {
			log.Error.Printf("engine: decode EXECUTE: %v", err)
			return
		}
		par.Debugf(5, "<- EXECUTE")
		s.AnyWorker().Fork(sparkToPar(m.Clo))
	case rpc.TagRPut:
		var m rputMsg
		if err := gobDecode(env.Payload, &m); err != nil {
			log.Error.Printf("engine: decode RPUT: %v", err)
			return
		}
		par.Debugf(6, "<- RPUT slot=%d", m.Slot)
		v, ok := par.ResolveSlot(m.Slot)
		if !ok {
			log.Error.Printf("engine: RPUT for unknown slot %d", m.Slot)
			return
		}
		if err := v.Put(m.Value); err != nil {
			log.Error.Printf("engine: RPUT: %v", err)
		}
	case rpc.TagQuiesce:
		var m quiesceMsg
		if err := gobDecode(env.Payload, &m); err != nil {
			log.Error.Printf("engine: decode QUIESCE: %v", err)
			return
		}
		s.quiescer.handle(m)
	case rpc.TagHeartbeat:
		seq := rpc.DecodeHeartbeat(env.Payload)
		par.Debugf(9, "<- HEARTBEAT seq=%d from %s", seq, from)
		s.touchPeer(from)
	case rpc.TagShutdown:
		par.Debugf(1, "<- SHUTDOWN")
		if s.cancel != nil {
			s.cancel()
		}
	}
}
