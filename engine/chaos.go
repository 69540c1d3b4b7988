// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"math/rand"
	"time"

	par "github.com/brezal/hdph-rs"
)

// meanKillInterval is the mean of the exponential distribution used
// to schedule chaos-monkey kills, chosen so a small test cluster sees
// a handful of induced failures over a run lasting tens of seconds
// without the failure rate dominating actual progress.
const meanKillInterval = 5 * time.Second

// A ChaosMonkey periodically severs the connection to a random peer
// when enabled by Config.ChaosMonkey, exercising the fishing and
// heartbeat failure paths the way a real network partition would.
// This has no counterpart in bigslice (whose bigmachine layer treats
// machine loss as fatal); it is grounded instead on the fault
// injection style of ChuLiYu-raft-recovery's test harness, which
// kills and restarts raft peers on a timer to validate recovery.
type ChaosMonkey struct {
	sched *Scheduler
}

func newChaosMonkey(s *Scheduler) *ChaosMonkey { return &ChaosMonkey{sched: s} }

func (c *ChaosMonkey) run(ctx context.Context) {
	for {
		wait := time.Duration(rand.ExpFloat64() * float64(meanKillInterval))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		peer, ok := c.sched.randomPeer()
		if !ok {
			continue
		}
		par.Debugf(1, "chaos monkey: severing connection to %v", peer)
		c.sched.ep.Drop(peer.Addr)
	}
}
