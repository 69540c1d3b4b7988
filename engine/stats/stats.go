// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stats collects per-node scheduler counters, grounded on
// bigslice's stats package (a print-only Map of named values). Unlike
// that package, these counters are also exported through
// prometheus/client_golang so a running cluster can be scraped rather
// than only inspected via debug-level-1 log lines.
package stats

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters holds one node's scheduler statistics. All fields are
// updated with atomic operations so any worker or the RPC dispatch
// loop can bump them without additional locking.
type Counters struct {
	SparksCreated   int64
	SparksConverted int64
	SparksStolen    int64
	TasksForked     int64
	TasksCompleted  int64
	FishesSent      int64
	FishesServed    int64
	MessagesSent    int64
	MessagesRecv    int64
	QuiesceRounds   int64
}

func (c *Counters) incr(field *int64) { atomic.AddInt64(field, 1) }

// IncSparksCreated etc. provide named, atomic increments for each
// counter, used from the scheduler and RPC dispatch paths.
func (c *Counters) IncSparksCreated()   { c.incr(&c.SparksCreated) }
func (c *Counters) IncSparksConverted() { c.incr(&c.SparksConverted) }
func (c *Counters) IncSparksStolen()    { c.incr(&c.SparksStolen) }
func (c *Counters) IncTasksForked()     { c.incr(&c.TasksForked) }
func (c *Counters) IncTasksCompleted()  { c.incr(&c.TasksCompleted) }
func (c *Counters) IncFishesSent()      { c.incr(&c.FishesSent) }
func (c *Counters) IncFishesServed()    { c.incr(&c.FishesServed) }
func (c *Counters) IncMessagesSent()    { c.incr(&c.MessagesSent) }
func (c *Counters) IncMessagesRecv()    { c.incr(&c.MessagesRecv) }
func (c *Counters) IncQuiesceRounds()   { c.incr(&c.QuiesceRounds) }

// String renders a one-line summary suitable for the runtime's
// debug-level-1 "final stats" emission.
func (c *Counters) String() string {
	return fmt.Sprintf(
		"sparks created=%d converted=%d stolen=%d tasks forked=%d completed=%d fishes sent=%d served=%d msgs sent=%d recv=%d quiesce rounds=%d",
		atomic.LoadInt64(&c.SparksCreated), atomic.LoadInt64(&c.SparksConverted), atomic.LoadInt64(&c.SparksStolen),
		atomic.LoadInt64(&c.TasksForked), atomic.LoadInt64(&c.TasksCompleted),
		atomic.LoadInt64(&c.FishesSent), atomic.LoadInt64(&c.FishesServed),
		atomic.LoadInt64(&c.MessagesSent), atomic.LoadInt64(&c.MessagesRecv),
		atomic.LoadInt64(&c.QuiesceRounds),
	)
}

// Collector adapts Counters to prometheus.Collector, letting a node
// expose its scheduler counters at /metrics alongside whatever else
// the embedding process serves.
type Collector struct {
	c       *Counters
	node    string
	descs   map[string]*prometheus.Desc
	metrics map[string]func() int64
}

// NewCollector returns a prometheus.Collector exporting c's fields
// under the "par_" namespace, labeled with node.
func NewCollector(node string, c *Counters) *Collector {
	mk := func(name string) *prometheus.Desc {
		return prometheus.NewDesc("par_"+name, "par scheduler counter "+name, []string{"node"}, nil)
	}
	col := &Collector{c: c, node: node, descs: map[string]*prometheus.Desc{}, metrics: map[string]func() int64{}}
	add := func(name string, get func() int64) {
		col.descs[name] = mk(name)
		col.metrics[name] = get
	}
	add("sparks_created", func() int64 { return atomic.LoadInt64(&c.SparksCreated) })
	add("sparks_converted", func() int64 { return atomic.LoadInt64(&c.SparksConverted) })
	add("sparks_stolen", func() int64 { return atomic.LoadInt64(&c.SparksStolen) })
	add("tasks_forked", func() int64 { return atomic.LoadInt64(&c.TasksForked) })
	add("tasks_completed", func() int64 { return atomic.LoadInt64(&c.TasksCompleted) })
	add("fishes_sent", func() int64 { return atomic.LoadInt64(&c.FishesSent) })
	add("fishes_served", func() int64 { return atomic.LoadInt64(&c.FishesServed) })
	add("messages_sent", func() int64 { return atomic.LoadInt64(&c.MessagesSent) })
	add("messages_recv", func() int64 { return atomic.LoadInt64(&c.MessagesRecv) })
	add("quiesce_rounds", func() int64 { return atomic.LoadInt64(&c.QuiesceRounds) })
	return col
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, desc := range c.descs {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(c.metrics[name]()), c.node)
	}
}
