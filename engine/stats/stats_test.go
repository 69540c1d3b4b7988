// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrementIndependently(t *testing.T) {
	var c Counters
	c.IncSparksCreated()
	c.IncSparksCreated()
	c.IncSparksConverted()
	c.IncSparksStolen()
	c.IncTasksForked()
	c.IncTasksCompleted()
	c.IncFishesSent()
	c.IncFishesServed()
	c.IncMessagesSent()
	c.IncMessagesRecv()
	c.IncQuiesceRounds()

	assert.EqualValues(t, 2, c.SparksCreated)
	assert.EqualValues(t, 1, c.SparksConverted)
	assert.EqualValues(t, 1, c.SparksStolen)
	assert.EqualValues(t, 1, c.TasksForked)
	assert.EqualValues(t, 1, c.TasksCompleted)
	assert.EqualValues(t, 1, c.FishesSent)
	assert.EqualValues(t, 1, c.FishesServed)
	assert.EqualValues(t, 1, c.MessagesSent)
	assert.EqualValues(t, 1, c.MessagesRecv)
	assert.EqualValues(t, 1, c.QuiesceRounds)
}

func TestCountersStringContainsAllFields(t *testing.T) {
	var c Counters
	c.IncSparksCreated()
	c.IncTasksForked()
	c.IncTasksForked()

	s := c.String()
	assert.Contains(t, s, "created=1")
	assert.Contains(t, s, "forked=2")
	for _, want := range []string{"sparks", "tasks", "fishes", "msgs", "quiesce rounds"} {
		assert.True(t, strings.Contains(s, want), "String() output %q missing %q", s, want)
	}
}

func collect(t *testing.T, col *Collector) map[string]*dto.Metric {
	t.Helper()
	ch := make(chan prometheus.Metric, 32)
	col.Collect(ch)
	close(ch)

	out := map[string]*dto.Metric{}
	for m := range ch {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		out[m.Desc().String()] = &pb
	}
	return out
}

func TestCollectorDescribeEmitsOneDescPerCounter(t *testing.T) {
	var c Counters
	col := NewCollector("node-a", &c)

	ch := make(chan *prometheus.Desc, 32)
	col.Describe(ch)
	close(ch)

	n := 0
	for range ch {
		n++
	}
	assert.Equal(t, 10, n)
}

func TestCollectorCollectReflectsCurrentCounterValues(t *testing.T) {
	var c Counters
	c.IncSparksCreated()
	c.IncSparksCreated()
	c.IncSparksCreated()
	c.IncTasksCompleted()

	col := NewCollector("node-a", &c)
	metrics := collect(t, col)

	require.Len(t, metrics, 10)

	var sawCreated, sawCompleted bool
	for _, m := range metrics {
		require.NotNil(t, m.Counter)
		for _, lp := range m.Label {
			assert.Equal(t, "node", lp.GetName())
			assert.Equal(t, "node-a", lp.GetValue())
		}
		switch m.Counter.GetValue() {
		case 3:
			sawCreated = true
		case 1:
			sawCompleted = true
		}
	}
	assert.True(t, sawCreated, "expected a counter reading 3 for sparks_created")
	assert.True(t, sawCompleted, "expected a counter reading 1 for tasks_completed")
}

func TestCollectorImplementsPrometheusCollector(t *testing.T) {
	var c Counters
	var _ prometheus.Collector = NewCollector("node-a", &c)
}

func TestCollectorLabelsEachMetricWithNode(t *testing.T) {
	var c Counters
	col := NewCollector("node-xyz", &c)
	metrics := collect(t, col)
	for _, m := range metrics {
		require.Len(t, m.Label, 1)
		assert.Equal(t, "node-xyz", m.Label[0].GetValue())
	}
}
