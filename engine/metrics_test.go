// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	par "github.com/brezal/hdph-rs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freeAddr picks a loopback address likely free at the moment of the
// call, for tests that need a fixed address before Start binds it.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestSchedulerServesMetricsOnMainNodeWhenConfigured(t *testing.T) {
	metricsAddr := freeAddr(t)
	self := par.NewNodeId(0, "127.0.0.1:0")
	sched := newTestScheduler(t, self, Config{MainNode: true, MetricsAddr: metricsAddr})
	par.SetMyNode(sched.self)
	par.SetAllNodes([]par.NodeId{sched.self})

	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + metricsAddr + "/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err, "metrics server must be reachable shortly after Start")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "par_", "exposition must include this node's counters")
	assert.True(t, strings.Contains(string(body), sched.self.String()), "exposed series must be labeled with the node's identity")
}

func TestSchedulerDoesNotServeMetricsWhenAddrUnset(t *testing.T) {
	self := par.NewNodeId(0, "127.0.0.1:0")
	sched := newTestScheduler(t, self, Config{MainNode: true})
	par.SetMyNode(sched.self)
	par.SetAllNodes([]par.NodeId{sched.self})

	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	_, err := http.Get("http://127.0.0.1:1/metrics")
	assert.Error(t, err, "sanity check that no server was started for this scheduler")
}

func TestSchedulerDoesNotServeMetricsWhenNotMainNode(t *testing.T) {
	metricsAddr := freeAddr(t)
	self := par.NewNodeId(0, "127.0.0.1:0")
	sched := newTestScheduler(t, self, Config{MainNode: false, MetricsAddr: metricsAddr})
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	_, err := http.Get("http://" + metricsAddr + "/metrics")
	assert.Error(t, err, "only the main node serves /metrics")
}
