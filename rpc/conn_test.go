// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rpc

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	par "github.com/brezal/hdph-rs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingHandler struct {
	mu   sync.Mutex
	got  []Envelope
	done chan struct{}
}

func (h *collectingHandler) Handle(from string, env Envelope) {
	h.mu.Lock()
	h.got = append(h.got, env)
	n := len(h.got)
	h.mu.Unlock()
	if n == cap(h.done) {
		close(h.done)
	}
}

func TestConnSendServesToHandlerInOrder(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	h := &collectingHandler{done: make(chan struct{}, 3)}
	c := newConn("peer", client)
	go newConn("peer", server).serve(h)

	require.NoError(t, c.Send(Envelope{Tag: TagFish, Payload: []byte("a")}))
	require.NoError(t, c.Send(Envelope{Tag: TagSchedule, Payload: []byte("b")}))
	require.NoError(t, c.Send(Envelope{Tag: TagNoWork, Payload: []byte("c")}))

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never saw all three envelopes")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.got, 3)
	assert.Equal(t, []byte("a"), h.got[0].Payload)
	assert.Equal(t, []byte("b"), h.got[1].Payload)
	assert.Equal(t, []byte("c"), h.got[2].Payload)
}

func TestConnSendAfterCloseErrors(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	c := newConn("peer", client)
	require.NoError(t, c.Close())

	err := c.Send(Envelope{Tag: TagFish})
	assert.Error(t, err)
}

func TestConnConcurrentSendsAreSerialized(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	const n = 50
	h := &collectingHandler{done: make(chan struct{}, n)}
	c := newConn("peer", client)
	go newConn("peer", server).serve(h)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.Send(Envelope{Tag: TagFish, Payload: []byte{byte(i)}}))
		}(i)
	}
	wg.Wait()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never saw all envelopes")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Len(t, h.got, n)
}

func TestConnHandshakeSucceedsOnMatchingChecksum(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	a, b := newConn("peer", client), newConn("peer", server)
	errc := make(chan error, 2)
	go func() { errc <- a.handshake() }()
	go func() { errc <- b.handshake() }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("handshake never completed")
		}
	}
}

func TestConnHandshakeRejectsMismatchedChecksum(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := newConn("peer", client)
	errc := make(chan error, 1)
	go func() { errc <- c.handshake() }()

	// Play the role of a divergent peer directly on the raw pipe: read
	// the real CHECKSUM frame c sends, then answer with a different
	// one instead of relaying an Endpoint's own.
	r := bufio.NewReader(server)
	_, err := ReadEnvelope(r)
	require.NoError(t, err)
	w := bufio.NewWriter(server)
	require.NoError(t, WriteEnvelope(w, Envelope{Tag: TagChecksum, Payload: EncodeChecksum(par.Checksum() + 1)}))

	select {
	case err := <-errc:
		assert.Error(t, err, "a mismatched CHECKSUM reply must fail the handshake")
	case <-time.After(2 * time.Second):
		t.Fatal("handshake never completed")
	}
}
