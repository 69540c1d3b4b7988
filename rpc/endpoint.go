// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
	"golang.org/x/sync/errgroup"
)

// dialRetry bounds how aggressively an Endpoint reconnects to a peer
// after a transient failure: exponential backoff from 50ms to 5s.
// Grounded on exec/bigmachine.go's retryPolicy for machine RPCs.
var dialRetry = retry.Backoff(50*time.Millisecond, 5*time.Second, 1.5)

// An Endpoint is one node's communication layer: it listens for
// inbound connections and maintains outbound connections to every
// configured peer, delivering received envelopes to a Handler and
// exposing Send for outbound envelopes. It plays the role bigmachine
// plays for bigslice's exec.bigmachineExecutor, but implements the
// runtime's own fixed envelope framing directly.
type Endpoint struct {
	self string
	h    Handler
	ln   net.Listener

	mu    sync.Mutex
	conns map[string]*Conn

	wg sync.WaitGroup
}

// NewEndpoint creates an Endpoint bound to addr (its own dial
// address) that hands received envelopes to h.
func NewEndpoint(addr string, h Handler) (*Endpoint, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.E(errors.Net, "listen "+addr, err)
	}
	e := &Endpoint{self: ln.Addr().String(), h: h, ln: ln, conns: map[string]*Conn{}}
	e.wg.Add(1)
	go e.acceptLoop()
	return e, nil
}

// Addr returns the address the endpoint is actually listening on
// (useful when addr passed to NewEndpoint used port 0).
func (e *Endpoint) Addr() string { return e.self }

func (e *Endpoint) acceptLoop() {
	defer e.wg.Done()
	for {
		nc, err := e.ln.Accept()
		if err != nil {
			return
		}
		go e.serveInbound(nc)
	}
}

func (e *Endpoint) serveInbound(nc net.Conn) {
	c := newConn(nc.RemoteAddr().String(), nc)
	if err := c.handshake(); err != nil {
		log.Printf("rpc: handshake from %s: %v", c.peer, err)
		c.Close()
		return
	}
	e.mu.Lock()
	e.conns[c.peer] = c
	e.mu.Unlock()
	c.serve(e.h)
}

// Connect dials every address in peers concurrently, retrying
// transient failures, and blocks until all have connected or ctx is
// done. This implements startup step 3: "each connects to all
// peers"; each dial completes a CHECKSUM handshake (Conn.handshake)
// before the connection is usable, so a peer running a divergent
// binary is rejected here rather than at the first RegistryMiss.
func (e *Endpoint) Connect(ctx context.Context, peers []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range peers {
		addr := addr
		if addr == e.self {
			continue
		}
		g.Go(func() error { return e.dialWithRetry(gctx, addr) })
	}
	return g.Wait()
}

func (e *Endpoint) dialWithRetry(ctx context.Context, addr string) error {
	for retries := 0; ; retries++ {
		var d net.Dialer
		nc, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			c := newConn(addr, nc)
			if herr := c.handshake(); herr != nil {
				c.Close()
				return errors.E(errors.Net, "dial "+addr, herr)
			}
			e.mu.Lock()
			e.conns[addr] = c
			e.mu.Unlock()
			go c.serve(e.h)
			return nil
		}
		log.Printf("rpc: dial %s: %v (retrying)", addr, err)
		if werr := retry.Wait(ctx, dialRetry, retries); werr != nil {
			return errors.E(errors.Net, "dial "+addr, err)
		}
	}
}

// Send delivers env to the connection addressed by peer, which must
// have been reached via Connect or an inbound Accept. It returns
// ErrPeerUnreachable-class errors if the send fails.
func (e *Endpoint) Send(peer string, env Envelope) error {
	e.mu.Lock()
	c, ok := e.conns[peer]
	e.mu.Unlock()
	if !ok {
		return errors.E(errors.Net, "no connection to "+peer)
	}
	if err := c.Send(env); err != nil {
		e.mu.Lock()
		delete(e.conns, peer)
		e.mu.Unlock()
		return err
	}
	return nil
}

// Drop forcibly closes and forgets the connection to peer, if any,
// without closing the Endpoint itself. It is used by the chaos
// monkey to simulate a network partition; a subsequent Send to peer
// fails until Connect or an inbound Accept re-establishes it.
func (e *Endpoint) Drop(peer string) {
	e.mu.Lock()
	c, ok := e.conns[peer]
	delete(e.conns, peer)
	e.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Close shuts down the listener and every connection.
func (e *Endpoint) Close() error {
	err := e.ln.Close()
	e.mu.Lock()
	for _, c := range e.conns {
		c.Close()
	}
	e.mu.Unlock()
	e.wg.Wait()
	return err
}
