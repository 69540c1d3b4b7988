// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rpc

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	par "github.com/brezal/hdph-rs"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// handshakeTimeout bounds how long Conn.handshake waits for the
// peer's CHECKSUM envelope before giving up, so a silent or hostile
// peer cannot wedge Connect forever.
const handshakeTimeout = 5 * time.Second

// A Handler processes envelopes delivered by a Conn's read loop.
// Handle must not block: it may enqueue further work but must not
// itself perform a blocking operation, as the runtime's design
// requires of message handlers.
type Handler interface {
	Handle(from string, env Envelope)
}

// A Conn is one reliable, ordered, bidirectional channel to a peer,
// identified by the peer's dial address. Envelopes sent on a Conn are
// delivered to the peer's Handler in the order they were sent.
type Conn struct {
	peer string
	nc   net.Conn
	w    *bufio.Writer
	r    *bufio.Reader

	sendMu sync.Mutex
	closed atomic.Bool
}

func newConn(peer string, nc net.Conn) *Conn {
	return &Conn{peer: peer, nc: nc, w: bufio.NewWriter(nc), r: bufio.NewReader(nc)}
}

// handshake implements startup step 3's binary-divergence check: it
// exchanges this node's par.Checksum() with the peer over nc before
// any FISH/SCHEDULE/EXECUTE traffic, and fails immediately if the two
// don't agree, rather than waiting for a later ErrRegistryMiss.
func (c *Conn) handshake() error {
	// Both ends send first, so the send runs alongside the read: on an
	// unbuffered transport a Send blocks until the peer reads.
	sendErr := make(chan error, 1)
	go func() {
		sendErr <- c.Send(Envelope{Tag: TagChecksum, Payload: EncodeChecksum(par.Checksum())})
	}()
	if err := c.nc.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return errors.E(errors.Net, "handshake with "+c.peer, err)
	}
	env, err := ReadEnvelope(c.r)
	if err != nil {
		return errors.E(errors.Net, "handshake with "+c.peer, err)
	}
	if err := <-sendErr; err != nil {
		return err
	}
	if err := c.nc.SetReadDeadline(time.Time{}); err != nil {
		return errors.E(errors.Net, "handshake with "+c.peer, err)
	}
	if env.Tag != TagChecksum {
		return errors.E(errors.Net, "handshake with "+c.peer+": expected CHECKSUM, got "+env.Tag.String())
	}
	if got, want := DecodeChecksum(env.Payload), par.Checksum(); got != want {
		return par.ErrChecksumMismatch(c.peer, want, got)
	}
	return nil
}

// Send writes env to the peer. Concurrent Sends are serialized so
// that framing is never interleaved.
func (c *Conn) Send(env Envelope) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed.Load() {
		return errors.E(errors.Net, "send on closed connection to "+c.peer)
	}
	if err := WriteEnvelope(c.w, env); err != nil {
		return errors.E(errors.Net, "send to "+c.peer, err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	c.closed.Store(true)
	return c.nc.Close()
}

// serve runs the connection's dispatch loop: read envelopes and hand
// each to h.Handle until the connection errors or is closed. serve
// runs until the peer disconnects; PeerUnreachable-class errors are
// logged, the connection is closed, and the loop exits. Nothing redials
// it: a later Endpoint.Send to this peer fails.
func (c *Conn) serve(h Handler) {
	for {
		env, err := ReadEnvelope(c.r)
		if err != nil {
			if err != io.EOF {
				log.Error.Printf("rpc: connection to %s: %v", c.peer, err)
			}
			c.Close()
			return
		}
		h.Handle(c.peer, env)
	}
}
