// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/grailbio/base/log"
)

// EncodeHeartbeat encodes the sequence number carried by a HEARTBEAT
// envelope.
func EncodeHeartbeat(seq int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(seq))
	return b[:]
}

// DecodeHeartbeat reverses EncodeHeartbeat.
func DecodeHeartbeat(b []byte) int64 {
	if len(b) < 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// EncodeChecksum encodes the local node's static registry checksum
// for the CHECKSUM envelope exchanged at connect time.
func EncodeChecksum(sum uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], sum)
	return b[:]
}

// DecodeChecksum reverses EncodeChecksum.
func DecodeChecksum(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// HeartbeatLoop sends a HEARTBEAT to every peer address in peers on
// every tick of interval until ctx is done. Failures are logged, not
// fatal: liveness detection is the job of the caller, which tracks
// received (not sent) heartbeats in its own lastSeen table and raises
// KindPeerUnreachable when one goes quiet past its configured
// timeout — see engine.Scheduler.monitorHeartbeats, the receiving
// side of this loop.
func (e *Endpoint) HeartbeatLoop(ctx context.Context, peers []string, interval time.Duration) {
	var seq int64
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			seq++
			env := Envelope{Tag: TagHeartbeat, Payload: EncodeHeartbeat(seq)}
			for _, addr := range peers {
				if addr == e.self {
					continue
				}
				if err := e.Send(addr, env); err != nil {
					log.Printf("rpc: heartbeat to %s: %v", addr, err)
				}
			}
		}
	}
}
