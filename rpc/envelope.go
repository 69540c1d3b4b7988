// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package rpc implements the runtime's inter-node communication
// layer: reliable ordered envelope delivery between node pairs.
// Envelopes are framed the way the runtime's design fixes them (a
// length prefix, a one-byte tag, and a tag-specific payload), the
// same length-then-body shape bigslice's sliceio.Encoder uses for its
// gob-framed record stream, but implemented directly over net.Conn
// since the wire format here is a fixed contract rather than an
// artifact of a generic RPC package.
package rpc

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"

	par "github.com/brezal/hdph-rs"
)

// Tag identifies an envelope's payload kind.
type Tag byte

// Message kinds, per the runtime's communication layer design.
const (
	TagFish Tag = iota + 1
	TagSchedule
	TagNoWork
	TagExecute
	TagRPut
	TagQuiesce
	TagShutdown
	TagHeartbeat
	TagChecksum
)

func (t Tag) String() string {
	switch t {
	case TagFish:
		return "FISH"
	case TagSchedule:
		return "SCHEDULE"
	case TagNoWork:
		return "NOWORK"
	case TagExecute:
		return "EXECUTE"
	case TagRPut:
		return "RPUT"
	case TagQuiesce:
		return "QUIESCE"
	case TagShutdown:
		return "SHUTDOWN"
	case TagHeartbeat:
		return "HEARTBEAT"
	case TagChecksum:
		return "CHECKSUM"
	default:
		return "UNKNOWN"
	}
}

// An Envelope is the unit of transmission between two nodes: a tag
// plus its gob-encoded, tag-specific payload.
type Envelope struct {
	Tag     Tag
	Payload []byte
}

// maxEnvelope bounds a single frame's size, guarding against a
// corrupt length prefix turning a WireDecode error into an
// out-of-memory crash.
const maxEnvelope = 256 << 20

// WriteEnvelope frames env as: 4-byte big-endian length (covering tag
// + payload), 1-byte tag, payload bytes, then a 4-byte big-endian
// CRC-32 (IEEE) of the payload, not counted in the length. The length includes the tag
// byte, matching the "tag, followed by a tag-specific payload"
// framing the design fixes, with the length prefix wrapping both.
func WriteEnvelope(w *bufio.Writer, env Envelope) error {
	n := 1 + len(env.Payload)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(n))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if err := w.WriteByte(byte(env.Tag)); err != nil {
		return err
	}
	if len(env.Payload) > 0 {
		if _, err := w.Write(env.Payload); err != nil {
			return err
		}
	}
	crc := crc32.ChecksumIEEE(env.Payload)
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc)
	if _, err := w.Write(crcBuf[:]); err != nil {
		return err
	}
	return w.Flush()
}

// ReadEnvelope reads and validates one frame written by WriteEnvelope.
// A truncated or malformed frame surfaces as ErrWireDecode.
func ReadEnvelope(r *bufio.Reader) (Envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return Envelope{}, err
		}
		return Envelope{}, par.ErrWireDecode("reading length prefix: " + err.Error())
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > maxEnvelope {
		return Envelope{}, par.ErrWireDecode("implausible frame length")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Envelope{}, par.ErrWireDecode("reading frame body: " + err.Error())
	}
	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return Envelope{}, par.ErrWireDecode("reading checksum: " + err.Error())
	}
	payload := body[1:]
	if want, got := binary.BigEndian.Uint32(crcBuf[:]), crc32.ChecksumIEEE(payload); want != got {
		return Envelope{}, par.ErrWireDecode("checksum mismatch")
	}
	return Envelope{Tag: Tag(body[0]), Payload: payload}, nil
}
