// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package par

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Error kinds for the runtime, one per failure mode named in the
// runtime's error handling design. Each is a distinguished
// errors.Kind so that callers can match on failure class with
// errors.Is/errors.Match without depending on message text.
var (
	// KindNodeIdUnset marks an attempt to read the local node's
	// identity before communication initialization has completed.
	KindNodeIdUnset = errors.Precondition
	// KindRegistryMiss marks deserialization of a closure whose label
	// is not present in the local static table. It always indicates
	// divergent binaries between nodes.
	KindRegistryMiss = errors.Fatal
	// KindDoublePut marks a second write to a single-assignment cell.
	KindDoublePut = errors.Fatal
	// KindWireDecode marks a truncated or malformed envelope.
	KindWireDecode = errors.Fatal
	// KindPeerUnreachable marks a transport-level send/recv failure.
	KindPeerUnreachable = errors.Net
	// KindTerminationViolation marks a quiescence round that completed
	// with an outstanding (still-Empty) globalised IVar.
	KindTerminationViolation = errors.Fatal
	// KindChecksumMismatch marks a peer whose static registry checksum
	// disagrees with this node's at connect time, meaning the two
	// binaries were not built from the same closure/task/spark
	// registrations.
	KindChecksumMismatch = errors.Fatal
)

// ErrNodeIdUnset is returned by MyNode before SetMyNode has been
// called.
var ErrNodeIdUnset = errors.E(KindNodeIdUnset, "myNode read before communication init")

// ErrRegistrySealed is returned by Register* calls made after Seal.
var ErrRegistrySealed = errors.E(errors.Fatal, "static table already sealed")

// ErrRegistryMiss is returned when a wire-form closure names a label
// absent from the local static table.
func errRegistryMiss(label string) error {
	return errors.E(KindRegistryMiss, "registry miss for label "+label)
}

// ErrRegistryMiss is the exported form of errRegistryMiss, used by
// par/strategy when decoding its own registered spark/task payloads.
func ErrRegistryMiss(label string) error { return errRegistryMiss(label) }

// ErrDoublePut is returned by IVar.Put when the cell is already Full.
var ErrDoublePut = errors.E(KindDoublePut, "put on a full single-assignment cell")

func errWireDecode(reason string) error {
	return errors.E(KindWireDecode, "malformed envelope: "+reason)
}

// ErrWireDecode is the exported form of errWireDecode, used by
// par/rpc when an envelope read off the wire is truncated, oversized,
// or fails its checksum.
func ErrWireDecode(reason string) error { return errWireDecode(reason) }

func errPeerUnreachable(node NodeId, cause error) error {
	return errors.E(KindPeerUnreachable, fmt.Sprintf("peer %v unreachable", node), cause)
}

// ErrPeerUnreachable is the exported form of errPeerUnreachable, used
// by par/engine when a send to a peer's rpc.Endpoint fails.
func ErrPeerUnreachable(node NodeId, cause error) error { return errPeerUnreachable(node, cause) }

// ErrTerminationViolation describes quiescence reached while a
// globalised IVar is still Empty. The quiescer does not return it:
// on that condition it only logs a line at debug level 0.
var ErrTerminationViolation = errors.E(KindTerminationViolation, "quiescence reached with outstanding single-assignment cells")

func errChecksumMismatch(peer string, want, got uint64) error {
	return errors.E(KindChecksumMismatch, fmt.Sprintf("peer %s registry checksum %x does not match local checksum %x", peer, got, want))
}

// ErrChecksumMismatch is the exported form of errChecksumMismatch,
// used by par/rpc's startup handshake (Endpoint.Connect/serveInbound)
// to reject a peer whose static registry diverges from this node's
// before any FISH/SCHEDULE/EXECUTE traffic is exchanged.
func ErrChecksumMismatch(peer string, want, got uint64) error { return errChecksumMismatch(peer, want, got) }
