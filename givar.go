// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package par

import (
	"context"
	"encoding/gob"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
)

func init() {
	gob.Register(GIVar{})
}

// A GIVar is a globally addressable reference to an IVar living on
// some node: the pair (owner, slot). Any node can attempt to fill it
// through RPut; only the owner ever touches the underlying IVar
// directly.
type GIVar struct {
	Owner NodeId
	Slot  uint64
}

var (
	globalMu   sync.Mutex
	globalized = map[uint64]*IVar{}
	nextSlot   uint64
)

// Glob registers v in the node-local table of globalised IVars and
// returns a GIVar that any node can use to address it. MyNode must be
// set before Glob is called.
func Glob(v *IVar) (GIVar, error) {
	me, err := MyNode()
	if err != nil {
		return GIVar{}, err
	}
	slot := atomic.AddUint64(&nextSlot, 1)
	globalMu.Lock()
	globalized[slot] = v
	globalMu.Unlock()
	Debugf(6, "givar: globalised slot %d", slot)
	return GIVar{Owner: me, Slot: slot}, nil
}

// resolveSlot returns the local IVar registered under slot, used to
// resolve an inbound RPUT write.
func resolveSlot(slot uint64) (*IVar, bool) {
	globalMu.Lock()
	defer globalMu.Unlock()
	v, ok := globalized[slot]
	return v, ok
}

// ResolveSlot is the exported form of resolveSlot, used by the RPUT
// case of engine.Scheduler.Handle, which lives in a separate package.
func ResolveSlot(slot uint64) (*IVar, bool) { return resolveSlot(slot) }

// PendingGlobals returns the number of IVars this node has globalised
// via Glob that are still Empty. The quiescer calls this on the main
// node only, once the cluster looks quiescent, to report unfilled
// GIVars owned by the main node.
func PendingGlobals() int {
	globalMu.Lock()
	defer globalMu.Unlock()
	n := 0
	for _, v := range globalized {
		if !v.IsFull() {
			n++
		}
	}
	return n
}

// RemoteSender abstracts the single operation RPut needs from the
// communication layer: encode and send an RPUT envelope to a remote
// owner. engine.Scheduler supplies the concrete implementation and
// installs it with SetRemoteSender during startup; this indirection
// keeps the core par package free of any dependency on wire framing.
type RemoteSender interface {
	SendRPut(ctx context.Context, owner NodeId, slot uint64, value interface{}) error
}

var remoteSender atomic.Value // RemoteSender

// SetRemoteSender installs the communication layer's RPUT sender.
// Called once by engine.Scheduler.Start, before user code runs.
func SetRemoteSender(s RemoteSender) { remoteSender.Store(s) }

// RPut requests that v be written with value x: locally, if gv is
// owned by this node, or by sending an RPUT message to gv.Owner
// otherwise. For a locally owned cell it fails with ErrDoublePut if the
// cell is already Full; for a remote owner the returned error reports
// only whether the RPUT message could be sent.
func RPut(ctx context.Context, gv GIVar, x interface{}) error {
	me, ok := MyNodeOrZero()
	if ok && me == gv.Owner {
		v, found := resolveSlot(gv.Slot)
		if !found {
			return errors.E(errors.NotExist, "rput: no such slot")
		}
		return v.Put(x)
	}
	s, _ := remoteSender.Load().(RemoteSender)
	if s == nil {
		return errors.E(errors.Fatal, "rput: no remote sender installed for non-local owner")
	}
	return s.SendRPut(ctx, gv.Owner, gv.Slot, x)
}
