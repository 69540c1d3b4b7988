// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package par implements a distributed-memory parallel execution
// runtime: a task monad (Par) with single-assignment cells (IVar,
// GIVar), serializable closures dispatched through a process-wide
// static registry, and the primitives (fork, spark, push, spawn) used
// by the scheduler in par/engine and the strategies in par/strategy.
package par

import (
	"encoding/gob"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/log"
)

// NodeId is the opaque, totally ordered identity of a node in the
// cluster. Its zero value is not a valid node. Fields are exported
// so NodeId can be gob-encoded directly, as spec'd wire messages
// (GIVar, FISH, SCHEDULE, ...) embed it.
type NodeId struct {
	Idx  int
	Addr string
}

func init() {
	gob.Register(NodeId{})
}

// NewNodeId returns the NodeId for the index'th entry of the cluster's
// node list, addressable at addr. index establishes the total order
// used for tie-breaking (e.g. round-robin placement); it is assigned
// by the main node when it publishes AllNodes.
func NewNodeId(index int, addr string) NodeId {
	return NodeId{Idx: index, Addr: addr}
}

// Index returns n's position in the AllNodes ordering.
func (n NodeId) Index() int { return n.Idx }

// Less orders NodeIds by index, giving a total order consistent with
// AllNodes.
func (n NodeId) Less(o NodeId) bool { return n.Idx < o.Idx }

// String renders n for logs and debug output.
func (n NodeId) String() string { return fmt.Sprintf("node%d(%s)", n.Idx, n.Addr) }

var (
	myNode    atomic.Value // NodeId
	myNodeSet int32

	allNodesMu sync.RWMutex
	allNodes   []NodeId

	debugLevel int32
)

// SetMyNode records the identity of the running process. It is called
// exactly once, during communication initialization (startup step 3
// in the runtime configuration).
func SetMyNode(id NodeId) {
	myNode.Store(id)
	atomic.StoreInt32(&myNodeSet, 1)
}

// MyNode returns the identity of the running process. It returns
// ErrNodeIdUnset if called before SetMyNode.
func MyNode() (NodeId, error) {
	if atomic.LoadInt32(&myNodeSet) == 0 {
		return NodeId{}, ErrNodeIdUnset
	}
	return myNode.Load().(NodeId), nil
}

// MyNodeOrZero returns the identity of the running process and true,
// or the zero NodeId and false if SetMyNode has not yet been called.
// Unlike MyNode, it never fails: it is the "absent" variant (myNode').
func MyNodeOrZero() (NodeId, bool) {
	if atomic.LoadInt32(&myNodeSet) == 0 {
		return NodeId{}, false
	}
	return myNode.Load().(NodeId), true
}

// SetAllNodes publishes the cluster's node list. nodes[0] is the main
// node. Every node calls it itself at startup with the list it built
// from its own peer configuration; the connection handshake does not
// carry it.
func SetAllNodes(nodes []NodeId) {
	cp := make([]NodeId, len(nodes))
	copy(cp, nodes)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Less(cp[j]) })
	allNodesMu.Lock()
	allNodes = cp
	allNodesMu.Unlock()
}

// AllNodes returns the cluster's node list, main node first.
func AllNodes() []NodeId {
	allNodesMu.RLock()
	defer allNodesMu.RUnlock()
	cp := make([]NodeId, len(allNodes))
	copy(cp, allNodes)
	return cp
}

// MainNode returns the head of AllNodes, the designated root for
// quiescence detection and user-program startup.
func MainNode() NodeId {
	allNodesMu.RLock()
	defer allNodesMu.RUnlock()
	if len(allNodes) == 0 {
		return NodeId{}
	}
	return allNodes[0]
}

// SetDebugLevel sets the process-wide debug verbosity (0..9, see the
// runtime's debug level table). It is read-mostly after startup.
func SetDebugLevel(level int) { atomic.StoreInt32(&debugLevel, int32(level)) }

// DebugLevel returns the current debug verbosity.
func DebugLevel() int { return int(atomic.LoadInt32(&debugLevel)) }

// Debugf emits a debug line to stderr through base/log, gated by
// level and prefixed with the emitting node's identity, if known.
// The level gate applies whether or not MyNode is set; before
// SetMyNode the prefix is "[?]".
func Debugf(level int, format string, args ...interface{}) {
	if level > DebugLevel() {
		return
	}
	tag := "?"
	if id, ok := MyNodeOrZero(); ok {
		tag = id.String()
	}
	log.Printf("["+tag+"] "+format, args...)
}
