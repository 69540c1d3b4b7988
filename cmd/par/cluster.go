// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"flag"

	par "github.com/brezal/hdph-rs"
	"github.com/brezal/hdph-rs/engine"
	"github.com/brezal/hdph-rs/parflags"
	"github.com/grailbio/base/errors"
	flagpkg "github.com/spf13/pflag"
)

// clusterFlags bundles parflags.Flags with the one piece of cluster
// topology parflags itself has no opinion about: which entry of the
// peer file this process is. sliceconfig has no analog for this,
// since a bigslice binary is always the single "main" process
// dialling out to bigmachine-managed workers; par's peers are
// symmetric processes, so each one needs to know its own place in the
// list it was handed.
type clusterFlags struct {
	parflags.Flags
	Index int
}

// registerClusterFlags wires pf's fields onto cmd's flag set, bridging
// parflags' stdlib flag.FlagSet registration (shared with any other
// par-embedding program) into cobra's pflag-based Flags() the way
// grailbio/base/log.AddFlags is bridged into the standard flag
// package in main.go.
func registerClusterFlags(fs *flagpkg.FlagSet, pf *clusterFlags) {
	goFlags := flag.NewFlagSet("par", flag.ContinueOnError)
	parflags.RegisterFlags(goFlags, &pf.Flags, "")
	goFlags.IntVar(&pf.Index, "index", 0, "this process's position in the peer file, main node is 0")
	fs.AddGoFlagSet(goFlags)
}

// resolveCluster loads pf's peer file as the full, ordered cluster
// membership (main node first) and returns this process's identity
// plus the addresses of every other node, ready to pass to engine.New
// and engine.Config.Peers respectively.
func resolveCluster(pf *clusterFlags) (self par.NodeId, dial []string, all []par.NodeId, err error) {
	addrs, err := parflags.LoadPeers(pf.PeerFile)
	if err != nil {
		return par.NodeId{}, nil, nil, err
	}
	if len(addrs) == 0 {
		addrs = []string{pf.Listen}
	}
	if pf.Index < 0 || pf.Index >= len(addrs) {
		return par.NodeId{}, nil, nil, errors.E(errors.Invalid, "par: --index out of range for peer file")
	}
	all = make([]par.NodeId, len(addrs))
	for i, addr := range addrs {
		all[i] = par.NewNodeId(i, addr)
	}
	self = all[pf.Index]
	for i, addr := range addrs {
		if i != pf.Index {
			dial = append(dial, addr)
		}
	}
	return self, dial, all, nil
}

// startScheduler is the common startup sequence for both "par run" and
// "par worker": resolve cluster membership, build an engine.Config,
// publish node identity to the par package, seal the static registry
// (every package linked into this binary has already run its init-time
// Register* calls by the time main starts), and construct the
// scheduler. It does not call Scheduler.Start; callers do that once
// they are ready to run their own program against worker 0.
func startScheduler(pf *clusterFlags) (*engine.Scheduler, error) {
	self, dial, all, err := resolveCluster(pf)
	if err != nil {
		return nil, err
	}
	cfg, err := pf.Config()
	if err != nil {
		return nil, err
	}
	cfg.Peers = dial
	cfg.MainNode = pf.Index == 0

	par.SetMyNode(self)
	par.SetAllNodes(all)
	par.SetDebugLevel(pf.DebugLevel)
	par.Seal()

	sched, err := engine.New(cfg, self)
	if err != nil {
		return nil, err
	}
	return sched, nil
}
