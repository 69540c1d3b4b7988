// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package parflags provides command-line and file-based configuration
// for par programs, grounded on bigslice's sliceflags (stdlib flag.FlagSet
// registration under a prefix) and sliceconfig (a well-known on-disk
// config path loaded alongside flags). Where sliceconfig defers to
// grailbio/base/config's profile system, parflags reads a plain YAML
// peer file instead, since a cluster's peer list is the one piece of
// configuration too unwieldy to pass as repeated flags.
package parflags

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/brezal/hdph-rs/engine"
	"gopkg.in/yaml.v3"
)

// Path determines the location of the on-disk peer file read by LoadPeers,
// mirroring sliceconfig.Path's $HOME/.bigslice/config convention.
var Path = os.ExpandEnv("$HOME/.par/peers.yaml")

// PeerFile is the on-disk shape of Path: a static list of every node's
// dial address, main node first.
type PeerFile struct {
	Peers []string `yaml:"peers"`
}

// LoadPeers reads and parses path (typically Path); a missing file is
// not an error, and yields an empty peer list, so a single-node run
// needs no configuration file at all.
func LoadPeers(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parflags: read %s: %w", path, err)
	}
	var pf PeerFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return nil, fmt.Errorf("parflags: parse %s: %w", path, err)
	}
	return pf.Peers, nil
}

// Flags holds every command-line-configurable field of engine.Config,
// registered under a caller-chosen prefix the way sliceflags.Flags
// registers bigslice's own options.
type Flags struct {
	Listen            string
	PeerFile          string
	NumWorkers        int
	DebugLevel        int
	MainNode          bool
	MaxFish           int
	ChaosMonkey       bool
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	MetricsAddr       string

	fs *flag.FlagSet
}

// RegisterFlags registers pf's fields on fs, all prefixed by prefix,
// with the same defaults engine.New falls back to when a Config field
// is left zero.
func RegisterFlags(fs *flag.FlagSet, pf *Flags, prefix string) {
	fs.StringVar(&pf.Listen, prefix+"listen", ":0", "address this node listens on")
	fs.StringVar(&pf.PeerFile, prefix+"peers", Path, "path to a YAML peer file (see parflags.PeerFile)")
	fs.IntVar(&pf.NumWorkers, prefix+"workers", runtime.GOMAXPROCS(0), "number of worker goroutines, 0 for GOMAXPROCS")
	fs.IntVar(&pf.DebugLevel, prefix+"debug", 0, "debug verbosity, 0-9")
	fs.BoolVar(&pf.MainNode, prefix+"main", false, "run as the cluster's main node")
	fs.IntVar(&pf.MaxFish, prefix+"max-fish", 1, "maximum FISH round-trips this node keeps outstanding at once")
	fs.BoolVar(&pf.ChaosMonkey, prefix+"chaos-monkey", false, "kill random peer connections for fault-injection testing")
	fs.DurationVar(&pf.HeartbeatInterval, prefix+"heartbeat-interval", 2*time.Second, "interval between HEARTBEAT sends")
	fs.DurationVar(&pf.HeartbeatTimeout, prefix+"heartbeat-timeout", 6*time.Second, "duration after which a silent peer is considered failed")
	fs.StringVar(&pf.MetricsAddr, prefix+"metrics-addr", "", "address the main node serves /metrics on, empty to disable")
	pf.fs = fs
}

// Config resolves pf (plus its configured peer file, if any) into an
// engine.Config ready to pass to engine.New.
func (pf *Flags) Config() (engine.Config, error) {
	peers, err := LoadPeers(pf.PeerFile)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		NumWorkers:        pf.NumWorkers,
		DebugLevel:        pf.DebugLevel,
		Peers:             peers,
		MainNode:          pf.MainNode,
		MaxFish:           pf.MaxFish,
		ChaosMonkey:       pf.ChaosMonkey,
		HeartbeatInterval: pf.HeartbeatInterval,
		HeartbeatTimeout:  pf.HeartbeatTimeout,
		MetricsAddr:       pf.MetricsAddr,
	}, nil
}

// DefaultPeerFilePath returns the absolute form of a possibly relative
// peer file path, or path unchanged if it cannot be made absolute.
func DefaultPeerFilePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
