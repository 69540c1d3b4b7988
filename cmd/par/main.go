// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command par starts a node of a par cluster: either the main node,
// which runs a user program to completion and then shuts the cluster
// down, or a worker node, which joins the fishing pool and serves
// EXECUTE/RPUT/FISH traffic until told to stop.
package main

import (
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "par",
	Short: "par runs nodes of a distributed-memory parallel execution cluster",
	Long: `par is the command-line entry point for the par runtime: a
task-parallel execution engine with single-assignment cells,
serializable closures, and a work-stealing scheduler spread across a
fixed set of nodes.

Every node in a cluster runs one par process, either as the main node
("par run") or a worker ("par worker"). Nodes discover each other from
a shared YAML peer file (see parflags.PeerFile), listing every node's
dial address with the main node first.`,
}

func init() {
	log.AddFlags()
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
