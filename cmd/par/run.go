// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	par "github.com/brezal/hdph-rs"
	"github.com/brezal/hdph-rs/strategy"
	"github.com/grailbio/base/log"
	"github.com/spf13/cobra"
)

var runFlags clusterFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start the main node of a par cluster and run the built-in demo program",
	Long: `run starts this process as the cluster's main node (--index 0 in
the peer file). It brings up the scheduler, waits for every worker
node named in the peer file to be reachable, then evaluates a small
demo Par program (ParMapNF over the squares of 1..8 and, when the peer
file names more than one node, a divide-and-conquer Fibonacci), prints
its result, and stops this node's scheduler. Worker nodes are not
sent a shutdown message and keep running.

A real embedding program does not go through this subcommand at all:
it imports par, par/engine, and par/strategy directly and calls
Scheduler.Worker(0) with its own Par computation. run exists so a
freshly built par binary can smoke-test a cluster's peer file without
writing one.`,
	RunE: runRunCmd,
}

func init() {
	registerClusterFlags(runCmd.Flags(), &runFlags)
}

func runRunCmd(cmd *cobra.Command, args []string) error {
	runFlags.Index = 0
	sched, err := startScheduler(&runFlags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	w := sched.Worker(0)
	result, err := demoProgram(w)
	if err != nil {
		return err
	}
	fmt.Println(result)
	log.Printf("par: demo program finished: %v", result)
	return nil
}

// demoProgram exercises the strategy layer a real par program would
// use: a ParMapNF of the squares of 1..8 and, when more than one node
// is configured, a divide-and-conquer fib(10) to shake out the
// spark/steal path. It returns the sum of the squares plus, on a
// multi-node cluster, fib(10). It has no counterpart in the design
// beyond being a composition of its own worked examples (parMap under
// ForceCC, and Fibonacci by divide-and-conquer).
func demoProgram(w par.Worker) (int, error) {
	nodes := par.AllNodes()

	square := par.StaticClosure("cmd/par.square")
	xs := make([]interface{}, 8)
	for i := range xs {
		xs[i] = i + 1
	}
	squares, err := strategy.ParMapNF(w, square, xs)
	if err != nil {
		return 0, err
	}

	sum := 0
	for _, v := range squares {
		n, err := unwrapClosedInt(v)
		if err != nil {
			return 0, err
		}
		sum += n
	}

	if len(nodes) > 1 {
		trivial := par.StaticClosure("cmd/par.fibTrivial")
		decompose := par.StaticClosure("cmd/par.fibDecompose")
		combine := par.StaticClosure("cmd/par.fibCombine")
		solve := par.StaticClosure("cmd/par.fibSolve")
		fibResult, err := strategy.ParDivideAndConquer(w, trivial, decompose, combine, solve, 10)
		if err != nil {
			return 0, err
		}
		fib, err := unwrapInt(fibResult)
		if err != nil {
			return 0, err
		}
		sum += fib
	}

	return sum, nil
}
