// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/grailbio/base/log"
	"github.com/spf13/cobra"
)

var workerFlags clusterFlags

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "join a par cluster as a non-main node",
	Long: `worker starts this process as one of a par cluster's non-main
nodes: it connects to every other node named in the peer file, joins
the fishing pool, and serves FISH/SCHEDULE/EXECUTE/RPUT traffic until
the main node broadcasts SHUTDOWN or the process receives SIGINT or
SIGTERM.

--index selects which entry of the peer file this process is; it must
not be 0, since index 0 is reserved for "par run".`,
	RunE: runWorkerCmd,
}

func init() {
	registerClusterFlags(workerCmd.Flags(), &workerFlags)
}

func runWorkerCmd(cmd *cobra.Command, args []string) error {
	sched, err := startScheduler(&workerFlags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	log.Printf("par: worker node up, waiting for shutdown")
	select {
	case <-ctx.Done():
	case <-sched.Done():
	}
	return nil
}
