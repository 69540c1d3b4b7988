// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set by the release build's -ldflags; the default marks
// a locally built binary.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the par version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("par version", version)
	},
}
