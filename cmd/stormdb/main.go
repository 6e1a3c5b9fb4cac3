// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

// stormdb is the command line companion to the StormDB convenience
// layer: it inspects the compute cluster's queues and load, submits
// ad-hoc jobs, and manages the user's jobs and database credentials.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
