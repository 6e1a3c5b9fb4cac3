// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(queuesCmd)
	rootCmd.AddCommand(loadCmd)
}

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "List the cluster's queues and their per-process memory limits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cl := newCluster(cfg.ClusterName, newLogger(cfg))
		queues, err := cl.Queues()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "QUEUE\tMEMORY/PROCESS")
		for _, queue := range queues {
			limit, err := cl.MemoryLimitPerProcess(queue)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%s\n", queue, humanize.Bytes(uint64(limit)))
		}
		return tw.Flush()
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Show the current per-queue load and slot usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cl := newCluster(cfg.ClusterName, newLogger(cfg))
		loads, err := cl.LoadSnapshot()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "QUEUE\tLOAD\tUSED\tAVAIL\tTOTAL")
		for _, ql := range loads {
			fmt.Fprintf(tw, "%s\t%.2f\t%d\t%d\t%d\n", ql.Name, ql.Load, ql.Used, ql.Available, ql.Total)
		}
		return tw.Flush()
	},
}
