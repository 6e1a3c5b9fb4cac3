// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jobsUser string

func init() {
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(killCmd)
	jobsCmd.Flags().StringVarP(&jobsUser, "user", "u", "", "List jobs of the given user instead of the current one.")
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show the user's live queue listing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		user := jobsUser
		if user == "" {
			user = currentUser()
		}
		cl := newCluster(cfg.ClusterName, newLogger(cfg))
		lines, err := cl.JobListing(user)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no jobs in the queue")
			return nil
		}
		for _, line := range lines {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

var killCmd = &cobra.Command{
	Use:   "kill jobid ...",
	Short: "Remove jobs from the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cl := newCluster(cfg.ClusterName, newLogger(cfg))
		for _, jobID := range args {
			if err := cl.CancelJob(jobID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "killed job %s\n", jobID)
		}
		return nil
	},
}
