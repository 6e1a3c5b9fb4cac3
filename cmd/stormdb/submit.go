// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/meeg-cfin/stormdb/lib/cluster"
	"github.com/meeg-cfin/stormdb/lib/process"
)

var (
	submitCommands   []string
	submitQueue      string
	submitThreads    int
	submitMemory     string
	submitWorkDir    string
	submitName       string
	submitLogDir     string
	submitKeepScript bool
	submitFake       bool
)

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringArrayVarP(&submitCommands, "command", "c", nil, "Command to run; repeat for multiple commands in one job. Required.")
	submitCmd.Flags().StringVarP(&submitQueue, "queue", "q", "", "Queue to submit to (default "+cluster.DefaultQueue+").")
	submitCmd.Flags().IntVarP(&submitThreads, "threads", "t", 0, "Number of slots to request.")
	submitCmd.Flags().StringVarP(&submitMemory, "memory", "m", "", "Total memory to request, e.g. 50G; derives the slot count from the queue's per-process limit. Mutually exclusive with --threads.")
	submitCmd.Flags().StringVarP(&submitWorkDir, "workdir", "w", "", "Working directory for the job (default: current directory).")
	submitCmd.Flags().StringVarP(&submitName, "name", "n", "", "Job name shown in the queue listing.")
	submitCmd.Flags().StringVar(&submitLogDir, "logdir", "", "Existing directory to write the job log to.")
	submitCmd.Flags().BoolVar(&submitKeepScript, "keep-script", false, "Leave the rendered submission script on disk.")
	submitCmd.Flags().BoolVar(&submitFake, "fake", false, "Log the commands instead of submitting anything.")
	_ = submitCmd.MarkFlagRequired("command")
}

var submitCmd = &cobra.Command{
	Use:   "submit -c 'program arg ...'",
	Short: "Submit an ad-hoc job to the cluster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Project == "" {
			return errors.New("no project code: use --project, the config file, or the environment")
		}
		commands := make([]string, 0, len(submitCommands))
		for _, raw := range submitCommands {
			argv, err := shlex.Split(raw)
			if err != nil {
				return errors.Wrapf(err, "parsing command %q", raw)
			}
			if len(argv) == 0 {
				return errors.Errorf("empty command %q", raw)
			}
			step := process.Step{Program: argv[0], Args: argv[1:]}
			commands = append(commands, step.Render())
		}
		logger := newLogger(cfg)
		cl := newCluster(cfg.ClusterName, logger)
		job, err := cluster.NewJob(cl, cluster.JobSpec{
			Commands:    commands,
			Project:     cfg.Project,
			Queue:       submitQueue,
			Threads:     submitThreads,
			TotalMemory: submitMemory,
			WorkingDir:  submitWorkDir,
			JobName:     submitName,
			LogDir:      submitLogDir,
			KeepScript:  submitKeepScript,
		}, logger)
		if err != nil {
			return err
		}
		if err := job.Submit(submitFake); err != nil {
			return err
		}
		if !submitFake {
			fmt.Fprintf(cmd.OutOrStdout(), "submitted job %s\n", job.ID())
		}
		return nil
	},
}
