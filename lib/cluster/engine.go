// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package cluster

import (
	"bufio"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// GridEngine is the set of grid-engine operations the rest of this
// package needs. The production implementation shells out to the SGE
// command line tools; tests substitute a stub.
type GridEngine interface {
	// Submit hands a rendered job script to qsub and returns its
	// combined output. The numeric job identifier is parsed out of
	// the output by the caller.
	Submit(scriptPath string) (string, error)
	// Cancel removes a job from the queue (qdel).
	Cancel(jobID string) error
	// QueueNames returns the names of all defined queues (qconf -sql).
	QueueNames() ([]string, error)
	// ParallelEnvNames returns all defined parallel environments
	// (qconf -spl).
	ParallelEnvNames() ([]string, error)
	// QueueConfig returns the configuration listing for one queue
	// (qconf -sq), one "key value..." line per attribute.
	QueueConfig(queue string) ([]string, error)
	// QueueLoad returns the cluster queue summary (qstat -g c),
	// including its two header lines.
	QueueLoad() ([]string, error)
	// JobList returns the live queue listing for the given user
	// (qstat -u), including any header lines.
	JobList(user string) ([]string, error)
}

// SubmitError is returned when the submission CLI exits non-zero. The
// tool's combined output is preserved for the caller's error message.
type SubmitError struct {
	Err    error
	Output string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("qsub failed: %s (%q)", e.Err, e.Output)
}

func (e *SubmitError) Unwrap() error { return e.Err }

type engineCLI struct {
	logger logrus.FieldLogger
	// (for testing) if non-nil, call stubCommand() instead of
	// exec.Command() when running grid engine command line programs.
	stubCommand func(string, ...string) *exec.Cmd
}

// NewEngineCLI returns a GridEngine backed by the qsub/qstat/qdel/qconf
// command line tools.
func NewEngineCLI(logger logrus.FieldLogger) GridEngine {
	return &engineCLI{logger: logger}
}

func (cli *engineCLI) command(prog string, args ...string) *exec.Cmd {
	if f := cli.stubCommand; f != nil {
		return f(prog, args...)
	}
	return exec.Command(prog, args...)
}

// run executes a grid engine program and returns its output split into
// lines, with trailing whitespace stripped. A non-zero exit status is
// reported with the combined output attached; it is never retried.
func (cli *engineCLI) run(prog string, args ...string) ([]string, error) {
	cmd := cli.command(prog, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %s (%q)", prog, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(strings.TrimRight(string(out), "\n")))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, nil
}

func (cli *engineCLI) Submit(scriptPath string) (string, error) {
	cli.logger.Infof("qsub %s", scriptPath)
	cmd := cli.command("qsub", scriptPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &SubmitError{Err: err, Output: strings.TrimSpace(string(out))}
	}
	return strings.TrimSpace(string(out)), nil
}

func (cli *engineCLI) Cancel(jobID string) error {
	cli.logger.Infof("qdel %s", jobID)
	_, err := cli.run("qdel", jobID)
	return err
}

func (cli *engineCLI) QueueNames() ([]string, error) {
	return cli.run("qconf", "-sql")
}

func (cli *engineCLI) ParallelEnvNames() ([]string, error) {
	return cli.run("qconf", "-spl")
}

func (cli *engineCLI) QueueConfig(queue string) ([]string, error) {
	return cli.run("qconf", "-sq", queue)
}

func (cli *engineCLI) QueueLoad() ([]string, error) {
	return cli.run("qstat", "-g", "c")
}

func (cli *engineCLI) JobList(user string) ([]string, error) {
	return cli.run("qstat", "-u", user)
}
