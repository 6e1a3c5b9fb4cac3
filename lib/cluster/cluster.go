// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

// Package cluster wraps a Grid Engine style batch queueing system:
// it renders job submission scripts, submits them through qsub, polls
// qstat for status, and tracks per-job state. The scheduler itself,
// and the programs the jobs run, remain external black boxes.
package cluster

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultClusterName is the compute cluster the lab's scripts talk to
// unless told otherwise.
const DefaultClusterName = "hyades"

var (
	// ErrUnknownQueue is returned when a queue name is not defined
	// on the cluster.
	ErrUnknownQueue = errors.New("unknown queue")
	// ErrUnknownParallelEnv is returned when a queue does not list
	// the requested parallel environment.
	ErrUnknownParallelEnv = errors.New("parallel environment not supported by queue")
)

// Cluster inspects the grid engine's queue definitions and load. It
// holds no state of its own: every method is a fresh query against the
// engine's CLI.
type Cluster struct {
	Name   string
	engine GridEngine
	logger logrus.FieldLogger
}

// New returns a Cluster using the real grid engine CLI.
func New(name string, logger logrus.FieldLogger) *Cluster {
	if name == "" {
		name = DefaultClusterName
	}
	return &Cluster{Name: name, engine: NewEngineCLI(logger), logger: logger}
}

// NewWithEngine returns a Cluster backed by the given engine. Used by
// tests and by callers that already hold an engine handle.
func NewWithEngine(name string, engine GridEngine, logger logrus.FieldLogger) *Cluster {
	if name == "" {
		name = DefaultClusterName
	}
	return &Cluster{Name: name, engine: engine, logger: logger}
}

// Queues returns the names of all queues defined on the cluster, in
// the order the engine reports them.
func (c *Cluster) Queues() ([]string, error) {
	return c.engine.QueueNames()
}

// ParallelEnvs returns the names of all parallel environments defined
// on the cluster.
func (c *Cluster) ParallelEnvs() ([]string, error) {
	return c.engine.ParallelEnvNames()
}

func (c *Cluster) checkQueue(queue string) error {
	queues, err := c.Queues()
	if err != nil {
		return err
	}
	for _, q := range queues {
		if q == queue {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownQueue, queue)
}

// queueAttr returns the value column(s) of the named attribute in the
// queue's configuration listing.
func (c *Cluster) queueAttr(queue, attr string) ([]string, error) {
	lines, err := c.engine.QueueConfig(queue)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == attr {
			return fields[1:], nil
		}
	}
	return nil, fmt.Errorf("queue %q has no %q attribute", queue, attr)
}

// MemoryLimitPerProcess returns the queue's h_vmem limit, i.e. the
// memory granted to each process slot.
func (c *Cluster) MemoryLimitPerProcess(queue string) (MemorySize, error) {
	if err := c.checkQueue(queue); err != nil {
		return 0, err
	}
	vals, err := c.queueAttr(queue, "h_vmem")
	if err != nil {
		return 0, err
	}
	return ParseMemorySize(vals[0])
}

// CheckParallelEnv confirms that the queue's pe_list includes the
// named parallel environment.
func (c *Cluster) CheckParallelEnv(queue, pe string) error {
	if err := c.checkQueue(queue); err != nil {
		return err
	}
	pes, err := c.queueAttr(queue, "pe_list")
	if err != nil {
		return err
	}
	for _, p := range pes {
		if p == pe {
			return nil
		}
	}
	return fmt.Errorf("%w: queue %q, environment %q", ErrUnknownParallelEnv, queue, pe)
}

// JobListing returns the engine's live queue listing for the given
// user, verbatim.
func (c *Cluster) JobListing(user string) ([]string, error) {
	return c.engine.JobList(user)
}

// CancelJob removes the job with the given engine identifier from the
// queue. Unlike Job.Kill, this works on jobs not submitted through
// this process.
func (c *Cluster) CancelJob(jobID string) error {
	return c.engine.Cancel(jobID)
}

// QueueLoad is one row of the cluster queue summary.
type QueueLoad struct {
	Name      string
	Load      float64
	Used      int
	Available int
	Total     int
}

// LoadSnapshot parses the engine's per-queue load summary. The parse
// relies on the fixed column layout of "qstat -g c" (name, load, used,
// reserved, available, total); if the external tool ever reorders its
// columns this breaks, which we accept rather than guessing.
func (c *Cluster) LoadSnapshot() ([]QueueLoad, error) {
	lines, err := c.engine.QueueLoad()
	if err != nil {
		return nil, err
	}
	if len(lines) <= 2 {
		return nil, nil
	}
	var loads []QueueLoad
	for _, line := range lines[2:] {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			c.logger.Warnf("skipping unparseable queue summary line %q", line)
			continue
		}
		load, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad load value in %q: %s", line, err)
		}
		used, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("bad used-slots value in %q: %s", line, err)
		}
		avail, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("bad available-slots value in %q: %s", line, err)
		}
		total, err := strconv.Atoi(fields[5])
		if err != nil {
			return nil, fmt.Errorf("bad total-slots value in %q: %s", line, err)
		}
		loads = append(loads, QueueLoad{
			Name:      fields[0],
			Load:      load,
			Used:      used,
			Available: avail,
			Total:     total,
		})
	}
	return loads, nil
}
