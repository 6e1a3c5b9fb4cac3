// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package cluster

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Batch is an insertion-ordered collection of jobs sharing one project
// context. It only grows: jobs are never reordered, replaced or
// deduplicated. Like Job, it is meant for sequential use by a single
// controlling script.
type Batch struct {
	Project string

	cluster *Cluster
	logger  logrus.FieldLogger
	jobs    []*Job
}

// NewBatch returns an empty batch whose jobs will all belong to
// project.
func NewBatch(c *Cluster, project string, logger logrus.FieldLogger) (*Batch, error) {
	if project == "" {
		return nil, fmt.Errorf("%w: batches are associated with a specific project", ErrInvalidConfiguration)
	}
	return &Batch{Project: project, cluster: c, logger: logger}, nil
}

// Add constructs a job from spec, forcing the batch's project context,
// and appends it. Existing entries are never mutated. A construction
// error leaves the batch as it was.
func (b *Batch) Add(spec JobSpec) (*Job, error) {
	spec.Project = b.Project
	job, err := NewJob(b.cluster, spec, b.logger)
	if err != nil {
		return nil, err
	}
	b.jobs = append(b.jobs, job)
	return job, nil
}

// Jobs returns the batch's job handles in insertion order.
func (b *Batch) Jobs() []*Job {
	return append([]*Job(nil), b.jobs...)
}

// Commands returns each job's command list, in insertion order.
func (b *Batch) Commands() [][]string {
	cmds := make([][]string, 0, len(b.jobs))
	for _, job := range b.jobs {
		cmds = append(cmds, job.Commands())
	}
	return cmds
}

// Submit submits every job in insertion order, one at a time. If a
// submission fails, earlier submissions are left in place -- there is
// no rollback -- and the error is returned; the caller inspects
// Status() to see where things stand.
func (b *Batch) Submit(fake bool) error {
	for i, job := range b.jobs {
		if err := job.Submit(fake); err != nil {
			return fmt.Errorf("submitting job #%d: %w", i+1, err)
		}
	}
	return nil
}

// Kill cancels the job with the given engine identifier, or every job
// in the batch if jobID is empty.
func (b *Batch) Kill(jobID string) error {
	for _, job := range b.jobs {
		if jobID != "" && job.ID() != jobID {
			continue
		}
		if err := job.Kill(); err != nil {
			return err
		}
	}
	return nil
}

// JobStatus is one row of a batch status report.
type JobStatus struct {
	Index   int
	JobID   string
	State   State
	Message string
}

// Status refreshes every job and reports its position, engine
// identifier and state.
func (b *Batch) Status() ([]JobStatus, error) {
	statuses := make([]JobStatus, 0, len(b.jobs))
	for i, job := range b.jobs {
		msg, err := job.StatusMessage()
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, JobStatus{
			Index:   i + 1,
			JobID:   job.ID(),
			State:   job.State(),
			Message: msg,
		})
	}
	return statuses, nil
}

// LogStatus writes a status line per job to the batch's logger, the
// way interactive scripts inspect their batches.
func (b *Batch) LogStatus() error {
	statuses, err := b.Status()
	if err != nil {
		return err
	}
	for _, st := range statuses {
		b.logger.Infof("#%d (%s): %s", st.Index, st.JobID, st.Message)
		b.logger.Debugf("\t%v", b.jobs[st.Index-1].Commands())
	}
	return nil
}
