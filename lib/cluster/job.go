// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package cluster

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
)

// WorkingDirCurrent is the sentinel WorkingDir value meaning "run the
// job in whatever directory the submission shell is in".
const WorkingDirCurrent = "cwd"

// DefaultQueue is used when a JobSpec does not name one.
const DefaultQueue = "short.q"

const defaultJobName = "stormdb-wrapper"

// submitScriptName is the fixed scratch location the rendered script
// is written to at submission time. It is removed again after qsub
// returns unless the spec disables cleanup.
const submitScriptName = "~/submit_job.sh"

// ErrInvalidConfiguration is wrapped into errors reported for bad job
// parameters (missing command, bad log directory, ...).
var ErrInvalidConfiguration = errors.New("invalid job configuration")

// State is a job handle's lifecycle state. Exactly one state holds at
// any time; it is re-derived from the engine's live queue listing on
// every poll.
type State int

const (
	StateNotSubmitted State = iota
	StateWaiting
	StateRunning
	StateCompleted
	StateFailed
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateNotSubmitted:
		return "not submitted"
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "submission failed"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("invalid state %d", int(s))
	}
}

// JobSpec describes one cluster job: the shell command(s) to run and
// the resources to request for them.
type JobSpec struct {
	// Commands are executed in order by a single job, one per line
	// of the submission script.
	Commands []string
	// Project associates the job with a database project.
	Project string
	// Queue to submit to; DefaultQueue if empty.
	Queue string
	// Threads is the number of slots to request (default 1).
	// Queues grant a fixed amount of memory per slot.
	Threads int
	// TotalMemory, e.g. "50G", requests enough slots to cover the
	// given amount. Mutually exclusive with Threads > 1: the slot
	// count is derived from the queue's per-process memory limit.
	TotalMemory string
	// WorkingDir is an existing directory path, or
	// WorkingDirCurrent (the default).
	WorkingDir string
	// JobName shows up in qstat and names the log file.
	JobName string
	// LogDir, if set, must already exist; the job log is written
	// there instead of the working directory.
	LogDir string
	// KeepScript leaves the submission script on disk after qsub.
	KeepScript bool
}

// Job is a handle on one (prospective) cluster job. The submission
// script is rendered at construction; Submit, RefreshStatus and Kill
// drive the lifecycle. Jobs are meant for sequential use by a single
// controlling script and do no internal locking.
type Job struct {
	cluster *Cluster
	logger  logrus.FieldLogger

	commands   []string
	project    string
	queue      string
	threads    int
	name       string
	script     string
	scriptPath string
	cleanup    bool

	user    string
	jobID   string
	state   State
	msg     string
	everRan bool
}

// NewJob validates spec against the cluster's queue definitions and
// renders the submission script. Configuration errors are reported
// here, never at submission time.
func NewJob(c *Cluster, spec JobSpec, logger logrus.FieldLogger) (*Job, error) {
	if len(spec.Commands) == 0 {
		return nil, fmt.Errorf("%w: no command to run", ErrInvalidConfiguration)
	}
	for _, cmd := range spec.Commands {
		if strings.TrimSpace(cmd) == "" {
			return nil, fmt.Errorf("%w: empty command in list", ErrInvalidConfiguration)
		}
	}
	if spec.Project == "" {
		return nil, fmt.Errorf("%w: jobs are associated with a specific project", ErrInvalidConfiguration)
	}
	queue := spec.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	if err := c.checkQueue(queue); err != nil {
		return nil, err
	}

	threads := spec.Threads
	if threads == 0 {
		threads = 1
	}
	if spec.TotalMemory != "" {
		if threads > 1 {
			return nil, fmt.Errorf("%w: maximum number of threads is one when total memory is specified", ErrInvalidConfiguration)
		}
		total, err := ParseMemorySize(spec.TotalMemory)
		if err != nil {
			return nil, err
		}
		limit, err := c.MemoryLimitPerProcess(queue)
		if err != nil {
			return nil, err
		}
		threads = threadsFor(total, limit)
	}

	var peFlag string
	if threads > 1 {
		if err := c.CheckParallelEnv(queue, "threaded"); err != nil {
			return nil, err
		}
		peFlag = fmt.Sprintf("#$ -pe threaded %d", threads)
	}

	workDir := spec.WorkingDir
	if workDir == "" {
		workDir = WorkingDirCurrent
	}
	var workDirFlag string
	if workDir == WorkingDirCurrent {
		workDirFlag = "#$ -cwd"
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		workDir = cwd
	} else {
		workDirFlag = "#$ -wd " + workDir
	}
	if err := checkWritableDir(workDir); err != nil {
		return nil, err
	}

	name := spec.JobName
	if name == "" {
		name = defaultJobName
	}
	logPrefix := name
	if spec.LogDir != "" {
		if fi, err := os.Stat(spec.LogDir); err != nil || !fi.IsDir() {
			return nil, fmt.Errorf("%w: log directory %q does not exist", ErrInvalidConfiguration, spec.LogDir)
		}
		logPrefix = filepath.Join(spec.LogDir, name)
	}

	commands := append([]string(nil), spec.Commands...)
	script, err := renderScript(scriptFields{
		WorkDirFlag:     workDirFlag,
		JobName:         name,
		LogPrefix:       logPrefix,
		Queue:           queue,
		ParallelEnvFlag: peFlag,
		Command:         strings.Join(commands, "\n"),
	})
	if err != nil {
		return nil, err
	}

	return &Job{
		cluster:  c,
		logger:   logger,
		commands: commands,
		project:  spec.Project,
		queue:    queue,
		threads:  threads,
		name:     name,
		script:   script,
		cleanup:  !spec.KeepScript,
		user:     currentUser(),
		state:    StateNotSubmitted,
		msg:      "Job not submitted yet",
	}, nil
}

// Commands returns a copy of the job's command list. The commands
// cannot be changed once the job is constructed.
func (j *Job) Commands() []string {
	return append([]string(nil), j.commands...)
}

// ID returns the engine-assigned job identifier, or "" before
// submission.
func (j *Job) ID() string { return j.jobID }

// State returns the state recorded by the most recent poll.
func (j *Job) State() State { return j.state }

// Project returns the project the job belongs to.
func (j *Job) Project() string { return j.project }

// Queue returns the queue the job will be (or was) submitted to.
func (j *Job) Queue() string { return j.queue }

// Threads returns the effective slot count, after any derivation from
// a total-memory request.
func (j *Job) Threads() int { return j.threads }

// Script returns the rendered submission script.
func (j *Job) Script() string { return j.script }

// StatusMessage polls the engine and returns a human-readable account
// of the job's state.
func (j *Job) StatusMessage() (string, error) {
	if err := j.RefreshStatus(); err != nil {
		return "", err
	}
	return j.msg, nil
}

var jobIDPattern = regexp.MustCompile(`\d+`)

// Submit writes the rendered script to its scratch path and hands it
// to qsub. Submitting a job that is already in flight is a logged
// no-op: no second engine job is ever created for one handle. With
// fake=true nothing is submitted; the commands are only logged.
func (j *Job) Submit(fake bool) error {
	if err := j.RefreshStatus(); err != nil {
		return err
	}
	switch j.state {
	case StateNotSubmitted:
	case StateRunning:
		j.logger.Infof("job %s is already running", j.jobID)
		return nil
	case StateWaiting:
		j.logger.Infof("job %s is already waiting", j.jobID)
		return nil
	case StateCompleted, StateKilled, StateFailed:
		j.logger.Infof("job %s is already %s, re-create the job to re-run", j.jobID, j.state)
		return nil
	}

	if fake {
		j.logger.Infof("following command would be submitted (if not fake):\n%s", strings.Join(j.commands, "\n"))
		return nil
	}

	path := j.scriptPath
	if path == "" {
		var err error
		path, err = homedir.Expand(submitScriptName)
		if err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, []byte(j.script), 0644); err != nil {
		return err
	}
	out, err := j.cluster.engine.Submit(path)
	if err != nil {
		return err
	}
	m := jobIDPattern.FindString(out)
	if m == "" {
		return fmt.Errorf("no job identifier in qsub output %q", out)
	}
	j.jobID = m
	if j.cleanup {
		if err := os.Remove(path); err != nil {
			j.logger.Warnf("could not remove submission script %s: %s", path, err)
		}
	}
	j.state = StateWaiting
	j.msg = "Waiting in the queue"
	j.logger.Infof("cluster job submitted, job ID: %s", j.jobID)
	return nil
}

// RefreshStatus re-derives the job's state from the engine's live
// queue listing. A job that has vanished from the listing after having
// been seen running is taken to be completed: the engine gives no
// explicit done notification, and this cannot distinguish normal
// completion from the job having been purged externally. A job that
// vanished without ever running failed at submission. Unexpected
// status codes are reported in the status message rather than raised,
// so long-running batch monitors survive minor qstat output drift.
func (j *Job) RefreshStatus() error {
	switch j.state {
	case StateNotSubmitted, StateCompleted, StateKilled, StateFailed:
		return nil
	}
	lines, err := j.cluster.engine.JobList(j.user)
	if err != nil {
		return err
	}
	var fields []string
	for _, line := range lines {
		f := strings.Fields(line)
		if len(f) > 0 && f[0] == j.jobID {
			fields = f
			break
		}
	}
	if fields == nil {
		if j.everRan {
			j.state = StateCompleted
			j.msg = "Job completed"
		} else {
			j.state = StateFailed
			j.msg = "Submission failed, see log for output errors!"
		}
		return nil
	}
	if len(fields) < 5 {
		j.msg = fmt.Sprintf("Queue status odd (qstat says: %q), please check!", strings.Join(fields, " "))
		return nil
	}
	switch code := fields[4]; code {
	case "r":
		j.state = StateRunning
		j.everRan = true
		if len(fields) >= 8 && strings.Contains(fields[7], "@") {
			qh := strings.SplitN(fields[7], "@", 2)
			host := strings.SplitN(qh[1], ".", 2)[0]
			j.msg = fmt.Sprintf("Running on %s (%s)", host, qh[0])
		} else {
			j.msg = "Running"
		}
	case "qw":
		j.state = StateWaiting
		j.msg = "Waiting in the queue"
	default:
		j.state = StateWaiting
		j.msg = fmt.Sprintf("Queue status odd (qstat says: %s), please check!", code)
	}
	return nil
}

// Kill cancels a waiting or running job. Any partial output the job
// already produced is not rolled back; the job's command is an opaque
// external program, so cleaning up is the caller's responsibility.
// Killing a job in any other state is a logged no-op.
func (j *Job) Kill() error {
	if err := j.RefreshStatus(); err != nil {
		return err
	}
	if j.state != StateWaiting && j.state != StateRunning {
		j.logger.Infof("nothing to kill: job %s is %s", j.jobID, j.state)
		return nil
	}
	if err := j.cluster.engine.Cancel(j.jobID); err != nil {
		return fmt.Errorf("unexpected qdel failure for job %s: %s", j.jobID, err)
	}
	j.state = StateKilled
	j.msg = "Job was killed."
	j.logger.Warnf("job %s killed; you must manually delete any output it may have created", j.jobID)
	return nil
}

// checkWritableDir fails unless dir exists and the caller can create
// files in it.
func checkWritableDir(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("non-existent directory: %s", dir)
	}
	if !fi.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}
	f, err := os.CreateTemp(dir, ".stormdb-write-check-")
	if err != nil {
		return fmt.Errorf("no write permission to %s: %s", dir, err)
	}
	f.Close()
	os.Remove(f.Name())
	return nil
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
