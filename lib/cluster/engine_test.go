// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package cluster

import (
	"errors"
	"os/exec"
	"strings"

	. "gopkg.in/check.v1"
)

var _ = Suite(&EngineCLISuite{})

type EngineCLISuite struct {
	cli  *engineCLI
	args []string
}

func (s *EngineCLISuite) SetUpTest(c *C) {
	s.cli = &engineCLI{logger: testLogger()}
	s.args = nil
}

// stub replaces the grid engine program with a shell snippet, while
// recording what would have been run.
func (s *EngineCLISuite) stub(script string) {
	s.cli.stubCommand = func(prog string, args ...string) *exec.Cmd {
		s.args = append([]string{prog}, args...)
		return exec.Command("sh", "-c", script)
	}
}

func (s *EngineCLISuite) TestQueueNames(c *C) {
	s.stub(`printf 'short.q\nlong.q\n'`)
	queues, err := s.cli.QueueNames()
	c.Assert(err, IsNil)
	c.Check(queues, DeepEquals, []string{"short.q", "long.q"})
	c.Check(s.args, DeepEquals, []string{"qconf", "-sql"})
}

func (s *EngineCLISuite) TestJobListArgs(c *C) {
	s.stub(`printf 'header\n'`)
	_, err := s.cli.JobList("meg")
	c.Assert(err, IsNil)
	c.Check(s.args, DeepEquals, []string{"qstat", "-u", "meg"})
}

func (s *EngineCLISuite) TestRunFailureIncludesOutput(c *C) {
	s.stub(`echo 'qmaster unreachable'; exit 2`)
	_, err := s.cli.QueueNames()
	c.Assert(err, NotNil)
	c.Check(strings.Contains(err.Error(), "qmaster unreachable"), Equals, true)
}

func (s *EngineCLISuite) TestSubmit(c *C) {
	s.stub(`echo 'Your job 424242 ("x") has been submitted'`)
	out, err := s.cli.Submit("/tmp/submit_job.sh")
	c.Assert(err, IsNil)
	c.Check(out, Equals, `Your job 424242 ("x") has been submitted`)
	c.Check(s.args, DeepEquals, []string{"qsub", "/tmp/submit_job.sh"})
}

func (s *EngineCLISuite) TestSubmitFailure(c *C) {
	s.stub(`echo 'Unable to run job'; exit 1`)
	_, err := s.cli.Submit("/tmp/submit_job.sh")
	var se *SubmitError
	c.Assert(errors.As(err, &se), Equals, true)
	c.Check(se.Output, Equals, "Unable to run job")
}

func (s *EngineCLISuite) TestCancel(c *C) {
	s.stub(`printf 'meg has deleted job 424242\n'`)
	c.Check(s.cli.Cancel("424242"), IsNil)
	c.Check(s.args, DeepEquals, []string{"qdel", "424242"})
}
