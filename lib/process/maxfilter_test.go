// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package process

import (
	"os"
	"path/filepath"
	"strings"

	. "gopkg.in/check.v1"
)

var _ = Suite(&MaxFilterSuite{})

type MaxFilterSuite struct {
	mf *MaxFilter
}

func (s *MaxFilterSuite) SetUpTest(c *C) {
	cl, _ := newTestCluster()
	mf, err := NewMaxFilter(cl, "MEG_service", nil, testLogger())
	c.Assert(err, IsNil)
	s.mf = mf
}

func (s *MaxFilterSuite) TestBuildDefaults(c *C) {
	c.Assert(s.mf.Build("/raw/in.fif", "/scratch/out.fif", MaxFilterOptions{}), IsNil)
	jobs := s.mf.Jobs()
	c.Assert(jobs, HasLen, 1)
	c.Check(jobs[0].Queue(), Equals, "maxfilter.q")
	c.Check(jobs[0].Threads(), Equals, 4)
	cmd := jobs[0].Commands()[0]
	c.Check(strings.HasPrefix(cmd, `'/neuro/bin/util/maxfilter' '-f' '/raw/in.fif' '-o' '/scratch/out.fif' '-v'`), Equals, true)
	c.Check(cmd, Matches, `.* '-frame' 'head' '-origin' '0' '0' '40' .*`)
	c.Check(cmd, Matches, `.* '-autobad' 'off' .*`)
	c.Check(cmd, Matches, `.* '-hpicons'.*`)
	c.Check(cmd, Not(Matches), `.* '-st' .*`)
	c.Check(s.mf.IOMapping(), DeepEquals, []IOPair{{Input: "/raw/in.fif", Output: "/scratch/out.fif"}})
}

func (s *MaxFilterSuite) TestBadChannels(c *C) {
	cl, _ := newTestCluster()
	mf, err := NewMaxFilter(cl, "MEG_service", []string{"MEG2442"}, testLogger())
	c.Assert(err, IsNil)
	c.Assert(mf.Build("in.fif", "out.fif", MaxFilterOptions{Bad: []string{"1711", "MEG0422"}}), IsNil)
	cmd := mf.Jobs()[0].Commands()[0]
	c.Check(cmd, Matches, `.* '-bad' '1711' '0422' '2442' .*`)
}

func (s *MaxFilterSuite) TestTSSS(c *C) {
	c.Assert(s.mf.Build("in.fif", "out.fif", MaxFilterOptions{ST: true}), IsNil)
	cmd := s.mf.Jobs()[0].Commands()[0]
	c.Check(cmd, Matches, `.* '-st' '16' '-corr' '0\.9600'.*`)
}

func (s *MaxFilterSuite) TestMoveComp(c *C) {
	c.Assert(s.mf.Build("in.fif", "out.fif", MaxFilterOptions{MoveComp: MoveCompInter}), IsNil)
	cmd := s.mf.Jobs()[0].Commands()[0]
	c.Check(cmd, Matches, `.* '-movecomp' 'inter' .*`)

	err := s.mf.Build("in.fif", "out.fif", MaxFilterOptions{MoveComp: MoveCompOn, HeadPos: true})
	c.Check(err, ErrorMatches, `movecomp and headpos are mutually exclusive`)
	err = s.mf.Build("in.fif", "out.fif", MaxFilterOptions{MoveComp: "sometimes"})
	c.Check(err, ErrorMatches, `movecomp must be .*`)
}

func (s *MaxFilterSuite) TestBadFrame(c *C) {
	err := s.mf.Build("in.fif", "out.fif", MaxFilterOptions{Frame: "ship"})
	c.Check(err, ErrorMatches, `frame must be .*`)
	c.Check(s.mf.Jobs(), HasLen, 0)
}

func (s *MaxFilterSuite) TestLogFileTee(c *C) {
	c.Assert(s.mf.Build("in.fif", "out.fif", MaxFilterOptions{LogFile: "/tmp/mf.log"}), IsNil)
	cmd := s.mf.Jobs()[0].Commands()[0]
	c.Check(strings.HasSuffix(cmd, `| tee '/tmp/mf.log'`), Equals, true)
}

func (s *MaxFilterSuite) TestCheckIOMapping(c *C) {
	dir := c.MkDir()
	in := filepath.Join(dir, "in.fif")
	out := filepath.Join(dir, "out.fif")
	c.Assert(s.mf.Build(in, out, MaxFilterOptions{}), IsNil)

	err := s.mf.CheckIOMapping(false)
	c.Check(err, ErrorMatches, `input file .* not readable`)

	c.Assert(os.WriteFile(in, []byte("fif"), 0644), IsNil)
	c.Check(s.mf.CheckIOMapping(false), IsNil)

	c.Assert(os.WriteFile(out, []byte("fif"), 0644), IsNil)
	err = s.mf.CheckIOMapping(false)
	c.Check(err, ErrorMatches, `output file .* exists, use force to overwrite`)
	c.Check(s.mf.CheckIOMapping(true), IsNil)
}
