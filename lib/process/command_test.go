// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package process

import (
	. "gopkg.in/check.v1"
)

var _ = Suite(&CommandSuite{})

type CommandSuite struct{}

func (s *CommandSuite) TestRender(c *C) {
	step := Step{Program: "recon-all"}
	step.Flag("-subjid", "0001_ABC")
	c.Check(step.Render(), Equals, `'recon-all' '-subjid' '0001_ABC'`)
}

func (s *CommandSuite) TestRenderQuoting(c *C) {
	step := Step{Program: "echo", Args: []string{"it's fine", "$HOME"}}
	c.Check(step.Render(), Equals, `'echo' 'it'\''s fine' '$HOME'`)
}

func (s *CommandSuite) TestRenderTee(c *C) {
	step := Step{Program: "maxfilter", TeeFile: "/tmp/mf.log"}
	step.Flag("-v")
	c.Check(step.Render(), Equals, `'maxfilter' '-v' | tee '/tmp/mf.log'`)
}

func (s *CommandSuite) TestAbsProjectPath(c *C) {
	c.Check(AbsProjectPath("scratch/fs_subjects_dir", "MEG_service"), Equals, "/projects/MEG_service/scratch/fs_subjects_dir")
	c.Check(AbsProjectPath("/raw/sorted", "MEG_service"), Equals, "/raw/sorted")
}
