// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package process

import (
	"os"
	"os/exec"
	"path/filepath"

	. "gopkg.in/check.v1"
)

var _ = Suite(&ConvertSuite{})

type ConvertSuite struct {
	dicomDir string
}

func (s *ConvertSuite) SetUpTest(c *C) {
	s.dicomDir = c.MkDir()
	for _, name := range []string{"b.dcm", "a.dcm"} {
		c.Assert(os.WriteFile(filepath.Join(s.dicomDir, name), []byte("dcm"), 0644), IsNil)
	}
}

func (s *ConvertSuite) TestCopyDICOMDir(c *C) {
	outDir := filepath.Join(c.MkDir(), "copy")
	got, err := CopyDICOMDir(s.dicomDir, outDir)
	c.Assert(err, IsNil)
	c.Check(got, Equals, outDir)
	for _, name := range []string{"a.dcm", "b.dcm"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		c.Check(err, IsNil)
	}
}

func (s *ConvertSuite) TestCopyDICOMDirTemp(c *C) {
	got, err := CopyDICOMDir(s.dicomDir, "")
	c.Assert(err, IsNil)
	defer os.RemoveAll(got)
	c.Check(got, Not(Equals), "")

	_, err = CopyDICOMDir(c.MkDir(), "")
	c.Check(err, ErrorMatches, `no files to copy found in .*`)
}

func (s *ConvertSuite) TestFirstFileInDir(c *C) {
	first, err := FirstFileInDir(s.dicomDir)
	c.Assert(err, IsNil)
	c.Check(first, Equals, filepath.Join(s.dicomDir, "a.dcm"))

	_, err = FirstFileInDir(c.MkDir())
	c.Check(err, ErrorMatches, `no files found in .*`)
}

func (s *ConvertSuite) TestConvertDICOMToNIfTI(c *C) {
	origConvert := convertCommand
	var args []string
	convertCommand = func(prog string, argv ...string) *exec.Cmd {
		args = append([]string{prog}, argv...)
		return exec.Command("true")
	}
	defer func() { convertCommand = origConvert }()

	output := filepath.Join(c.MkDir(), "t1.nii.gz")
	c.Assert(ConvertDICOMToNIfTI(filepath.Join(s.dicomDir, "b.dcm"), output), IsNil)
	c.Assert(args, HasLen, 3)
	c.Check(args[0], Equals, "mri_convert")
	// the conversion runs on a scratch copy of the series directory
	c.Check(filepath.Base(args[1]), Equals, "a.dcm")
	c.Check(args[2], Equals, output)
}

func (s *ConvertSuite) TestConvertDICOMToNIfTIFailure(c *C) {
	origConvert := convertCommand
	convertCommand = func(prog string, argv ...string) *exec.Cmd {
		return exec.Command("false")
	}
	defer func() { convertCommand = origConvert }()

	err := ConvertDICOMToNIfTI(s.dicomDir, filepath.Join(c.MkDir(), "t1.nii.gz"))
	c.Check(err, ErrorMatches, `conversion failed: .*`)
}
