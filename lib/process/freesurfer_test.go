// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package process

import (
	"os"
	"path/filepath"

	. "gopkg.in/check.v1"

	"github.com/meeg-cfin/stormdb/sdk/go/stormdb"
)

var _ = Suite(&FreesurferSuite{})

type FreesurferSuite struct {
	subjectsDir string
	db          *stubDB
	fs          *Freesurfer
}

func (s *FreesurferSuite) SetUpTest(c *C) {
	s.subjectsDir = c.MkDir()
	s.db = &stubDB{
		subjects: []string{"0001_ABC", "0002_DEF"},
		series: map[string]stormdb.SeriesInfo{
			"*t1*": {
				SubjectCode: "0001_ABC",
				Path:        "/raw/0001/20260101_000000/MR/001.t1_mprage/files",
				SeriesName:  "t1_mprage",
				Files:       []string{"a.dcm", "b.dcm"},
			},
		},
	}
	cl, _ := newTestCluster()
	fs, err := NewFreesurfer(cl, s.db, "MEG_service", FreesurferOptions{SubjectsDir: s.subjectsDir}, testLogger())
	c.Assert(err, IsNil)
	s.fs = fs
}

func (s *FreesurferSuite) TestSubjectsDirRequired(c *C) {
	orig, hadOrig := os.LookupEnv(SubjectsDirEnvVar)
	os.Unsetenv(SubjectsDirEnvVar)
	defer func() {
		if hadOrig {
			os.Setenv(SubjectsDirEnvVar, orig)
		}
	}()
	cl, _ := newTestCluster()
	_, err := NewFreesurfer(cl, s.db, "MEG_service", FreesurferOptions{}, testLogger())
	c.Check(err, ErrorMatches, `no SUBJECTS_DIR defined.*`)

	os.Setenv(SubjectsDirEnvVar, s.subjectsDir)
	defer os.Unsetenv(SubjectsDirEnvVar)
	_, err = NewFreesurfer(cl, s.db, "MEG_service", FreesurferOptions{}, testLogger())
	c.Check(err, IsNil)
}

func (s *FreesurferSuite) TestUnknownSubject(c *C) {
	err := s.fs.ReconAll("0099_XYZ", ReconAllOptions{})
	c.Check(err, ErrorMatches, `subject 0099_XYZ not found in database`)
}

func (s *FreesurferSuite) TestFirstRunImportsDICOM(c *C) {
	c.Assert(s.fs.ReconAll("0001_ABC", ReconAllOptions{T1Series: "*t1*"}), IsNil)
	jobs := s.fs.Jobs()
	c.Assert(jobs, HasLen, 1)
	c.Check(jobs[0].Queue(), Equals, "long.q")
	cmd := jobs[0].Commands()[0]
	c.Check(cmd, Matches, `'/usr/local/freesurfer/bin/recon-all' '-all' '-subjid' '0001_ABC' '-sd' '`+s.subjectsDir+`' '-i' '/raw/0001/20260101_000000/MR/001.t1_mprage/files/a.dcm'`)
}

func (s *FreesurferSuite) TestFirstRunNeedsT1Series(c *C) {
	err := s.fs.ReconAll("0001_ABC", ReconAllOptions{})
	c.Check(err, ErrorMatches, `name of T1 series must be defined.*`)
}

func (s *FreesurferSuite) TestImportedSubjectSkipsConversion(c *C) {
	origDir := filepath.Join(s.subjectsDir, "0001_ABC", "mri", "orig")
	c.Assert(os.MkdirAll(origDir, 0755), IsNil)
	c.Assert(os.WriteFile(filepath.Join(origDir, "001.mgz"), []byte("mgz"), 0644), IsNil)

	c.Assert(s.fs.ReconAll("0001_ABC", ReconAllOptions{Directive: "autorecon2", Hemi: "lh"}), IsNil)
	cmd := s.fs.Jobs()[0].Commands()[0]
	c.Check(cmd, Matches, `.* '-autorecon2' .*`)
	c.Check(cmd, Matches, `.* '-hemi' 'lh'`)
	c.Check(cmd, Not(Matches), `.* '-i' .*`)
}

func (s *FreesurferSuite) TestBadHemisphere(c *C) {
	err := s.fs.ReconAll("0001_ABC", ReconAllOptions{Hemi: "mid"})
	c.Check(err, ErrorMatches, `hemisphere must be .*`)
}

func (s *FreesurferSuite) TestReconAllSubjects(c *C) {
	origDir := filepath.Join(s.subjectsDir, "0002_DEF", "mri", "orig")
	c.Assert(os.MkdirAll(origDir, 0755), IsNil)
	c.Assert(os.WriteFile(filepath.Join(origDir, "001.mgz"), []byte("mgz"), 0644), IsNil)

	c.Assert(s.fs.ReconAllSubjects([]string{"0001_ABC", "0002_DEF"}, ReconAllOptions{T1Series: "*t1*"}), IsNil)
	c.Check(s.fs.Jobs(), HasLen, 2)
}
