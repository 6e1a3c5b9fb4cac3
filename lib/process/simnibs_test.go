// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package process

import (
	"os"
	"os/exec"
	"path/filepath"

	. "gopkg.in/check.v1"

	"github.com/meeg-cfin/stormdb/sdk/go/stormdb"
)

var _ = Suite(&SimNIBSSuite{})

type SimNIBSSuite struct {
	outputDir string
	dicomDir  string
	db        *stubDB
	sn        *SimNIBS
}

func (s *SimNIBSSuite) SetUpTest(c *C) {
	s.outputDir = c.MkDir()
	s.dicomDir = c.MkDir()
	c.Assert(os.WriteFile(filepath.Join(s.dicomDir, "a.dcm"), []byte("dcm"), 0644), IsNil)
	s.db = &stubDB{
		subjects: []string{"0002_M55"},
		series: map[string]stormdb.SeriesInfo{
			"*t1*FS": {SubjectCode: "0002_M55", Path: s.dicomDir, SeriesName: "t1_mpr_FS", Files: []string{"a.dcm"}},
			"*t2*H*": {SubjectCode: "0002_M55", Path: s.dicomDir, SeriesName: "t2_tse_HB", Files: []string{"a.dcm"}},
		},
	}
	cl, _ := newTestCluster()
	sn, err := NewSimNIBS(cl, s.db, "MEG_service", s.outputDir, testLogger())
	c.Assert(err, IsNil)
	s.sn = sn
}

func (s *SimNIBSSuite) TestMri2Mesh(c *C) {
	origConvert := convertCommand
	var converted [][]string
	convertCommand = func(prog string, args ...string) *exec.Cmd {
		converted = append(converted, append([]string{prog}, args...))
		return exec.Command("true")
	}
	defer func() { convertCommand = origConvert }()

	err := s.sn.Mri2Mesh("0002_M55", Mri2MeshOptions{T1FatSat: "*t1*FS", T2HighBW: "*t2*H*"})
	c.Assert(err, IsNil)
	jobs := s.sn.Jobs()
	c.Assert(jobs, HasLen, 1)
	c.Check(jobs[0].Queue(), Equals, "long.q")
	cmd := jobs[0].Commands()[0]
	niftiDir := filepath.Join(s.outputDir, "nifti", "0002_M55")
	c.Check(cmd, Equals,
		`'mri2mesh' '--brain' '--subcort' '--head' '0002_M55' `+
			`'`+filepath.Join(niftiDir, "t1_mpr_FS.nii.gz")+`' `+
			`'`+filepath.Join(niftiDir, "t2_tse_HB.nii.gz")+`'`)
	c.Assert(converted, HasLen, 2)
	c.Check(converted[0][0], Equals, "mri_convert")
}

func (s *SimNIBSSuite) TestMri2MeshNIfTIPassthrough(c *C) {
	err := s.sn.Mri2Mesh("0002_M55", Mri2MeshOptions{
		T1FatSat:     "/scratch/nifti/t1.nii.gz",
		AnalysisName: "_t2mask",
		T2Mask:       true,
	})
	c.Assert(err, IsNil)
	cmd := s.sn.Jobs()[0].Commands()[0]
	c.Check(cmd, Equals, `'mri2mesh' '--brain' '--subcort' '--head' '--t2mask' '0002_M55_t2mask' '/scratch/nifti/t1.nii.gz'`)
}

func (s *SimNIBSSuite) TestMri2MeshConflictingT2Options(c *C) {
	err := s.sn.Mri2Mesh("0002_M55", Mri2MeshOptions{T1FatSat: "t1.nii", T2Mask: true, T2Pial: true})
	c.Check(err, ErrorMatches, `t2mask and t2pial cannot be used together`)
}

func (s *SimNIBSSuite) TestMri2MeshUnknownSubject(c *C) {
	err := s.sn.Mri2Mesh("0099_XYZ", Mri2MeshOptions{T1FatSat: "t1.nii"})
	c.Check(err, ErrorMatches, `subject 0099_XYZ not found in database`)
}

func (s *SimNIBSSuite) TestMri2MeshLinkToFSDir(c *C) {
	linkDir := c.MkDir()
	err := s.sn.Mri2Mesh("0002_M55", Mri2MeshOptions{T1FatSat: "t1.nii", LinkToFSDir: linkDir})
	c.Assert(err, IsNil)
	cmds := s.sn.Jobs()[0].Commands()
	c.Assert(cmds, HasLen, 2)
	c.Check(cmds[1], Equals,
		`'ln' '-s' '`+filepath.Join(s.outputDir, "fs_0002_M55")+`' '`+filepath.Join(linkDir, "0002_M55")+`'`)

	c.Assert(os.MkdirAll(filepath.Join(linkDir, "0002_M55"), 0755), IsNil)
	err = s.sn.Mri2Mesh("0002_M55", Mri2MeshOptions{T1FatSat: "t1.nii", LinkToFSDir: linkDir})
	c.Check(err, ErrorMatches, `.*already exists.*`)
}

func (s *SimNIBSSuite) TestCreateBEMSurfaces(c *C) {
	m2mDir := filepath.Join(s.outputDir, "m2m_0002_M55")
	fsDir := filepath.Join(s.outputDir, "fs_0002_M55")
	c.Assert(os.MkdirAll(m2mDir, 0755), IsNil)
	c.Assert(os.MkdirAll(fsDir, 0755), IsNil)
	for _, surf := range []string{"csf.stl", "skull.stl", "skin.stl"} {
		c.Assert(os.WriteFile(filepath.Join(m2mDir, surf), []byte("stl"), 0644), IsNil)
	}

	c.Assert(s.sn.CreateBEMSurfaces("0002_M55", BEMSurfaceOptions{}), IsNil)
	jobs := s.sn.Jobs()
	c.Assert(jobs, HasLen, 1)
	c.Check(jobs[0].Queue(), Equals, "short.q")
	cmds := jobs[0].Commands()
	// meshfix + mris_transform + rm per BEM layer
	c.Assert(cmds, HasLen, 9)
	c.Check(cmds[0], Matches, `'meshfix' '`+m2mDir+`/csf\.stl' '-u' '10' '--vertices' '5120' '--fsmesh' '-o' '`+fsDir+`/bem/inner_skull'`)
	c.Check(cmds[1], Matches, `'mris_transform' .*'`+fsDir+`/bem/inner_skull\.surf'`)
	c.Check(cmds[2], Equals, `'rm' '`+fsDir+`/bem/inner_skull.fsmesh'`)
}

func (s *SimNIBSSuite) TestCreateBEMSurfacesMissingM2M(c *C) {
	err := s.sn.CreateBEMSurfaces("0002_M55", BEMSurfaceOptions{})
	c.Check(err, ErrorMatches, `failed to find accessible mri2mesh folders.*`)
}
