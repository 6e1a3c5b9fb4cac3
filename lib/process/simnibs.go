// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/meeg-cfin/stormdb/lib/cluster"
	"github.com/meeg-cfin/stormdb/sdk/go/stormdb"
)

// OutputDirEnvVar is consulted when no SimNIBS output dir is given
// explicitly.
const OutputDirEnvVar = "SN_SUBJECTS_DIR"

// SimNIBS accumulates mri2mesh and BEM-surface jobs for one project.
//
// SimNIBS "prepares" the T1 image fed into Freesurfer before calling
// recon-all, using the T2-weighted image to mask some of the dura. For
// the unmodified Freesurfer approach, see Freesurfer instead.
// mri2mesh output is placed in outputDir/m2m_<subject>, recon-all
// output in outputDir/fs_<subject>.
type SimNIBS struct {
	*cluster.Batch

	db            Database
	logger        logrus.FieldLogger
	outputDir     string
	validSubjects []string
}

// NewSimNIBS resolves the output dir (absolute, project-relative, or
// $SN_SUBJECTS_DIR) and fetches the project's subject list. The
// directory must exist.
func NewSimNIBS(c *cluster.Cluster, db Database, project, outputDir string, logger logrus.FieldLogger) (*SimNIBS, error) {
	batch, err := cluster.NewBatch(c, project, logger)
	if err != nil {
		return nil, err
	}
	if outputDir == "" {
		outputDir = os.Getenv(OutputDirEnvVar)
		if outputDir == "" {
			return nil, errors.Errorf("no %s defined: pass an output dir or set the environment variable", OutputDirEnvVar)
		}
	} else {
		outputDir = AbsProjectPath(outputDir, project)
	}
	if err := enforcePathExists(outputDir); err != nil {
		return nil, err
	}
	subjects, err := db.Subjects(stormdb.SubjectsIncluded)
	if err != nil {
		return nil, errors.Wrap(err, "fetching subject list")
	}
	if len(subjects) == 0 {
		return nil, errors.Errorf("no subjects found in %s", project)
	}
	return &SimNIBS{
		Batch:         batch,
		db:            db,
		logger:        logger,
		outputDir:     outputDir,
		validSubjects: subjects,
	}, nil
}

// Mri2MeshOptions configures one mri2mesh invocation. The MR inputs
// are series names (wildcards allowed, resolved through the database
// and converted from DICOM) or NIfTI paths (anything containing "/" or
// ".nii" is passed through untouched).
type Mri2MeshOptions struct {
	// T1FatSat and T2HighBW are the fat-saturated T1 and high
	// bandwidth T2 series used for surface creation.
	T1FatSat string
	T2HighBW string
	// T1HighBW and T2FatSat are optional additional inputs.
	T1HighBW string
	T2FatSat string
	// Directives to pass to mri2mesh, e.g. "brain" -> --brain.
	// Default: brain, subcort, head (suitable for BEM creation).
	Directives []string
	// AnalysisName is an optional suffix added to the subject name
	// (e.g. "_t2mask").
	AnalysisName string
	// T2Mask masks out some dura on the T1 using the T2 before
	// recon-all; T2Pial lets recon-all use the T2 to improve the
	// pial surface. Mutually exclusive; T2Pial only works well with
	// high-res T2 images.
	T2Mask bool
	T2Pial bool
	// LinkToFSDir, if set, adds a symlink to the Freesurfer
	// reconstruction in the given directory, the structure MNE
	// tools assume.
	LinkToFSDir string
	// Queue and Threads for the cluster job (defaults: "long.q", 1).
	Queue   string
	Threads int
}

// Mri2Mesh builds a mri2mesh command for subject and adds it to the
// batch. Series inputs that are not NIfTI paths are converted from
// DICOM into outputDir/nifti/<subject>/ first, which takes around 15
// seconds per series; existing conversions are reused.
func (sn *SimNIBS) Mri2Mesh(subject string, opts Mri2MeshOptions) error {
	if !containsString(sn.validSubjects, subject) {
		return errors.Errorf("subject %s not found in database", subject)
	}
	if len(opts.Directives) == 0 {
		opts.Directives = []string{"brain", "subcort", "head"}
	}
	if opts.Queue == "" {
		opts.Queue = "long.q"
	}
	if opts.T2Mask && opts.T2Pial {
		return errors.New("t2mask and t2pial cannot be used together")
	}
	flags := append([]string(nil), opts.Directives...)
	if opts.T2Mask {
		flags = append(flags, "t2mask")
	}
	if opts.T2Pial {
		flags = append(flags, "t2pial")
	}

	var linkCmd string
	if opts.LinkToFSDir != "" {
		linkDir := AbsProjectPath(opts.LinkToFSDir, sn.Project)
		if err := enforcePathExists(linkDir); err != nil {
			return err
		}
		outputs := sn.mri2meshOutputs(subject, opts.AnalysisName)
		linkName := filepath.Join(linkDir, outputs.subject)
		if _, err := os.Stat(linkName); err == nil {
			return errors.Errorf("%s already exists, (re)move it before proceeding", linkName)
		}
		link := Step{Program: "ln", Args: []string{"-s", outputs.fsDir, linkName}}
		linkCmd = link.Render()
	}

	// mri2mesh assumes this fixed input order.
	var inputs []string
	for _, mri := range []string{opts.T1HighBW, opts.T1FatSat, opts.T2HighBW, opts.T2FatSat} {
		if mri == "" {
			continue
		}
		path, err := sn.resolveMRInput(subject, mri)
		if err != nil {
			return err
		}
		inputs = append(inputs, path)
	}

	step := Step{Program: "mri2mesh"}
	for _, flag := range flags {
		step.Flag("--" + flag)
	}
	step.Args = append(step.Args, subject+opts.AnalysisName)
	step.Args = append(step.Args, inputs...)

	commands := []string{step.Render()}
	if linkCmd != "" {
		commands = append(commands, linkCmd)
	}
	_, err := sn.Add(cluster.JobSpec{
		Commands:   commands,
		Queue:      opts.Queue,
		Threads:    opts.Threads,
		WorkingDir: sn.outputDir,
		JobName:    "mri2mesh",
	})
	return err
}

// resolveMRInput turns a series name into a NIfTI path, converting
// from DICOM on first use. NIfTI paths pass through.
func (sn *SimNIBS) resolveMRInput(subject, mri string) (string, error) {
	if strings.Contains(mri, "/") || strings.Contains(mri, ".nii") {
		return mri, nil
	}
	series, err := sn.db.UniqueSeries(mri, subject, "MR")
	if err != nil {
		return "", err
	}
	if len(series.Files) == 0 {
		return "", errors.Errorf("series %s of subject %s has no files", series.SeriesName, subject)
	}
	dicom := filepath.Join(series.Path, series.Files[0])
	niftiDir := filepath.Join(sn.outputDir, "nifti", subject)
	if err := os.MkdirAll(niftiDir, 0755); err != nil {
		return "", err
	}
	// Use the database's series name in case wildcards were given.
	nifti := filepath.Join(niftiDir, series.SeriesName+".nii.gz")
	if checkSourceReadable(nifti) {
		sn.logger.Warnf("%s already exists, using it instead of re-converting", nifti)
		return nifti, nil
	}
	sn.logger.Info("converting DICOM to NIfTI, this will take about 15 seconds...")
	if err := ConvertDICOMToNIfTI(dicom, nifti); err != nil {
		return "", err
	}
	sn.logger.Info("...done")
	return nifti, nil
}

// BEMSurfaceOptions configures CreateBEMSurfaces.
type BEMSurfaceOptions struct {
	// Vertices is the number of vertices to subsample the
	// high-resolution surfaces to (default 5120).
	Vertices int
	// AnalysisName must match the suffix used with Mri2Mesh.
	AnalysisName string
	// Queue and Threads for the cluster job (defaults: "short.q", 1).
	Queue   string
	Threads int
}

// bemSurfaces maps BEM layer names to the mri2mesh output surfaces
// they are derived from.
var bemSurfaces = []struct{ layer, surf string }{
	{"inner_skull", "csf.stl"},
	{"outer_skull", "skull.stl"},
	{"outer_skin", "skin.stl"},
}

// CreateBEMSurfaces converts finished mri2mesh output into
// lower-resolution Freesurfer meshes suitable for BEM-based forward
// modeling. One job per subject; the mri2mesh directories must already
// exist.
func (sn *SimNIBS) CreateBEMSurfaces(subject string, opts BEMSurfaceOptions) error {
	if !containsString(sn.validSubjects, subject) {
		return errors.Errorf("subject %s not found in database", subject)
	}
	if opts.Vertices == 0 {
		opts.Vertices = 5120
	}
	if opts.Queue == "" {
		opts.Queue = "short.q"
	}
	outputs := sn.mri2meshOutputs(subject, opts.AnalysisName)
	for _, dir := range []string{outputs.fsDir, outputs.m2mDir} {
		if err := enforcePathExists(dir); err != nil {
			return errors.Wrap(err, "failed to find accessible mri2mesh folders; did it complete successfully?")
		}
	}

	bemDir := filepath.Join(outputs.fsDir, "bem")
	var commands []string
	for _, bem := range bemSurfaces {
		surf := filepath.Join(outputs.m2mDir, bem.surf)
		if !checkSourceReadable(surf) {
			return errors.Errorf("could not find surface %s; mri2mesh may have exited with an error", bem.surf)
		}
		bemName := filepath.Join(bemDir, bem.layer)
		fix := Step{Program: "meshfix", Args: []string{surf, "-u", "10"}}
		fix.Flag("--vertices", fmt.Sprintf("%d", opts.Vertices))
		fix.Flag("--fsmesh")
		fix.Flag("-o", bemName)
		commands = append(commands, fix.Render())

		// Without the transform the stl->fsmesh conversion output
		// is misaligned with the MR.
		xfmVolume := filepath.Join(outputs.m2mDir, "tmp", "subcortical_FS.nii.gz")
		xfm := filepath.Join(outputs.m2mDir, "tmp", "unity.xfm")
		transform := Step{Program: "mris_transform"}
		transform.Flag("--dst", xfmVolume)
		transform.Flag("--src", xfmVolume)
		transform.Args = append(transform.Args, bemName+".fsmesh", xfm, bemName+".surf")
		commands = append(commands, transform.Render())
		rm := Step{Program: "rm", Args: []string{bemName + ".fsmesh"}}
		commands = append(commands, rm.Render())
	}

	_, err := sn.Add(cluster.JobSpec{
		Commands:   commands,
		Queue:      opts.Queue,
		Threads:    opts.Threads,
		WorkingDir: sn.outputDir,
		JobName:    "meshfix",
	})
	return err
}

type mri2meshOutputs struct {
	subject string
	fsDir   string
	m2mDir  string
}

func (sn *SimNIBS) mri2meshOutputs(subject, analysisName string) mri2meshOutputs {
	return mri2meshOutputs{
		subject: subject + analysisName,
		fsDir:   filepath.Join(sn.outputDir, "fs_"+subject+analysisName),
		m2mDir:  filepath.Join(sn.outputDir, "m2m_"+subject+analysisName),
	}
}
