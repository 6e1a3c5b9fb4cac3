// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package process

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/meeg-cfin/stormdb/lib/cluster"
	"github.com/meeg-cfin/stormdb/sdk/go/stormdb"
)

// DefaultReconAllBin is the recon-all executable on the cluster nodes.
const DefaultReconAllBin = "/usr/local/freesurfer/bin/recon-all"

// SubjectsDirEnvVar is consulted when no subjects dir is given
// explicitly.
const SubjectsDirEnvVar = "SUBJECTS_DIR"

// FreesurferOptions configures a Freesurfer batch.
type FreesurferOptions struct {
	// SubjectsDir is the Freesurfer SUBJECTS_DIR, absolute or
	// relative to the project directory. Empty falls back to
	// $SUBJECTS_DIR. The directory must exist.
	SubjectsDir string
	// T1Series names the T1-weighted MR series used for the
	// first-run DICOM import; it can also be given per ReconAll
	// call.
	T1Series string
}

// Freesurfer accumulates recon-all jobs for one project.
type Freesurfer struct {
	*cluster.Batch

	db            Database
	logger        logrus.FieldLogger
	subjectsDir   string
	t1Series      string
	validSubjects []string
}

// NewFreesurfer resolves the subjects dir and fetches the project's
// subject list from the database for later validation.
func NewFreesurfer(c *cluster.Cluster, db Database, project string, opts FreesurferOptions, logger logrus.FieldLogger) (*Freesurfer, error) {
	batch, err := cluster.NewBatch(c, project, logger)
	if err != nil {
		return nil, err
	}
	subjectsDir := opts.SubjectsDir
	if subjectsDir == "" {
		subjectsDir = os.Getenv(SubjectsDirEnvVar)
		if subjectsDir == "" {
			return nil, errors.Errorf("no %s defined: pass SubjectsDir or set the environment variable", SubjectsDirEnvVar)
		}
	} else {
		subjectsDir = AbsProjectPath(subjectsDir, project)
	}
	if err := enforcePathExists(subjectsDir); err != nil {
		return nil, err
	}
	subjects, err := db.Subjects(stormdb.SubjectsIncluded)
	if err != nil {
		return nil, errors.Wrap(err, "fetching subject list")
	}
	return &Freesurfer{
		Batch:         batch,
		db:            db,
		logger:        logger,
		subjectsDir:   subjectsDir,
		t1Series:      opts.T1Series,
		validSubjects: subjects,
	}, nil
}

// ReconAllOptions configures one recon-all invocation.
type ReconAllOptions struct {
	// Directive is the recon-all task to run (default "all").
	Directive string
	// Hemi restricts processing to one hemisphere, "lh" or "rh";
	// default is both.
	Hemi string
	// T1Series overrides the batch-level series name for the
	// first-run DICOM import.
	T1Series string
	// Queue and Threads are passed to the cluster job (defaults:
	// "long.q", 1).
	Queue   string
	Threads int
	// Bin overrides DefaultReconAllBin.
	Bin string
}

// ReconAll builds a recon-all command for subject and adds it to the
// batch. When the subject has not been imported yet (no
// mri/orig/001.mgz), the T1 series is looked up in the database and an
// import flag pointing at its first DICOM file is included.
func (fs *Freesurfer) ReconAll(subject string, opts ReconAllOptions) error {
	if !containsString(fs.validSubjects, subject) {
		return errors.Errorf("subject %s not found in database", subject)
	}
	if opts.Directive == "" {
		opts.Directive = "all"
	}
	if opts.Queue == "" {
		opts.Queue = "long.q"
	}
	if opts.Bin == "" {
		opts.Bin = DefaultReconAllBin
	}

	step := Step{Program: opts.Bin}
	step.Flag("-" + opts.Directive)
	step.Flag("-subjid", subject)
	step.Flag("-sd", fs.subjectsDir)
	switch opts.Hemi {
	case "", "both":
	case "lh", "rh":
		step.Flag("-hemi", opts.Hemi)
	default:
		return errors.Errorf("hemisphere must be \"lh\" or \"rh\", not %q", opts.Hemi)
	}

	orig := filepath.Join(fs.subjectsDir, subject, "mri", "orig", "001.mgz")
	if !checkSourceReadable(orig) {
		t1Series := opts.T1Series
		if t1Series == "" {
			t1Series = fs.t1Series
		}
		if t1Series == "" {
			return errors.New("name of T1 series must be defined for the first run")
		}
		series, err := fs.db.UniqueSeries(t1Series, subject, "MR")
		if err != nil {
			return err
		}
		if len(series.Files) == 0 {
			return errors.Errorf("series %s of subject %s has no files", series.SeriesName, subject)
		}
		step.Flag("-i", filepath.Join(series.Path, series.Files[0]))
	}

	_, err := fs.Add(cluster.JobSpec{
		Commands: []string{step.Render()},
		Queue:    opts.Queue,
		Threads:  opts.Threads,
		JobName:  "recon-all",
	})
	return err
}

// ReconAllSubjects builds one recon-all job per subject. An empty list
// means every included subject in the database.
func (fs *Freesurfer) ReconAllSubjects(subjects []string, opts ReconAllOptions) error {
	if len(subjects) == 0 {
		subjects = fs.validSubjects
	}
	for _, subject := range subjects {
		if err := fs.ReconAll(subject, opts); err != nil {
			return err
		}
	}
	fs.logger.Infof("successfully prepared %d jobs", len(subjects))
	return nil
}
