// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package process

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/meeg-cfin/stormdb/sdk/go/stormdb"
)

// Database is the subset of the stormdb client the pipeline builders
// query: subject validation and series lookup.
type Database interface {
	Subjects(stormdb.SubjectType) ([]string, error)
	UniqueSeries(description, subject, modality string) (stormdb.SeriesInfo, error)
}

// AbsProjectPath resolves path relative to the project's directory
// under /projects. Absolute paths pass through unchanged.
func AbsProjectPath(path, project string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return filepath.Join("/projects", project, path)
}

// checkSourceReadable reports whether path can be opened for reading.
func checkSourceReadable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// checkDestinationWritable reports whether a new file can be created
// at path. An existing file counts as not writable; overwriting is an
// explicit decision the callers make separately.
func checkDestinationWritable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(path)
	return true
}

// enforcePathExists fails unless dir exists and is writable.
func enforcePathExists(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return errors.Errorf("non-existent directory: %s", dir)
	}
	if !fi.IsDir() {
		return errors.Errorf("not a directory: %s", dir)
	}
	if !checkDestinationWritable(filepath.Join(dir, ".stormdb-write-check")) {
		return errors.Errorf("no write permission to: %s", dir)
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
