// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package process

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// convertCommand is swapped out by tests.
var convertCommand = exec.Command

// CopyDICOMDir copies every file in dicomDir into outDir, creating it
// if necessary. An empty outDir means a fresh temp dir, which the
// caller removes. Returns the destination directory.
//
// mri_convert scans the whole directory the input file sits in; the
// raw data archive mixes several series per directory, so conversion
// runs on a scratch copy holding exactly one series.
func CopyDICOMDir(dicomDir, outDir string) (string, error) {
	if outDir == "" {
		var err error
		outDir, err = os.MkdirTemp("", "stormdb-dicom-")
		if err != nil {
			return "", err
		}
	} else if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}
	files, err := listFiles(dicomDir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", errors.Errorf("no files to copy found in %s", dicomDir)
	}
	for _, src := range files {
		if err := copyFile(src, filepath.Join(outDir, filepath.Base(src))); err != nil {
			return "", err
		}
	}
	return outDir, nil
}

// FirstFileInDir returns the lexically first regular file in dir.
func FirstFileInDir(dir string) (string, error) {
	files, err := listFiles(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", errors.Errorf("no files found in %s", dir)
	}
	return files[0], nil
}

// ConvertDICOMToNIfTI converts the series the given DICOM file (or
// directory) belongs to into a NIfTI file at output, by running
// mri_convert on a scratch copy of the series directory.
func ConvertDICOMToNIfTI(dicom, output string) error {
	fi, err := os.Stat(dicom)
	if err != nil {
		return err
	}
	dicomDir := dicom
	if !fi.IsDir() {
		dicomDir = filepath.Dir(dicom)
	}
	tmpDir, err := CopyDICOMDir(dicomDir, "")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)
	first, err := FirstFileInDir(tmpDir)
	if err != nil {
		return err
	}
	cmd := convertCommand("mri_convert", first, output)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Errorf("conversion failed: %s (output: %q)", err, string(out))
	}
	return nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
