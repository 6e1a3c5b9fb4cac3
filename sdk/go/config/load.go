// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

// Package config loads tool configuration files into caller-supplied
// structs.
package config

import (
	"io"
	"os"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// Load reads YAML (or JSON, which is a YAML subset) from rdr and
// decodes it into cfg.
func Load(rdr io.Reader, cfg interface{}) error {
	buf, err := io.ReadAll(rdr)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return errors.Wrap(err, "decoding config")
	}
	return nil
}

// LoadFile loads configuration from the file given by configPath
// (leading ~ expands to the home directory) and decodes it into cfg.
func LoadFile(cfg interface{}, configPath string) error {
	path, err := homedir.Expand(configPath)
	if err != nil {
		return err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return errors.Wrapf(err, "decoding config %q", path)
	}
	return nil
}
