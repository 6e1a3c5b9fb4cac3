// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/meeg-cfin/stormdb/lib/cluster"
	"github.com/meeg-cfin/stormdb/sdk/go/config"
	"github.com/meeg-cfin/stormdb/sdk/go/stormdb"
)

// defaultConfigPath is loaded when it exists and no --config is given.
const defaultConfigPath = "~/.stormdb.yml"

var (
	projectFlag string
	configFlag  string
	debugFlag   bool
)

// cliConfig is the YAML config file schema.
type cliConfig struct {
	Project     string `json:"project"`
	ClusterName string `json:"cluster_name"`
	Debug       bool   `json:"debug"`
}

var rootCmd = &cobra.Command{
	Use:           "stormdb",
	Short:         "Inspect and use the lab's compute cluster and database",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "Database project code. Defaults to the config file, then $"+stormdb.ProjectEnvVar+".")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file (default "+defaultConfigPath+", if present).")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging.")
}

// loadConfig reads the config file (if any) and overlays the
// persistent flags on top of it.
func loadConfig() (cliConfig, error) {
	var cfg cliConfig
	if configFlag != "" {
		if err := config.LoadFile(&cfg, configFlag); err != nil {
			return cfg, err
		}
	} else if err := config.LoadFile(&cfg, defaultConfigPath); err != nil && !os.IsNotExist(err) {
		return cfg, err
	}
	if projectFlag != "" {
		cfg.Project = projectFlag
	}
	if cfg.Project == "" {
		cfg.Project = os.Getenv(stormdb.ProjectEnvVar)
	}
	if debugFlag {
		cfg.Debug = true
	}
	return cfg, nil
}

func newLogger(cfg cliConfig) *logrus.Logger {
	logger := logrus.New()
	logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// newCluster is swapped out by tests.
var newCluster = func(name string, logger logrus.FieldLogger) *cluster.Cluster {
	return cluster.New(name, logger)
}

func currentUser() string {
	return os.Getenv("USER")
}
