// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/meeg-cfin/stormdb/sdk/go/stormdb"
)

var loginUser string

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "Database username (default: current user).")
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain a database login code and store it in " + stormdb.DefaultLoginFile,
	Long: `Obtain a database login code and store it in ` + stormdb.DefaultLoginFile + `.

The password is read from standard input and sent to the database
server once; only the resulting login code is stored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		user := loginUser
		if user == "" {
			user = currentUser()
		}
		if user == "" {
			return errors.New("no username: use --user")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "password for %s: ", user)
		password, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil {
			return errors.Wrap(err, "reading password")
		}
		client, err := stormdb.NewLoginClient(newLogger(cfg))
		if err != nil {
			return err
		}
		return client.Login(user, strings.TrimRight(password, "\n"))
	},
}
