// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package stormdb

import (
	"io"
	"net/url"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// DefaultLoginFile stores the database login code as a hash. The
// default should be fine for everyone.
const DefaultLoginFile = "~/.stormdblogin"

func (c *Client) loginFile() (string, error) {
	path := c.LoginFile
	if path == "" {
		path = DefaultLoginFile
	}
	return homedir.Expand(path)
}

func (c *Client) loadLoginCode() error {
	path, err := c.loginFile()
	if err != nil {
		return err
	}
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &DBError{Message: "login credentials not found in " + path + "; obtain them with Login (or the stormdb login command)"}
	} else if err != nil {
		return errors.Wrap(err, "reading login credentials")
	}
	// The file holds a single line; tolerate a trailing newline.
	if i := strings.IndexByte(string(buf), '\n'); i >= 0 {
		buf = buf[:i]
	}
	c.loginCode = string(buf)
	return nil
}

// Login obtains a fresh login code for the given user and stores it,
// read-only, in the credential file. The password is sent to the
// server but never logged.
func (c *Client) Login(username, password string) error {
	resp, err := c.httpClient().Get(c.BaseURL + "login/username/" + username + "/password/" + url.QueryEscape(password))
	if err != nil {
		return errors.Wrap(err, "database server not responding")
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	code := strings.TrimSpace(string(buf))
	if err := c.checkResponse(code); err != nil {
		return err
	}
	path, err := c.loginFile()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(code), 0400); err != nil {
		return errors.Wrap(err, "writing login credentials")
	}
	c.logger.Infof("login code generated, written to %s", path)
	c.loginCode = code
	return nil
}

// invalidateLogin removes a credential file the server has rejected.
func (c *Client) invalidateLogin() {
	path, err := c.loginFile()
	if err != nil {
		return
	}
	// The file is written read-only; make it writable so it can be
	// removed.
	os.Chmod(path, 0600)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warnf("could not remove stale login file %s: %s", path, err)
	}
	c.loginCode = ""
}
