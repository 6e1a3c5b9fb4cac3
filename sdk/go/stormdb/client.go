// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

// Package stormdb is a client for the StormDB neuroimaging database's
// extract API. The server speaks plain text: every query is an HTTP
// GET and every response is a newline-separated list, so this package
// is mostly request plumbing plus response splitting.
package stormdb

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultServer is the extract endpoint on the database host.
	DefaultServer = "http://hyades00.pet.auh.dk/modules/StormDb/extract/"
	// FallbackServer is the endpoint used through an ssh tunnel
	// when the database host is not directly reachable.
	FallbackServer = "http://localhost:10080/modules/StormDb/extract/"

	// ProjectEnvVar names the environment variable consulted when
	// no project code is given explicitly.
	ProjectEnvVar = "MINDLABPROJ"
)

// DBError is an error reported by the database server itself, as
// opposed to a transport failure.
type DBError struct {
	Message string
}

func (e *DBError) Error() string { return e.Message }

// A Client queries the StormDB extract API on behalf of one project.
type Client struct {
	// HTTP client used to make requests. If nil, a default client
	// with a 1 minute timeout is used.
	Client *http.Client

	// BaseURL of the extract API, ending in a slash.
	BaseURL string

	// Project is the database project code all queries are scoped
	// to.
	Project string

	// LoginFile is the path of the credential file; defaults to
	// DefaultLoginFile.
	LoginFile string

	logger    logrus.FieldLogger
	loginCode string
}

var defaultHTTPClient = &http.Client{Timeout: time.Minute}

// NewClient probes the default server, falling back to the tunnel
// endpoint, loads the stored login code and verifies the project code
// against the database. An empty project falls back to $MINDLABPROJ.
func NewClient(project string, logger logrus.FieldLogger) (*Client, error) {
	server, err := probeServers(defaultHTTPClient, DefaultServer, FallbackServer)
	if err != nil {
		return nil, err
	}
	return NewClientWithServer(server, project, logger)
}

// NewClientWithServer is NewClient without server probing, for callers
// (and tests) that already know which endpoint to talk to.
func NewClientWithServer(server, project string, logger logrus.FieldLogger) (*Client, error) {
	if project == "" {
		project = os.Getenv(ProjectEnvVar)
	}
	if project == "" || project == "NA" {
		return nil, &DBError{Message: "you must specify a project code, either explicitly or via the " + ProjectEnvVar + " environment variable"}
	}
	c := &Client{
		BaseURL: server,
		Project: project,
		logger:  logger,
	}
	if err := c.loadLoginCode(); err != nil {
		return nil, err
	}
	if err := c.CheckProject(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewLoginClient returns a client suitable only for obtaining login
// credentials: the server is probed, but no stored login code or
// project code is required yet.
func NewLoginClient(logger logrus.FieldLogger) (*Client, error) {
	server, err := probeServers(defaultHTTPClient, DefaultServer, FallbackServer)
	if err != nil {
		return nil, err
	}
	return &Client{BaseURL: server, logger: logger}, nil
}

func probeServers(client *http.Client, servers ...string) (string, error) {
	for _, server := range servers {
		resp, err := client.Get(server)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return server, nil
		}
	}
	return "", &DBError{Message: fmt.Sprintf("no access to database server (tried: %s)", strings.Join(servers, " and "))}
}

func (c *Client) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return defaultHTTPClient
}

// request performs a GET against path with the stored login code and
// the given parameters, and returns the response body. Responses
// carrying the server's error marker become *DBError; a broken login
// code additionally invalidates the credential file so the next login
// starts fresh.
func (c *Client) request(path string, params url.Values) (string, error) {
	full := c.BaseURL + path + "?" + c.loginCode
	if len(params) > 0 {
		full += "&" + params.Encode()
	}
	c.logger.Debugf("GET %s", path)
	resp, err := c.httpClient().Get(full)
	if err != nil {
		return "", errors.Wrap(err, "database server not responding")
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	body := string(buf)
	if err := c.checkResponse(body); err != nil {
		return "", err
	}
	return body, nil
}

func (c *Client) checkResponse(body string) error {
	if !strings.Contains(body, "error") {
		return nil
	}
	if strings.Contains(body, "Your login is not working") {
		c.invalidateLogin()
		return &DBError{Message: "your stored login credentials are old or broken and have been removed; log in again and re-run the query"}
	}
	if strings.Contains(body, "The project does not exist") {
		return &DBError{Message: fmt.Sprintf("the project code %q does not exist in the database", c.Project)}
	}
	return &DBError{Message: strings.TrimSpace(body)}
}

// CheckProject verifies the login code and project code against the
// database.
func (c *Client) CheckProject() error {
	_, err := c.request("", url.Values{"projectCode": {c.Project}})
	return err
}

// splitLines splits a plain text response at newlines, dropping empty
// entries.
func splitLines(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
