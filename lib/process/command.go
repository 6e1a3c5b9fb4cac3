// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

// Package process builds cluster jobs for the neuroimaging pipeline
// tools (MaxFilter, Freesurfer, SimNIBS). The tools themselves are
// opaque external programs; this package only renders their command
// lines and hands them to lib/cluster batches.
package process

import (
	"strings"
)

// A Step is one external program invocation: the program, its
// arguments in order, and an optional log file the program's stdout is
// teed to.
type Step struct {
	Program string
	Args    []string
	TeeFile string
}

// Flag appends a flag and its values, e.g. Flag("-frame", "head").
func (st *Step) Flag(name string, values ...string) {
	st.Args = append(st.Args, name)
	st.Args = append(st.Args, values...)
}

// Render returns the step as a shell command line. Every word is
// single-quoted, so argument values survive the shell verbatim.
func (st *Step) Render() string {
	words := make([]string, 0, len(st.Args)+1)
	for _, w := range append([]string{st.Program}, st.Args...) {
		words = append(words, shellQuote(w))
	}
	cmd := strings.Join(words, " ")
	if st.TeeFile != "" {
		cmd += " | tee " + shellQuote(st.TeeFile)
	}
	return cmd
}

func shellQuote(w string) string {
	return "'" + strings.Replace(w, "'", `'\''`, -1) + "'"
}
