// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package cluster

import (
	. "gopkg.in/check.v1"
)

var _ = Suite(&MemorySuite{})

type MemorySuite struct{}

func (s *MemorySuite) TestParse(c *C) {
	for _, trial := range []struct {
		in   string
		want MemorySize
	}{
		{"8G", 8e9},
		{"8g", 8e9},
		{"500m", 5e8},
		{"2T", 2e12},
		{"100k", 1e5},
		{" 16G ", 16e9},
	} {
		got, err := ParseMemorySize(trial.in)
		c.Check(err, IsNil, Commentf("%q", trial.in))
		c.Check(got, Equals, trial.want, Commentf("%q", trial.in))
	}
}

func (s *MemorySuite) TestParseErrors(c *C) {
	for _, in := range []string{"", "G", "8", "8X", "8GB", "-8G", "8.5G"} {
		_, err := ParseMemorySize(in)
		c.Check(err, NotNil, Commentf("%q", in))
	}
}

func (s *MemorySuite) TestString(c *C) {
	c.Check(MemorySize(8e9).String(), Equals, "8G")
	c.Check(MemorySize(16e12).String(), Equals, "16T")
	c.Check(MemorySize(1500).String(), Equals, "1500")
	c.Check(MemorySize(2000).String(), Equals, "2K")
}

func (s *MemorySuite) TestThreadsFor(c *C) {
	// 16G on a queue granting 8G per process: two slots.
	c.Check(threadsFor(16e9, 8e9), Equals, 2)
	// 16T against an 8G limit: the g->t factor of 1000 applies.
	c.Check(threadsFor(16e12, 8e9), Equals, 2000)
	// Partial slots round up.
	c.Check(threadsFor(9e9, 8e9), Equals, 2)
	c.Check(threadsFor(1e9, 8e9), Equals, 1)
}
