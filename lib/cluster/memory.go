// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package cluster

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MemorySize is a number of bytes, parsed from the grid engine's
// "8G"-style memory tokens. Units are decimal, matching how the engine
// accounts memory: k=1e3, m=1e6, g=1e9, t=1e12.
type MemorySize int64

var memSuffixValue = map[string]MemorySize{
	"k": 1e3,
	"m": 1e6,
	"g": 1e9,
	"t": 1e12,
}

var memPattern = regexp.MustCompile(`^(\d+)([a-zA-Z])$`)

// ParseMemorySize splits a memory token into a numeric magnitude and a
// unit suffix. Unrecognized suffixes and malformed magnitudes are
// reported as errors; callers treat these as configuration mistakes.
func ParseMemorySize(s string) (MemorySize, error) {
	m := memPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("malformed memory size %q (expected e.g. \"8G\")", s)
	}
	val, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed memory size %q: %s", s, err)
	}
	unit, ok := memSuffixValue[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("unrecognized memory unit %q in %q", m[2], s)
	}
	if val != 0 && int64(unit) > int64(1e18)/val {
		return 0, fmt.Errorf("memory size %q overflows int64", s)
	}
	return MemorySize(val) * unit, nil
}

// String renders the size with the largest suffix that divides it
// evenly, e.g. 16000000000 -> "16G".
func (m MemorySize) String() string {
	for _, suffix := range []struct {
		unit  MemorySize
		label string
	}{{1e12, "T"}, {1e9, "G"}, {1e6, "M"}, {1e3, "K"}} {
		if m >= suffix.unit && m%suffix.unit == 0 {
			return fmt.Sprintf("%d%s", int64(m/suffix.unit), suffix.label)
		}
	}
	return fmt.Sprintf("%d", int64(m))
}

// threadsFor returns the number of scheduler slots needed to cover
// total bytes of memory on a queue granting limit bytes per process,
// rounding up.
func threadsFor(total, limit MemorySize) int {
	if limit <= 0 {
		return 1
	}
	return int((total + limit - 1) / limit)
}
