// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package stormdb

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// SubjectType selects which subject list to fetch.
type SubjectType string

const (
	SubjectsIncluded SubjectType = "included"
	SubjectsExcluded SubjectType = "excluded"
)

// Subjects returns the project's subject ID codes, e.g. "0001_ABC".
// The returned list is determined by the database; if no subjects are
// found it is empty.
func (c *Client) Subjects(subjType SubjectType) ([]string, error) {
	var scode string
	switch subjType {
	case SubjectsIncluded:
		scode = "subjectswithcode"
	case SubjectsExcluded:
		scode = "excludedsubjectswithcode"
	default:
		return nil, errors.Errorf("subject type must be %q or %q", SubjectsIncluded, SubjectsExcluded)
	}
	body, err := c.request(scode, url.Values{"projectCode": {c.Project}})
	if err != nil {
		return nil, err
	}
	return splitLines(body), nil
}

// Modalities returns the modalities recorded for one study.
func (c *Client) Modalities(subjID, study string) ([]string, error) {
	body, err := c.request("modalities", url.Values{
		"projectCode": {c.Project},
		"subjectNo":   {subjID},
		"study":       {study},
	})
	if err != nil {
		return nil, err
	}
	return splitLines(body), nil
}

// Studies returns the study IDs for a subject. If modality is
// non-empty only studies containing that modality are returned; with
// unique=true, only the chronologically first such study.
func (c *Client) Studies(subjID, modality string, unique bool) ([]string, error) {
	body, err := c.request("studies", url.Values{
		"projectCode": {c.Project},
		"subjectNo":   {subjID},
	})
	if err != nil {
		return nil, err
	}
	studies := splitLines(body)
	if modality == "" {
		return studies, nil
	}
	var matched []string
	for _, study := range studies {
		mods, err := c.Modalities(subjID, study)
		if err != nil {
			return nil, err
		}
		for _, m := range mods {
			if m == modality {
				if unique {
					return []string{study}, nil
				}
				matched = append(matched, study)
				break
			}
		}
	}
	return matched, nil
}

// Series returns the series of one study as a name -> 1-based index
// map, both as reported by the database.
func (c *Client) Series(subjID, study, modality string) (map[string]string, error) {
	body, err := c.request("series", url.Values{
		"projectCode": {c.Project},
		"subjectNo":   {subjID},
		"study":       {study},
		"modality":    {modality},
	})
	if err != nil {
		return nil, err
	}
	series := map[string]string{}
	for _, line := range splitLines(body) {
		kv := strings.SplitN(line, " ", 2)
		if len(kv) != 2 {
			return nil, errors.Errorf("malformed series entry %q", line)
		}
		series[kv[0]] = kv[1]
	}
	return series, nil
}

// Files returns the absolute pathnames of the files in one series
// (1-based index).
func (c *Client) Files(subjID, study, modality string, series int) ([]string, error) {
	body, err := c.request("files", url.Values{
		"projectCode": {c.Project},
		"subjectNo":   {subjID},
		"study":       {study},
		"modality":    {modality},
		"serieNo":     {fmt.Sprintf("%d", series)},
	})
	if err != nil {
		return nil, err
	}
	return splitLines(body), nil
}

// StudyMeta restricts a series filter using study-level
// meta-information, e.g. {Name: "timepoint", Comparison: "=", Value: 2}.
type StudyMeta struct {
	Name       string
	Comparison string
	Value      int
}

// FilterOptions selects series by description. The asterisk may be
// used as a wildcard in Description. Empty Subjects/Modalities mean
// all non-excluded subjects / all modalities.
type FilterOptions struct {
	Description  string
	Subjects     []string
	Modalities   []string
	StudyMeta    *StudyMeta
	ExcludeFiles bool
}

// SeriesInfo describes one series matched by FilterSeries.
type SeriesInfo struct {
	SubjectCode string
	Path        string
	SeriesName  string
	Files       []string
}

var serieNamePattern = regexp.MustCompile(`\d{3}\.(.+?)/files`)

// FilterSeries returns the series matching opts, with file lists
// unless ExcludeFiles is set. Records come back from the server as
// $-separated key:value pairs; the series name is recovered from the
// path component.
func (c *Client) FilterSeries(opts FilterOptions) ([]SeriesInfo, error) {
	params := url.Values{
		"projectCode": {c.Project},
		"subjects":    {strings.Join(opts.Subjects, "|")},
		"studies":     {""},
		"modalities":  {strings.Join(opts.Modalities, "|")},
		"types":       {""},
		"anyWithType": {"0"},
		"description": {opts.Description},
		"excluded":    {"0"},
		// removeProjects is accepted but unused by the server
		// version we target.
		"removeProjects": {""},
	}
	if m := opts.StudyMeta; m != nil {
		params.Set(fmt.Sprintf("studymetas[%s]", m.Name), fmt.Sprintf("%s$%d", m.Comparison, m.Value))
	}
	if !opts.ExcludeFiles {
		params.Set("outputoptions[inclfiles]", "1")
	}
	body, err := c.request("filteredseries", params)
	if err != nil {
		return nil, err
	}
	var infos []SeriesInfo
	for _, record := range splitLines(body) {
		var info SeriesInfo
		for _, kvp := range strings.Split(record, "$") {
			kv := strings.SplitN(kvp, ":", 2)
			if len(kv) != 2 {
				continue
			}
			switch {
			case strings.Contains(kv[0], "files"):
				info.Files = strings.Split(kv[1], "|")
			case strings.Contains(kv[0], "path"):
				info.Path = kv[1]
				if m := serieNamePattern.FindStringSubmatch(kv[1]); m != nil {
					info.SeriesName = m[1]
				}
			case strings.Contains(kv[0], "subjectcode"):
				info.SubjectCode = kv[1]
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// UniqueSeries returns the single series matching the description for
// the given subject and modality, and fails when there are none or
// several.
func (c *Client) UniqueSeries(description, subject, modality string) (SeriesInfo, error) {
	series, err := c.FilterSeries(FilterOptions{
		Description: description,
		Subjects:    []string{subject},
		Modalities:  []string{modality},
	})
	if err != nil {
		return SeriesInfo{}, err
	}
	if len(series) == 0 {
		return SeriesInfo{}, errors.Errorf("no series found matching %q for subject %s", description, subject)
	}
	if len(series) > 1 {
		names := make([]string, len(series))
		for i, s := range series {
			names[i] = s.SeriesName
		}
		return SeriesInfo{}, errors.Errorf("more than one series matches %q for subject %s: %s", description, subject, strings.Join(names, ", "))
	}
	return series[0], nil
}
