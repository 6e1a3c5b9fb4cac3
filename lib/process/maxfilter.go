// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package process

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/meeg-cfin/stormdb/lib/cluster"
)

// DefaultMaxFilterBin is where the NeuroMag maxfilter executable lives
// on the acquisition machines.
const DefaultMaxFilterBin = "/neuro/bin/util/maxfilter"

// maxFilterQueue is the only queue licensed to run maxfilter.
const maxFilterQueue = "maxfilter.q"

// Head movement compensation modes.
const (
	MoveCompOn    = "on"
	MoveCompInter = "inter"
)

// MaxFilterOptions configures one maxfilter invocation. The zero value
// plus DefaultMaxFilterOptions' fields reproduce the vendor defaults;
// see the MaxFilter manual for the meaning of each flag.
type MaxFilterOptions struct {
	// Origin is the head origin in mm, e.g. "0 0 40".
	Origin string
	// Frame is the coordinate frame for the head center, "head" or
	// "device".
	Frame string
	// Bad lists static bad channels, with or without the "MEG"
	// prefix.
	Bad []string
	// AutoBad switches automated bad channel detection ("on",
	// "off", or a number).
	AutoBad string
	// Skip is time interval pairs in seconds to drop from the raw
	// data, e.g. "0 30 120 150".
	Skip string
	// Force ignores program warnings, e.g. about overwriting
	// output.
	Force bool
	// ST applies the time-domain SSS extension (tSSS), with buffer
	// length STBufLen (seconds) and subspace correlation limit
	// STCorr.
	ST       bool
	STBufLen float64
	STCorr   float64
	// Trans transforms the data into the coil definitions of the
	// given file, or into the default frame ("default").
	Trans string
	// MoveComp estimates and compensates head movements
	// (MoveCompOn or MoveCompInter). Mutually exclusive with
	// HeadPos.
	MoveComp string
	// HeadPos estimates and stores head position parameters without
	// compensating movements.
	HeadPos bool
	// HP stores head position data in the named ascii file.
	HP string
	// HPISubt subtracts hpi signals: "amp", "base" or "off".
	HPISubt string
	// SkipHPICons disables the initial isotrak vs hpifit
	// consistency check, which is otherwise on.
	SkipHPICons bool
	// LineFreq sets the basic line interference frequency (50 or
	// 60 Hz); 0 leaves the line filter off.
	LineFreq int
	// Cal and CTC point at the fine-calibration and cross-talk
	// compensation files.
	Cal string
	CTC string
	// ExtraArgs are passed through to maxfilter verbatim.
	ExtraArgs []string
	// Bin overrides DefaultMaxFilterBin.
	Bin string
	// LogFile tees the program output to the named file.
	LogFile string
	// Threads is the number of slots to request (default 4).
	Threads int
}

// DefaultMaxFilterOptions returns the options used when a Build caller
// leaves the corresponding fields zero.
func DefaultMaxFilterOptions() MaxFilterOptions {
	return MaxFilterOptions{
		Origin:   "0 0 40",
		Frame:    "head",
		AutoBad:  "off",
		STBufLen: 16.0,
		STCorr:   0.96,
		Threads:  4,
	}
}

// IOPair records one input/output file pair of a MaxFilter batch.
type IOPair struct {
	Input  string
	Output string
}

// MaxFilter accumulates maxfilter jobs for submission as one batch.
// Bad channels known a priori for the whole batch are combined with
// the per-file Bad option.
type MaxFilter struct {
	*cluster.Batch

	logger    logrus.FieldLogger
	bad       []string
	ioMapping []IOPair
}

// NewMaxFilter returns an empty MaxFilter batch for the given project.
func NewMaxFilter(c *cluster.Cluster, project string, bad []string, logger logrus.FieldLogger) (*MaxFilter, error) {
	batch, err := cluster.NewBatch(c, project, logger)
	if err != nil {
		return nil, err
	}
	return &MaxFilter{
		Batch:  batch,
		logger: logger,
		bad:    append([]string(nil), bad...),
	}, nil
}

// Build renders a maxfilter command for inFile -> outFile and adds it
// to the batch on the maxfilter queue. Nothing runs until the batch is
// submitted.
func (mf *MaxFilter) Build(inFile, outFile string, opts MaxFilterOptions) error {
	def := DefaultMaxFilterOptions()
	if opts.Origin == "" {
		opts.Origin = def.Origin
	}
	if opts.Frame == "" {
		opts.Frame = def.Frame
	}
	if opts.AutoBad == "" {
		opts.AutoBad = def.AutoBad
	}
	if opts.STBufLen == 0 {
		opts.STBufLen = def.STBufLen
	}
	if opts.STCorr == 0 {
		opts.STCorr = def.STCorr
	}
	if opts.Threads == 0 {
		opts.Threads = def.Threads
	}
	if opts.Bin == "" {
		opts.Bin = DefaultMaxFilterBin
	}
	if opts.Frame != "head" && opts.Frame != "device" {
		return errors.Errorf("frame must be \"head\" or \"device\", not %q", opts.Frame)
	}
	if opts.MoveComp != "" && opts.MoveComp != MoveCompOn && opts.MoveComp != MoveCompInter {
		return errors.Errorf("movecomp must be %q or %q, not %q", MoveCompOn, MoveCompInter, opts.MoveComp)
	}
	if opts.MoveComp != "" && opts.HeadPos {
		return errors.New("movecomp and headpos are mutually exclusive")
	}

	step := Step{Program: opts.Bin, TeeFile: opts.LogFile}
	step.Flag("-f", inFile)
	step.Flag("-o", outFile)
	step.Flag("-v")
	step.Flag("-frame", opts.Frame)
	step.Flag("-origin", strings.Fields(opts.Origin)...)
	if bad := mf.badChannels(opts.Bad); len(bad) > 0 {
		step.Flag("-bad", bad...)
	}
	step.Flag("-autobad", opts.AutoBad)
	if opts.Skip != "" {
		step.Flag("-skip", strings.Fields(opts.Skip)...)
	}
	if opts.Force {
		step.Flag("-force")
	}
	if opts.ST {
		step.Flag("-st", fmt.Sprintf("%.0f", opts.STBufLen))
		step.Flag("-corr", fmt.Sprintf("%.4f", opts.STCorr))
	}
	if opts.Trans != "" {
		step.Flag("-trans", opts.Trans)
	}
	switch opts.MoveComp {
	case MoveCompOn:
		step.Flag("-movecomp")
	case MoveCompInter:
		step.Flag("-movecomp", "inter")
	}
	if opts.HeadPos {
		step.Flag("-headpos")
	}
	if opts.HP != "" {
		step.Flag("-hp", opts.HP)
	}
	if opts.HPISubt != "" {
		step.Flag("-hpisubt", opts.HPISubt)
	}
	if !opts.SkipHPICons {
		step.Flag("-hpicons")
	}
	if opts.LineFreq != 0 {
		step.Flag("-linefreq", fmt.Sprintf("%d", opts.LineFreq))
	}
	if opts.Cal != "" {
		step.Flag("-cal", opts.Cal)
	}
	if opts.CTC != "" {
		step.Flag("-ctc", opts.CTC)
	}
	step.Args = append(step.Args, opts.ExtraArgs...)

	_, err := mf.Add(cluster.JobSpec{
		Commands: []string{step.Render()},
		Queue:    maxFilterQueue,
		Threads:  opts.Threads,
		JobName:  "maxfilter",
	})
	if err != nil {
		return err
	}
	mf.ioMapping = append(mf.ioMapping, IOPair{Input: inFile, Output: outFile})
	return nil
}

// badChannels combines per-file and batch-level bad channel lists,
// stripping any "MEG" prefix the way maxfilter expects.
func (mf *MaxFilter) badChannels(bad []string) []string {
	var out []string
	for _, ch := range append(append([]string(nil), bad...), mf.bad...) {
		out = append(out, strings.TrimPrefix(ch, "MEG"))
	}
	return out
}

// IOMapping returns the input/output pairs of the jobs built so far.
func (mf *MaxFilter) IOMapping() []IOPair {
	return append([]IOPair(nil), mf.ioMapping...)
}

// LogIOMapping writes the input/output mapping to the batch's logger.
func (mf *MaxFilter) LogIOMapping() {
	for _, io := range mf.ioMapping {
		mf.logger.Infof("%s\n\t--> %s", io.Input, io.Output)
	}
}

// CheckIOMapping verifies that every input is readable and every
// output creatable before the batch is submitted. An existing output
// is an error unless force is given.
func (mf *MaxFilter) CheckIOMapping(force bool) error {
	for _, io := range mf.ioMapping {
		if !checkSourceReadable(io.Input) {
			return errors.Errorf("input file %s not readable", io.Input)
		}
		if !checkDestinationWritable(io.Output) {
			if checkSourceReadable(io.Output) && !force {
				return errors.Errorf("output file %s exists, use force to overwrite", io.Output)
			} else if !checkSourceReadable(io.Output) {
				return errors.Errorf("output file %s not writable", io.Output)
			}
		}
	}
	mf.logger.Info("all inputs readable & outputs writable")
	return nil
}
