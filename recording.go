// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The clampio authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package abx

import (
	"fmt"
	"slices"
)

// Recording is a fully-loaded electrophysiology recording. Metadata and
// the physical sample buffer are immutable after open; the only mutable
// state is the per-channel filter (see SetFilter). Concurrent reads are
// safe: selections touch shared state only on channels with an active
// filter, so filter use requires exclusive access to the Recording.
type Recording struct {
	hdr    *Header
	epochs []Epoch
	tags   []Tag

	// raw holds the interleaved digital samples as read from disk. Nil
	// for text-variant files, which carry physical values directly.
	raw []int16

	// base holds the physical samples per channel, derived once at open
	// and never mutated. work holds the per-channel filter working
	// buffers, rebuilt from base whenever filter state changes.
	base        [][]float64
	work        [][]float64
	filterWidth []int

	stim        *StimulusCache
	stimFolders []string
	stimNoCache bool
}

// SweepView is the result of one sweep selection. All three arrays have
// the same length, the recording's sweep sample count. A SweepView is
// independently allocated and never shares memory with the Recording.
type SweepView struct {
	Sweep    int
	Channel  int
	Measured []float64 // Measured signal in the channel's physical units
	Command  []float64 // Synthesized command waveform
	Time     []float64 // Seconds, relative to the sweep unless WithAbsoluteTime
	Baseline float64   // Mean subtracted from Measured, 0 when no window was given
}

// SweepOption configures a sweep selection.
type SweepOption func(*sweepOptions)

type sweepOptions struct {
	baseline     bool
	t1, t2       float64
	absoluteTime bool
}

// WithBaseline subtracts the mean of the measured signal over the time
// window [t1, t2] (seconds within the sweep) from every sample.
func WithBaseline(t1, t2 float64) SweepOption {
	return func(o *sweepOptions) {
		o.baseline = true
		o.t1, o.t2 = t1, t2
	}
}

// WithAbsoluteTime makes the time axis run from the start of the
// recording rather than the start of the sweep.
func WithAbsoluteTime() SweepOption {
	return func(o *sweepOptions) { o.absoluteTime = true }
}

func newRecording(hdr *Header, epochs []Epoch, tags []Tag, raw []int16, base [][]float64, opts []Option) (*Recording, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := &Recording{
		hdr:         hdr,
		epochs:      epochs,
		tags:        tags,
		raw:         raw,
		base:        base,
		work:        make([][]float64, len(hdr.Channels)),
		filterWidth: make([]int, len(hdr.Channels)),
		stim:        o.cache,
		stimFolders: o.folders,
		stimNoCache: o.noCache,
	}
	if r.stim == nil && !r.stimNoCache {
		r.stim = NewStimulusCache()
	}
	if r.base == nil {
		r.base = scaleChannels(raw, hdr)
	}
	return r, nil
}

// scaleChannels de-interleaves the digital sample buffer into one
// physical float64 trace per channel, sweeps concatenated in time order.
func scaleChannels(raw []int16, hdr *Header) [][]float64 {
	nc := len(hdr.Channels)
	total := hdr.SweepCount * hdr.SweepSamples
	base := make([][]float64, nc)
	for c := range base {
		ch := hdr.Channels[c]
		trace := make([]float64, total)
		for i := range trace {
			trace[i] = float64(raw[i*nc+c])*ch.Scale + ch.Offset
		}
		base[c] = trace
	}
	return base
}

// Header returns a copy of the recording's header.
func (r *Recording) Header() Header {
	hdr := *r.hdr
	hdr.Channels = slices.Clone(r.hdr.Channels)
	return hdr
}

// SampleRate returns the per-channel sample rate in Hz.
func (r *Recording) SampleRate() int { return r.hdr.SampleRate }

// SweepCount returns the number of sweeps in the recording.
func (r *Recording) SweepCount() int { return r.hdr.SweepCount }

// SweepSamples returns the number of samples per sweep per channel.
func (r *Recording) SweepSamples() int { return r.hdr.SweepSamples }

// SweepDuration returns the duration of one sweep in seconds.
func (r *Recording) SweepDuration() float64 {
	return float64(r.hdr.SweepSamples) / float64(r.hdr.SampleRate)
}

// Channels returns a copy of the per-channel configuration.
func (r *Recording) Channels() []Channel { return slices.Clone(r.hdr.Channels) }

// Epochs returns a copy of the epoch table.
func (r *Recording) Epochs() []Epoch { return slices.Clone(r.epochs) }

// Tags returns a copy of the user comment tags, in time order.
func (r *Recording) Tags() []Tag { return slices.Clone(r.tags) }

func (r *Recording) checkSweep(sweep int) error {
	if sweep < 0 || sweep >= r.hdr.SweepCount {
		return fmt.Errorf("%w: sweep %d of %d", ErrSweepIndex, sweep, r.hdr.SweepCount)
	}
	return nil
}

func (r *Recording) checkChannel(channel int) error {
	if channel < 0 || channel >= len(r.hdr.Channels) {
		return fmt.Errorf("%w: channel %d of %d", ErrChannelIndex, channel, len(r.hdr.Channels))
	}
	return nil
}

// Sweep selects one (sweep, channel) pair and returns its measured
// signal, synthesized command waveform and time axis. Any validation or
// synthesis failure returns before filter state is touched, so a failed
// call leaves the Recording unchanged.
func (r *Recording) Sweep(sweep, channel int, opts ...SweepOption) (*SweepView, error) {
	if err := r.checkSweep(sweep); err != nil {
		return nil, err
	}
	if err := r.checkChannel(channel); err != nil {
		return nil, err
	}

	var o sweepOptions
	for _, opt := range opts {
		opt(&o)
	}

	n := r.hdr.SweepSamples
	rate := float64(r.hdr.SampleRate)
	dur := r.SweepDuration()

	var i1, i2 int
	if o.baseline {
		if o.t1 < 0 || o.t2 <= o.t1 || o.t2 > dur {
			return nil, fmt.Errorf("baseline window [%g, %g] outside sweep of %gs", o.t1, o.t2, dur)
		}
		i1, i2 = int(o.t1*rate), int(o.t2*rate)
		if i2 > n {
			i2 = n
		}
		if i2 <= i1 {
			i2 = i1 + 1
		}
	}

	// Synthesize the command first: file-driven epochs can fail, and a
	// failure must not leave the filter working buffer advanced.
	segs := epochSegments(r.epochs, sweep, n, r.epochStartDivisor(), r.hdr.Channels[channel].Holding)
	command, err := r.synthesize(segs, channel)
	if err != nil {
		return nil, err
	}

	full := r.channelData(channel)
	measured := slices.Clone(full[sweep*n : (sweep+1)*n])

	view := &SweepView{
		Sweep:    sweep,
		Channel:  channel,
		Measured: measured,
		Command:  command,
		Time:     make([]float64, n),
	}

	offset := 0.0
	if o.absoluteTime {
		offset = float64(sweep) * dur
	}
	for i := range view.Time {
		view.Time[i] = float64(i)/rate + offset
	}

	if o.baseline {
		var sum float64
		for _, v := range measured[i1:i2] {
			sum += v
		}
		view.Baseline = sum / float64(i2-i1)
		for i := range measured {
			measured[i] -= view.Baseline
		}
	}

	return view, nil
}

// channelData returns the channel's samples for slicing. Without an
// active filter it reads straight from the immutable physical buffer,
// so filter-free selections never mutate shared state. With a filter
// set it smooths the channel's working buffer once per call: repeated
// materialization compounds, per the filter contract, and SetFilter
// resets the buffer.
func (r *Recording) channelData(channel int) []float64 {
	if r.filterWidth[channel] == 0 {
		return r.base[channel]
	}
	if r.work[channel] == nil {
		r.work[channel] = slices.Clone(r.base[channel])
	}
	gaussianSmooth(r.work[channel], r.filterWidth[channel])
	return r.work[channel]
}

// SetFilter sets the smoothing kernel width, in samples, for a channel.
// The filter is applied each time a sweep is materialized, so repeated
// selections compound. Any call to SetFilter discards the channel's
// working buffer; widths below 2 describe an identity kernel and clear
// the filter, restoring the untouched physical samples exactly.
func (r *Recording) SetFilter(channel, width int) error {
	if err := r.checkChannel(channel); err != nil {
		return err
	}
	if width < 2 {
		width = 0
	}
	r.filterWidth[channel] = width
	r.work[channel] = nil
	return nil
}

// ClearFilter removes the smoothing filter from a channel, restoring the
// untouched physical samples.
func (r *Recording) ClearFilter(channel int) error {
	return r.SetFilter(channel, 0)
}
