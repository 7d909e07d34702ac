// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The clampio authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package abx

import "fmt"

// stimulusLoader resolves a stimulus file path to its sample sequence.
type stimulusLoader func(path string) ([]float64, error)

func (r *Recording) synthesize(segs []Segment, channel int) ([]float64, error) {
	ch := r.hdr.Channels[channel]
	load := func(path string) ([]float64, error) {
		if r.stimNoCache || r.stim == nil {
			return loadStimulusFile(path, r.stimFolders)
		}
		return r.stim.Load(path, r.stimFolders)
	}
	return synthesizeCommand(segs, ch, r.hdr.SweepSamples, load)
}

// synthesizeCommand reconstructs the command waveform for one sweep from
// its segment list. The result is a pure function of the segments, the
// channel configuration and the stimulus file contents: identical inputs
// always produce identical arrays.
func synthesizeCommand(segs []Segment, ch Channel, n int, load stimulusLoader) ([]float64, error) {
	cmd := make([]float64, n)
	prev := ch.Holding
	for _, seg := range segs {
		span := seg.End - seg.Start
		switch seg.Type {
		case EpochOff:
			for i := seg.Start; i < seg.End; i++ {
				cmd[i] = ch.Holding
			}
			prev = ch.Holding

		case EpochStep:
			for i := seg.Start; i < seg.End; i++ {
				cmd[i] = seg.Level
			}
			prev = seg.Level

		case EpochRamp:
			// Ramps start from wherever the previous segment left the
			// command and arrive at the epoch level on the last sample.
			for i := 0; i < span; i++ {
				frac := float64(i+1) / float64(span)
				cmd[seg.Start+i] = prev + (seg.Level-prev)*frac
			}
			prev = seg.Level

		case EpochPulse:
			period, width := seg.PulsePeriod, seg.PulseWidth
			if period < 1 {
				period = 1
			}
			if width < 0 {
				width = 0
			}
			if width > period {
				width = period
			}
			for i := seg.Start; i < seg.End; i++ {
				if (i-seg.Start)%period < width {
					cmd[i] = seg.Level
				} else {
					cmd[i] = ch.Holding
				}
			}
			prev = seg.Level

		case EpochFile:
			if ch.StimulusFile == "" {
				return nil, fmt.Errorf("%w: channel %q has a file-driven epoch but no stimulus file", ErrStimulusNotFound, ch.Label)
			}
			stim, err := load(ch.StimulusFile)
			if err != nil {
				return nil, err
			}
			if len(stim) == 0 {
				return nil, fmt.Errorf("%w: stimulus file %q holds no samples", ErrFormat, ch.StimulusFile)
			}
			// Tile the stimulus across the segment span. Stimulus files
			// share the recording's sample rate, so no resampling.
			for i := 0; i < span; i++ {
				cmd[seg.Start+i] = stim[i%len(stim)]
			}
			if span > 0 {
				prev = cmd[seg.End-1]
			}

		default:
			return nil, fmt.Errorf("%w: epoch type %d", ErrFormat, seg.Type)
		}
	}
	return cmd, nil
}

// DigitalOutput synthesizes the 0/1 waveform of one digital output line
// for a sweep: high wherever the covering epoch's output pattern has the
// given bit set, low elsewhere (including outside the epoch table).
func (r *Recording) DigitalOutput(sweep, bit int) ([]float64, error) {
	if err := r.checkSweep(sweep); err != nil {
		return nil, err
	}
	if bit < 0 || bit > 7 {
		return nil, fmt.Errorf("digital output bit %d out of range [0, 8)", bit)
	}

	segs := epochSegments(r.epochs, sweep, r.hdr.SweepSamples, r.epochStartDivisor(), 0)
	out := make([]float64, r.hdr.SweepSamples)
	for _, seg := range segs {
		if seg.Digital&(1<<bit) == 0 {
			continue
		}
		for i := seg.Start; i < seg.End; i++ {
			out[i] = 1
		}
	}
	return out, nil
}
