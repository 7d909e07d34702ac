// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The clampio authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package abx

// Epoch 0 does not begin at sample 0: acquisition hardware reserves a
// leading fraction of the sweep at the holding level. The divisor is
// recorded in the header; 64 is the value used by every known writer.
const defaultEpochStartDivisor = 64

func (r *Recording) epochStartDivisor() int {
	if d := r.hdr.EpochStartDivisor; d > 0 {
		return d
	}
	return defaultEpochStartDivisor
}

// Segments decodes the epoch table for one sweep into an ordered list of
// command segments. The segments partition [0, SweepSamples) exactly:
// samples before the first epoch and after the last are covered by
// holding-level step segments for the given channel.
func (r *Recording) Segments(sweep, channel int) ([]Segment, error) {
	if err := r.checkSweep(sweep); err != nil {
		return nil, err
	}
	if err := r.checkChannel(channel); err != nil {
		return nil, err
	}
	return epochSegments(r.epochs, sweep, r.hdr.SweepSamples, r.epochStartDivisor(), r.hdr.Channels[channel].Holding), nil
}

func epochSegments(epochs []Epoch, sweep, sweepSamples, divisor int, holding float64) []Segment {
	segs := make([]Segment, 0, len(epochs)+2)

	cursor := sweepSamples / divisor
	if cursor > 0 {
		segs = append(segs, Segment{Start: 0, End: cursor, Type: EpochStep, Level: holding})
	}

	for _, e := range epochs {
		if cursor >= sweepSamples {
			break
		}
		dur := e.Duration + e.DurationDelta*sweep
		if dur < 0 {
			dur = 0
		}
		end := cursor + dur
		if end > sweepSamples {
			end = sweepSamples
		}
		segs = append(segs, Segment{
			Start:       cursor,
			End:         end,
			Type:        e.Type,
			Level:       e.Level + e.LevelDelta*float64(sweep),
			PulsePeriod: e.PulsePeriod,
			PulseWidth:  e.PulseWidth,
			Digital:     e.Digital,
		})
		cursor = end
	}

	if cursor < sweepSamples {
		segs = append(segs, Segment{Start: cursor, End: sweepSamples, Type: EpochStep, Level: holding})
	}
	return segs
}
