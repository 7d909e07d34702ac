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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// OpenATX reads the tab-separated text serialization of a recording.
// ATX files carry no epoch table; the command waveform of every sweep is
// the per-channel holding level, so the sweep accessor contract is the
// same as for binary files.
func OpenATX(r io.Reader, opts ...Option) (*Recording, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	line, ok := scanLine(sc)
	if !ok {
		return nil, fmt.Errorf("%w: empty file", ErrTruncated)
	}
	fields := strings.Split(line, "\t")
	if len(fields) < 2 || fields[0] != "ATX" || fields[1] != "1" {
		return nil, fmt.Errorf("%w: not an ATX file", ErrFormat)
	}

	hdr := &Header{Version: VersionATX}
	var channelCount int
	var units, labels, holdings []string

head:
	for {
		line, ok := scanLine(sc)
		if !ok {
			return nil, fmt.Errorf("%w: header ends before data rows", ErrTruncated)
		}
		fields := strings.Split(line, "\t")
		var err error
		switch fields[0] {
		case "samplerate":
			hdr.SampleRate, err = atxInt(fields)
		case "sweeps":
			hdr.SweepCount, err = atxInt(fields)
		case "samples":
			hdr.SweepSamples, err = atxInt(fields)
		case "channels":
			channelCount, err = atxInt(fields)
		case "units":
			units = fields[1:]
		case "labels":
			labels = fields[1:]
		case "holding":
			holdings = fields[1:]
		case "time":
			// Column header line: data rows follow.
			break head
		default:
			return nil, fmt.Errorf("%w: unknown header line %q", ErrFormat, fields[0])
		}
		if err != nil {
			return nil, fmt.Errorf("%w: bad %s line: %v", ErrFormat, fields[0], err)
		}
	}

	if hdr.SampleRate <= 0 || hdr.SweepCount <= 0 || hdr.SweepSamples <= 0 || channelCount <= 0 {
		return nil, fmt.Errorf("%w: incomplete header", ErrFormat)
	}
	for name, vals := range map[string][]string{"units": units, "labels": labels, "holding": holdings} {
		if vals != nil && len(vals) != channelCount {
			return nil, fmt.Errorf("%w: %s line has %d entries for %d channels", ErrFormat, name, len(vals), channelCount)
		}
	}

	hdr.Channels = make([]Channel, channelCount)
	for c := range hdr.Channels {
		ch := Channel{Label: fmt.Sprintf("IN%d", c), Scale: 1}
		if labels != nil {
			ch.Label = labels[c]
		}
		if units != nil {
			ch.Units = units[c]
		}
		if holdings != nil {
			h, err := strconv.ParseFloat(holdings[c], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad holding value %q", ErrFormat, holdings[c])
			}
			ch.Holding = h
		}
		hdr.Channels[c] = ch
	}

	total := hdr.SweepCount * hdr.SweepSamples
	base := make([][]float64, channelCount)
	for c := range base {
		base[c] = make([]float64, total)
	}
	for row := 0; row < total; row++ {
		line, ok := scanLine(sc)
		if !ok {
			return nil, fmt.Errorf("%w: %d data rows declared, %d found", ErrTruncated, total, row)
		}
		fields := strings.Split(line, "\t")
		if len(fields) != channelCount+1 {
			return nil, fmt.Errorf("%w: data row %d has %d columns, want %d", ErrFormat, row, len(fields), channelCount+1)
		}
		for c := 0; c < channelCount; c++ {
			v, err := strconv.ParseFloat(fields[c+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad sample at row %d column %d: %v", ErrFormat, row, c+1, err)
			}
			base[c][row] = v
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return newRecording(hdr, nil, nil, nil, base, opts)
}

// scanLine returns the next non-empty line with trailing whitespace
// removed.
func scanLine(sc *bufio.Scanner) (string, bool) {
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line != "" {
			return line, true
		}
	}
	return "", false
}

func atxInt(fields []string) (int, error) {
	if len(fields) != 2 {
		return 0, fmt.Errorf("want 1 value, got %d", len(fields)-1)
	}
	return strconv.Atoi(fields[1])
}
