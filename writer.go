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
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer writes ABX files.
type Writer struct {
	w      io.WriteSeeker
	hdr    *Header
	epochs []Epoch
	tags   []Tag
	sweeps int // Number of sweeps written so far.
}

// Create creates a new ABX writer that writes to the given writer. The
// channel list, epoch table and tags are fixed at creation; sweeps are
// appended with WriteSweep and the final sweep count is patched into the
// header by Close. An empty Header.Version selects Version2.
func Create(w io.WriteSeeker, hdr Header, epochs []Epoch, tags []Tag) (*Writer, error) {
	if hdr.Version == "" {
		hdr.Version = Version2
	}
	if hdr.Version != Version1 && hdr.Version != Version2 {
		return nil, fmt.Errorf("%w: cannot write version %q", ErrFormat, hdr.Version)
	}
	if hdr.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", hdr.SampleRate)
	}
	if hdr.SweepSamples <= 0 {
		return nil, fmt.Errorf("sweep sample count must be positive, got %d", hdr.SweepSamples)
	}
	if len(hdr.Channels) == 0 {
		return nil, fmt.Errorf("at least one channel is required")
	}
	for i, ch := range hdr.Channels {
		if ch.Scale == 0 {
			return nil, fmt.Errorf("channel %d: scale must be non-zero", i)
		}
	}
	if hdr.EpochStartDivisor == 0 {
		hdr.EpochStartDivisor = defaultEpochStartDivisor
	}
	hdr.SweepCount = 0 // Unknown number of sweeps (at this time).

	ww := &Writer{w: w, hdr: &hdr, epochs: epochs, tags: tags}

	// Write the initial header
	if err := ww.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return ww, nil
}

// Close finalizes the ABX file by updating the header with the total
// number of sweeps written.
func (ww *Writer) Close() error {
	ww.hdr.SweepCount = ww.sweeps
	if err := ww.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	return nil
}

// WriteSweep writes one sweep of physical samples, one slice per channel,
// each of the header's sweep sample count.
func (ww *Writer) WriteSweep(channels [][]float64) error {
	if len(channels) != len(ww.hdr.Channels) {
		return fmt.Errorf("expected %d channels, got %d", len(ww.hdr.Channels), len(channels))
	}
	for c := range channels {
		if len(channels[c]) != ww.hdr.SweepSamples {
			return fmt.Errorf("channel %d: expected %d samples, got %d", c, ww.hdr.SweepSamples, len(channels[c]))
		}
	}

	writer := bufio.NewWriter(ww.w)

	// Samples are interleaved across channels in time order.
	for i := 0; i < ww.hdr.SweepSamples; i++ {
		for c := range channels {
			ch := ww.hdr.Channels[c]
			digital := convertPhysicalToDigital(channels[c][i], ch.Scale, ch.Offset)
			if err := binary.Write(writer, binary.LittleEndian, digital); err != nil {
				return err
			}
		}
	}

	// Ensure all data is flushed to the underlying writer
	if err := writer.Flush(); err != nil {
		return err
	}

	ww.sweeps++
	return nil
}

// writeHeader writes the full header block (fixed head plus channel,
// epoch and tag sections) to the start of the file. The block size never
// changes for a given Writer, so rewriting it from Close is safe.
func (ww *Writer) writeHeader() error {
	// Rewind to the beginning of the file.
	if _, err := ww.w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	writer := bufio.NewWriter(ww.w)

	var head fixedHead
	copy(head.Magic[:], string(ww.hdr.Version))
	head.SampleRate = uint32(ww.hdr.SampleRate)
	head.SweepCount = uint32(ww.hdr.SweepCount)
	head.SweepSamples = uint32(ww.hdr.SweepSamples)
	head.EpochStartDivisor = uint16(ww.hdr.EpochStartDivisor)
	if err := binary.Write(writer, binary.LittleEndian, head); err != nil {
		return err
	}

	nc, ne, nt := len(ww.hdr.Channels), len(ww.epochs), len(ww.tags)

	switch ww.hdr.Version {
	case Version1:
		counts := v1Counts{
			ChannelCount: uint16(nc),
			EpochCount:   uint16(ne),
			TagCount:     uint16(nt),
		}
		if err := binary.Write(writer, binary.LittleEndian, counts); err != nil {
			return err
		}
	case Version2:
		chanOff := fixedHeadSize + 4*16
		epochOff := chanOff + nc*channelRecSize
		tagOff := epochOff + ne*epochRecSize
		dataOff := tagOff + nt*tagRecSize
		table := [4]sectionEntry{
			{Offset: uint32(chanOff), Count: uint32(nc), EntrySize: channelRecSize},
			{Offset: uint32(epochOff), Count: uint32(ne), EntrySize: epochRecSize},
			{Offset: uint32(tagOff), Count: uint32(nt), EntrySize: tagRecSize},
			{Offset: uint32(dataOff), Count: uint32(ww.hdr.SweepCount * ww.hdr.SweepSamples * nc), EntrySize: 2},
		}
		if err := binary.Write(writer, binary.LittleEndian, table); err != nil {
			return err
		}
	}

	for _, ch := range ww.hdr.Channels {
		if err := binary.Write(writer, binary.LittleEndian, encodeChannel(ch)); err != nil {
			return err
		}
	}
	for _, e := range ww.epochs {
		if err := binary.Write(writer, binary.LittleEndian, encodeEpoch(e)); err != nil {
			return err
		}
	}
	for _, t := range ww.tags {
		if err := binary.Write(writer, binary.LittleEndian, encodeTag(t)); err != nil {
			return err
		}
	}

	// Ensure all data is flushed to the underlying writer
	return writer.Flush()
}

func encodeChannel(ch Channel) channelRec {
	rec := channelRec{
		Scale:   ch.Scale,
		Offset:  ch.Offset,
		Holding: ch.Holding,
	}
	copy(rec.Label[:], ch.Label)
	copy(rec.Units[:], ch.Units)
	copy(rec.StimFile[:], ch.StimulusFile)
	return rec
}

func encodeEpoch(e Epoch) epochRec {
	return epochRec{
		Type:          uint8(e.Type),
		Digital:       e.Digital,
		Level:         float32(e.Level),
		LevelDelta:    float32(e.LevelDelta),
		Duration:      int32(e.Duration),
		DurationDelta: int32(e.DurationDelta),
		PulsePeriod:   uint32(e.PulsePeriod),
		PulseWidth:    uint32(e.PulseWidth),
	}
}

func encodeTag(t Tag) tagRec {
	rec := tagRec{Time: t.Time}
	copy(rec.Text[:], t.Text)
	return rec
}

// convertPhysicalToDigital converts a physical value to a digital sample
// using the channel calibration, clamping to the int16 range.
func convertPhysicalToDigital(physical, scale, offset float64) int16 {
	digital := math.Round((physical - offset) / scale)
	if digital > math.MaxInt16 {
		return math.MaxInt16
	}
	if digital < math.MinInt16 {
		return math.MinInt16
	}
	return int16(digital)
}
