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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// On-disk record layouts. All multi-byte fields are little-endian.
type fixedHead struct {
	Magic             [4]byte
	SampleRate        uint32
	SweepCount        uint32
	SweepSamples      uint32
	EpochStartDivisor uint16
	_                 [14]byte
}

type v1Counts struct {
	ChannelCount uint16
	EpochCount   uint16
	TagCount     uint16
	_            [2]byte
}

type sectionEntry struct {
	Offset    uint32
	Count     uint32
	EntrySize uint32
	_         uint32
}

type channelRec struct {
	Label    [16]byte
	Units    [8]byte
	Scale    float64
	Offset   float64
	Holding  float64
	StimFile [64]byte
}

type epochRec struct {
	Type          uint8
	Digital       uint8
	_             [2]byte
	Level         float32
	LevelDelta    float32
	Duration      int32
	DurationDelta int32
	PulsePeriod   uint32
	PulseWidth    uint32
	_             [4]byte
}

type tagRec struct {
	Time float64
	Text [56]byte
}

const (
	fixedHeadSize  = 32
	channelRecSize = 112
	epochRecSize   = 32
	tagRecSize     = 64
)

// Option configures how a recording is opened.
type Option func(*openOptions)

type openOptions struct {
	cache   *StimulusCache
	folders []string
	noCache bool
}

// WithStimulusCache supplies a shared cache for stimulus files referenced
// by file-driven epochs. Without it each Recording owns a private cache.
func WithStimulusCache(c *StimulusCache) Option {
	return func(o *openOptions) { o.cache = c }
}

// WithStimulusFolders sets the folders searched for stimulus files, in
// addition to the path recorded in the channel configuration.
func WithStimulusFolders(folders ...string) Option {
	return func(o *openOptions) { o.folders = folders }
}

// WithoutStimulusCache disables stimulus caching for this Recording:
// file-driven epochs re-read their stimulus file on every synthesis.
func WithoutStimulusCache() Option {
	return func(o *openOptions) { o.noCache = true }
}

// Open reads an ABX recording. The whole file is loaded into memory; the
// returned Recording is safe for concurrent reads.
func Open(r io.Reader, opts ...Option) (*Recording, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	br := bytes.NewReader(raw)
	var head fixedHead
	if err := binary.Read(br, binary.LittleEndian, &head); err != nil {
		return nil, fmt.Errorf("%w: file shorter than fixed header", ErrTruncated)
	}

	var (
		hdr    *Header
		epochs []Epoch
		tags   []Tag
		data   []int16
	)
	switch Version(head.Magic[:]) {
	case Version1:
		hdr, epochs, tags, data, err = parseV1(raw, head)
	case Version2:
		hdr, epochs, tags, data, err = parseV2(raw, head)
	default:
		return nil, fmt.Errorf("%w: unknown signature %q", ErrFormat, head.Magic[:])
	}
	if err != nil {
		return nil, err
	}

	return newRecording(hdr, epochs, tags, data, nil, opts)
}

func validateHead(head fixedHead) error {
	if head.SampleRate == 0 {
		return fmt.Errorf("%w: zero sample rate", ErrFormat)
	}
	if head.SweepSamples == 0 {
		return fmt.Errorf("%w: zero sweep length", ErrFormat)
	}
	return nil
}

func headerFromHead(version Version, head fixedHead) *Header {
	return &Header{
		Version:           version,
		SampleRate:        int(head.SampleRate),
		SweepCount:        int(head.SweepCount),
		SweepSamples:      int(head.SweepSamples),
		EpochStartDivisor: int(head.EpochStartDivisor),
	}
}

// parseV1 decodes the sequential layout: counts, channel records, epoch
// records, tag records and finally sample data, all back to back.
func parseV1(raw []byte, head fixedHead) (*Header, []Epoch, []Tag, []int16, error) {
	if err := validateHead(head); err != nil {
		return nil, nil, nil, nil, err
	}

	br := bytes.NewReader(raw[fixedHeadSize:])
	var counts v1Counts
	if err := binary.Read(br, binary.LittleEndian, &counts); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: missing section counts", ErrTruncated)
	}
	if counts.ChannelCount == 0 {
		return nil, nil, nil, nil, fmt.Errorf("%w: no channels declared", ErrFormat)
	}

	hdr := headerFromHead(Version1, head)
	hdr.Channels = make([]Channel, counts.ChannelCount)
	for i := range hdr.Channels {
		var rec channelRec
		if err := binary.Read(br, binary.LittleEndian, &rec); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("%w: error reading channel %d", ErrTruncated, i)
		}
		hdr.Channels[i] = decodeChannel(rec)
	}

	epochs := make([]Epoch, counts.EpochCount)
	for i := range epochs {
		var rec epochRec
		if err := binary.Read(br, binary.LittleEndian, &rec); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("%w: error reading epoch %d", ErrTruncated, i)
		}
		epochs[i] = decodeEpoch(rec)
	}

	tags := make([]Tag, counts.TagCount)
	for i := range tags {
		var rec tagRec
		if err := binary.Read(br, binary.LittleEndian, &rec); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("%w: error reading tag %d", ErrTruncated, i)
		}
		tags[i] = decodeTag(rec, hdr)
	}

	// Everything after the tag section is sample data.
	dataOffset := len(raw) - br.Len()
	want := hdr.SweepCount * hdr.SweepSamples * len(hdr.Channels)
	data, err := decodeSamples(raw, dataOffset, want)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return hdr, epochs, tags, data, nil
}

// parseV2 decodes the section-table layout: a four-entry table (channels,
// epochs, tags, data) follows the fixed head, and each section may sit
// anywhere after the table. Entry sizes larger than the known record size
// are tolerated so files from newer writers still open.
func parseV2(raw []byte, head fixedHead) (*Header, []Epoch, []Tag, []int16, error) {
	if err := validateHead(head); err != nil {
		return nil, nil, nil, nil, err
	}

	br := bytes.NewReader(raw[fixedHeadSize:])
	var table [4]sectionEntry
	if err := binary.Read(br, binary.LittleEndian, &table); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: missing section table", ErrTruncated)
	}
	chanSec, epochSec, tagSec, dataSec := table[0], table[1], table[2], table[3]

	if chanSec.Count == 0 {
		return nil, nil, nil, nil, fmt.Errorf("%w: no channels declared", ErrFormat)
	}

	hdr := headerFromHead(Version2, head)
	hdr.Channels = make([]Channel, chanSec.Count)
	if err := readSection(raw, chanSec, "channel", channelRecSize, func(r io.Reader, i int) error {
		var rec channelRec
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return err
		}
		hdr.Channels[i] = decodeChannel(rec)
		return nil
	}); err != nil {
		return nil, nil, nil, nil, err
	}

	epochs := make([]Epoch, epochSec.Count)
	if err := readSection(raw, epochSec, "epoch", epochRecSize, func(r io.Reader, i int) error {
		var rec epochRec
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return err
		}
		epochs[i] = decodeEpoch(rec)
		return nil
	}); err != nil {
		return nil, nil, nil, nil, err
	}

	tags := make([]Tag, tagSec.Count)
	if err := readSection(raw, tagSec, "tag", tagRecSize, func(r io.Reader, i int) error {
		var rec tagRec
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return err
		}
		tags[i] = decodeTag(rec, hdr)
		return nil
	}); err != nil {
		return nil, nil, nil, nil, err
	}

	want := hdr.SweepCount * hdr.SweepSamples * len(hdr.Channels)
	if int(dataSec.Count) != want {
		return nil, nil, nil, nil, fmt.Errorf("%w: data section declares %d samples, header implies %d",
			ErrFormat, dataSec.Count, want)
	}
	data, err := decodeSamples(raw, int(dataSec.Offset), want)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return hdr, epochs, tags, data, nil
}

// readSection walks a v2 section record by record, honoring the declared
// entry size so unknown trailing record bytes are skipped.
func readSection(raw []byte, sec sectionEntry, name string, minEntry int, decode func(io.Reader, int) error) error {
	if sec.Count == 0 {
		return nil
	}
	if int(sec.EntrySize) < minEntry {
		return fmt.Errorf("%w: %s record size %d below minimum %d", ErrFormat, name, sec.EntrySize, minEntry)
	}
	end := int64(sec.Offset) + int64(sec.Count)*int64(sec.EntrySize)
	if int(sec.Offset) < fixedHeadSize || end > int64(len(raw)) {
		return fmt.Errorf("%w: %s section extends past end of file", ErrTruncated, name)
	}
	for i := 0; i < int(sec.Count); i++ {
		off := int(sec.Offset) + i*int(sec.EntrySize)
		r := bytes.NewReader(raw[off : off+int(sec.EntrySize)])
		if err := decode(r, i); err != nil {
			return fmt.Errorf("error reading %s %d: %w", name, i, err)
		}
	}
	return nil
}

func decodeSamples(raw []byte, offset, want int) ([]int16, error) {
	if offset < 0 || offset > len(raw) || len(raw)-offset < want*2 {
		return nil, fmt.Errorf("%w: need %d sample bytes, have %d", ErrTruncated, want*2, max(0, len(raw)-offset))
	}
	data := make([]int16, want)
	for i := range data {
		data[i] = int16(binary.LittleEndian.Uint16(raw[offset+2*i:]))
	}
	return data, nil
}

func decodeChannel(rec channelRec) Channel {
	return Channel{
		Label:        trimPadded(rec.Label[:]),
		Units:        trimPadded(rec.Units[:]),
		Scale:        rec.Scale,
		Offset:       rec.Offset,
		Holding:      rec.Holding,
		StimulusFile: trimPadded(rec.StimFile[:]),
	}
}

func decodeEpoch(rec epochRec) Epoch {
	return Epoch{
		Type:          EpochType(rec.Type),
		Level:         float64(rec.Level),
		LevelDelta:    float64(rec.LevelDelta),
		Duration:      int(rec.Duration),
		DurationDelta: int(rec.DurationDelta),
		PulsePeriod:   int(rec.PulsePeriod),
		PulseWidth:    int(rec.PulseWidth),
		Digital:       rec.Digital,
	}
}

// decodeTag derives the tag's sweep index as floor(time/sweepDuration),
// even for times past the last sweep: callers that index sweeps by tag
// must range-check, mirroring how the acquisition software stores tags
// written after the final sweep.
func decodeTag(rec tagRec, hdr *Header) Tag {
	sweepDuration := float64(hdr.SweepSamples) / float64(hdr.SampleRate)
	return Tag{
		Text:  trimPadded(rec.Text[:]),
		Time:  rec.Time,
		Sweep: int(rec.Time / sweepDuration),
	}
}

// trimPadded converts a NUL-padded fixed-width field to a string.
func trimPadded(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
