// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The clampio authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package abx

type Version string

const (
	// Version1 is the original sequential-section binary layout.
	Version1 Version = "ABX1"
	// Version2 is the section-table binary layout.
	Version2 Version = "ABX2"
	// VersionATX is the tab-separated text serialization.
	VersionATX Version = "ATX1"
)

// Header holds the per-file recording metadata.
type Header struct {
	Version           Version   // On-disk layout the file was read from or will be written as
	SampleRate        int       // Samples per second, per channel
	SweepCount        int       // Number of sweeps in the recording
	SweepSamples      int       // Samples per sweep, per channel
	EpochStartDivisor int       // Epoch 0 begins at SweepSamples/EpochStartDivisor (0 means 64)
	Channels          []Channel // Per-channel configuration
}

// Channel describes one recorded signal line and the command output
// associated with it. Scale, Offset and Units apply to the measured
// samples; Holding and StimulusFile describe the command waveform.
type Channel struct {
	Label        string  // Label of the channel (e.g. IN0)
	Units        string  // Physical units of the measured signal (e.g. pA, mV)
	Scale        float64 // physical = digital*Scale + Offset
	Offset       float64
	Holding      float64 // Command level outside any epoch
	StimulusFile string  // External stimulus recording for file-driven epochs, empty if none
}

// EpochType identifies how an epoch's command segment is synthesized.
type EpochType uint8

const (
	EpochOff   EpochType = iota // Command held at the channel holding level
	EpochStep                   // Constant command at the epoch level
	EpochRamp                   // Linear ramp from the previous level to the epoch level
	EpochPulse                  // Square train toggling between holding and the epoch level
	EpochFile                   // Command read from the channel's stimulus file
)

func (t EpochType) String() string {
	switch t {
	case EpochOff:
		return "off"
	case EpochStep:
		return "step"
	case EpochRamp:
		return "ramp"
	case EpochPulse:
		return "pulse"
	case EpochFile:
		return "file"
	default:
		return "unknown"
	}
}

// Epoch is one programmed command segment definition from the header's
// epoch table. Level and duration advance per sweep by their deltas.
type Epoch struct {
	Type          EpochType
	Level         float64 // Command level at sweep 0
	LevelDelta    float64 // Added to Level once per sweep index
	Duration      int     // Duration in samples at sweep 0
	DurationDelta int     // Added to Duration once per sweep index (result clamped at 0)
	PulsePeriod   int     // Pulse train period in samples (EpochPulse only)
	PulseWidth    int     // Pulse train high width in samples (EpochPulse only)
	Digital       byte    // Digital output pattern, one bit per output line
}

// Tag is a user-inserted timestamped comment.
type Tag struct {
	Text  string
	Time  float64 // Seconds from the start of the recording
	Sweep int     // Sweep the tag time falls within
}

// Segment is one span of a sweep's command waveform, produced by
// decoding the epoch table for a particular sweep.
type Segment struct {
	Start, End  int // Sample span [Start, End) within the sweep
	Type        EpochType
	Level       float64
	PulsePeriod int
	PulseWidth  int
	Digital     byte
}
