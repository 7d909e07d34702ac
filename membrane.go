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

// Minimum command drop below the preceding level for a step epoch to
// qualify as the membrane test pulse, in command units (mV).
const membraneStepThreshold = 5.0

// MembraneTestResult holds the passive membrane properties extracted
// from one sweep's response to a hyperpolarizing test pulse. Units
// assume a command waveform in mV and a measured current in pA.
type MembraneTestResult struct {
	Sweep              int
	HoldingCurrent     float64 // Pre-step baseline current, pA
	AccessResistance   float64 // MOhm
	MembraneResistance float64 // MOhm
	Capacitance        float64 // Whole-cell capacitance, pF
	Err                error   // ErrNoStep when the sweep has no usable test pulse
}

// MembraneTest runs the membrane test over every sweep of a channel.
// The returned slice is indexed by sweep; sweeps without a qualifying
// hyperpolarizing step carry Err instead of aborting the batch.
func (r *Recording) MembraneTest(channel int) ([]MembraneTestResult, error) {
	if err := r.checkChannel(channel); err != nil {
		return nil, err
	}

	results := make([]MembraneTestResult, r.hdr.SweepCount)
	for sweep := range results {
		results[sweep] = r.membraneTestSweep(sweep, channel)
	}
	return results, nil
}

func (r *Recording) membraneTestSweep(sweep, channel int) MembraneTestResult {
	res := MembraneTestResult{Sweep: sweep}

	view, err := r.Sweep(sweep, channel)
	if err != nil {
		res.Err = err
		return res
	}

	segs, err := r.Segments(sweep, channel)
	if err != nil {
		res.Err = err
		return res
	}
	step, prevLevel, ok := findTestStep(segs)
	if !ok {
		res.Err = fmt.Errorf("%w: sweep %d", ErrNoStep, sweep)
		return res
	}

	stepLen := step.End - step.Start
	window := stepLen / 5
	if window < 1 {
		window = 1
	}
	baseStart := step.Start - window
	if baseStart < 0 {
		baseStart = 0
	}

	baseline := mean(view.Measured[baseStart:step.Start])
	steady := mean(view.Measured[step.End-window : step.End])

	// The capacitive transient peaks just after onset; for a
	// hyperpolarizing step that is the most negative excursion.
	peak := view.Measured[step.Start]
	for _, v := range view.Measured[step.Start : step.Start+window] {
		if v < peak {
			peak = v
		}
	}

	dV := step.Level - prevLevel // negative, mV
	if peak == steady || steady == baseline {
		res.Err = fmt.Errorf("%w: flat step response in sweep %d", ErrNoStep, sweep)
		return res
	}

	// mV/pA is GOhm; scale to MOhm.
	res.HoldingCurrent = baseline
	res.AccessResistance = dV / (peak - steady) * 1e3
	res.MembraneResistance = dV / (steady - baseline) * 1e3

	// Charge carried by the transient above steady state: pA x s is pC,
	// and pC/mV x 1e3 is pF.
	dt := 1 / float64(r.hdr.SampleRate)
	var charge float64
	for _, v := range view.Measured[step.Start:step.End] {
		charge += (v - steady) * dt
	}
	res.Capacitance = charge / dV * 1e3

	return res
}

// findTestStep locates the first step segment whose level drops at least
// membraneStepThreshold below the preceding segment's level, returning
// the segment and the level it stepped from.
func findTestStep(segs []Segment) (Segment, float64, bool) {
	for i := 1; i < len(segs); i++ {
		seg := segs[i]
		if seg.Type != EpochStep || seg.End <= seg.Start {
			continue
		}
		if seg.Level-segs[i-1].Level <= -membraneStepThreshold {
			return seg, segs[i-1].Level, true
		}
	}
	return Segment{}, 0, false
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
