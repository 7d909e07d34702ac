// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The clampio authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package abx_test

import (
	"os"
	"testing"

	"github.com/clampio/abx"
	"github.com/stretchr/testify/require"
)

// testHeader is a 2-channel voltage-clamp configuration: measured
// current on IN0, measured voltage on IN1. 6400 samples at 10 kHz per
// sweep, so epoch 0 begins at sample 100.
func testHeader() abx.Header {
	return abx.Header{
		SampleRate:   10000,
		SweepSamples: 6400,
		Channels: []abx.Channel{
			{Label: "IN0", Units: "pA", Scale: 0.05, Holding: -70},
			{Label: "IN1", Units: "mV", Scale: 0.01, Holding: 0},
		},
	}
}

// testEpochs covers [100, 6400) with a step, a tagged step and a ramp,
// leaving [5000, 6400) at the holding level.
func testEpochs() []abx.Epoch {
	return []abx.Epoch{
		{Type: abx.EpochStep, Level: -80, Duration: 1900},
		{Type: abx.EpochStep, Level: -70, Duration: 2000, Digital: 0b10},
		{Type: abx.EpochRamp, Level: -50, Duration: 1000},
	}
}

// sawtooth fills one sweep of deterministic, exactly-representable
// samples for the given channel scale.
func sawtooth(sweep, n int) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64((sweep*n+i)%200) - 100
	}
	return data
}

func writeRecording(t *testing.T, path string, hdr abx.Header, epochs []abx.Epoch, tags []abx.Tag, sweeps [][][]float64) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)

	w, err := abx.Create(f, hdr, epochs, tags)
	require.NoError(t, err)
	for _, sweep := range sweeps {
		require.NoError(t, w.WriteSweep(sweep))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func openRecording(t *testing.T, path string, opts ...abx.Option) *abx.Recording {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	rec, err := abx.Open(f, opts...)
	require.NoError(t, err)
	return rec
}

// writeTestRecording writes the standard fixture with the given number
// of sweeps and returns it reopened.
func writeTestRecording(t *testing.T, path string, sweepCount int, opts ...abx.Option) *abx.Recording {
	t.Helper()

	hdr := testHeader()
	sweeps := make([][][]float64, sweepCount)
	for s := range sweeps {
		sweeps[s] = [][]float64{sawtooth(s, hdr.SweepSamples), sawtooth(s+1, hdr.SweepSamples)}
	}
	writeRecording(t, path, hdr, testEpochs(), nil, sweeps)
	return openRecording(t, path, opts...)
}
