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
	"path/filepath"
	"testing"

	"github.com/clampio/abx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "test.abx"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	hdr := abx.Header{
		SampleRate:   10000,
		SweepSamples: 256,
		Channels: []abx.Channel{
			{Label: "IN0", Units: "pA", Scale: 0.05, Holding: -70},
		},
	}

	w, err := abx.Create(f, hdr, nil, nil)
	require.NoError(t, err)

	// Write some sweeps
	sweep := make([]float64, 256)
	for i := range sweep {
		sweep[i] = float64(i) // physical value
	}
	require.NoError(t, w.WriteSweep([][]float64{sweep}))

	for i := range sweep {
		sweep[i] = float64(i + 256)
	}
	require.NoError(t, w.WriteSweep([][]float64{sweep}))

	// Close the writer (this finalizes the sweep count)
	require.NoError(t, w.Close())

	rec := openRecording(t, f.Name())
	require.Equal(t, 2, rec.SweepCount())

	for s := 0; s < 2; s++ {
		view, err := rec.Sweep(s, 0)
		require.NoError(t, err)
		for i := range view.Measured {
			require.InDelta(t, float64(s*256+i), view.Measured[i], hdr.Channels[0].Scale/2)
		}
	}
}

func TestWriterValidation(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "test.abx"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	_, err = abx.Create(f, abx.Header{SampleRate: 10000, SweepSamples: 256}, nil, nil)
	require.Error(t, err) // no channels

	_, err = abx.Create(f, abx.Header{
		SampleRate:   10000,
		SweepSamples: 256,
		Channels:     []abx.Channel{{Label: "IN0"}},
	}, nil, nil)
	require.Error(t, err) // zero scale

	_, err = abx.Create(f, abx.Header{
		Version:      abx.VersionATX,
		SampleRate:   10000,
		SweepSamples: 256,
		Channels:     []abx.Channel{{Label: "IN0", Scale: 1}},
	}, nil, nil)
	require.ErrorIs(t, err, abx.ErrFormat) // text variant is not binary-writable

	w, err := abx.Create(f, abx.Header{
		SampleRate:   10000,
		SweepSamples: 256,
		Channels:     []abx.Channel{{Label: "IN0", Scale: 1}},
	}, nil, nil)
	require.NoError(t, err)

	require.Error(t, w.WriteSweep(nil))                              // channel count mismatch
	require.Error(t, w.WriteSweep([][]float64{make([]float64, 10)})) // sweep length mismatch
}

func TestWriterClampsOutOfRangeSamples(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "test.abx"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	hdr := abx.Header{
		SampleRate:   10000,
		SweepSamples: 4,
		Channels:     []abx.Channel{{Label: "IN0", Units: "pA", Scale: 1}},
	}
	w, err := abx.Create(f, hdr, nil, nil)
	require.NoError(t, err)
	require.NoError(t, w.WriteSweep([][]float64{{1e9, -1e9, 0, 1}}))
	require.NoError(t, w.Close())

	rec := openRecording(t, f.Name())
	view, err := rec.Sweep(0, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{32767, -32768, 0, 1}, view.Measured)
}
