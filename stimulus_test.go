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
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/clampio/abx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// writeStimulusFile writes a 1000-sample single-sweep recording used as
// an external stimulus and returns its decoded samples.
func writeStimulusFile(t *testing.T, path string) []float64 {
	t.Helper()

	hdr := abx.Header{
		SampleRate:   10000,
		SweepSamples: 1000,
		Channels:     []abx.Channel{{Label: "STIM", Units: "mV", Scale: 0.01}},
	}
	wave := make([]float64, 1000)
	for i := range wave {
		wave[i] = 20 * math.Sin(2*math.Pi*float64(i)/250)
	}
	writeRecording(t, path, hdr, nil, nil, [][][]float64{{wave}})

	rec := openRecording(t, path)
	view, err := rec.Sweep(0, 0)
	require.NoError(t, err)
	return view.Measured
}

// fileDrivenRecording has a file-driven epoch spanning [100, 2600) on
// both channels; channel 0 references stim0, channel 1 stim1.
func fileDrivenRecording(t *testing.T, path, stim0, stim1 string, opts ...abx.Option) *abx.Recording {
	t.Helper()

	hdr := testHeader()
	hdr.Channels[0].StimulusFile = stim0
	hdr.Channels[1].StimulusFile = stim1
	epochs := []abx.Epoch{{Type: abx.EpochFile, Duration: 2500}}
	writeRecording(t, path, hdr, epochs, nil, [][][]float64{
		{sawtooth(0, hdr.SweepSamples), sawtooth(1, hdr.SweepSamples)},
	})
	return openRecording(t, path, opts...)
}

func TestFileDrivenEpoch(t *testing.T) {
	dir := t.TempDir()
	stim := writeStimulusFile(t, filepath.Join(dir, "stim.abx"))

	rec := fileDrivenRecording(t, filepath.Join(dir, "test.abx"),
		"stim.abx", "stim.abx", abx.WithStimulusFolders(dir))

	view, err := rec.Sweep(0, 0)
	require.NoError(t, err)

	// The stimulus is tiled across the epoch span.
	for i := 0; i < 2500; i++ {
		require.InDelta(t, stim[i%1000], view.Command[100+i], 1e-9, "sample %d", 100+i)
	}
	assert.InDelta(t, -70, view.Command[0], 1e-9)
	assert.InDelta(t, -70, view.Command[2600], 1e-9)
}

func TestStimulusFileMissing(t *testing.T) {
	dir := t.TempDir()
	writeStimulusFile(t, filepath.Join(dir, "stim.abx"))

	rec := fileDrivenRecording(t, filepath.Join(dir, "test.abx"),
		"missing.abx", "stim.abx", abx.WithStimulusFolders(dir))

	_, err := rec.Sweep(0, 0)
	require.ErrorIs(t, err, abx.ErrStimulusNotFound)

	// The recording stays usable where the stimulus resolves.
	view, err := rec.Sweep(0, 1)
	require.NoError(t, err)
	require.Len(t, view.Command, rec.SweepSamples())
}

func TestStimulusCacheAtMostOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stim.abx")
	want := writeStimulusFile(t, path)

	cache := abx.NewStimulusCache()
	got, err := cache.Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Once cached, the file is never re-read.
	require.NoError(t, os.Remove(path))
	got, err = cache.Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// A cold cache has to hit the filesystem.
	_, err = abx.NewStimulusCache().Load(path, nil)
	require.ErrorIs(t, err, abx.ErrStimulusNotFound)
}

func TestStimulusCacheConcurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stim.abx")
	want := writeStimulusFile(t, path)

	cache := abx.NewStimulusCache()
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			got, err := cache.Load(path, nil)
			if err != nil {
				return err
			}
			require.Equal(t, want, got)
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestStimulusCacheShared(t *testing.T) {
	dir := t.TempDir()
	writeStimulusFile(t, filepath.Join(dir, "stim.abx"))

	cache := abx.NewStimulusCache()
	rec := fileDrivenRecording(t, filepath.Join(dir, "test.abx"),
		"stim.abx", "stim.abx", abx.WithStimulusCache(cache), abx.WithStimulusFolders(dir))

	_, err := rec.Sweep(0, 0)
	require.NoError(t, err)

	// A second recording sharing the cache survives stimulus deletion.
	require.NoError(t, os.Remove(filepath.Join(dir, "stim.abx")))
	rec2 := openRecording(t, filepath.Join(dir, "test.abx"),
		abx.WithStimulusCache(cache), abx.WithStimulusFolders(dir))
	_, err = rec2.Sweep(0, 0)
	require.NoError(t, err)
}

func TestWithoutStimulusCache(t *testing.T) {
	dir := t.TempDir()
	writeStimulusFile(t, filepath.Join(dir, "stim.abx"))

	rec := fileDrivenRecording(t, filepath.Join(dir, "test.abx"),
		"stim.abx", "stim.abx", abx.WithoutStimulusCache(), abx.WithStimulusFolders(dir))

	_, err := rec.Sweep(0, 0)
	require.NoError(t, err)

	// With caching opted out, every synthesis re-reads the file.
	require.NoError(t, os.Remove(filepath.Join(dir, "stim.abx")))
	_, err = rec.Sweep(0, 0)
	require.ErrorIs(t, err, abx.ErrStimulusNotFound)
}
