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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// StimulusCache maps stimulus file paths to their decoded sample
// sequences. It is safe for concurrent use: each distinct path is loaded
// at most once, with concurrent lookups for a not-yet-cached path
// coalesced onto the first loader.
//
// A cache can be shared across Recordings via WithStimulusCache, or left
// per-Recording (the default).
type StimulusCache struct {
	group   singleflight.Group
	mu      sync.Mutex
	entries map[string][]float64
}

// NewStimulusCache returns an empty stimulus cache.
func NewStimulusCache() *StimulusCache {
	return &StimulusCache{entries: make(map[string][]float64)}
}

// Load returns the sample sequence of the stimulus file at path,
// searching the given folders on a miss. Results are cached by path;
// load failures are not cached, so a later call can succeed once the
// file appears.
func (c *StimulusCache) Load(path string, folders []string) ([]float64, error) {
	c.mu.Lock()
	samples, ok := c.entries[path]
	c.mu.Unlock()
	if ok {
		return samples, nil
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		// A previous flight may have completed between the lookup above
		// and joining this one.
		c.mu.Lock()
		samples, ok := c.entries[path]
		c.mu.Unlock()
		if ok {
			return samples, nil
		}

		samples, err := loadStimulusFile(path, folders)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[path] = samples
		c.mu.Unlock()
		return samples, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float64), nil
}

// loadStimulusFile reads a stimulus recording from path, falling back to
// the file's base name under each search folder in order. The stimulus
// waveform is channel 0 of the recording, sweeps concatenated.
func loadStimulusFile(path string, folders []string) ([]float64, error) {
	candidates := make([]string, 0, len(folders)+1)
	candidates = append(candidates, path)
	for _, dir := range folders {
		candidates = append(candidates, filepath.Join(dir, filepath.Base(path)))
	}

	for _, cand := range candidates {
		samples, err := readStimulusCandidate(cand)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stimulus file %s: %w", cand, err)
		}
		return samples, nil
	}
	return nil, fmt.Errorf("%w: %s (searched %d folders)", ErrStimulusNotFound, path, len(folders))
}

func readStimulusCandidate(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rec *Recording
	if strings.EqualFold(filepath.Ext(path), ".atx") {
		rec, err = OpenATX(f, WithoutStimulusCache())
	} else {
		rec, err = Open(f, WithoutStimulusCache())
	}
	if err != nil {
		return nil, err
	}
	return rec.base[0], nil
}
