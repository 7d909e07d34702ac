// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The clampio authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package abx

import "math"

// gaussianSmooth convolves data in place with a Gaussian kernel of the
// given width in samples. Near the edges the kernel is truncated to the
// in-range taps and renormalized, so no padding values leak in.
func gaussianSmooth(data []float64, width int) {
	if width < 2 || len(data) == 0 {
		return
	}
	kernel := gaussianKernel(width)
	src := make([]float64, len(data))
	copy(src, data)

	half := len(kernel) / 2
	for i := range data {
		var sum, weight float64
		for k, w := range kernel {
			j := i + k - half
			if j < 0 || j >= len(src) {
				continue
			}
			sum += src[j] * w
			weight += w
		}
		data[i] = sum / weight
	}
}

// gaussianKernel builds an unnormalized odd-length Gaussian kernel with
// sigma = width/4; callers normalize over the taps actually used.
func gaussianKernel(width int) []float64 {
	if width%2 == 0 {
		width++
	}
	sigma := float64(width) / 4
	kernel := make([]float64, width)
	half := width / 2
	for i := range kernel {
		x := float64(i - half)
		kernel[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	return kernel
}
