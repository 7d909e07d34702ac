// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The clampio authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package abx

import "errors"

var (
	// ErrFormat is returned when a file's signature or structure is
	// unrecognized or internally inconsistent. Fatal: no Recording is
	// returned.
	ErrFormat = errors.New("abx: unrecognized file format")

	// ErrTruncated is returned when declared block sizes exceed the
	// available bytes. Fatal: no Recording is returned.
	ErrTruncated = errors.New("abx: truncated file")

	// ErrSweepIndex is returned for an out-of-range sweep selection.
	ErrSweepIndex = errors.New("abx: sweep index out of range")

	// ErrChannelIndex is returned for an out-of-range channel selection.
	ErrChannelIndex = errors.New("abx: channel index out of range")

	// ErrStimulusNotFound is returned when a file-driven epoch references
	// a stimulus file that cannot be located in any search folder. Only
	// synthesis for the affected sweep fails; the Recording stays usable.
	ErrStimulusNotFound = errors.New("abx: stimulus file not found")

	// ErrNoStep is reported per sweep by the membrane test when no
	// qualifying hyperpolarizing step epoch exists in that sweep.
	ErrNoStep = errors.New("abx: no qualifying step epoch")
)
