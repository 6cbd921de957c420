/*
 * MIT License
 *
 * Copyright (c) 2022-2025  Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package state

import (
	"fmt"
	"slices"

	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/internal/validation"
)

// LogicVersionRange is an inclusive range of client logic versions
type LogicVersionRange struct {
	Min int
	Max int
}

// Contains returns true when version lies within the range
func (r LogicVersionRange) Contains(version int) bool {
	return version >= r.Min && version <= r.Max
}

// String implements fmt.Stringer
func (r LogicVersionRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}

// PatchRequirement is the minimum patch version a client of the given logic
// version and platform must run.
type PatchRequirement struct {
	LogicVersion    int
	Platform        string
	MinPatchVersion int
}

// ClientCompatibilitySettings defines which clients are allowed to connect
type ClientCompatibilitySettings struct {
	ActiveLogicVersionRange LogicVersionRange
	RedirectEnabled         bool
	RedirectServer          string
	PatchRequirements       []PatchRequirement
}

// Clone returns a deep copy of the settings
func (s ClientCompatibilitySettings) Clone() ClientCompatibilitySettings {
	s.PatchRequirements = slices.Clone(s.PatchRequirements)
	return s
}

// Validate checks the settings against the logic versions supported by the build.
// The returned error names the offending bound.
func (s ClientCompatibilitySettings) Validate(supported LogicVersionRange) error {
	active := s.ActiveLogicVersionRange
	chain := validation.New(validation.FailFast()).
		AddCheck(active.Min <= active.Max, gerrors.NewErrInvalidLogicVersionRange(active.Min, active.Max)).
		AddCheck(active.Min >= supported.Min, gerrors.NewErrLogicVersionOutOfBounds("ActiveLogicVersionRange.Min", active.Min, supported.Min)).
		AddCheck(active.Max <= supported.Max, gerrors.NewErrLogicVersionOutOfBounds("ActiveLogicVersionRange.Max", active.Max, supported.Max))

	for _, requirement := range s.PatchRequirements {
		chain.AddCheck(active.Contains(requirement.LogicVersion), gerrors.NewValidationError("PatchRequirements",
			fmt.Errorf("%w: logic version %d of platform %q is outside %s",
				gerrors.ErrLogicVersionOutOfBounds, requirement.LogicVersion, requirement.Platform, active)))
	}
	return chain.Validate()
}

// RequiredPatch returns the minimum patch version for the logic version and platform.
// ok is false when no requirement exists.
func (s ClientCompatibilitySettings) RequiredPatch(logicVersion int, platform string) (minPatch int, ok bool) {
	for _, requirement := range s.PatchRequirements {
		if requirement.LogicVersion == logicVersion && requirement.Platform == platform {
			return requirement.MinPatchVersion, true
		}
	}
	return 0, false
}
