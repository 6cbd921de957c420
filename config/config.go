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

// Package config holds the build and runtime configuration of the global state services.
package config

import (
	"fmt"
	"time"

	"github.com/tochemey/globalstate/internal/validation"
	"github.com/tochemey/globalstate/state"
)

// Build describes the client logic versions the running build can serve
type Build struct {
	MinSupportedLogicVersion int
	MaxSupportedLogicVersion int
}

// SupportedRange returns the logic version range of the build
func (b Build) SupportedRange() state.LogicVersionRange {
	return state.LogicVersionRange{Min: b.MinSupportedLogicVersion, Max: b.MaxSupportedLogicVersion}
}

// Validate checks the build configuration
func (b Build) Validate() error {
	return validation.New(validation.FailFast()).
		AddAssertion("MinSupportedLogicVersion", b.MinSupportedLogicVersion >= 0, "must not be negative").
		AddAssertion("MinSupportedLogicVersion", b.MinSupportedLogicVersion <= b.MaxSupportedLogicVersion,
			fmt.Sprintf("%d must not exceed the [MaxSupportedLogicVersion] %d",
				b.MinSupportedLogicVersion, b.MaxSupportedLogicVersion)).
		Validate()
}

// Runtime holds the settings that may change while the services run
type Runtime struct {
	// EnableTimeSkip allows the game time offset to be changed
	EnableTimeSkip bool `yaml:"enableTimeSkip"`
	// AutoUpgradeLogicVersion raises the accepted maximum logic version to the
	// build maximum when the Authority starts
	AutoUpgradeLogicVersion bool `yaml:"autoUpgradeLogicVersion"`
	// SnapshotInterval is the period of the Authority state persistence
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	// TickInterval is the period of the replica subscription and maintenance checks
	TickInterval time.Duration `yaml:"tickInterval"`
	// ReportInterval is the period of the replica statistics reports
	ReportInterval time.Duration `yaml:"reportInterval"`
	// CDNBaseURL prefixes the content hashes of the delivery sources
	CDNBaseURL string `yaml:"cdnBaseUrl"`
}

// DefaultRuntime returns the default runtime settings
func DefaultRuntime() Runtime {
	return Runtime{
		SnapshotInterval: time.Minute,
		TickInterval:     time.Second,
		ReportInterval:   5 * time.Second,
	}
}

// Validate checks the runtime settings
func (r Runtime) Validate() error {
	return validation.New(validation.AllErrors()).
		AddValidator(validation.NewPositiveDurationValidator("SnapshotInterval", r.SnapshotInterval)).
		AddValidator(validation.NewPositiveDurationValidator("TickInterval", r.TickInterval)).
		AddValidator(validation.NewPositiveDurationValidator("ReportInterval", r.ReportInterval)).
		Validate()
}

// Source provides the current runtime settings
type Source interface {
	Runtime() Runtime
}

// StaticSource is a Source that never changes
type StaticSource struct {
	runtime Runtime
}

var _ Source = (*StaticSource)(nil)

// NewStaticSource creates a StaticSource
func NewStaticSource(runtime Runtime) *StaticSource {
	return &StaticSource{runtime: runtime}
}

// Runtime implements Source
func (s *StaticSource) Runtime() Runtime {
	return s.runtime
}
