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
	"time"

	gerrors "github.com/tochemey/globalstate/errors"
)

// ScheduledMaintenanceMode is a maintenance window.
// Maintenance is active from StartAt until the window is cancelled;
// EstimatedDuration is informational and shown to players.
type ScheduledMaintenanceMode struct {
	StartAt            time.Time
	EstimatedDuration  time.Duration
	PlatformExclusions []string
}

// Clone returns a deep copy of the window
func (m *ScheduledMaintenanceMode) Clone() *ScheduledMaintenanceMode {
	if m == nil {
		return nil
	}
	clone := *m
	clone.PlatformExclusions = slices.Clone(m.PlatformExclusions)
	return &clone
}

// Validate checks the window is well formed
func (m *ScheduledMaintenanceMode) Validate() error {
	if m.StartAt.IsZero() {
		return gerrors.NewValidationError("StartAt", fmt.Errorf("%w: start time is required", gerrors.ErrInvalidMaintenanceMode))
	}
	if m.EstimatedDuration < 0 {
		return gerrors.NewValidationError("EstimatedDuration", fmt.Errorf("%w: negative duration", gerrors.ErrInvalidMaintenanceMode))
	}
	return nil
}

// IsActiveAt returns true when maintenance is in effect at now
func (m *ScheduledMaintenanceMode) IsActiveAt(now time.Time) bool {
	return m != nil && !now.Before(m.StartAt)
}

// IsPlatformExcluded returns true when players on platform are not affected
func (m *ScheduledMaintenanceMode) IsPlatformExcluded(platform string) bool {
	return m != nil && slices.Contains(m.PlatformExclusions, platform)
}

// MaintenanceStatus is the maintenance schedule evaluated at a point in time
type MaintenanceStatus struct {
	Scheduled       *ScheduledMaintenanceMode
	IsInMaintenance bool
}

// EvaluateMaintenance evaluates the schedule at now
func EvaluateMaintenance(scheduled *ScheduledMaintenanceMode, now time.Time) MaintenanceStatus {
	return MaintenanceStatus{
		Scheduled:       scheduled.Clone(),
		IsInMaintenance: scheduled.IsActiveAt(now),
	}
}
