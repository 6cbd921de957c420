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

package authority

import (
	"time"

	"github.com/tochemey/globalstate/gameconfig"
	"github.com/tochemey/globalstate/protocol"
	"github.com/tochemey/globalstate/state"
)

// Status is the read-only summary of the global state
type Status struct {
	Maintenance                 state.MaintenanceStatus
	ClientCompatibilitySettings state.ClientCompatibilitySettings
	StaticGameConfigID          string
	DynamicGameConfigID         string
	ActiveLocalizationsID       string
	LatestGameConfigUpdate      time.Time
	LatestLocalizationsUpdate   time.Time
	GameTimeOffset              time.Duration
	// BroadcastMessages are sorted by id
	BroadcastMessages []*state.BroadcastMessage
	NumSubscribers    int
}

// DeveloperFlagRequest flags or unflags a player as developer
type DeveloperFlagRequest struct {
	PlayerID    state.PlayerID
	IsDeveloper bool
	// RequestedBy is the player asking for the change, zero when the request
	// does not come from a player
	RequestedBy state.PlayerID
}

// DeveloperFlagResult is the outcome of a developer flag change
type DeveloperFlagResult int

const (
	// Changed means the flag was changed
	Changed DeveloperFlagResult = iota
	// AlreadySatisfied means the player already had the requested status
	AlreadySatisfied
)

// String returns the string representation of the result
func (r DeveloperFlagResult) String() string {
	if r == AlreadySatisfied {
		return "AlreadySatisfied"
	}
	return "Changed"
}

// Activation describes a game config that has just been built and activated
type Activation struct {
	StaticGameConfigID  string
	DynamicGameConfigID string
	// Deliverables is the content hash of the shared config archive
	Deliverables string
	// Experiments are the experiments the config declares, in config order
	Experiments []gameconfig.ExperimentSpec
	PatchHashes map[string]string
	// ForceClientUpdate asks connected clients to reload the config
	ForceClientUpdate bool
	// IsInitial marks the activation done while the cluster starts
	IsInitial bool
}

// ExperimentChange edits the rollout state of an experiment.
// Nil fields are left untouched.
type ExperimentChange struct {
	ExperimentID         string
	Phase                *state.ExperimentPhase
	RolloutRatioPermille *int
	IsRolloutDisabled    *bool
	ControlWeight        *int
	VariantWeights       map[string]int
	VariantDisabled      map[string]bool
	HasCapacityLimit     *bool
	MaxCapacity          *int
	AddTesters           []state.PlayerID
	RemoveTesters        []state.PlayerID
	Filter               *state.PlayerFilter
	EnrollTrigger        *state.EnrollTrigger
}

type getStatus struct{}

type updateCompatibilitySettings struct {
	settings state.ClientCompatibilitySettings
}

type addBroadcast struct {
	params state.BroadcastParams
}

type updateBroadcast struct {
	id     int32
	params state.BroadcastParams
}

type deleteBroadcast struct {
	id int32
}

type setDeveloperFlag struct {
	request DeveloperFlagRequest
}

type setGameTimeOffset struct {
	offset time.Duration
}

type gameConfigActivated struct {
	activation *Activation
}

type localizationActivated struct {
	localizationsID   string
	perLanguageHashes map[string]string
}

type setMaintenance struct {
	mode *state.ScheduledMaintenanceMode
}

type updateExperiment struct {
	change *ExperimentChange
}

type getExperiment struct {
	experimentID string
}

type experimentReport struct {
	experiment *state.Experiment
	stats      *state.ExperimentStats
}

type subscribe struct {
	subscriber protocol.Subscriber
}

type unsubscribe struct {
	subscriberID string
}

type reportBroadcastConsumption struct {
	batch  protocol.Batch
	counts map[int32]int64
}

type reportAssignmentDeltas struct {
	batch  protocol.Batch
	deltas []protocol.AssignmentDelta
}

type snapshotTick struct{}

type shutdown struct{}
