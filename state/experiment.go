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
	"maps"
	"slices"
	"time"
)

// ExperimentPhase is the lifecycle phase of an experiment
type ExperimentPhase string

const (
	// PhaseTesting exposes the experiment to testers only
	PhaseTesting ExperimentPhase = "testing"
	// PhaseOngoing enrolls players
	PhaseOngoing ExperimentPhase = "ongoing"
	// PhasePaused keeps enrolled players in their variants without enrolling new ones
	PhasePaused ExperimentPhase = "paused"
	// PhaseConcluded retires the experiment
	PhaseConcluded ExperimentPhase = "concluded"
)

// IsValid returns true for known phases
func (p ExperimentPhase) IsValid() bool {
	switch p {
	case PhaseTesting, PhaseOngoing, PhasePaused, PhaseConcluded:
		return true
	default:
		return false
	}
}

// EnrollTrigger decides when players are enrolled
type EnrollTrigger string

const (
	// EnrollOnLogin enrolls any eligible player at login
	EnrollOnLogin EnrollTrigger = "login"
	// EnrollNewPlayers enrolls only players created after the experiment started
	EnrollNewPlayers EnrollTrigger = "new_players"
)

// ControlVariantID identifies the implicit control group
const ControlVariantID = ""

// VariantState is the rollout state of one variant
type VariantState struct {
	Weight     int
	IsDisabled bool
}

// PlayerFilter restricts the players eligible for an experiment.
// Empty criteria match everybody.
type PlayerFilter struct {
	Platforms []string
	Countries []string
	PlayerIDs []PlayerID
}

// IsEmpty returns true when the filter has no criteria
func (f PlayerFilter) IsEmpty() bool {
	return len(f.Platforms) == 0 && len(f.Countries) == 0 && len(f.PlayerIDs) == 0
}

// Clone returns a deep copy of the filter
func (f PlayerFilter) Clone() PlayerFilter {
	return PlayerFilter{
		Platforms: slices.Clone(f.Platforms),
		Countries: slices.Clone(f.Countries),
		PlayerIDs: slices.Clone(f.PlayerIDs),
	}
}

// Experiment is the mutable rollout state of an experiment
type Experiment struct {
	ID                     string
	Phase                  ExperimentPhase
	ControlWeight          int
	Variants               map[string]*VariantState
	IsRolloutDisabled      bool
	RolloutRatioPermille   int
	HasCapacityLimit       bool
	MaxCapacity            int
	NumPlayersInPopulation int
	TesterPlayerIDs        map[PlayerID]bool
	TesterEpoch            uint32
	Filter                 PlayerFilter
	EnrollTrigger          EnrollTrigger
	Nonce                  uint64

	// LegacyRolloutRatioPercent is read from schema 2 payloads only
	LegacyRolloutRatioPercent int `cbor:"RolloutRatioPercent,omitempty"`
}

// NewExperiment creates the initial state of an experiment declared by a game config
func NewExperiment(id string, variantIDs []string, nonce uint64) *Experiment {
	variants := make(map[string]*VariantState, len(variantIDs))
	for _, variantID := range variantIDs {
		variants[variantID] = &VariantState{Weight: 1}
	}

	return &Experiment{
		ID:                   id,
		Phase:                PhaseTesting,
		ControlWeight:        1,
		Variants:             variants,
		RolloutRatioPermille: 1000,
		TesterPlayerIDs:      make(map[PlayerID]bool),
		EnrollTrigger:        EnrollOnLogin,
		Nonce:                nonce,
	}
}

// IsRolloutEnabled returns true when new players may be enrolled
func (e *Experiment) IsRolloutEnabled() bool {
	return e.Phase == PhaseOngoing && !e.IsRolloutDisabled
}

// IsCapacityReached returns true when the population has hit its limit
func (e *Experiment) IsCapacityReached() bool {
	return e.HasCapacityLimit && e.NumPlayersInPopulation >= e.MaxCapacity
}

// Clone returns a deep copy of the experiment
func (e *Experiment) Clone() *Experiment {
	if e == nil {
		return nil
	}

	clone := *e
	clone.Variants = make(map[string]*VariantState, len(e.Variants))
	for id, variant := range e.Variants {
		copied := *variant
		clone.Variants[id] = &copied
	}
	clone.TesterPlayerIDs = maps.Clone(e.TesterPlayerIDs)
	if clone.TesterPlayerIDs == nil {
		clone.TesterPlayerIDs = make(map[PlayerID]bool)
	}
	clone.Filter = e.Filter.Clone()
	return &clone
}

// ExperimentStats are the aggregate statistics of an experiment
type ExperimentStats struct {
	CreatedAt          time.Time
	UpdatedAt          time.Time
	VariantPopulations map[string]int64
}

// Clone returns a deep copy of the statistics
func (s *ExperimentStats) Clone() *ExperimentStats {
	if s == nil {
		return nil
	}
	clone := *s
	clone.VariantPopulations = maps.Clone(s.VariantPopulations)
	return &clone
}
