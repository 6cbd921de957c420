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

// Package experiment turns the rollout state of experiments into assignment
// policies and decides which players take part in them.
package experiment

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tochemey/globalstate/state"
)

// Audience is a class of players experiments are exposed to
type Audience int

const (
	// AudiencePlayer is the regular player population
	AudiencePlayer Audience = iota
	// AudienceTester is the population of experiment testers
	AudienceTester
)

// String implements fmt.Stringer
func (a Audience) String() string {
	if a == AudienceTester {
		return "tester"
	}
	return "player"
}

// IsVisible returns true when an experiment in phase is visible to the audience
func (a Audience) IsVisible(phase state.ExperimentPhase) bool {
	switch phase {
	case state.PhaseOngoing, state.PhasePaused:
		return true
	case state.PhaseTesting:
		return a == AudienceTester
	default:
		return false
	}
}

// VariantPolicy is the assignment weight of a variant
type VariantPolicy struct {
	ID       string
	Weight   int
	IsActive bool
}

// Policy decides how players get assigned to an experiment.
// A Policy is immutable once resolved.
type Policy struct {
	ExperimentID         string
	ControlWeight        int
	Variants             []VariantPolicy
	RolloutEnabled       bool
	CapacityReached      bool
	RolloutRatioPermille int
	Nonce                uint64
	Filter               state.PlayerFilter
	NewPlayersOnly       bool
	Testers              mapset.Set[state.PlayerID]
	TesterEpoch          uint32
}

// NewPolicy resolves the assignment policy of an experiment
func NewPolicy(experiment *state.Experiment) *Policy {
	variantIDs := make([]string, 0, len(experiment.Variants))
	for id := range experiment.Variants {
		variantIDs = append(variantIDs, id)
	}
	sort.Strings(variantIDs)

	variants := make([]VariantPolicy, 0, len(variantIDs))
	for _, id := range variantIDs {
		variant := experiment.Variants[id]
		variants = append(variants, VariantPolicy{
			ID:       id,
			Weight:   variant.Weight,
			IsActive: !variant.IsDisabled,
		})
	}

	testers := mapset.NewSetWithSize[state.PlayerID](len(experiment.TesterPlayerIDs))
	for playerID, isTester := range experiment.TesterPlayerIDs {
		if isTester {
			testers.Add(playerID)
		}
	}

	return &Policy{
		ExperimentID:         experiment.ID,
		ControlWeight:        experiment.ControlWeight,
		Variants:             variants,
		RolloutEnabled:       experiment.IsRolloutEnabled(),
		CapacityReached:      experiment.IsCapacityReached(),
		RolloutRatioPermille: experiment.RolloutRatioPermille,
		Nonce:                experiment.Nonce,
		Filter:               experiment.Filter.Clone(),
		NewPlayersOnly:       experiment.EnrollTrigger == state.EnrollNewPlayers,
		Testers:              testers,
		TesterEpoch:          experiment.TesterEpoch,
	}
}

// ResolvePolicies returns, in the order declared by the game config, the policies of
// the experiments visible to the audience. Experiments without rollout state are skipped.
func ResolvePolicies(order []string, experiments map[string]*state.Experiment, audience Audience) []*Policy {
	policies := make([]*Policy, 0, len(order))
	for _, id := range order {
		experiment, ok := experiments[id]
		if !ok || !audience.IsVisible(experiment.Phase) {
			continue
		}
		policies = append(policies, NewPolicy(experiment))
	}
	return policies
}

// UnionTesters returns the set of testers of all the given policies
func UnionTesters(policies ...[]*Policy) mapset.Set[state.PlayerID] {
	testers := mapset.NewSet[state.PlayerID]()
	for _, group := range policies {
		for _, policy := range group {
			testers = testers.Union(policy.Testers)
		}
	}
	return testers
}
