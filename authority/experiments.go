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
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"time"

	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/gameconfig"
	"github.com/tochemey/globalstate/internal/validation"
	"github.com/tochemey/globalstate/protocol"
	"github.com/tochemey/globalstate/state"
)

// maxRolloutRatioPermille samples the whole population
const maxRolloutRatioPermille = 1000

// phaseTransitions lists the phases each phase may move to
var phaseTransitions = map[state.ExperimentPhase][]state.ExperimentPhase{
	state.PhaseTesting: {state.PhaseOngoing, state.PhaseConcluded},
	state.PhaseOngoing: {state.PhasePaused, state.PhaseConcluded},
	state.PhasePaused:  {state.PhaseOngoing, state.PhaseConcluded},
}

func (a *Authority) handleGameConfigActivated(ctx context.Context, activation *Activation) error {
	if err := validation.NewEmptyStringValidator("StaticGameConfigID", activation.StaticGameConfigID).Validate(); err != nil {
		return gerrors.NewValidationError("StaticGameConfigID", err)
	}

	now := a.now()
	experiments := a.syncExperiments(activation.Experiments, now)

	forceUpdate := a.aggregate.ClientForceUpdateGameConfigTimestamp
	if activation.ForceClientUpdate {
		forceUpdate = now
	}

	update := &state.UpdateGameConfig{
		StaticGameConfigID:   activation.StaticGameConfigID,
		DynamicGameConfigID:  activation.DynamicGameConfigID,
		Deliverables:         activation.Deliverables,
		Experiments:          experiments,
		PatchHashes:          activation.PatchHashes,
		Timestamp:            now,
		ForceUpdateTimestamp: forceUpdate,
	}

	// the initial activation is written by the first snapshot tick
	a.commit(ctx, update, !activation.IsInitial)
	a.logger.Infof("game config activated (static=%s, dynamic=%s, experiments=%d)",
		activation.StaticGameConfigID, activation.DynamicGameConfigID, len(activation.Experiments))
	return nil
}

// syncExperiments returns the experiments of the aggregate aligned with the declared specs.
// Declared experiments are created or get their variants aligned. Experiments no
// longer declared are kept so that their rollout state survives a config rollback.
func (a *Authority) syncExperiments(specs []gameconfig.ExperimentSpec, now time.Time) map[string]*state.Experiment {
	experiments := make(map[string]*state.Experiment, len(a.aggregate.PlayerExperiments)+len(specs))
	for id, experiment := range a.aggregate.PlayerExperiments {
		experiments[id] = experiment.Clone()
	}

	for _, spec := range specs {
		experiment, ok := experiments[spec.ID]
		if !ok {
			experiments[spec.ID] = state.NewExperiment(spec.ID, spec.VariantIDs, rand.Uint64())
			a.aggregate.PlayerExperimentsStats[spec.ID] = &state.ExperimentStats{
				CreatedAt:          now,
				UpdatedAt:          now,
				VariantPopulations: make(map[string]int64),
			}
			a.logger.Infof("experiment %s created with %d variants", spec.ID, len(spec.VariantIDs))
			continue
		}

		declared := make(map[string]struct{}, len(spec.VariantIDs))
		for _, variantID := range spec.VariantIDs {
			declared[variantID] = struct{}{}
			if _, ok := experiment.Variants[variantID]; !ok {
				experiment.Variants[variantID] = &state.VariantState{Weight: 1}
			}
		}
		maps.DeleteFunc(experiment.Variants, func(variantID string, _ *state.VariantState) bool {
			_, ok := declared[variantID]
			return !ok
		})
	}
	return experiments
}

func (a *Authority) handleUpdateExperiment(ctx context.Context, change *ExperimentChange) error {
	current, ok := a.aggregate.PlayerExperiments[change.ExperimentID]
	if !ok {
		return gerrors.NewErrExperimentNotFound(change.ExperimentID)
	}

	experiment, err := applyExperimentChange(current.Clone(), change)
	if err != nil {
		return err
	}

	if stats, ok := a.aggregate.PlayerExperimentsStats[experiment.ID]; ok {
		stats.UpdatedAt = a.now()
	}

	a.commit(ctx, &state.UpdateExperiment{Experiment: experiment}, true)
	return nil
}

// applyExperimentChange validates the change and applies it to experiment
func applyExperimentChange(experiment *state.Experiment, change *ExperimentChange) (*state.Experiment, error) {
	if change.Phase != nil && *change.Phase != experiment.Phase {
		next := *change.Phase
		if !next.IsValid() {
			return nil, gerrors.NewErrInvalidExperimentChange("Phase", fmt.Sprintf("unknown phase %q", next))
		}
		if !slices.Contains(phaseTransitions[experiment.Phase], next) {
			return nil, gerrors.NewErrInvalidExperimentChange("Phase",
				fmt.Sprintf("cannot move from %s to %s", experiment.Phase, next))
		}
		experiment.Phase = next
	}

	if change.RolloutRatioPermille != nil {
		ratio := *change.RolloutRatioPermille
		if err := validation.NewRangeValidator("RolloutRatioPermille", ratio, 0, maxRolloutRatioPermille).Validate(); err != nil {
			return nil, gerrors.NewErrInvalidExperimentChange("RolloutRatioPermille", err.Error())
		}
		experiment.RolloutRatioPermille = ratio
	}

	if change.IsRolloutDisabled != nil {
		experiment.IsRolloutDisabled = *change.IsRolloutDisabled
	}

	if change.ControlWeight != nil {
		if *change.ControlWeight < 0 {
			return nil, gerrors.NewErrInvalidExperimentChange("ControlWeight", "must not be negative")
		}
		experiment.ControlWeight = *change.ControlWeight
	}

	for variantID, weight := range change.VariantWeights {
		variant, ok := experiment.Variants[variantID]
		if !ok {
			return nil, gerrors.NewErrInvalidExperimentChange("VariantWeights", fmt.Sprintf("unknown variant %q", variantID))
		}
		if weight < 0 {
			return nil, gerrors.NewErrInvalidExperimentChange("VariantWeights", fmt.Sprintf("negative weight for variant %q", variantID))
		}
		variant.Weight = weight
	}

	for variantID, disabled := range change.VariantDisabled {
		variant, ok := experiment.Variants[variantID]
		if !ok {
			return nil, gerrors.NewErrInvalidExperimentChange("VariantDisabled", fmt.Sprintf("unknown variant %q", variantID))
		}
		variant.IsDisabled = disabled
	}

	if change.HasCapacityLimit != nil {
		experiment.HasCapacityLimit = *change.HasCapacityLimit
	}

	if change.MaxCapacity != nil {
		if *change.MaxCapacity < 0 {
			return nil, gerrors.NewErrInvalidExperimentChange("MaxCapacity", "must not be negative")
		}
		experiment.MaxCapacity = *change.MaxCapacity
	}

	testersChanged := false
	for _, playerID := range change.AddTesters {
		if !experiment.TesterPlayerIDs[playerID] {
			experiment.TesterPlayerIDs[playerID] = true
			testersChanged = true
		}
	}
	for _, playerID := range change.RemoveTesters {
		if experiment.TesterPlayerIDs[playerID] {
			delete(experiment.TesterPlayerIDs, playerID)
			testersChanged = true
		}
	}
	if testersChanged {
		experiment.TesterEpoch++
	}

	if change.Filter != nil {
		experiment.Filter = change.Filter.Clone()
	}

	if change.EnrollTrigger != nil {
		trigger := *change.EnrollTrigger
		if trigger != state.EnrollOnLogin && trigger != state.EnrollNewPlayers {
			return nil, gerrors.NewErrInvalidExperimentChange("EnrollTrigger", fmt.Sprintf("unknown trigger %q", trigger))
		}
		experiment.EnrollTrigger = trigger
	}

	return experiment, nil
}

func (a *Authority) handleGetExperiment(experimentID string) (*experimentReport, error) {
	experiment, ok := a.aggregate.PlayerExperiments[experimentID]
	if !ok {
		return nil, gerrors.NewErrExperimentNotFound(experimentID)
	}
	return &experimentReport{
		experiment: experiment.Clone(),
		stats:      a.aggregate.PlayerExperimentsStats[experimentID].Clone(),
	}, nil
}

// handleAssignmentDeltas merges population deltas. An experiment crossing its capacity
// limit in either direction is published so that replicas stop or resume enrolling.
func (a *Authority) handleAssignmentDeltas(ctx context.Context, deltas []protocol.AssignmentDelta) {
	now := a.now()
	crossed := make(map[string]struct{})
	for _, delta := range deltas {
		experiment, ok := a.aggregate.PlayerExperiments[delta.ExperimentID]
		if !ok {
			a.logger.Debugf("ignoring assignment delta of unknown experiment %s", delta.ExperimentID)
			continue
		}

		stats, ok := a.aggregate.PlayerExperimentsStats[delta.ExperimentID]
		if !ok {
			stats = &state.ExperimentStats{CreatedAt: now, VariantPopulations: make(map[string]int64)}
			a.aggregate.PlayerExperimentsStats[delta.ExperimentID] = stats
		}
		stats.VariantPopulations[delta.VariantID] += delta.Delta
		stats.UpdatedAt = now

		wasReached := experiment.IsCapacityReached()
		experiment.NumPlayersInPopulation = max(experiment.NumPlayersInPopulation+int(delta.Delta), 0)
		if experiment.IsCapacityReached() != wasReached {
			crossed[delta.ExperimentID] = struct{}{}
		}
	}

	for experimentID := range crossed {
		experiment := a.aggregate.PlayerExperiments[experimentID]
		a.logger.Infof("experiment %s capacity reached=%t (population=%d)",
			experimentID, experiment.IsCapacityReached(), experiment.NumPlayersInPopulation)
		a.commit(ctx, &state.UpdateExperiment{Experiment: experiment.Clone()}, false)
	}
}
