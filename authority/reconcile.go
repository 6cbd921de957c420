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
	"slices"

	"github.com/tochemey/globalstate/config"
	"github.com/tochemey/globalstate/log"
	"github.com/tochemey/globalstate/state"
)

// reconcile fixes up a freshly loaded Aggregate for the running build
func reconcile(agg *state.Aggregate, build config.Build, runtime config.Runtime, isFresh bool, logger log.Logger) error {
	agg.EnsureInitialized()
	agg.SchemaVersion = state.CurrentSchemaVersion

	reconcileLogicVersions(agg, build, runtime, isFresh, logger)
	reconcileBroadcasts(agg, logger)

	for id := range agg.PlayerExperiments {
		if _, ok := agg.PlayerExperimentsStats[id]; !ok {
			agg.PlayerExperimentsStats[id] = &state.ExperimentStats{VariantPopulations: make(map[string]int64)}
		}
	}
	for _, stats := range agg.PlayerExperimentsStats {
		if stats.VariantPopulations == nil {
			stats.VariantPopulations = make(map[string]int64)
		}
	}

	nonce, err := state.NewSharedNonce()
	if err != nil {
		return err
	}
	agg.SharedClusterNonce = nonce

	agg.LastSupportedMaxLogicVersion = max(agg.LastSupportedMaxLogicVersion, build.MaxSupportedLogicVersion)
	return nil
}

func reconcileLogicVersions(agg *state.Aggregate, build config.Build, runtime config.Runtime, isFresh bool, logger log.Logger) {
	settings := &agg.ClientCompatibilitySettings
	supported := build.SupportedRange()
	active := settings.ActiveLogicVersionRange

	switch {
	case isFresh:
		active = supported
	default:
		active.Min = min(max(active.Min, supported.Min), supported.Max)
		active.Max = min(max(active.Max, active.Min), supported.Max)
		if runtime.AutoUpgradeLogicVersion {
			active.Max = supported.Max
		}
	}

	if active != settings.ActiveLogicVersionRange {
		logger.Infof("active logic version range changed from %s to %s", settings.ActiveLogicVersionRange, active)
		settings.ActiveLogicVersionRange = active
	}

	settings.PatchRequirements = slices.DeleteFunc(settings.PatchRequirements, func(requirement state.PatchRequirement) bool {
		if active.Contains(requirement.LogicVersion) {
			return false
		}
		logger.Infof("removing patch requirement of logic version %d on %q", requirement.LogicVersion, requirement.Platform)
		return true
	})
}

func reconcileBroadcasts(agg *state.Aggregate, logger log.Logger) {
	for id, message := range agg.BroadcastMessages {
		switch {
		case message == nil:
			logger.Warnf("dropping empty broadcast %d", id)
		case id <= 0 || id > agg.RunningBroadcastMessageID || message.ID != id:
			logger.Warnf("dropping broadcast %d with an invalid id", id)
		default:
			if err := message.Params.Validate(); err != nil {
				logger.Warnf("dropping invalid broadcast %d: %v", id, err)
				break
			}
			continue
		}
		delete(agg.BroadcastMessages, id)
	}

	for id := range agg.BroadcastMessages {
		agg.RunningBroadcastMessageID = max(agg.RunningBroadcastMessageID, id)
	}
}
