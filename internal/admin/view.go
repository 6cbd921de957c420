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

package admin

import (
	"time"

	"github.com/tochemey/globalstate/authority"
	"github.com/tochemey/globalstate/state"
)

type logicVersionRangeView struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type compatibilityView struct {
	ActiveLogicVersionRange logicVersionRangeView `json:"active_logic_version_range"`
	RedirectEnabled         bool                  `json:"redirect_enabled"`
	RedirectServer          string                `json:"redirect_server,omitempty"`
	NumPatchRequirements    int                   `json:"num_patch_requirements"`
}

type maintenanceView struct {
	IsInMaintenance    bool       `json:"is_in_maintenance"`
	StartAt            *time.Time `json:"start_at,omitempty"`
	EstimatedDuration  string     `json:"estimated_duration,omitempty"`
	PlatformExclusions []string   `json:"platform_exclusions,omitempty"`
}

type broadcastView struct {
	ID            int32     `json:"id"`
	Name          string    `json:"name"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	ReceivedCount int64     `json:"received_count"`
}

type statusView struct {
	Maintenance               maintenanceView   `json:"maintenance"`
	ClientCompatibility       compatibilityView `json:"client_compatibility"`
	StaticGameConfigID        string            `json:"static_game_config_id"`
	DynamicGameConfigID       string            `json:"dynamic_game_config_id"`
	ActiveLocalizationsID     string            `json:"active_localizations_id"`
	LatestGameConfigUpdate    time.Time         `json:"latest_game_config_update"`
	LatestLocalizationsUpdate time.Time         `json:"latest_localizations_update"`
	GameTimeOffset            string            `json:"game_time_offset"`
	BroadcastMessages         []broadcastView   `json:"broadcast_messages"`
	NumSubscribers            int               `json:"num_subscribers"`
}

func newStatusView(status *authority.Status) statusView {
	settings := status.ClientCompatibilitySettings
	view := statusView{
		Maintenance: maintenanceView{IsInMaintenance: status.Maintenance.IsInMaintenance},
		ClientCompatibility: compatibilityView{
			ActiveLogicVersionRange: logicVersionRangeView{
				Min: settings.ActiveLogicVersionRange.Min,
				Max: settings.ActiveLogicVersionRange.Max,
			},
			RedirectEnabled:      settings.RedirectEnabled,
			RedirectServer:       settings.RedirectServer,
			NumPatchRequirements: len(settings.PatchRequirements),
		},
		StaticGameConfigID:        status.StaticGameConfigID,
		DynamicGameConfigID:       status.DynamicGameConfigID,
		ActiveLocalizationsID:     status.ActiveLocalizationsID,
		LatestGameConfigUpdate:    status.LatestGameConfigUpdate,
		LatestLocalizationsUpdate: status.LatestLocalizationsUpdate,
		GameTimeOffset:            status.GameTimeOffset.String(),
		BroadcastMessages:         make([]broadcastView, 0, len(status.BroadcastMessages)),
		NumSubscribers:            status.NumSubscribers,
	}

	if scheduled := status.Maintenance.Scheduled; scheduled != nil {
		startAt := scheduled.StartAt
		view.Maintenance.StartAt = &startAt
		view.Maintenance.EstimatedDuration = scheduled.EstimatedDuration.String()
		view.Maintenance.PlatformExclusions = scheduled.PlatformExclusions
	}

	for _, message := range status.BroadcastMessages {
		view.BroadcastMessages = append(view.BroadcastMessages, broadcastView{
			ID:            message.ID,
			Name:          message.Params.Name,
			StartAt:       message.Params.StartAt,
			EndAt:         message.Params.EndAt,
			ReceivedCount: message.Stats.ReceivedCount,
		})
	}
	return view
}

type experimentView struct {
	ID                     string           `json:"id"`
	Phase                  string           `json:"phase"`
	RolloutRatioPermille   int              `json:"rollout_ratio_permille"`
	IsRolloutDisabled      bool             `json:"is_rollout_disabled"`
	HasCapacityLimit       bool             `json:"has_capacity_limit"`
	MaxCapacity            int              `json:"max_capacity"`
	NumPlayersInPopulation int              `json:"num_players_in_population"`
	NumTesters             int              `json:"num_testers"`
	VariantPopulations     map[string]int64 `json:"variant_populations"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

func newExperimentView(experiment *state.Experiment, stats *state.ExperimentStats) experimentView {
	view := experimentView{
		ID:                     experiment.ID,
		Phase:                  string(experiment.Phase),
		RolloutRatioPermille:   experiment.RolloutRatioPermille,
		IsRolloutDisabled:      experiment.IsRolloutDisabled,
		HasCapacityLimit:       experiment.HasCapacityLimit,
		MaxCapacity:            experiment.MaxCapacity,
		NumPlayersInPopulation: experiment.NumPlayersInPopulation,
		NumTesters:             len(experiment.TesterPlayerIDs),
		VariantPopulations:     map[string]int64{},
	}
	if stats != nil {
		view.CreatedAt = stats.CreatedAt
		view.UpdatedAt = stats.UpdatedAt
		for variantID, population := range stats.VariantPopulations {
			view.VariantPopulations[variantID] = population
		}
	}
	return view
}
