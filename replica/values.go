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

package replica

import (
	"net/url"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tochemey/globalstate/experiment"
	"github.com/tochemey/globalstate/gameconfig"
	"github.com/tochemey/globalstate/state"
)

// DeliverySources are the CDN locations of the game config content
type DeliverySources struct {
	// SharedGameConfig is the location of the shared config archive
	SharedGameConfig string
	// ExperimentPatches maps an experiment id to the location of its patch
	ExperimentPatches map[string]string
}

// ActiveGameConfig is the game config in effect on the node
type ActiveGameConfig struct {
	Config  gameconfig.Config
	Imports *gameconfig.Imports
	// PlayerPolicies are the policies of the experiments visible to players, in config order
	PlayerPolicies []*experiment.Policy
	// TesterPolicies are the policies of the experiments visible to testers, in config order
	TesterPolicies []*experiment.Policy
	// Testers is the union of the testers of every experiment
	Testers                    mapset.Set[state.PlayerID]
	DeliverySources            DeliverySources
	LatestUpdate               time.Time
	ClientForceUpdateTimestamp time.Time
}

// ActiveLocalizations are the localizations in effect on the node
type ActiveLocalizations struct {
	ID string
	// Deliverables maps a language to the location of its content
	Deliverables map[string]string
	LatestUpdate time.Time
}

// ActiveMaintenanceMode is the maintenance schedule evaluated on the node
type ActiveMaintenanceMode struct {
	Scheduled       *state.ScheduledMaintenanceMode
	IsInMaintenance bool
}

// ActiveBroadcasts are the broadcast messages known to the node, sorted by id
type ActiveBroadcasts struct {
	Messages []*state.BroadcastMessage
}

// ActiveAt returns the messages shown at now
func (b *ActiveBroadcasts) ActiveAt(now time.Time) []*state.BroadcastMessage {
	if b == nil {
		return nil
	}
	active := make([]*state.BroadcastMessage, 0, len(b.Messages))
	for _, message := range b.Messages {
		if message.Params.IsActiveAt(now) {
			active = append(active, message)
		}
	}
	return active
}

// deliveryURL joins a content hash to the CDN base URL
func deliveryURL(baseURL, hash string) string {
	if hash == "" {
		return ""
	}
	if baseURL == "" {
		return hash
	}
	joined, err := url.JoinPath(baseURL, hash)
	if err != nil {
		return hash
	}
	return joined
}

func newDeliverySources(baseURL string, agg *state.Aggregate) DeliverySources {
	patches := make(map[string]string, len(agg.ExperimentPatchHashes))
	for experimentID, hash := range agg.ExperimentPatchHashes {
		patches[experimentID] = deliveryURL(baseURL, hash)
	}
	return DeliverySources{
		SharedGameConfig:  deliveryURL(baseURL, agg.SharedGameConfigDeliverables),
		ExperimentPatches: patches,
	}
}
