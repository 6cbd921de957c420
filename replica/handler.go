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
	"context"
	"maps"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/experiment"
	"github.com/tochemey/globalstate/gameconfig"
	"github.com/tochemey/globalstate/internal/process"
	"github.com/tochemey/globalstate/protocol"
	"github.com/tochemey/globalstate/state"
)

// names of the derived values, used in logs and metrics
const (
	valueCompatibility  = "client_compatibility_settings"
	valueGameConfig     = "game_config"
	valueLocalizations  = "localizations"
	valueMaintenance    = "maintenance_mode"
	valueSharedNonce    = "shared_nonce"
	valueDevelopers     = "developers"
	valueGameTimeOffset = "game_time_offset"
	valueBroadcasts     = "broadcasts"
)

func (r *Replica) receive(ctx *process.Context) {
	switch msg := ctx.Message().(type) {
	case tick:
		r.handleTick(ctx.Context())
	case updateReceived:
		r.handleUpdate(ctx.Context(), msg)
	case subscriptionLost:
		r.handleSubscriptionLost(msg)
	default:
		ctx.Unhandled()
	}
}

func (r *Replica) handleTick(ctx context.Context) {
	if r.State() != Synced {
		r.subscribe(ctx)
		return
	}

	if r.gameConfigDirty {
		r.recomputeGameConfig(ctx)
	}
	r.recomputeMaintenance(ctx, false)
}

func (r *Replica) subscribe(ctx context.Context) {
	r.state.Store(int32(Subscribing))
	r.nextEpoch++
	sub := &subscriber{replica: r, epoch: r.nextEpoch}

	subscribeCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	snapshot, err := r.link.Subscribe(subscribeCtx, sub)
	cancel()
	if err != nil {
		r.state.Store(int32(Disconnected))
		r.logger.Warnf("failed to subscribe to the global state, retrying on next tick: %v", err)
		return
	}

	r.install(ctx, sub.epoch, snapshot)
}

// install replaces the cache with the snapshot and recomputes every derived value
func (r *Replica) install(ctx context.Context, epoch uint64, snapshot *protocol.Snapshot) {
	r.cache = snapshot.Aggregate
	r.cache.EnsureInitialized()
	r.currentEpoch = epoch
	r.state.Store(int32(Synced))
	r.metrics.RecordSubscription(ctx)
	r.logger.Infof("synced with the global state (epoch=%d, authority epoch=%d)", epoch, snapshot.Epoch)

	r.recomputeCompatibility(ctx)
	r.recomputeGameConfig(ctx)
	r.recomputeLocalizations(ctx)
	r.recomputeMaintenance(ctx, true)
	r.recomputeDevelopers(ctx)
	r.recomputeGameTimeOffset(ctx)
	r.recomputeBroadcasts(ctx)

	r.sharedNonce.Publish(snapshot.SharedNonce)
	r.metrics.RecordRecomputation(ctx, valueSharedNonce)
}

func (r *Replica) handleUpdate(ctx context.Context, msg updateReceived) {
	if msg.epoch != r.currentEpoch || r.State() != Synced {
		r.logger.Debugf("ignoring %s of stale subscription epoch %d", msg.update.Kind(), msg.epoch)
		return
	}

	msg.update.Apply(r.cache)

	switch msg.update.Kind() {
	case state.KindUpdateCompatibilitySettings:
		r.recomputeCompatibility(ctx)
	case state.KindUpdateBroadcast:
		r.recomputeBroadcasts(ctx)
	case state.KindUpdateGameConfig, state.KindUpdateExperiment:
		r.recomputeGameConfig(ctx)
	case state.KindUpdateLocalization:
		r.recomputeLocalizations(ctx)
	case state.KindUpdateGameTimeOffset:
		r.recomputeGameTimeOffset(ctx)
	case state.KindSetDeveloperFlag:
		r.recomputeDevelopers(ctx)
	case state.KindUpdateScheduledMaintenanceMode:
		r.recomputeMaintenance(ctx, true)
	default:
		r.logger.Warnf("no derived value for update %s", msg.update.Kind())
	}
}

func (r *Replica) handleSubscriptionLost(msg subscriptionLost) {
	if msg.epoch != r.currentEpoch {
		return
	}

	r.currentEpoch = 0
	r.state.Store(int32(Disconnected))
	r.logger.Warnf("subscription to the global state lost, keeping last known values: %v", msg.err)
}

func (r *Replica) recomputeCompatibility(ctx context.Context) {
	r.compatibility.Publish(r.cache.ClientCompatibilitySettings.Clone())
	r.metrics.RecordRecomputation(ctx, valueCompatibility)
}

// recomputeGameConfig resolves the config of the active (static, dynamic) pair, reusing
// the previous resolution while the pair is unchanged, and derives the experiment policies.
// A failed resolution keeps the previously published value.
func (r *Replica) recomputeGameConfig(ctx context.Context) {
	agg := r.cache
	if agg.StaticGameConfigID == "" {
		r.gameConfigDirty = false
		return
	}

	key := configKey{static: agg.StaticGameConfigID, dynamic: agg.DynamicGameConfigID}
	if r.loadedConfig == nil || key != r.loadedKey {
		imports, config, err := r.resolveGameConfig(ctx, key)
		if err != nil {
			r.gameConfigDirty = true
			r.metrics.RecordRecomputationFailure(ctx, valueGameConfig)
			r.logger.Errorf("failed to resolve game config (%s, %s): %v", key.static, key.dynamic, err)
			return
		}
		r.loadedKey = key
		r.loadedConfig = config
		r.loadedImports = imports
	}

	order := gameconfig.ExperimentIDs(r.loadedConfig)
	playerPolicies := experiment.ResolvePolicies(order, agg.PlayerExperiments, experiment.AudiencePlayer)
	testerPolicies := experiment.ResolvePolicies(order, agg.PlayerExperiments, experiment.AudienceTester)

	r.gameConfig.Publish(&ActiveGameConfig{
		Config:                     r.loadedConfig,
		Imports:                    r.loadedImports,
		PlayerPolicies:             playerPolicies,
		TesterPolicies:             testerPolicies,
		Testers:                    experiment.UnionTesters(playerPolicies, testerPolicies),
		DeliverySources:            newDeliverySources(r.runtime.Runtime().CDNBaseURL, agg),
		LatestUpdate:               agg.LatestGameConfigUpdate,
		ClientForceUpdateTimestamp: agg.ClientForceUpdateGameConfigTimestamp,
	})
	r.gameConfigDirty = false
	r.metrics.RecordRecomputation(ctx, valueGameConfig)
}

func (r *Replica) resolveGameConfig(ctx context.Context, key configKey) (*gameconfig.Imports, gameconfig.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	imports, err := r.resolver.ResolveImports(ctx, key.static, key.dynamic)
	if err != nil {
		return nil, nil, gerrors.NewErrConfigResolution(err)
	}

	config, err := r.resolver.Load(ctx, key.static, key.dynamic, imports)
	if err != nil {
		return nil, nil, gerrors.NewErrConfigResolution(err)
	}
	return imports, config, nil
}

func (r *Replica) recomputeLocalizations(ctx context.Context) {
	agg := r.cache
	baseURL := r.runtime.Runtime().CDNBaseURL
	deliverables := make(map[string]string, len(agg.LocalizationsDeliverables))
	for language, hash := range agg.LocalizationsDeliverables {
		deliverables[language] = deliveryURL(baseURL, hash)
	}

	r.localizations.Publish(&ActiveLocalizations{
		ID:           agg.ActiveLocalizationsID,
		Deliverables: deliverables,
		LatestUpdate: agg.LatestLocalizationsUpdate,
	})
	r.metrics.RecordRecomputation(ctx, valueLocalizations)
}

// recomputeMaintenance evaluates the maintenance schedule. Unless force is set the
// value is only republished when the maintenance flag flips.
func (r *Replica) recomputeMaintenance(ctx context.Context, force bool) {
	status := state.EvaluateMaintenance(r.cache.ScheduledMaintenanceMode, r.clock().UTC())

	current := r.maintenance.Load().Value()
	if !force && current != nil && current.IsInMaintenance == status.IsInMaintenance {
		return
	}

	r.maintenance.Publish(&ActiveMaintenanceMode{
		Scheduled:       status.Scheduled,
		IsInMaintenance: status.IsInMaintenance,
	})
	r.metrics.RecordRecomputation(ctx, valueMaintenance)
}

func (r *Replica) recomputeDevelopers(ctx context.Context) {
	developers := mapset.NewSetWithSize[state.PlayerID](len(r.cache.DeveloperPlayerIDs))
	for playerID, isDeveloper := range r.cache.DeveloperPlayerIDs {
		if isDeveloper {
			developers.Add(playerID)
		}
	}
	r.developers.Publish(developers)
	r.metrics.RecordRecomputation(ctx, valueDevelopers)
}

func (r *Replica) recomputeGameTimeOffset(ctx context.Context) {
	r.gameTimeOffset.Publish(r.cache.GameTimeOffset)
	r.metrics.RecordRecomputation(ctx, valueGameTimeOffset)
}

func (r *Replica) recomputeBroadcasts(ctx context.Context) {
	messages := make([]*state.BroadcastMessage, 0, len(r.cache.BroadcastMessages))
	for _, id := range slices.Sorted(maps.Keys(r.cache.BroadcastMessages)) {
		messages = append(messages, r.cache.BroadcastMessages[id].Clone())
	}

	r.broadcasts.Publish(&ActiveBroadcasts{Messages: messages})
	r.metrics.RecordRecomputation(ctx, valueBroadcasts)
}
