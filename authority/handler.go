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
	"cmp"
	"context"
	"slices"
	"time"

	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/internal/process"
	"github.com/tochemey/globalstate/protocol"
	"github.com/tochemey/globalstate/state"
)

// report kinds, deduplicated separately
const (
	reportKindBroadcasts  = "broadcast_consumption"
	reportKindAssignments = "experiment_assignments"
)

// receive handles the messages of the Authority process
func (a *Authority) receive(ctx *process.Context) {
	switch msg := ctx.Message().(type) {
	case getStatus:
		ctx.Respond(a.status())
	case updateCompatibilitySettings:
		ctx.Err(a.handleUpdateCompatibilitySettings(ctx.Context(), msg.settings))
	case addBroadcast:
		id, err := a.handleAddBroadcast(ctx.Context(), msg.params)
		if err != nil {
			ctx.Err(err)
			return
		}
		ctx.Respond(id)
	case updateBroadcast:
		ctx.Err(a.handleUpdateBroadcast(ctx.Context(), msg.id, msg.params))
	case deleteBroadcast:
		a.handleDeleteBroadcast(ctx.Context(), msg.id)
	case setDeveloperFlag:
		ctx.Respond(a.handleSetDeveloperFlag(ctx.Context(), msg.request))
	case setGameTimeOffset:
		ctx.Err(a.handleSetGameTimeOffset(ctx.Context(), msg.offset))
	case gameConfigActivated:
		ctx.Err(a.handleGameConfigActivated(ctx.Context(), msg.activation))
	case localizationActivated:
		a.handleLocalizationActivated(ctx.Context(), msg.localizationsID, msg.perLanguageHashes)
	case setMaintenance:
		ctx.Err(a.handleSetMaintenance(ctx.Context(), msg.mode))
	case updateExperiment:
		ctx.Err(a.handleUpdateExperiment(ctx.Context(), msg.change))
	case getExperiment:
		report, err := a.handleGetExperiment(msg.experimentID)
		if err != nil {
			ctx.Err(err)
			return
		}
		ctx.Respond(report)
	case subscribe:
		snapshot, err := a.handleSubscribe(ctx.Context(), msg.subscriber)
		if err != nil {
			ctx.Err(err)
			return
		}
		ctx.Respond(snapshot)
	case unsubscribe:
		a.handleUnsubscribe(ctx.Context(), msg.subscriberID)
	case reportBroadcastConsumption:
		if a.acceptBatch(msg.batch, reportKindBroadcasts) {
			a.handleBroadcastConsumption(msg.counts)
		}
	case reportAssignmentDeltas:
		if a.acceptBatch(msg.batch, reportKindAssignments) {
			a.handleAssignmentDeltas(ctx.Context(), msg.deltas)
		}
	case snapshotTick:
		if err := a.persist(ctx.Context(), false); err != nil {
			a.logger.Errorf("periodic persist of the global state failed: %v", err)
		}
	case shutdown:
		ctx.Err(a.handleShutdown(ctx.Context()))
	default:
		ctx.Unhandled()
	}
}

// commit applies the update, persists the result when requested and publishes the update
func (a *Authority) commit(ctx context.Context, update state.Update, persist bool) {
	update.Apply(a.aggregate)
	a.metrics.RecordMutation(ctx, string(update.Kind()))

	if persist {
		if err := a.persist(ctx, false); err != nil {
			// the next snapshot tick writes the state again
			a.logger.Errorf("failed to persist %s: %v", update.Kind(), err)
		}
	}

	a.publish(ctx, update)
}

func (a *Authority) publish(ctx context.Context, update state.Update) {
	for id, sub := range a.subscribers {
		if err := sub.subscriber.Deliver(update); err != nil {
			a.logger.Warnf("dropping subscriber %s (epoch=%d): %v", id, sub.epoch, err)
			delete(a.subscribers, id)
			a.metrics.RecordSubscribers(ctx, -1)
			sub.subscriber.Terminated(gerrors.ErrSubscriptionLost)
		}
	}
}

func (a *Authority) status() *Status {
	agg := a.aggregate
	broadcasts := make([]*state.BroadcastMessage, 0, len(agg.BroadcastMessages))
	for _, message := range agg.BroadcastMessages {
		broadcasts = append(broadcasts, message.Clone())
	}
	slices.SortFunc(broadcasts, func(x, y *state.BroadcastMessage) int { return cmp.Compare(x.ID, y.ID) })

	return &Status{
		Maintenance:                 state.EvaluateMaintenance(agg.ScheduledMaintenanceMode, a.now()),
		ClientCompatibilitySettings: agg.ClientCompatibilitySettings.Clone(),
		StaticGameConfigID:          agg.StaticGameConfigID,
		DynamicGameConfigID:         agg.DynamicGameConfigID,
		ActiveLocalizationsID:       agg.ActiveLocalizationsID,
		LatestGameConfigUpdate:      agg.LatestGameConfigUpdate,
		LatestLocalizationsUpdate:   agg.LatestLocalizationsUpdate,
		GameTimeOffset:              agg.GameTimeOffset,
		BroadcastMessages:           broadcasts,
		NumSubscribers:              len(a.subscribers),
	}
}

func (a *Authority) handleUpdateCompatibilitySettings(ctx context.Context, settings state.ClientCompatibilitySettings) error {
	if err := settings.Validate(a.build.SupportedRange()); err != nil {
		return err
	}

	a.commit(ctx, &state.UpdateCompatibilitySettings{Settings: settings}, true)
	return nil
}

func (a *Authority) handleAddBroadcast(ctx context.Context, params state.BroadcastParams) (int32, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}

	id := a.aggregate.RunningBroadcastMessageID + 1
	a.commit(ctx, &state.UpdateBroadcast{
		Op:      state.BroadcastAdd,
		Message: state.BroadcastMessage{ID: id, Params: params},
	}, true)
	return id, nil
}

func (a *Authority) handleUpdateBroadcast(ctx context.Context, id int32, params state.BroadcastParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	if _, ok := a.aggregate.BroadcastMessages[id]; !ok {
		a.logger.Warnf("ignoring update of unknown broadcast %d", id)
		return nil
	}

	a.commit(ctx, &state.UpdateBroadcast{
		Op:      state.BroadcastUpdate,
		Message: state.BroadcastMessage{ID: id, Params: params},
	}, true)
	return nil
}

func (a *Authority) handleDeleteBroadcast(ctx context.Context, id int32) {
	if _, ok := a.aggregate.BroadcastMessages[id]; !ok {
		a.logger.Warnf("ignoring delete of unknown broadcast %d", id)
		return
	}

	a.commit(ctx, &state.UpdateBroadcast{
		Op:      state.BroadcastDelete,
		Message: state.BroadcastMessage{ID: id},
	}, true)
}

func (a *Authority) handleSetDeveloperFlag(ctx context.Context, request DeveloperFlagRequest) DeveloperFlagResult {
	if a.aggregate.IsDeveloper(request.PlayerID) == request.IsDeveloper {
		a.logger.Debugf("developer flag of player %d already set to %t", request.PlayerID, request.IsDeveloper)
		return AlreadySatisfied
	}

	a.commit(ctx, &state.SetDeveloperFlag{PlayerID: request.PlayerID, IsDeveloper: request.IsDeveloper}, true)

	// a player changing its own status already knows about it
	if a.notifier != nil && request.RequestedBy != request.PlayerID {
		if err := a.notifier.NotifyDeveloperStatus(ctx, request.PlayerID, request.IsDeveloper); err != nil {
			a.logger.Warnf("failed to notify player %d of its developer status: %v", request.PlayerID, err)
		}
	}
	return Changed
}

func (a *Authority) handleSetGameTimeOffset(ctx context.Context, offset time.Duration) error {
	if !a.runtime.Runtime().EnableTimeSkip {
		return gerrors.NewValidationError("GameTimeOffset", gerrors.ErrTimeSkipDisabled)
	}

	current := a.aggregate.GameTimeOffset
	switch {
	case offset < current:
		return gerrors.NewErrGameTimeOffsetDecrease(current, offset)
	case offset == current:
		return nil
	}

	a.commit(ctx, &state.UpdateGameTimeOffset{Offset: offset}, true)
	return nil
}

func (a *Authority) handleLocalizationActivated(ctx context.Context, localizationsID string, perLanguageHashes map[string]string) {
	a.commit(ctx, &state.UpdateLocalization{
		LocalizationsID:   localizationsID,
		PerLanguageHashes: perLanguageHashes,
		Timestamp:         a.now(),
	}, true)
}

func (a *Authority) handleSetMaintenance(ctx context.Context, mode *state.ScheduledMaintenanceMode) error {
	if mode == nil {
		if a.aggregate.ScheduledMaintenanceMode == nil {
			a.logger.Debug("no scheduled maintenance to cancel")
			return nil
		}
		a.commit(ctx, &state.UpdateScheduledMaintenanceMode{}, true)
		return nil
	}

	if err := mode.Validate(); err != nil {
		return err
	}

	a.commit(ctx, &state.UpdateScheduledMaintenanceMode{Mode: mode}, true)
	return nil
}

func (a *Authority) handleSubscribe(ctx context.Context, subscriber protocol.Subscriber) (*protocol.Snapshot, error) {
	aggregate, err := a.aggregate.Clone()
	if err != nil {
		return nil, gerrors.NewInternalError(err)
	}

	id := subscriber.ID()
	if previous, ok := a.subscribers[id]; ok {
		a.logger.Infof("subscriber %s resubscribed, replacing epoch %d", id, previous.epoch)
		previous.subscriber.Terminated(gerrors.ErrSubscriptionLost)
	} else {
		a.metrics.RecordSubscribers(ctx, 1)
	}

	a.epoch++
	a.subscribers[id] = &subscription{subscriber: subscriber, epoch: a.epoch}
	a.logger.Debugf("subscriber %s subscribed (epoch=%d)", id, a.epoch)

	return &protocol.Snapshot{
		Aggregate:   aggregate,
		SharedNonce: a.aggregate.SharedClusterNonce,
		Epoch:       a.epoch,
	}, nil
}

func (a *Authority) handleUnsubscribe(ctx context.Context, subscriberID string) {
	if _, ok := a.subscribers[subscriberID]; !ok {
		return
	}
	delete(a.subscribers, subscriberID)
	a.metrics.RecordSubscribers(ctx, -1)
	a.logger.Debugf("subscriber %s unsubscribed", subscriberID)
}

// acceptBatch returns false for a batch already merged
func (a *Authority) acceptBatch(batch protocol.Batch, kind string) bool {
	if batch.Reporter == "" {
		return true
	}

	key := batchKey{reporter: batch.Reporter, kind: kind}
	if last, ok := a.batches[key]; ok && batch.Seq <= last {
		a.logger.Debugf("ignoring %s batch %d of %s, already merged", kind, batch.Seq, batch.Reporter)
		return false
	}
	a.batches[key] = batch.Seq
	return true
}

func (a *Authority) handleBroadcastConsumption(counts map[int32]int64) {
	for id, count := range counts {
		message, ok := a.aggregate.BroadcastMessages[id]
		if !ok {
			a.logger.Debugf("ignoring consumption report of unknown broadcast %d", id)
			continue
		}
		message.Stats.ReceivedCount += count
	}
}

func (a *Authority) handleShutdown(ctx context.Context) error {
	err := a.persist(ctx, true)
	if err != nil {
		a.logger.Errorf("final persist of the global state failed: %v", err)
	}

	for id, sub := range a.subscribers {
		sub.subscriber.Terminated(gerrors.ErrAuthorityTerminated)
		delete(a.subscribers, id)
		a.metrics.RecordSubscribers(ctx, -1)
	}
	return err
}
