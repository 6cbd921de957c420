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
	"sort"
	"time"

	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/internal/codec"
)

// UpdateKind names an update message on the wire
type UpdateKind string

const (
	KindUpdateCompatibilitySettings    UpdateKind = "UpdateCompatibilitySettings"
	KindUpdateBroadcast                UpdateKind = "UpdateBroadcast"
	KindUpdateGameConfig               UpdateKind = "UpdateGameConfig"
	KindUpdateLocalization             UpdateKind = "UpdateLocalization"
	KindUpdateGameTimeOffset           UpdateKind = "UpdateGameTimeOffset"
	KindSetDeveloperFlag               UpdateKind = "SetDeveloperFlag"
	KindUpdateScheduledMaintenanceMode UpdateKind = "UpdateScheduledMaintenanceMode"
	KindUpdateExperiment               UpdateKind = "UpdateExperiment"
)

// Update is a mutation the Authority applies to its Aggregate and then publishes
// unchanged to every subscriber, so that replicas converge by applying the very
// same mutation to their cache.
//
// Apply never retains references to the update's payload.
type Update interface {
	Kind() UpdateKind
	Apply(agg *Aggregate)
}

var updateFactories = map[UpdateKind]func() Update{
	KindUpdateCompatibilitySettings:    func() Update { return new(UpdateCompatibilitySettings) },
	KindUpdateBroadcast:                func() Update { return new(UpdateBroadcast) },
	KindUpdateGameConfig:               func() Update { return new(UpdateGameConfig) },
	KindUpdateLocalization:             func() Update { return new(UpdateLocalization) },
	KindUpdateGameTimeOffset:           func() Update { return new(UpdateGameTimeOffset) },
	KindSetDeveloperFlag:               func() Update { return new(SetDeveloperFlag) },
	KindUpdateScheduledMaintenanceMode: func() Update { return new(UpdateScheduledMaintenanceMode) },
	KindUpdateExperiment:               func() Update { return new(UpdateExperiment) },
}

// UpdateKinds returns the registered update kinds in a stable order
func UpdateKinds() []UpdateKind {
	kinds := make([]UpdateKind, 0, len(updateFactories))
	for kind := range updateFactories {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// MarshalUpdate encodes the body of an update
func MarshalUpdate(update Update) ([]byte, error) {
	return codec.Default().Marshal(update)
}

// UnmarshalUpdate decodes the body of an update of the given kind
func UnmarshalUpdate(kind UpdateKind, body []byte) (Update, error) {
	factory, ok := updateFactories[kind]
	if !ok {
		return nil, gerrors.ErrUnknownUpdateKind
	}

	update := factory()
	if err := codec.Default().Unmarshal(body, update); err != nil {
		return nil, err
	}
	return update, nil
}

// UpdateCompatibilitySettings replaces the client compatibility settings
type UpdateCompatibilitySettings struct {
	Settings ClientCompatibilitySettings
}

func (*UpdateCompatibilitySettings) Kind() UpdateKind { return KindUpdateCompatibilitySettings }

func (u *UpdateCompatibilitySettings) Apply(agg *Aggregate) {
	agg.ClientCompatibilitySettings = u.Settings.Clone()
}

// BroadcastOp is the operation carried by UpdateBroadcast
type BroadcastOp string

const (
	BroadcastAdd    BroadcastOp = "add"
	BroadcastUpdate BroadcastOp = "update"
	BroadcastDelete BroadcastOp = "delete"
)

// UpdateBroadcast adds, updates or deletes a broadcast message
type UpdateBroadcast struct {
	Op      BroadcastOp
	Message BroadcastMessage
}

func (*UpdateBroadcast) Kind() UpdateKind { return KindUpdateBroadcast }

func (u *UpdateBroadcast) Apply(agg *Aggregate) {
	id := u.Message.ID
	switch u.Op {
	case BroadcastAdd:
		agg.BroadcastMessages[id] = u.Message.Clone()
		if id > agg.RunningBroadcastMessageID {
			agg.RunningBroadcastMessageID = id
		}
	case BroadcastUpdate:
		if existing, ok := agg.BroadcastMessages[id]; ok {
			existing.Params = u.Message.Clone().Params
		}
	case BroadcastDelete:
		delete(agg.BroadcastMessages, id)
	}
}

// UpdateGameConfig switches the active game config and carries the synchronized experiments
type UpdateGameConfig struct {
	StaticGameConfigID   string
	DynamicGameConfigID  string
	Deliverables         string
	Experiments          map[string]*Experiment
	PatchHashes          map[string]string
	Timestamp            time.Time
	ForceUpdateTimestamp time.Time
}

func (*UpdateGameConfig) Kind() UpdateKind { return KindUpdateGameConfig }

func (u *UpdateGameConfig) Apply(agg *Aggregate) {
	agg.StaticGameConfigID = u.StaticGameConfigID
	agg.DynamicGameConfigID = u.DynamicGameConfigID
	agg.SharedGameConfigDeliverables = u.Deliverables
	agg.ExperimentPatchHashes = maps.Clone(u.PatchHashes)
	if agg.ExperimentPatchHashes == nil {
		agg.ExperimentPatchHashes = make(map[string]string)
	}
	agg.LatestGameConfigUpdate = u.Timestamp
	agg.ClientForceUpdateGameConfigTimestamp = u.ForceUpdateTimestamp

	agg.PlayerExperiments = make(map[string]*Experiment, len(u.Experiments))
	for id, experiment := range u.Experiments {
		agg.PlayerExperiments[id] = experiment.Clone()
	}
}

// UpdateLocalization switches the active localizations
type UpdateLocalization struct {
	LocalizationsID   string
	PerLanguageHashes map[string]string
	Timestamp         time.Time
}

func (*UpdateLocalization) Kind() UpdateKind { return KindUpdateLocalization }

func (u *UpdateLocalization) Apply(agg *Aggregate) {
	agg.ActiveLocalizationsID = u.LocalizationsID
	agg.LocalizationsDeliverables = maps.Clone(u.PerLanguageHashes)
	if agg.LocalizationsDeliverables == nil {
		agg.LocalizationsDeliverables = make(map[string]string)
	}
	agg.LatestLocalizationsUpdate = u.Timestamp
}

// UpdateGameTimeOffset sets the game time offset
type UpdateGameTimeOffset struct {
	Offset time.Duration
}

func (*UpdateGameTimeOffset) Kind() UpdateKind { return KindUpdateGameTimeOffset }

func (u *UpdateGameTimeOffset) Apply(agg *Aggregate) {
	agg.GameTimeOffset = u.Offset
}

// SetDeveloperFlag flags or unflags a player as developer
type SetDeveloperFlag struct {
	PlayerID    PlayerID
	IsDeveloper bool
}

func (*SetDeveloperFlag) Kind() UpdateKind { return KindSetDeveloperFlag }

func (u *SetDeveloperFlag) Apply(agg *Aggregate) {
	if u.IsDeveloper {
		agg.DeveloperPlayerIDs[u.PlayerID] = true
		return
	}
	delete(agg.DeveloperPlayerIDs, u.PlayerID)
}

// UpdateScheduledMaintenanceMode sets or, when Mode is nil, cancels the maintenance window
type UpdateScheduledMaintenanceMode struct {
	Mode *ScheduledMaintenanceMode
}

func (*UpdateScheduledMaintenanceMode) Kind() UpdateKind { return KindUpdateScheduledMaintenanceMode }

func (u *UpdateScheduledMaintenanceMode) Apply(agg *Aggregate) {
	agg.ScheduledMaintenanceMode = u.Mode.Clone()
}

// UpdateExperiment replaces the rollout state of one experiment
type UpdateExperiment struct {
	Experiment *Experiment
}

func (*UpdateExperiment) Kind() UpdateKind { return KindUpdateExperiment }

func (u *UpdateExperiment) Apply(agg *Aggregate) {
	if u.Experiment == nil {
		return
	}
	agg.PlayerExperiments[u.Experiment.ID] = u.Experiment.Clone()
}
