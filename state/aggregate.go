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

// Package state defines the cluster-wide global state and the updates
// that mutate it.
package state

import (
	"crypto/rand"
	"time"

	"github.com/tochemey/globalstate/internal/codec"
)

// PlayerID identifies a player
type PlayerID int64

// SharedNonceSize is the size in bytes of the shared cluster nonce
const SharedNonceSize = 32

// SharedNonce is the cluster-wide secret regenerated on every Authority start
type SharedNonce [SharedNonceSize]byte

// NewSharedNonce returns a fresh random nonce
func NewSharedNonce() (SharedNonce, error) {
	var nonce SharedNonce
	_, err := rand.Read(nonce[:])
	return nonce, err
}

// Aggregate is the canonical global state owned by the Authority
type Aggregate struct {
	SchemaVersion int

	ClientCompatibilitySettings ClientCompatibilitySettings
	ScheduledMaintenanceMode    *ScheduledMaintenanceMode

	RunningBroadcastMessageID int32
	BroadcastMessages         map[int32]*BroadcastMessage

	PlayerExperiments      map[string]*Experiment
	PlayerExperimentsStats map[string]*ExperimentStats

	StaticGameConfigID                   string
	DynamicGameConfigID                  string
	SharedGameConfigDeliverables         string
	ExperimentPatchHashes                map[string]string
	LatestGameConfigUpdate               time.Time
	ClientForceUpdateGameConfigTimestamp time.Time

	ActiveLocalizationsID     string
	LocalizationsDeliverables map[string]string
	LatestLocalizationsUpdate time.Time

	DeveloperPlayerIDs map[PlayerID]bool

	// SharedClusterNonce is never persisted nor logged
	SharedClusterNonce SharedNonce `cbor:"-"`

	GameTimeOffset               time.Duration
	LastSupportedMaxLogicVersion int

	// LegacyDeveloperPlayerIDs is read from schema 1 payloads only
	LegacyDeveloperPlayerIDs []PlayerID `cbor:"DeveloperPlayerIdList,omitempty"`
}

// NewAggregate creates the default state of a fresh cluster
func NewAggregate() *Aggregate {
	agg := &Aggregate{SchemaVersion: CurrentSchemaVersion}
	agg.EnsureInitialized()
	return agg
}

// EnsureInitialized fills missing collections
func (a *Aggregate) EnsureInitialized() {
	if a.BroadcastMessages == nil {
		a.BroadcastMessages = make(map[int32]*BroadcastMessage)
	}
	if a.PlayerExperiments == nil {
		a.PlayerExperiments = make(map[string]*Experiment)
	}
	if a.PlayerExperimentsStats == nil {
		a.PlayerExperimentsStats = make(map[string]*ExperimentStats)
	}
	if a.ExperimentPatchHashes == nil {
		a.ExperimentPatchHashes = make(map[string]string)
	}
	if a.LocalizationsDeliverables == nil {
		a.LocalizationsDeliverables = make(map[string]string)
	}
	if a.DeveloperPlayerIDs == nil {
		a.DeveloperPlayerIDs = make(map[PlayerID]bool)
	}
	for _, experiment := range a.PlayerExperiments {
		if experiment.Variants == nil {
			experiment.Variants = make(map[string]*VariantState)
		}
		if experiment.TesterPlayerIDs == nil {
			experiment.TesterPlayerIDs = make(map[PlayerID]bool)
		}
	}
}

// Clone returns a deep copy of the aggregate, shared nonce included
func (a *Aggregate) Clone() (*Aggregate, error) {
	bytea, err := codec.Default().Marshal(a)
	if err != nil {
		return nil, err
	}

	clone := new(Aggregate)
	if err := codec.Default().Unmarshal(bytea, clone); err != nil {
		return nil, err
	}

	clone.SharedClusterNonce = a.SharedClusterNonce
	clone.EnsureInitialized()
	return clone, nil
}

// IsDeveloper returns true when the player is flagged as a developer
func (a *Aggregate) IsDeveloper(playerID PlayerID) bool {
	return a.DeveloperPlayerIDs[playerID]
}

// Encode serializes the aggregate into its persisted payload
func Encode(agg *Aggregate) ([]byte, error) {
	return codec.Default().Encode(agg)
}

// Decode deserializes a persisted payload written at schemaVersion and migrates it
// to CurrentSchemaVersion.
func Decode(payload []byte, schemaVersion int) (*Aggregate, error) {
	if err := checkSchemaVersion(schemaVersion); err != nil {
		return nil, err
	}

	agg := new(Aggregate)
	if err := codec.Default().Decode(payload, agg); err != nil {
		return nil, err
	}

	if err := Migrate(agg, schemaVersion); err != nil {
		return nil, err
	}

	agg.EnsureInitialized()
	return agg, nil
}
