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

// Package replica mirrors the global state on a node.
//
// A Replica subscribes to the Authority, keeps a private copy of the Aggregate and
// derives from it the values read by the actors of the node. Each derived value lives
// in its own atomicvalue.Cell, so readers never block and never observe a partially
// computed value. Usage counters flow the other way: they are accumulated locally and
// reported to the Authority in batches.
package replica

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/tochemey/globalstate/atomicvalue"
	"github.com/tochemey/globalstate/config"
	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/experiment"
	"github.com/tochemey/globalstate/gameconfig"
	"github.com/tochemey/globalstate/internal/process"
	"github.com/tochemey/globalstate/internal/scheduler"
	"github.com/tochemey/globalstate/log"
	"github.com/tochemey/globalstate/protocol"
	"github.com/tochemey/globalstate/state"
	"github.com/tochemey/globalstate/telemetry"
)

const (
	defaultRequestTimeout = 5 * time.Second
	schedulerStopTimeout  = 5 * time.Second
)

// State is the subscription state of a Replica
type State int32

const (
	Disconnected State = iota
	Subscribing
	Synced
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Subscribing:
		return "Subscribing"
	case Synced:
		return "Synced"
	default:
		return "Disconnected"
	}
}

// Replica is the node-local mirror of the global state
type Replica struct {
	nodeID         string
	link           protocol.Link
	resolver       gameconfig.Resolver
	runtime        config.Source
	logger         log.Logger
	telemetry      *telemetry.Telemetry
	metrics        *telemetry.ReplicaMetrics
	tickInterval   time.Duration
	reportInterval time.Duration
	requestTimeout time.Duration
	clock          func() time.Time

	started   *atomic.Bool
	state     *atomic.Int32
	process   *process.Process
	scheduler *scheduler.Scheduler

	compatibility  *atomicvalue.Cell[state.ClientCompatibilitySettings]
	gameConfig     *atomicvalue.Cell[*ActiveGameConfig]
	localizations  *atomicvalue.Cell[*ActiveLocalizations]
	maintenance    *atomicvalue.Cell[*ActiveMaintenanceMode]
	sharedNonce    *atomicvalue.Cell[state.SharedNonce]
	developers     *atomicvalue.Cell[mapset.Set[state.PlayerID]]
	gameTimeOffset *atomicvalue.Cell[time.Duration]
	broadcasts     *atomicvalue.Cell[*ActiveBroadcasts]

	statsMu          sync.Mutex
	broadcastCounts  map[int32]int64
	assignmentDeltas map[assignmentKey]int64

	// flushMu serializes flushes and guards the batches awaiting delivery
	flushMu            sync.Mutex
	reporter           string
	batchSeq           uint64
	pendingBroadcasts  *broadcastBatch
	pendingAssignments *assignmentBatch

	// the fields below are only accessed by the process
	cache           *state.Aggregate
	nextEpoch       uint64
	currentEpoch    uint64
	loadedKey       configKey
	loadedConfig    gameconfig.Config
	loadedImports   *gameconfig.Imports
	gameConfigDirty bool
}

type configKey struct {
	static  string
	dynamic string
}

// New creates a Replica for the node. The Replica subscribes through link and loads
// game configs with resolver.
func New(nodeID string, link protocol.Link, resolver gameconfig.Resolver, opts ...Option) *Replica {
	replica := &Replica{
		nodeID:           nodeID,
		link:             link,
		resolver:         resolver,
		runtime:          config.NewStaticSource(config.DefaultRuntime()),
		logger:           log.DefaultLogger,
		tickInterval:     config.DefaultRuntime().TickInterval,
		reportInterval:   config.DefaultRuntime().ReportInterval,
		requestTimeout:   defaultRequestTimeout,
		clock:            time.Now,
		started:          atomic.NewBool(false),
		state:            atomic.NewInt32(int32(Disconnected)),
		compatibility:    atomicvalue.New[state.ClientCompatibilitySettings](),
		gameConfig:       atomicvalue.New[*ActiveGameConfig](),
		localizations:    atomicvalue.New[*ActiveLocalizations](),
		maintenance:      atomicvalue.New[*ActiveMaintenanceMode](),
		sharedNonce:      atomicvalue.New[state.SharedNonce](),
		developers:       atomicvalue.New[mapset.Set[state.PlayerID]](),
		gameTimeOffset:   atomicvalue.New[time.Duration](),
		broadcasts:       atomicvalue.New[*ActiveBroadcasts](),
		broadcastCounts:  make(map[int32]int64),
		assignmentDeltas: make(map[assignmentKey]int64),
		reporter:         nodeID + "/" + uuid.NewString(),
	}

	for _, opt := range opts {
		opt.Apply(replica)
	}

	if replica.logger == nil {
		replica.logger = log.DiscardLogger
	}
	replica.logger = replica.logger.With("node", nodeID)
	if replica.telemetry == nil {
		replica.telemetry = telemetry.New()
	}
	return replica
}

// NodeID returns the id of the node
func (r *Replica) NodeID() string {
	return r.nodeID
}

// State returns the subscription state
func (r *Replica) State() State {
	return State(r.state.Load())
}

// Start starts the Replica. The first subscription attempt happens right away and
// failed attempts are retried on every tick.
func (r *Replica) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return nil
	}

	metrics, err := telemetry.NewReplicaMetrics(r.telemetry.Meter, r.nodeID)
	if err != nil {
		r.started.Store(false)
		return err
	}
	r.metrics = metrics

	r.process = process.New(fmt.Sprintf("global-state-replica-%s", r.nodeID), process.HandlerFunc(r.receive), r.logger)
	r.scheduler = scheduler.New(r.logger, schedulerStopTimeout)
	r.scheduler.Start(ctx)

	if err := errors.Join(
		r.scheduler.Schedule(tick{}, r.process, r.tickInterval),
		r.scheduler.ScheduleFunc(r.FlushReports, r.reportInterval),
	); err != nil {
		r.scheduler.Stop(ctx)
		_ = r.process.Stop(ctx)
		r.started.Store(false)
		return err
	}

	r.logger.Info("replica started")
	return r.process.Tell(ctx, tick{})
}

// Stop flushes the pending statistics, leaves the subscription and stops the Replica
func (r *Replica) Stop(ctx context.Context) error {
	if !r.started.CompareAndSwap(true, false) {
		return nil
	}

	r.scheduler.Stop(ctx)
	err := r.FlushReports(ctx)

	if r.State() == Synced {
		unsubscribeCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
		if unsubscribeErr := r.link.Unsubscribe(unsubscribeCtx, r.nodeID); unsubscribeErr != nil {
			r.logger.Warnf("failed to unsubscribe: %v", unsubscribeErr)
		}
		cancel()
	}

	if stopErr := r.process.Stop(ctx); stopErr != nil {
		err = errors.Join(err, stopErr)
	}

	r.state.Store(int32(Disconnected))
	r.logger.Info("replica stopped")
	return err
}

// ActiveClientCompatibilitySettings returns the cell of the client compatibility settings
func (r *Replica) ActiveClientCompatibilitySettings() *atomicvalue.Cell[state.ClientCompatibilitySettings] {
	return r.compatibility
}

// ActiveGameConfig returns the cell of the game config
func (r *Replica) ActiveGameConfig() *atomicvalue.Cell[*ActiveGameConfig] {
	return r.gameConfig
}

// ActiveLocalizations returns the cell of the localizations
func (r *Replica) ActiveLocalizations() *atomicvalue.Cell[*ActiveLocalizations] {
	return r.localizations
}

// ActiveMaintenanceMode returns the cell of the maintenance mode
func (r *Replica) ActiveMaintenanceMode() *atomicvalue.Cell[*ActiveMaintenanceMode] {
	return r.maintenance
}

// ActiveSharedNonce returns the cell of the cluster secret
func (r *Replica) ActiveSharedNonce() *atomicvalue.Cell[state.SharedNonce] {
	return r.sharedNonce
}

// ActiveDevelopers returns the cell of the developer set
func (r *Replica) ActiveDevelopers() *atomicvalue.Cell[mapset.Set[state.PlayerID]] {
	return r.developers
}

// ActiveGameTimeOffset returns the cell of the game time offset
func (r *Replica) ActiveGameTimeOffset() *atomicvalue.Cell[time.Duration] {
	return r.gameTimeOffset
}

// ActiveBroadcasts returns the cell of the broadcast messages
func (r *Replica) ActiveBroadcasts() *atomicvalue.Cell[*ActiveBroadcasts] {
	return r.broadcasts
}

// Now returns the game time: the wall clock shifted by the game time offset
func (r *Replica) Now() time.Time {
	return r.clock().UTC().Add(r.gameTimeOffset.Load().Value())
}

// IsDeveloper returns true when the player is flagged as developer
func (r *Replica) IsDeveloper(playerID state.PlayerID) bool {
	developers := r.developers.Load().Value()
	return developers != nil && developers.Contains(playerID)
}

// IsTester returns true when the player tests any experiment of the active game config
func (r *Replica) IsTester(playerID state.PlayerID) bool {
	active := r.gameConfig.Load().Value()
	return active != nil && active.Testers.Contains(playerID)
}

// Evaluation is the eligibility of a player for one experiment
type Evaluation struct {
	Policy   *experiment.Policy
	Decision experiment.Decision
}

// EvaluateExperiments evaluates the player against every experiment of the active
// game config visible to it, in config order. Testers see the experiments in testing.
func (r *Replica) EvaluateExperiments(player experiment.Player) []Evaluation {
	active := r.gameConfig.Load().Value()
	if active == nil {
		return nil
	}

	policies := active.PlayerPolicies
	if active.Testers.Contains(player.ID) {
		policies = active.TesterPolicies
	}

	evaluations := make([]Evaluation, 0, len(policies))
	for _, policy := range policies {
		evaluations = append(evaluations, Evaluation{Policy: policy, Decision: policy.Evaluate(player)})
	}
	return evaluations
}

// Enroll selects a variant for an eligible player and records the assignment.
// ok is false when the player is not eligible.
func (r *Replica) Enroll(policy *experiment.Policy, player experiment.Player) (variantID string, ok bool) {
	if !policy.Evaluate(player).IsEligible() {
		return "", false
	}
	variantID = experiment.SelectVariant(policy, nil)
	r.RecordAssignmentDelta(policy.ExperimentID, variantID, 1)
	return variantID, true
}

// String returns a short description of the replica
func (r *Replica) String() string {
	return fmt.Sprintf("replica(%s, %s)", r.nodeID, r.State())
}

// WaitSynced blocks until the replica holds a snapshot of the global state or ctx is done
func (r *Replica) WaitSynced(ctx context.Context) error {
	if !r.started.Load() {
		return gerrors.ErrReplicaNotStarted
	}

	for {
		// every sync publishes the shared nonce after entering the Synced state
		snapshot := r.sharedNonce.Load()
		if r.State() == Synced {
			return nil
		}
		if _, err := r.sharedNonce.WaitNewer(ctx, snapshot); err != nil {
			return err
		}
	}
}
