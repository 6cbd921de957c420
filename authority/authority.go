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

// Package authority implements the singleton owner of the global state.
//
// The Authority loads the Aggregate from its store, reconciles it with the running
// build and then serves every read and mutation through a single mailbox, so that
// no two requests ever interleave. Each mutation is persisted and then published
// to the subscribed replicas as the very update the Authority applied to itself.
package authority

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/tochemey/globalstate/config"
	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/internal/process"
	"github.com/tochemey/globalstate/internal/scheduler"
	"github.com/tochemey/globalstate/log"
	"github.com/tochemey/globalstate/persistence"
	"github.com/tochemey/globalstate/protocol"
	"github.com/tochemey/globalstate/state"
	"github.com/tochemey/globalstate/telemetry"
)

// PersistenceKey is the key of the global state record
const PersistenceKey = "global-state"

const (
	defaultAskTimeout     = 5 * time.Second
	defaultPersistRetries = 3
	schedulerStopTimeout  = 5 * time.Second
)

// Lifecycle is the lifecycle state of the Authority
type Lifecycle int32

const (
	Uninitialized Lifecycle = iota
	Loading
	PostLoadReconciliation
	Running
	ShuttingDown
	Stopped
)

// String returns the string representation of the lifecycle state
func (l Lifecycle) String() string {
	switch l {
	case Uninitialized:
		return "Uninitialized"
	case Loading:
		return "Loading"
	case PostLoadReconciliation:
		return "PostLoadReconciliation"
	case Running:
		return "Running"
	case ShuttingDown:
		return "ShuttingDown"
	case Stopped:
		return "Stopped"
	default:
		return fmt.Sprintf("Lifecycle(%d)", int32(l))
	}
}

// PlayerNotifier tells a player about a change of its developer status.
// The developer set is also published to every replica; the notification only
// shortens the delay for the affected player and may race with that publication.
type PlayerNotifier interface {
	NotifyDeveloperStatus(ctx context.Context, playerID state.PlayerID, isDeveloper bool) error
}

// Authority owns the Aggregate
type Authority struct {
	build            config.Build
	store            persistence.Store
	runtime          config.Source
	notifier         PlayerNotifier
	logger           log.Logger
	telemetry        *telemetry.Telemetry
	metrics          *telemetry.AuthorityMetrics
	snapshotInterval time.Duration
	askTimeout       time.Duration
	persistRetries   int
	clock            func() time.Time

	lifecycle *atomic.Int32
	process   *process.Process
	scheduler *scheduler.Scheduler

	// the fields below are only accessed by the process
	aggregate   *state.Aggregate
	subscribers map[string]*subscription
	epoch       uint64
	hasRecord   bool
	batches     map[batchKey]uint64
}

// batchKey identifies the report stream of one replica instance
type batchKey struct {
	reporter string
	kind     string
}

type subscription struct {
	subscriber protocol.Subscriber
	epoch      uint64
}

var _ protocol.Link = (*Authority)(nil)

// New creates an Authority for the given build on top of store
func New(build config.Build, store persistence.Store, opts ...Option) *Authority {
	authority := &Authority{
		build:            build,
		store:            store,
		runtime:          config.NewStaticSource(config.DefaultRuntime()),
		logger:           log.DefaultLogger,
		snapshotInterval: config.DefaultRuntime().SnapshotInterval,
		askTimeout:       defaultAskTimeout,
		persistRetries:   defaultPersistRetries,
		clock:            time.Now,
		lifecycle:        atomic.NewInt32(int32(Uninitialized)),
		subscribers:      make(map[string]*subscription),
		batches:          make(map[batchKey]uint64),
	}

	for _, opt := range opts {
		opt.Apply(authority)
	}

	if authority.logger == nil {
		authority.logger = log.DiscardLogger
	}
	if authority.telemetry == nil {
		authority.telemetry = telemetry.New()
	}
	return authority
}

// Lifecycle returns the current lifecycle state
func (a *Authority) Lifecycle() Lifecycle {
	return Lifecycle(a.lifecycle.Load())
}

// IsRunning returns true when the Authority serves requests
func (a *Authority) IsRunning() bool {
	return a.Lifecycle() == Running
}

// Start loads and reconciles the global state and starts serving requests.
// A supported version rollback or an unsupported schema version fails the start.
func (a *Authority) Start(ctx context.Context) error {
	if !a.lifecycle.CompareAndSwap(int32(Uninitialized), int32(Loading)) {
		return fmt.Errorf("authority cannot start from the %s state", a.Lifecycle())
	}

	if err := a.build.Validate(); err != nil {
		a.lifecycle.Store(int32(Uninitialized))
		return err
	}

	metrics, err := telemetry.NewAuthorityMetrics(a.telemetry.Meter)
	if err != nil {
		a.lifecycle.Store(int32(Uninitialized))
		return err
	}
	a.metrics = metrics

	if err := a.load(ctx); err != nil {
		a.lifecycle.Store(int32(Uninitialized))
		return err
	}

	a.lifecycle.Store(int32(PostLoadReconciliation))
	if err := reconcile(a.aggregate, a.build, a.runtime.Runtime(), !a.hasRecord, a.logger); err != nil {
		a.lifecycle.Store(int32(Uninitialized))
		return err
	}

	// the reconciled state is written once before serving
	if err := a.persist(ctx, false); err != nil {
		a.logger.Errorf("initial persist of the global state failed: %v", err)
	}

	a.process = process.New("global-state-authority", process.HandlerFunc(a.receive), a.logger)
	a.scheduler = scheduler.New(a.logger, schedulerStopTimeout)
	a.scheduler.Start(ctx)
	if err := a.scheduler.Schedule(snapshotTick{}, a.process, a.snapshotInterval); err != nil {
		a.scheduler.Stop(ctx)
		_ = a.process.Stop(ctx)
		a.lifecycle.Store(int32(Uninitialized))
		return err
	}

	a.lifecycle.Store(int32(Running))
	a.logger.Infof("authority started (schema version=%d, supported logic versions=%s)",
		a.aggregate.SchemaVersion, a.build.SupportedRange())
	return nil
}

// Stop persists the final state, terminates every subscription and stops serving requests
func (a *Authority) Stop(ctx context.Context) error {
	if !a.lifecycle.CompareAndSwap(int32(Running), int32(ShuttingDown)) {
		return nil
	}

	a.scheduler.Stop(ctx)

	_, err := a.process.Ask(ctx, shutdown{}, a.askTimeout)
	if stopErr := a.process.Stop(ctx); stopErr != nil {
		err = errors.Join(err, stopErr)
	}

	a.lifecycle.Store(int32(Stopped))
	a.logger.Info("authority stopped")
	return err
}

func (a *Authority) load(ctx context.Context) error {
	record, err := a.store.Load(ctx, PersistenceKey)
	switch {
	case errors.Is(err, persistence.ErrKeyNotFound):
		a.logger.Info("no persisted global state found, starting from defaults")
		a.aggregate = state.NewAggregate()
		a.hasRecord = false
	case err != nil:
		return fmt.Errorf("failed to load the global state: %w", err)
	default:
		aggregate, err := state.Decode(record.Payload, record.SchemaVersion)
		if err != nil {
			return err
		}

		if !record.IsFinal {
			a.logger.Warn("the previous authority did not shut down cleanly")
		}

		a.aggregate = aggregate
		a.hasRecord = true
	}

	if a.build.MaxSupportedLogicVersion < a.aggregate.LastSupportedMaxLogicVersion {
		return gerrors.NewErrSupportedVersionRollback(a.aggregate.LastSupportedMaxLogicVersion, a.build.MaxSupportedLogicVersion)
	}
	return nil
}

func (a *Authority) now() time.Time {
	return a.clock().UTC()
}

func (a *Authority) ask(ctx context.Context, message any) (any, error) {
	if !a.IsRunning() {
		return nil, gerrors.ErrAuthorityNotRunning
	}
	return a.process.Ask(ctx, message, a.askTimeout)
}

func (a *Authority) tell(ctx context.Context, message any) error {
	if !a.IsRunning() {
		return gerrors.ErrAuthorityNotRunning
	}
	return a.process.Tell(ctx, message)
}

// Status returns a summary of the global state
func (a *Authority) Status(ctx context.Context) (*Status, error) {
	reply, err := a.ask(ctx, getStatus{})
	if err != nil {
		return nil, err
	}
	return reply.(*Status), nil
}

// UpdateCompatibilitySettings replaces the client compatibility settings.
// The accepted logic version range must lie within the range supported by the build.
func (a *Authority) UpdateCompatibilitySettings(ctx context.Context, settings state.ClientCompatibilitySettings) error {
	_, err := a.ask(ctx, updateCompatibilitySettings{settings: settings.Clone()})
	return err
}

// AddBroadcast adds a broadcast message and returns its id
func (a *Authority) AddBroadcast(ctx context.Context, params state.BroadcastParams) (int32, error) {
	reply, err := a.ask(ctx, addBroadcast{params: params})
	if err != nil {
		return 0, err
	}
	return reply.(int32), nil
}

// UpdateBroadcast replaces the parameters of a broadcast message.
// Updating an unknown broadcast is a no-op.
func (a *Authority) UpdateBroadcast(ctx context.Context, id int32, params state.BroadcastParams) error {
	_, err := a.ask(ctx, updateBroadcast{id: id, params: params})
	return err
}

// DeleteBroadcast deletes a broadcast message.
// Deleting an unknown broadcast is a no-op.
func (a *Authority) DeleteBroadcast(ctx context.Context, id int32) error {
	_, err := a.ask(ctx, deleteBroadcast{id: id})
	return err
}

// SetDeveloperFlag flags or unflags a player as developer
func (a *Authority) SetDeveloperFlag(ctx context.Context, request DeveloperFlagRequest) (DeveloperFlagResult, error) {
	reply, err := a.ask(ctx, setDeveloperFlag{request: request})
	if err != nil {
		return Changed, err
	}
	return reply.(DeveloperFlagResult), nil
}

// SetGameTimeOffset sets the offset added to the wall clock to get the game time.
// It requires time skipping to be enabled and the offset can never decrease.
func (a *Authority) SetGameTimeOffset(ctx context.Context, offset time.Duration) error {
	_, err := a.ask(ctx, setGameTimeOffset{offset: offset})
	return err
}

// GameConfigActivated switches the active game config and synchronizes the experiments
func (a *Authority) GameConfigActivated(ctx context.Context, activation *Activation) error {
	if activation == nil {
		return gerrors.NewValidationError("Activation", errors.New("activation is required"))
	}
	_, err := a.ask(ctx, gameConfigActivated{activation: activation})
	return err
}

// LocalizationActivated switches the active localizations
func (a *Authority) LocalizationActivated(ctx context.Context, localizationsID string, perLanguageHashes map[string]string) error {
	_, err := a.ask(ctx, localizationActivated{localizationsID: localizationsID, perLanguageHashes: perLanguageHashes})
	return err
}

// SetScheduledMaintenanceMode schedules a maintenance window
func (a *Authority) SetScheduledMaintenanceMode(ctx context.Context, mode state.ScheduledMaintenanceMode) error {
	_, err := a.ask(ctx, setMaintenance{mode: mode.Clone()})
	return err
}

// CancelScheduledMaintenanceMode cancels the scheduled maintenance window
func (a *Authority) CancelScheduledMaintenanceMode(ctx context.Context) error {
	_, err := a.ask(ctx, setMaintenance{})
	return err
}

// UpdateExperiment applies an administrative change to an experiment
func (a *Authority) UpdateExperiment(ctx context.Context, change *ExperimentChange) error {
	if change == nil {
		return gerrors.NewErrInvalidExperimentChange("ExperimentChange", "change is required")
	}
	_, err := a.ask(ctx, updateExperiment{change: change})
	return err
}

// ExperimentStats returns a copy of the rollout state and statistics of an experiment
func (a *Authority) ExperimentStats(ctx context.Context, experimentID string) (*state.Experiment, *state.ExperimentStats, error) {
	reply, err := a.ask(ctx, getExperiment{experimentID: experimentID})
	if err != nil {
		return nil, nil, err
	}
	report := reply.(*experimentReport)
	return report.experiment, report.stats, nil
}

// Subscribe implements protocol.Link
func (a *Authority) Subscribe(ctx context.Context, subscriber protocol.Subscriber) (*protocol.Snapshot, error) {
	reply, err := a.ask(ctx, subscribe{subscriber: subscriber})
	if err != nil {
		return nil, err
	}
	return reply.(*protocol.Snapshot), nil
}

// Unsubscribe implements protocol.Link
func (a *Authority) Unsubscribe(ctx context.Context, subscriberID string) error {
	_, err := a.ask(ctx, unsubscribe{subscriberID: subscriberID})
	return err
}

// ReportBroadcastConsumption implements protocol.Link
func (a *Authority) ReportBroadcastConsumption(ctx context.Context, batch protocol.Batch, counts map[int32]int64) error {
	if len(counts) == 0 {
		return nil
	}
	return a.tell(ctx, reportBroadcastConsumption{batch: batch, counts: counts})
}

// ReportExperimentAssignmentDeltas implements protocol.Link
func (a *Authority) ReportExperimentAssignmentDeltas(ctx context.Context, batch protocol.Batch, deltas []protocol.AssignmentDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	return a.tell(ctx, reportAssignmentDeltas{batch: batch, deltas: deltas})
}
