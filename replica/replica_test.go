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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tochemey/globalstate/authority"
	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/experiment"
	"github.com/tochemey/globalstate/gameconfig"
	"github.com/tochemey/globalstate/internal/codec"
	"github.com/tochemey/globalstate/protocol"
	"github.com/tochemey/globalstate/state"
)

type barrier struct{}

// syncReplica waits until the replica has processed every message sent before
func syncReplica(t *testing.T, replica *Replica) {
	t.Helper()
	_, _ = replica.process.Ask(context.TODO(), barrier{}, time.Second)
}

func TestReplica(t *testing.T) {
	t.Run("With Start and Stop", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.TODO()
		auth := startAuthority(t)
		activateConfig(t, auth, "config-1", "dynamic-1")

		replica := startReplica(t, "node-1", auth, newResolver())
		assert.Equal(t, Synced, replica.State())
		assert.Equal(t, "replica(node-1, Synced)", replica.String())

		status, err := auth.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, status.NumSubscribers)

		require.NoError(t, replica.Stop(ctx))
		assert.Equal(t, Disconnected, replica.State())

		status, err = auth.Status(ctx)
		require.NoError(t, err)
		assert.Zero(t, status.NumSubscribers)

		require.NoError(t, auth.Stop(ctx))
	})
	t.Run("With WaitSynced before Start", func(t *testing.T) {
		replica := New("node-1", nil, gameconfig.NewStaticResolver())
		err := replica.WaitSynced(context.TODO())
		require.ErrorIs(t, err, gerrors.ErrReplicaNotStarted)
	})
	t.Run("With idempotent Start and Stop", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.TODO()
		auth := startAuthority(t)

		replica := startReplica(t, "node-1", auth, newResolver())
		require.NoError(t, replica.Start(ctx))
		require.NoError(t, replica.Stop(ctx))
		require.NoError(t, replica.Stop(ctx))
		require.NoError(t, auth.Stop(ctx))
	})
}

func TestReplicaDerivedValues(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.TODO()
	auth := startAuthority(t)
	activateConfig(t, auth, "config-1", "dynamic-1")
	require.NoError(t, auth.LocalizationActivated(ctx, "loc-1", map[string]string{"en": "hash-en"}))
	_, err := auth.SetDeveloperFlag(ctx, authority.DeveloperFlagRequest{PlayerID: 7, IsDeveloper: true, RequestedBy: 1})
	require.NoError(t, err)
	_, err = auth.AddBroadcast(ctx, state.BroadcastParams{
		Name:     "welcome",
		StartAt:  time.Now().Add(-time.Hour),
		EndAt:    time.Now().Add(time.Hour),
		Contents: map[string]string{"en": "hello"},
	})
	require.NoError(t, err)
	require.NoError(t, auth.SetGameTimeOffset(ctx, time.Hour))

	replica := startReplica(t, "node-1", auth, newResolver())

	t.Run("With compatibility settings", func(t *testing.T) {
		settings := replica.ActiveClientCompatibilitySettings().Load().Value()
		assert.Equal(t, state.LogicVersionRange{Min: 1, Max: 10}, settings.ActiveLogicVersionRange)
	})
	t.Run("With game config", func(t *testing.T) {
		active := replica.ActiveGameConfig().Load().Value()
		require.NotNil(t, active)
		assert.Equal(t, "config-1", active.Config.StaticID())
		assert.Equal(t, "economy-v1", active.Imports.Resources["economy"])
		assert.Empty(t, active.PlayerPolicies)
		assert.Len(t, active.TesterPolicies, 2)
		assert.Equal(t, "https://cdn.example.com/content/hash-config-1", active.DeliverySources.SharedGameConfig)
		assert.Equal(t, "https://cdn.example.com/content/patch-shop", active.DeliverySources.ExperimentPatches["shop"])
		assert.False(t, active.LatestUpdate.IsZero())
	})
	t.Run("With localizations", func(t *testing.T) {
		active := replica.ActiveLocalizations().Load().Value()
		require.NotNil(t, active)
		assert.Equal(t, "loc-1", active.ID)
		assert.Equal(t, "https://cdn.example.com/content/hash-en", active.Deliverables["en"])
	})
	t.Run("With developers", func(t *testing.T) {
		assert.True(t, replica.IsDeveloper(7))
		assert.False(t, replica.IsDeveloper(8))
	})
	t.Run("With broadcasts", func(t *testing.T) {
		active := replica.ActiveBroadcasts().Load().Value()
		require.Len(t, active.Messages, 1)
		assert.Equal(t, "welcome", active.Messages[0].Params.Name)
		assert.Len(t, active.ActiveAt(time.Now()), 1)
		assert.Empty(t, active.ActiveAt(time.Now().Add(2*time.Hour)))
	})
	t.Run("With game time", func(t *testing.T) {
		assert.Equal(t, time.Hour, replica.ActiveGameTimeOffset().Load().Value())
		assert.WithinDuration(t, time.Now().Add(time.Hour), replica.Now(), 5*time.Second)
	})
	t.Run("With maintenance", func(t *testing.T) {
		active := replica.ActiveMaintenanceMode().Load().Value()
		require.NotNil(t, active)
		assert.Nil(t, active.Scheduled)
		assert.False(t, active.IsInMaintenance)
	})
	t.Run("With shared nonce", func(t *testing.T) {
		assert.True(t, replica.ActiveSharedNonce().Load().IsSet())
		assert.NotEqual(t, state.SharedNonce{}, replica.ActiveSharedNonce().Load().Value())
	})

	require.NoError(t, replica.Stop(ctx))
	require.NoError(t, auth.Stop(ctx))
}

func TestReplicaUpdates(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.TODO()
	auth := startAuthority(t)
	activateConfig(t, auth, "config-1", "dynamic-1")
	replica := startReplica(t, "node-1", auth, newResolver())

	t.Run("With developer flag", func(t *testing.T) {
		before := replica.ActiveDevelopers().Load()
		_, err := auth.SetDeveloperFlag(ctx, authority.DeveloperFlagRequest{PlayerID: 42, IsDeveloper: true, RequestedBy: 1})
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		after, err := replica.ActiveDevelopers().WaitNewer(waitCtx, before)
		require.NoError(t, err)
		assert.True(t, after.Value().Contains(42))
	})
	t.Run("With compatibility settings", func(t *testing.T) {
		settings := state.ClientCompatibilitySettings{
			ActiveLogicVersionRange: state.LogicVersionRange{Min: 2, Max: 10},
			RedirectEnabled:         true,
			RedirectServer:          "next.example.com",
		}
		require.NoError(t, auth.UpdateCompatibilitySettings(ctx, settings))
		require.Eventually(t, func() bool {
			current := replica.ActiveClientCompatibilitySettings().Load().Value()
			return current.ActiveLogicVersionRange.Min == 2 && current.RedirectServer == "next.example.com"
		}, 5*time.Second, 10*time.Millisecond)
	})
	t.Run("With game time offset", func(t *testing.T) {
		require.NoError(t, auth.SetGameTimeOffset(ctx, 2*time.Hour))
		require.Eventually(t, func() bool {
			return replica.ActiveGameTimeOffset().Load().Value() == 2*time.Hour
		}, 5*time.Second, 10*time.Millisecond)
	})
	t.Run("With experiment phase change", func(t *testing.T) {
		ongoing := state.PhaseOngoing
		require.NoError(t, auth.UpdateExperiment(ctx, &authority.ExperimentChange{ExperimentID: "shop", Phase: &ongoing}))
		require.Eventually(t, func() bool {
			active := replica.ActiveGameConfig().Load().Value()
			return len(active.PlayerPolicies) == 1 && active.PlayerPolicies[0].ExperimentID == "shop"
		}, 5*time.Second, 10*time.Millisecond)
	})
	t.Run("With broadcast lifecycle", func(t *testing.T) {
		id, err := auth.AddBroadcast(ctx, state.BroadcastParams{Name: "news", Contents: map[string]string{"en": "news"}})
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return len(replica.ActiveBroadcasts().Load().Value().Messages) == 1
		}, 5*time.Second, 10*time.Millisecond)

		require.NoError(t, auth.DeleteBroadcast(ctx, id))
		require.Eventually(t, func() bool {
			return len(replica.ActiveBroadcasts().Load().Value().Messages) == 0
		}, 5*time.Second, 10*time.Millisecond)
	})
	t.Run("With localizations", func(t *testing.T) {
		require.NoError(t, auth.LocalizationActivated(ctx, "loc-2", map[string]string{"fr": "hash-fr"}))
		require.Eventually(t, func() bool {
			active := replica.ActiveLocalizations().Load().Value()
			return active != nil && active.ID == "loc-2"
		}, 5*time.Second, 10*time.Millisecond)
	})

	require.NoError(t, replica.Stop(ctx))
	require.NoError(t, auth.Stop(ctx))
}

func TestReplicaIgnoresStaleEpoch(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.TODO()
	auth := startAuthority(t)
	replica := startReplica(t, "node-1", auth, newResolver())

	stale := replica.currentEpoch - 1
	require.NoError(t, replica.process.Tell(ctx, updateReceived{epoch: stale, update: &state.UpdateGameTimeOffset{Offset: time.Hour}}))
	require.NoError(t, replica.process.Tell(ctx, subscriptionLost{epoch: stale, err: gerrors.ErrSubscriptionLost}))
	syncReplica(t, replica)

	assert.Zero(t, replica.ActiveGameTimeOffset().Load().Value())
	assert.Equal(t, Synced, replica.State())

	require.NoError(t, replica.Stop(ctx))
	require.NoError(t, auth.Stop(ctx))
}

func TestReplicaResubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.TODO()

	link := &switchableLink{}
	replica := New("node-1", link, newResolver(),
		WithLogger(testLogger),
		WithTickInterval(10*time.Millisecond),
		WithReportInterval(time.Hour),
		WithRuntimeSource(staticRuntime()))
	require.NoError(t, replica.Start(ctx))

	// nothing to subscribe to yet
	time.Sleep(50 * time.Millisecond)
	assert.NotEqual(t, Synced, replica.State())

	first := startAuthority(t)
	activateConfig(t, first, "config-1", "dynamic-1")
	link.Set(first)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, replica.WaitSynced(waitCtx))
	firstNonce := replica.ActiveSharedNonce().Load()

	// the authority goes away, the replica keeps serving its last values
	link.Set(nil)
	require.NoError(t, first.Stop(ctx))
	require.Eventually(t, func() bool { return replica.State() != Synced }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "config-1", replica.ActiveGameConfig().Load().Value().Config.StaticID())

	second := startAuthority(t)
	require.NoError(t, second.SetGameTimeOffset(ctx, time.Hour))
	link.Set(second)

	resynced, err := replica.ActiveSharedNonce().WaitNewer(waitCtx, firstNonce)
	require.NoError(t, err)
	assert.NotEqual(t, firstNonce.Value(), resynced.Value())
	assert.Equal(t, Synced, replica.State())
	assert.Equal(t, time.Hour, replica.ActiveGameTimeOffset().Load().Value())

	require.NoError(t, replica.Stop(ctx))
	require.NoError(t, second.Stop(ctx))
}

func TestReplicaResyncEquivalence(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.TODO()
	auth := startAuthority(t)
	early := startReplica(t, "early", auth, newResolver())

	recorder := &recordingSubscriber{id: "recorder"}
	initial, err := auth.Subscribe(ctx, recorder)
	require.NoError(t, err)

	activateConfig(t, auth, "config-1", "dynamic-1")
	require.NoError(t, auth.LocalizationActivated(ctx, "loc-1", map[string]string{"en": "hash-en"}))
	for _, playerID := range []state.PlayerID{1, 2, 3} {
		_, err := auth.SetDeveloperFlag(ctx, authority.DeveloperFlagRequest{PlayerID: playerID, IsDeveloper: true, RequestedBy: playerID})
		require.NoError(t, err)
	}
	_, err = auth.SetDeveloperFlag(ctx, authority.DeveloperFlagRequest{PlayerID: 2, IsDeveloper: false, RequestedBy: 2})
	require.NoError(t, err)
	first, err := auth.AddBroadcast(ctx, state.BroadcastParams{Name: "first", Contents: map[string]string{"en": "1"}})
	require.NoError(t, err)
	_, err = auth.AddBroadcast(ctx, state.BroadcastParams{Name: "second", Contents: map[string]string{"en": "2"}})
	require.NoError(t, err)
	require.NoError(t, auth.UpdateBroadcast(ctx, first, state.BroadcastParams{Name: "first-edited"}))
	ongoing := state.PhaseOngoing
	ratio := 500
	require.NoError(t, auth.UpdateExperiment(ctx, &authority.ExperimentChange{
		ExperimentID:         "shop",
		Phase:                &ongoing,
		RolloutRatioPermille: &ratio,
		AddTesters:           []state.PlayerID{9},
	}))
	require.NoError(t, auth.SetScheduledMaintenanceMode(ctx, state.ScheduledMaintenanceMode{
		StartAt:           time.Now().UTC().Add(time.Hour),
		EstimatedDuration: time.Hour,
	}))
	require.NoError(t, auth.SetGameTimeOffset(ctx, 30*time.Minute))

	final, err := auth.Subscribe(ctx, &recordingSubscriber{id: "final"})
	require.NoError(t, err)

	t.Run("With snapshot plus updates", func(t *testing.T) {
		replayed := initial.Aggregate
		for _, update := range recorder.Updates() {
			update.Apply(replayed)
		}

		// statistics are not replicated
		replayed.PlayerExperimentsStats = nil
		final.Aggregate.PlayerExperimentsStats = nil

		expected, err := codec.Default().Marshal(final.Aggregate)
		require.NoError(t, err)
		actual, err := codec.Default().Marshal(replayed)
		require.NoError(t, err)
		assert.Equal(t, expected, actual)
	})
	t.Run("With replicas synced at different times", func(t *testing.T) {
		late := startReplica(t, "late", auth, newResolver())
		defer func() { require.NoError(t, late.Stop(ctx)) }()

		require.Eventually(t, func() bool {
			return early.ActiveGameTimeOffset().Load().Value() == 30*time.Minute
		}, 5*time.Second, 10*time.Millisecond)

		assert.Equal(t, late.ActiveClientCompatibilitySettings().Load().Value(), early.ActiveClientCompatibilitySettings().Load().Value())
		assert.True(t, late.ActiveDevelopers().Load().Value().Equal(early.ActiveDevelopers().Load().Value()))
		assert.Equal(t, late.ActiveLocalizations().Load().Value(), early.ActiveLocalizations().Load().Value())
		assert.Equal(t, late.ActiveBroadcasts().Load().Value(), early.ActiveBroadcasts().Load().Value())
		assert.Equal(t, late.ActiveMaintenanceMode().Load().Value(), early.ActiveMaintenanceMode().Load().Value())
		assert.Equal(t, late.ActiveSharedNonce().Load().Value(), early.ActiveSharedNonce().Load().Value())

		earlyConfig := early.ActiveGameConfig().Load().Value()
		lateConfig := late.ActiveGameConfig().Load().Value()
		assert.Equal(t, lateConfig.DeliverySources, earlyConfig.DeliverySources)
		assert.True(t, lateConfig.Testers.Equal(earlyConfig.Testers))
		require.Len(t, earlyConfig.PlayerPolicies, 1)
		require.Len(t, lateConfig.PlayerPolicies, 1)
		assert.Equal(t, lateConfig.PlayerPolicies[0].RolloutRatioPermille, earlyConfig.PlayerPolicies[0].RolloutRatioPermille)
		assert.Equal(t, lateConfig.PlayerPolicies[0].Nonce, earlyConfig.PlayerPolicies[0].Nonce)
	})

	require.NoError(t, auth.Unsubscribe(ctx, "recorder"))
	require.NoError(t, early.Stop(ctx))
	require.NoError(t, auth.Stop(ctx))
}

func TestReplicaGameConfigResolution(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.TODO()
	auth := startAuthority(t)
	activateConfig(t, auth, "config-1", "dynamic-1")
	resolver := newResolver()
	replica := startReplica(t, "node-1", auth, resolver)

	published := replica.ActiveGameConfig().Load()
	require.Equal(t, "config-1", published.Value().Config.StaticID())

	// config-2 is unknown to the node
	activateConfig(t, auth, "config-2", "dynamic-2")
	require.NoError(t, auth.SetGameTimeOffset(ctx, time.Minute))
	require.Eventually(t, func() bool {
		return replica.ActiveGameTimeOffset().Load().Value() == time.Minute
	}, 5*time.Second, 10*time.Millisecond)
	syncReplica(t, replica)

	assert.True(t, replica.ActiveGameConfig().Load().SameVersion(published))

	resolver.Register(&gameconfig.StaticConfig{
		Static:  "config-2",
		Dynamic: "dynamic-2",
		Specs:   []gameconfig.ExperimentSpec{{ID: "shop", VariantIDs: []string{"cheap", "pricey"}}},
	}, nil)

	// the next tick retries the resolution
	require.Eventually(t, func() bool {
		active := replica.ActiveGameConfig().Load().Value()
		return active.Config.StaticID() == "config-2"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, replica.Stop(ctx))
	require.NoError(t, auth.Stop(ctx))
}

func TestReplicaMaintenance(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.TODO()
	clock := newTestClock(time.Now().UTC())
	auth := startAuthority(t)
	replica := startReplica(t, "node-1", auth, newResolver(), WithClock(clock.Now))

	require.NoError(t, auth.SetScheduledMaintenanceMode(ctx, state.ScheduledMaintenanceMode{
		StartAt:            clock.Now().Add(time.Hour),
		EstimatedDuration:  30 * time.Minute,
		PlatformExclusions: []string{"web"},
	}))

	require.Eventually(t, func() bool {
		active := replica.ActiveMaintenanceMode().Load().Value()
		return active.Scheduled != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.False(t, replica.ActiveMaintenanceMode().Load().Value().IsInMaintenance)

	// ticks pick up the start of the window
	clock.Advance(2 * time.Hour)
	require.Eventually(t, func() bool {
		return replica.ActiveMaintenanceMode().Load().Value().IsInMaintenance
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, replica.ActiveMaintenanceMode().Load().Value().Scheduled.IsPlatformExcluded("web"))

	require.NoError(t, auth.CancelScheduledMaintenanceMode(ctx))
	require.Eventually(t, func() bool {
		active := replica.ActiveMaintenanceMode().Load().Value()
		return active.Scheduled == nil && !active.IsInMaintenance
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, replica.Stop(ctx))
	require.NoError(t, auth.Stop(ctx))
}

func TestReplicaExperiments(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.TODO()
	auth := startAuthority(t)
	activateConfig(t, auth, "config-1", "dynamic-1")
	require.NoError(t, auth.UpdateExperiment(ctx, &authority.ExperimentChange{
		ExperimentID: "shop",
		AddTesters:   []state.PlayerID{100},
	}))
	replica := startReplica(t, "node-1", auth, newResolver())

	t.Run("With testers", func(t *testing.T) {
		assert.True(t, replica.IsTester(100))
		assert.False(t, replica.IsTester(101))

		evaluations := replica.EvaluateExperiments(experiment.Player{ID: 100})
		require.Len(t, evaluations, 2)
		assert.Equal(t, "shop", evaluations[0].Policy.ExperimentID)
		assert.Equal(t, experiment.EligibleAsTester, evaluations[0].Decision)
		assert.Equal(t, "tutorial", evaluations[1].Policy.ExperimentID)
		assert.Equal(t, experiment.RolloutDisabled, evaluations[1].Decision)
	})
	t.Run("With players", func(t *testing.T) {
		assert.Empty(t, replica.EvaluateExperiments(experiment.Player{ID: 101}))
	})
	t.Run("With enrollment", func(t *testing.T) {
		ongoing := state.PhaseOngoing
		require.NoError(t, auth.UpdateExperiment(ctx, &authority.ExperimentChange{ExperimentID: "shop", Phase: &ongoing}))
		require.Eventually(t, func() bool {
			return len(replica.ActiveGameConfig().Load().Value().PlayerPolicies) == 1
		}, 5*time.Second, 10*time.Millisecond)

		policy := replica.ActiveGameConfig().Load().Value().PlayerPolicies[0]
		for playerID := state.PlayerID(1); playerID <= 3; playerID++ {
			variantID, ok := replica.Enroll(policy, experiment.Player{ID: playerID})
			require.True(t, ok)
			assert.Contains(t, []string{state.ControlVariantID, "cheap", "pricey"}, variantID)
		}

		require.NoError(t, replica.FlushReports(ctx))
		exp, stats, err := auth.ExperimentStats(ctx, "shop")
		require.NoError(t, err)
		assert.Equal(t, 3, exp.NumPlayersInPopulation)

		var total int64
		for _, population := range stats.VariantPopulations {
			total += population
		}
		assert.EqualValues(t, 3, total)
	})
	t.Run("With ineligible player", func(t *testing.T) {
		paused := state.PhasePaused
		require.NoError(t, auth.UpdateExperiment(ctx, &authority.ExperimentChange{ExperimentID: "shop", Phase: &paused}))
		require.Eventually(t, func() bool {
			policies := replica.ActiveGameConfig().Load().Value().PlayerPolicies
			return len(policies) == 1 && !policies[0].RolloutEnabled
		}, 5*time.Second, 10*time.Millisecond)

		policy := replica.ActiveGameConfig().Load().Value().PlayerPolicies[0]
		_, ok := replica.Enroll(policy, experiment.Player{ID: 5})
		assert.False(t, ok)
	})

	require.NoError(t, replica.Stop(ctx))
	require.NoError(t, auth.Stop(ctx))
}

func TestReplicaReports(t *testing.T) {
	t.Run("With concurrent recording and flushing", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.TODO()
		auth := startAuthority(t)
		id, err := auth.AddBroadcast(ctx, state.BroadcastParams{Name: "news", Contents: map[string]string{"en": "news"}})
		require.NoError(t, err)
		replica := startReplica(t, "node-1", auth, newResolver(), WithReportInterval(5*time.Millisecond))

		const (
			workers   = 8
			perWorker = 250
		)

		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range perWorker {
					replica.RecordBroadcastConsumption(id)
					if i%50 == 0 {
						_ = replica.FlushReports(ctx)
					}
				}
			}()
		}
		wg.Wait()

		// Stop flushes whatever is left
		require.NoError(t, replica.Stop(ctx))

		status, err := auth.Status(ctx)
		require.NoError(t, err)
		require.Len(t, status.BroadcastMessages, 1)
		assert.EqualValues(t, workers*perWorker, status.BroadcastMessages[0].Stats.ReceivedCount)

		require.NoError(t, auth.Stop(ctx))
	})
	t.Run("With failing link", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.TODO()
		recorder := &batchRecorder{}
		link := &switchableLink{}
		replica := New("node-1", link, newResolver(), WithLogger(testLogger))

		replica.RecordBroadcastConsumption(1)
		replica.RecordBroadcastConsumption(1)
		replica.RecordAssignmentDelta("shop", "cheap", 1)
		replica.RecordAssignmentDelta("shop", "pricey", 1)
		replica.RecordAssignmentDelta("shop", "pricey", -1)

		err := replica.FlushReports(ctx)
		require.ErrorIs(t, err, errLinkDown)
		require.NotNil(t, replica.pendingBroadcasts)
		require.NotNil(t, replica.pendingAssignments)
		failed := replica.pendingBroadcasts.batch
		assert.Equal(t, map[int32]int64{1: 2}, replica.pendingBroadcasts.counts)
		assert.Equal(t, []protocol.AssignmentDelta{{ExperimentID: "shop", VariantID: "cheap", Delta: 1}}, replica.pendingAssignments.deltas)

		// recorded while the batch waits
		replica.RecordBroadcastConsumption(1)

		link.Set(recorder)
		require.NoError(t, replica.FlushReports(ctx))
		require.NoError(t, replica.FlushReports(ctx))
		assert.Nil(t, replica.pendingBroadcasts)
		assert.Nil(t, replica.pendingAssignments)

		batches := recorder.Broadcasts()
		require.Len(t, batches, 2)
		assert.Equal(t, failed, batches[0].batch)
		assert.Equal(t, map[int32]int64{1: 2}, batches[0].counts)
		assert.Equal(t, failed.Reporter, batches[1].batch.Reporter)
		assert.Greater(t, batches[1].batch.Seq, failed.Seq)
		assert.Equal(t, map[int32]int64{1: 1}, batches[1].counts)
	})
	t.Run("With lost replies", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.TODO()
		auth := startAuthority(t)
		activateConfig(t, auth, "config-1", "dynamic-1")
		id, err := auth.AddBroadcast(ctx, state.BroadcastParams{Name: "news", Contents: map[string]string{"en": "news"}})
		require.NoError(t, err)

		replica := New("node-1", newLostReplyLink(auth), newResolver(), WithLogger(testLogger))
		replica.RecordBroadcastConsumption(id)
		replica.RecordAssignmentDelta("shop", "cheap", 1)

		require.ErrorIs(t, replica.FlushReports(ctx), errReplyLost)
		require.NoError(t, replica.FlushReports(ctx))
		require.NoError(t, replica.FlushReports(ctx))

		status, err := auth.Status(ctx)
		require.NoError(t, err)
		require.Len(t, status.BroadcastMessages, 1)
		assert.EqualValues(t, 1, status.BroadcastMessages[0].Stats.ReceivedCount)

		_, stats, err := auth.ExperimentStats(ctx, "shop")
		require.NoError(t, err)
		assert.EqualValues(t, 1, stats.VariantPopulations["cheap"])

		require.NoError(t, auth.Stop(ctx))
	})
	t.Run("With nothing to report", func(t *testing.T) {
		replica := New("node-1", &switchableLink{}, newResolver(), WithLogger(testLogger))
		require.NoError(t, replica.FlushReports(context.TODO()))
	})
}

func TestToAssignmentDeltas(t *testing.T) {
	deltas := toAssignmentDeltas(map[assignmentKey]int64{
		{experimentID: "b", variantID: "x"}: 1,
		{experimentID: "a", variantID: "z"}: -2,
		{experimentID: "a", variantID: "y"}: 3,
	})
	require.Len(t, deltas, 3)
	assert.Equal(t, "a", deltas[0].ExperimentID)
	assert.Equal(t, "y", deltas[0].VariantID)
	assert.EqualValues(t, 3, deltas[0].Delta)
	assert.Equal(t, "z", deltas[1].VariantID)
	assert.Equal(t, "b", deltas[2].ExperimentID)
}

func TestDeliveryURL(t *testing.T) {
	assert.Empty(t, deliveryURL("https://cdn.example.com", ""))
	assert.Equal(t, "abc", deliveryURL("", "abc"))
	assert.Equal(t, "https://cdn.example.com/base/abc", deliveryURL("https://cdn.example.com/base/", "abc"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Disconnected", Disconnected.String())
	assert.Equal(t, "Subscribing", Subscribing.String())
	assert.Equal(t, "Synced", Synced.String())
}
