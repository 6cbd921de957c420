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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/tochemey/globalstate/authority"
	"github.com/tochemey/globalstate/config"
	"github.com/tochemey/globalstate/gameconfig"
	"github.com/tochemey/globalstate/log"
	"github.com/tochemey/globalstate/persistence"
	"github.com/tochemey/globalstate/protocol"
	"github.com/tochemey/globalstate/state"
)

var (
	testBuild  = config.Build{MinSupportedLogicVersion: 1, MaxSupportedLogicVersion: 10}
	testLogger = log.DiscardLogger
)

func testRuntime() config.Runtime {
	runtime := config.DefaultRuntime()
	runtime.EnableTimeSkip = true
	runtime.CDNBaseURL = "https://cdn.example.com/content"
	return runtime
}

func staticRuntime() config.Source {
	return config.NewStaticSource(testRuntime())
}

func startAuthority(t *testing.T) *authority.Authority {
	t.Helper()
	auth := authority.New(testBuild, persistence.NewMemoryStore(),
		authority.WithLogger(testLogger),
		authority.WithSnapshotInterval(time.Hour),
		authority.WithRuntimeSource(staticRuntime()))
	require.NoError(t, auth.Start(context.TODO()))
	return auth
}

func newResolver() *gameconfig.StaticResolver {
	resolver := gameconfig.NewStaticResolver()
	resolver.Register(&gameconfig.StaticConfig{
		Static:  "config-1",
		Dynamic: "dynamic-1",
		Specs: []gameconfig.ExperimentSpec{
			{ID: "shop", VariantIDs: []string{"cheap", "pricey"}},
			{ID: "tutorial", VariantIDs: []string{"short"}},
		},
	}, map[string]string{"economy": "economy-v1"})
	return resolver
}

func activateConfig(t *testing.T, auth *authority.Authority, staticID, dynamicID string) {
	t.Helper()
	require.NoError(t, auth.GameConfigActivated(context.TODO(), &authority.Activation{
		StaticGameConfigID:  staticID,
		DynamicGameConfigID: dynamicID,
		Deliverables:        "hash-" + staticID,
		PatchHashes:         map[string]string{"shop": "patch-shop"},
		Experiments: []gameconfig.ExperimentSpec{
			{ID: "shop", VariantIDs: []string{"cheap", "pricey"}},
			{ID: "tutorial", VariantIDs: []string{"short"}},
		},
	}))
}

func startReplica(t *testing.T, nodeID string, link protocol.Link, resolver gameconfig.Resolver, opts ...Option) *Replica {
	t.Helper()
	opts = append([]Option{
		WithLogger(testLogger),
		WithTickInterval(10 * time.Millisecond),
		WithReportInterval(time.Hour),
		WithRuntimeSource(staticRuntime()),
	}, opts...)

	replica := New(nodeID, link, resolver, opts...)
	require.NoError(t, replica.Start(context.TODO()))

	ctx, cancel := context.WithTimeout(context.TODO(), 5*time.Second)
	defer cancel()
	require.NoError(t, replica.WaitSynced(ctx))
	return replica
}

// switchableLink forwards to a link that can be replaced or taken down
type switchableLink struct {
	mu   sync.Mutex
	link protocol.Link
}

var errLinkDown = errors.New("link is down")

func (s *switchableLink) current() (protocol.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == nil {
		return nil, errLinkDown
	}
	return s.link, nil
}

func (s *switchableLink) Set(link protocol.Link) {
	s.mu.Lock()
	s.link = link
	s.mu.Unlock()
}

func (s *switchableLink) Subscribe(ctx context.Context, subscriber protocol.Subscriber) (*protocol.Snapshot, error) {
	link, err := s.current()
	if err != nil {
		return nil, err
	}
	return link.Subscribe(ctx, subscriber)
}

func (s *switchableLink) Unsubscribe(ctx context.Context, subscriberID string) error {
	link, err := s.current()
	if err != nil {
		return err
	}
	return link.Unsubscribe(ctx, subscriberID)
}

func (s *switchableLink) ReportBroadcastConsumption(ctx context.Context, batch protocol.Batch, counts map[int32]int64) error {
	link, err := s.current()
	if err != nil {
		return err
	}
	return link.ReportBroadcastConsumption(ctx, batch, counts)
}

func (s *switchableLink) ReportExperimentAssignmentDeltas(ctx context.Context, batch protocol.Batch, deltas []protocol.AssignmentDelta) error {
	link, err := s.current()
	if err != nil {
		return err
	}
	return link.ReportExperimentAssignmentDeltas(ctx, batch, deltas)
}

// lostReplyLink merges reports at the Authority and fails the first reply of each kind,
// as a link does when the reply times out after the report was served
type lostReplyLink struct {
	*authority.Authority
	lostBroadcasts  *atomic.Bool
	lostAssignments *atomic.Bool
}

var errReplyLost = errors.New("reply lost")

func newLostReplyLink(auth *authority.Authority) *lostReplyLink {
	return &lostReplyLink{
		Authority:       auth,
		lostBroadcasts:  atomic.NewBool(false),
		lostAssignments: atomic.NewBool(false),
	}
}

func (l *lostReplyLink) ReportBroadcastConsumption(ctx context.Context, batch protocol.Batch, counts map[int32]int64) error {
	if err := l.Authority.ReportBroadcastConsumption(ctx, batch, counts); err != nil {
		return err
	}
	if l.lostBroadcasts.CompareAndSwap(false, true) {
		return errReplyLost
	}
	return nil
}

func (l *lostReplyLink) ReportExperimentAssignmentDeltas(ctx context.Context, batch protocol.Batch, deltas []protocol.AssignmentDelta) error {
	if err := l.Authority.ReportExperimentAssignmentDeltas(ctx, batch, deltas); err != nil {
		return err
	}
	if l.lostAssignments.CompareAndSwap(false, true) {
		return errReplyLost
	}
	return nil
}

// batchRecorder keeps the report batches it receives
type batchRecorder struct {
	switchableLink
	mu         sync.Mutex
	broadcasts []broadcastBatch
}

func (b *batchRecorder) ReportBroadcastConsumption(_ context.Context, batch protocol.Batch, counts map[int32]int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcasts = append(b.broadcasts, broadcastBatch{batch: batch, counts: counts})
	return nil
}

func (b *batchRecorder) ReportExperimentAssignmentDeltas(context.Context, protocol.Batch, []protocol.AssignmentDelta) error {
	return nil
}

func (b *batchRecorder) Broadcasts() []broadcastBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastBatch(nil), b.broadcasts...)
}

// recordingSubscriber keeps the updates it receives
type recordingSubscriber struct {
	id      string
	mu      sync.Mutex
	updates []state.Update
}

func (s *recordingSubscriber) ID() string { return s.id }

func (s *recordingSubscriber) Deliver(update state.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update)
	return nil
}

func (s *recordingSubscriber) Terminated(error) {}

func (s *recordingSubscriber) Updates() []state.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]state.Update(nil), s.updates...)
}

type testClock struct {
	now *atomic.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: atomic.NewTime(now)}
}

func (c *testClock) Now() time.Time {
	return c.now.Load()
}

func (c *testClock) Advance(d time.Duration) {
	c.now.Store(c.now.Load().Add(d))
}
