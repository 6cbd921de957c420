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
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/tochemey/globalstate/config"
	"github.com/tochemey/globalstate/log"
	"github.com/tochemey/globalstate/persistence"
	"github.com/tochemey/globalstate/state"
)

var testBuild = config.Build{MinSupportedLogicVersion: 1, MaxSupportedLogicVersion: 10}

type recordingSubscriber struct {
	id          string
	mu          sync.Mutex
	updates     []state.Update
	terminated  error
	failDeliver bool
}

func newRecordingSubscriber(id string) *recordingSubscriber {
	return &recordingSubscriber{id: id}
}

func (s *recordingSubscriber) ID() string {
	return s.id
}

func (s *recordingSubscriber) Deliver(update state.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeliver {
		return errors.New("subscriber is gone")
	}
	s.updates = append(s.updates, update)
	return nil
}

func (s *recordingSubscriber) Terminated(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = err
}

func (s *recordingSubscriber) Updates() []state.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]state.Update(nil), s.updates...)
}

func (s *recordingSubscriber) TerminatedWith() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications map[state.PlayerID]bool
	count         int
}

func (n *recordingNotifier) NotifyDeveloperStatus(_ context.Context, playerID state.PlayerID, isDeveloper bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.notifications == nil {
		n.notifications = make(map[state.PlayerID]bool)
	}
	n.notifications[playerID] = isDeveloper
	n.count++
	return nil
}

func (n *recordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

// countingStore counts the writes and fails them on demand
type countingStore struct {
	*persistence.MemoryStore
	writes  *atomic.Int64
	failing *atomic.Bool
}

func newCountingStore() *countingStore {
	return &countingStore{
		MemoryStore: persistence.NewMemoryStore(),
		writes:      atomic.NewInt64(0),
		failing:     atomic.NewBool(false),
	}
}

func (s *countingStore) Insert(ctx context.Context, record *persistence.Record) error {
	if s.failing.Load() {
		return errors.New("store is unavailable")
	}
	s.writes.Inc()
	return s.MemoryStore.Insert(ctx, record)
}

func (s *countingStore) Update(ctx context.Context, record *persistence.Record) error {
	if s.failing.Load() {
		return errors.New("store is unavailable")
	}
	s.writes.Inc()
	return s.MemoryStore.Update(ctx, record)
}

func startAuthority(t *testing.T, store persistence.Store, opts ...Option) *Authority {
	t.Helper()
	opts = append([]Option{WithLogger(log.DiscardLogger), WithSnapshotInterval(time.Hour)}, opts...)
	authority := New(testBuild, store, opts...)
	require.NoError(t, authority.Start(context.TODO()))
	return authority
}

func loadPersisted(t *testing.T, store persistence.Store) (*persistence.Record, *state.Aggregate) {
	t.Helper()
	record, err := store.Load(context.TODO(), PersistenceKey)
	require.NoError(t, err)
	agg, err := state.Decode(record.Payload, record.SchemaVersion)
	require.NoError(t, err)
	return record, agg
}

func snapshotOf(t *testing.T, authority *Authority) *state.Aggregate {
	t.Helper()
	subscriber := newRecordingSubscriber("snapshot-" + time.Now().String())
	snapshot, err := authority.Subscribe(context.TODO(), subscriber)
	require.NoError(t, err)
	require.NoError(t, authority.Unsubscribe(context.TODO(), subscriber.ID()))
	return snapshot.Aggregate
}
