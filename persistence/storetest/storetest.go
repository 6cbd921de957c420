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

// Package storetest holds the behavior every persistence.Store must have.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/globalstate/persistence"
)

// Run checks the Store contract against stores built by newStore.
// Each subtest gets its own store.
func Run(t *testing.T, newStore func(t *testing.T) persistence.Store) {
	t.Helper()
	ctx := context.TODO()
	persistedAt := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	t.Run("Load unknown key", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Load(ctx, "missing")
		require.ErrorIs(t, err, persistence.ErrKeyNotFound)
	})
	t.Run("Insert then Load", func(t *testing.T) {
		store := newStore(t)
		record := &persistence.Record{
			Key:           "global-state",
			Payload:       []byte("payload"),
			SchemaVersion: 3,
			PersistedAt:   persistedAt,
		}
		require.NoError(t, store.Insert(ctx, record))

		loaded, err := store.Load(ctx, "global-state")
		require.NoError(t, err)
		assert.Equal(t, record.Payload, loaded.Payload)
		assert.Equal(t, 3, loaded.SchemaVersion)
		assert.False(t, loaded.IsFinal)
		assert.True(t, persistedAt.Equal(loaded.PersistedAt))
	})
	t.Run("Insert twice", func(t *testing.T) {
		store := newStore(t)
		record := &persistence.Record{Key: "global-state", Payload: []byte("a")}
		require.NoError(t, store.Insert(ctx, record))
		require.ErrorIs(t, store.Insert(ctx, record), persistence.ErrKeyExists)
	})
	t.Run("Update", func(t *testing.T) {
		store := newStore(t)
		require.ErrorIs(t, store.Update(ctx, &persistence.Record{Key: "global-state"}), persistence.ErrKeyNotFound)

		require.NoError(t, store.Insert(ctx, &persistence.Record{Key: "global-state", Payload: []byte("a"), SchemaVersion: 2}))
		require.NoError(t, store.Update(ctx, &persistence.Record{Key: "global-state", Payload: []byte("b"), SchemaVersion: 3, IsFinal: true}))

		loaded, err := store.Load(ctx, "global-state")
		require.NoError(t, err)
		assert.Equal(t, []byte("b"), loaded.Payload)
		assert.Equal(t, 3, loaded.SchemaVersion)
		assert.True(t, loaded.IsFinal)
	})
	t.Run("Load returns a copy", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, &persistence.Record{Key: "global-state", Payload: []byte("abc")}))

		loaded, err := store.Load(ctx, "global-state")
		require.NoError(t, err)
		loaded.Payload[0] = 'x'

		again, err := store.Load(ctx, "global-state")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), again.Payload)
	})
}
