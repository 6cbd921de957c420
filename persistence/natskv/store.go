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

// Package natskv implements persistence.Store on a NATS JetStream key-value bucket,
// so that a newly elected Authority finds the state wherever it starts.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tochemey/globalstate/internal/codec"
	"github.com/tochemey/globalstate/persistence"
)

// Config configures the store
type Config struct {
	// URL of the NATS server
	URL string
	// Bucket is the key-value bucket name
	Bucket string
	// ConnectTimeout bounds the connection attempt
	ConnectTimeout time.Duration
	// Replicas is the number of bucket replicas
	Replicas int
}

// Store implements persistence.Store on a JetStream key-value bucket
type Store struct {
	conn    *nats.Conn
	kv      nats.KeyValue
	ownConn bool
}

var _ persistence.Store = (*Store)(nil)

// Open connects to NATS and binds (or creates) the bucket
func Open(config *Config) (*Store, error) {
	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	conn, err := nats.Connect(config.URL, nats.Timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("natskv: connect: %w", err)
	}

	store, err := New(conn, config.Bucket, config.Replicas)
	if err != nil {
		conn.Close()
		return nil, err
	}
	store.ownConn = true
	return store, nil
}

// New binds (or creates) the bucket on an existing connection
func New(conn *nats.Conn, bucket string, replicas int) (*Store, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("natskv: jetstream: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:   bucket,
			History:  1,
			Replicas: max(replicas, 1),
		})
		// another node may have created the bucket concurrently
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			kv, err = js.KeyValue(bucket)
		}
		if err != nil {
			return nil, fmt.Errorf("natskv: create bucket: %w", err)
		}
	}

	return &Store{conn: conn, kv: kv}, nil
}

// Load implements persistence.Store
func (s *Store) Load(ctx context.Context, key string) (*persistence.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry, err := s.kv.Get(toKey(key))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted) {
			return nil, persistence.ErrKeyNotFound
		}
		return nil, fmt.Errorf("natskv: get: %w", err)
	}

	record := new(persistence.Record)
	if err := codec.Default().Unmarshal(entry.Value(), record); err != nil {
		return nil, err
	}
	return record, nil
}

// Insert implements persistence.Store
func (s *Store) Insert(ctx context.Context, record *persistence.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := codec.Default().Marshal(record)
	if err != nil {
		return err
	}

	if _, err := s.kv.Create(toKey(record.Key), data); err != nil {
		if isRevisionConflict(err) {
			return persistence.ErrKeyExists
		}
		return fmt.Errorf("natskv: create: %w", err)
	}
	return nil
}

// Update implements persistence.Store.
// The write is conditioned on the revision read, so a concurrent writer makes it fail.
func (s *Store) Update(ctx context.Context, record *persistence.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := toKey(record.Key)
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted) {
			return persistence.ErrKeyNotFound
		}
		return fmt.Errorf("natskv: get: %w", err)
	}

	data, err := codec.Default().Marshal(record)
	if err != nil {
		return err
	}

	if _, err := s.kv.Update(key, data, entry.Revision()); err != nil {
		return fmt.Errorf("natskv: update: %w", err)
	}
	return nil
}

// Close closes the connection when the store owns it
func (s *Store) Close() {
	if s.ownConn {
		s.conn.Close()
	}
}

// toKey maps a record key onto the characters allowed in NATS KV keys
func toKey(key string) string {
	return strings.NewReplacer(" ", "_", "*", "_", ">", "_").Replace(key)
}

// isRevisionConflict returns true when the NATS error indicates a revision mismatch
func isRevisionConflict(err error) bool {
	if errors.Is(err, nats.ErrKeyExists) {
		return true
	}
	var apiErr *nats.APIError
	return errors.As(err, &apiErr) && apiErr != nil && apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence
}
