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

// Package redis implements persistence.Store on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tochemey/globalstate/internal/codec"
	"github.com/tochemey/globalstate/persistence"
)

// Store implements persistence.Store using Redis strings
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ persistence.Store = (*Store)(nil)

// New creates a Store on top of client. Keys are namespaced with keyPrefix.
func New(client redis.UniversalClient, keyPrefix string) *Store {
	return &Store{client: client, keyPrefix: keyPrefix}
}

// Load implements persistence.Store
func (s *Store) Load(ctx context.Context, key string) (*persistence.Record, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis: get: %w", err)
	}

	record := new(persistence.Record)
	if err := codec.Default().Unmarshal(raw, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Insert implements persistence.Store
func (s *Store) Insert(ctx context.Context, record *persistence.Record) error {
	data, err := codec.Default().Marshal(record)
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, s.key(record.Key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis: setnx: %w", err)
	}
	if !created {
		return persistence.ErrKeyExists
	}
	return nil
}

// Update implements persistence.Store
func (s *Store) Update(ctx context.Context, record *persistence.Record) error {
	data, err := codec.Default().Marshal(record)
	if err != nil {
		return err
	}

	updated, err := s.client.SetXX(ctx, s.key(record.Key), data, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("redis: setxx: %w", err)
	}
	if !updated {
		return persistence.ErrKeyNotFound
	}
	return nil
}

func (s *Store) key(key string) string {
	return s.keyPrefix + key
}
