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

// Package bolt implements persistence.Store on top of a local bbolt file.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	bbolt "go.etcd.io/bbolt"
	"go.uber.org/atomic"

	"github.com/tochemey/globalstate/internal/codec"
	"github.com/tochemey/globalstate/persistence"
)

const (
	fileMode   os.FileMode = 0o600
	bucketName             = "globalstate"
)

var defaultOptions = &bbolt.Options{Timeout: 5 * time.Second, NoGrowSync: true}

// Store implements persistence.Store using go.etcd.io/bbolt.
// bbolt gives single-writer multi-reader semantics, so only the closed state is guarded.
type Store struct {
	db     *bbolt.DB
	bucket []byte
	closed *atomic.Bool
}

var _ persistence.Store = (*Store)(nil)

// Open opens (or creates) the database file at path
func Open(path string) (*Store, error) {
	options := *defaultOptions
	db, err := bbolt.Open(path, fileMode, &options)
	if err != nil {
		return nil, fmt.Errorf("bolt: opening %s: %w", path, err)
	}

	bucket := []byte(bucketName)
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucket)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: initializing bucket: %w", err)
	}

	return &Store{db: db, bucket: bucket, closed: atomic.NewBool(false)}, nil
}

// Load implements persistence.Store
func (s *Store) Load(ctx context.Context, key string) (*persistence.Record, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var raw []byte
	if err := s.db.View(func(tx *bbolt.Tx) error {
		// bbolt values are only valid for the life of the transaction
		raw = slices.Clone(tx.Bucket(s.bucket).Get([]byte(key)))
		return nil
	}); err != nil {
		return nil, err
	}

	if raw == nil {
		return nil, persistence.ErrKeyNotFound
	}

	record := new(persistence.Record)
	if err := codec.Default().Unmarshal(raw, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Insert implements persistence.Store
func (s *Store) Insert(ctx context.Context, record *persistence.Record) error {
	return s.put(ctx, record, func(existing []byte) error {
		if existing != nil {
			return persistence.ErrKeyExists
		}
		return nil
	})
}

// Update implements persistence.Store
func (s *Store) Update(ctx context.Context, record *persistence.Record) error {
	return s.put(ctx, record, func(existing []byte) error {
		if existing == nil {
			return persistence.ErrKeyNotFound
		}
		return nil
	})
}

// Close releases the underlying database handle
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) put(ctx context.Context, record *persistence.Record, precondition func(existing []byte) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	data, err := codec.Default().Marshal(record)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("bolt: bucket %q missing", s.bucket)
		}
		if err := precondition(bucket.Get([]byte(record.Key))); err != nil {
			return err
		}
		return bucket.Put([]byte(record.Key), data)
	})
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return persistence.ErrStoreClosed
	}
	if ctx != nil {
		return ctx.Err()
	}
	return nil
}

// IsClosed returns true when err comes from a closed store
func IsClosed(err error) bool {
	return errors.Is(err, persistence.ErrStoreClosed) || errors.Is(err, bbolt.ErrDatabaseNotOpen)
}
