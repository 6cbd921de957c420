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

// Package persistence defines the durable store of the Authority's state.
package persistence

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrKeyNotFound indicates that the specified key does not exist in the store
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyExists indicates that an insert failed because the key already exists
	ErrKeyExists = errors.New("key already exists")
	// ErrStoreClosed is returned by operations on a closed store
	ErrStoreClosed = errors.New("store is closed")
)

// Record is a persisted, versioned payload
type Record struct {
	Key string
	// Payload is opaque to the store
	Payload []byte
	// SchemaVersion is the schema version the payload was written with
	SchemaVersion int
	// IsFinal is set by the last write of a clean shutdown
	IsFinal     bool
	PersistedAt time.Time
}

// Store is a key-value store of records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the record stored under key or ErrKeyNotFound
	Load(ctx context.Context, key string) (*Record, error)
	// Insert stores a new record or fails with ErrKeyExists
	Insert(ctx context.Context, record *Record) error
	// Update replaces an existing record or fails with ErrKeyNotFound
	Update(ctx context.Context, record *Record) error
}
