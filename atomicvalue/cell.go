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

// Package atomicvalue provides a single-writer many-reader cell that exposes
// immutable, versioned snapshots without locking on the read path.
package atomicvalue

import (
	"context"

	"go.uber.org/atomic"
)

// Snapshot is an immutable value published into a Cell.
// Two snapshots are equal when their versions are equal; values are never compared.
type Snapshot[T any] struct {
	version uint64
	value   T
	changed chan struct{}
}

// Version returns the snapshot version. Version 0 means nothing was published yet.
func (s *Snapshot[T]) Version() uint64 {
	return s.version
}

// Value returns the published value. Callers must treat it as read-only.
func (s *Snapshot[T]) Value() T {
	return s.value
}

// IsSet returns true when the snapshot holds a published value
func (s *Snapshot[T]) IsSet() bool {
	return s.version > 0
}

// SameVersion returns true when both snapshots come from the same publication
func (s *Snapshot[T]) SameVersion(other *Snapshot[T]) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.version == other.version
}

// Changed returns a channel closed as soon as a newer snapshot is published
func (s *Snapshot[T]) Changed() <-chan struct{} {
	return s.changed
}

// Cell holds the latest Snapshot of a value
type Cell[T any] struct {
	current *atomic.Pointer[Snapshot[T]]
	version *atomic.Uint64
}

// New creates a Cell holding an unset snapshot
func New[T any]() *Cell[T] {
	return &Cell[T]{
		current: atomic.NewPointer(&Snapshot[T]{changed: make(chan struct{})}),
		version: atomic.NewUint64(0),
	}
}

// Publish swaps in a new snapshot of value and wakes the readers waiting on the previous one
func (c *Cell[T]) Publish(value T) *Snapshot[T] {
	next := &Snapshot[T]{
		version: c.version.Inc(),
		value:   value,
		changed: make(chan struct{}),
	}

	previous := c.current.Swap(next)
	close(previous.changed)
	return next
}

// Load returns the latest snapshot. It never blocks.
func (c *Cell[T]) Load() *Snapshot[T] {
	return c.current.Load()
}

// Changed returns a channel closed on the next publication
func (c *Cell[T]) Changed() <-chan struct{} {
	return c.Load().Changed()
}

// WaitNewer blocks until a snapshot newer than after is published or ctx is done.
// A nil after waits for the first publication.
func (c *Cell[T]) WaitNewer(ctx context.Context, after *Snapshot[T]) (*Snapshot[T], error) {
	for {
		current := c.Load()
		if (after == nil && current.IsSet()) || (after != nil && current.version > after.version) {
			return current, nil
		}

		select {
		case <-current.Changed():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
