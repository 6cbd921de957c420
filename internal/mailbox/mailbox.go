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

package mailbox

import (
	"sync/atomic"
)

// cacheLinePadding prevents false sharing between CPU cache lines
type cacheLinePadding [64]byte

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Unbounded is a lock-free multi-producer, single-consumer (MPSC) FIFO queue.
//
// Many goroutines may call Enqueue concurrently while exactly one goroutine
// calls Dequeue. Ordering is preserved with respect to overall arrival order.
//
// The zero value is not ready for use; always construct via NewUnbounded.
//
// Reference: https://concurrencyfreaks.blogspot.com/2014/04/multi-producer-single-consumer-queue.html
type Unbounded[T any] struct {
	// consumer side
	head atomic.Pointer[node[T]]
	_    cacheLinePadding

	// producer side
	tail atomic.Pointer[node[T]]
	_    cacheLinePadding

	disposed atomic.Bool
}

// NewUnbounded returns an initialized Unbounded mailbox
func NewUnbounded[T any]() *Unbounded[T] {
	stub := new(node[T])
	m := new(Unbounded[T])
	m.head.Store(stub)
	m.tail.Store(stub)
	return m
}

// Enqueue appends value to the tail of the mailbox.
// It returns false once the mailbox has been disposed.
func (m *Unbounded[T]) Enqueue(value T) bool {
	if m.disposed.Load() {
		return false
	}

	item := &node[T]{value: value}
	prev := m.tail.Swap(item)
	prev.next.Store(item)
	return true
}

// Dequeue removes and returns the message at the head of the mailbox.
// ok is false when the mailbox is empty. Must only be called by the consumer.
func (m *Unbounded[T]) Dequeue() (value T, ok bool) {
	head := m.head.Load()
	next := head.next.Load()
	if next == nil {
		return value, false
	}

	m.head.Store(next)
	value = next.value
	var zero T
	next.value = zero
	return value, true
}

// IsEmpty reports whether the mailbox currently holds no messages.
// The result may become stale immediately in the presence of concurrent producers.
func (m *Unbounded[T]) IsEmpty() bool {
	return m.head.Load().next.Load() == nil
}

// Len returns an approximate number of messages in the mailbox. It is O(n).
func (m *Unbounded[T]) Len() int64 {
	var count int64
	for current := m.head.Load().next.Load(); current != nil; current = current.next.Load() {
		count++
	}
	return count
}

// Dispose stops the mailbox from accepting new messages.
// Messages already enqueued can still be dequeued.
func (m *Unbounded[T]) Dispose() {
	m.disposed.Store(true)
}
