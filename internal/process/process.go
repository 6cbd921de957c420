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

package process

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	uatomic "go.uber.org/atomic"

	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/internal/mailbox"
	"github.com/tochemey/globalstate/log"
)

// processing states
const (
	idle int32 = iota
	busy
)

// Handler handles the messages of a Process one at a time
type Handler interface {
	Receive(ctx *Context)
}

// HandlerFunc adapts a function into a Handler
type HandlerFunc func(ctx *Context)

// Receive calls the underlying function
func (f HandlerFunc) Receive(ctx *Context) {
	f(ctx)
}

// Process owns a Handler and feeds it the messages of its mailbox, strictly one at a time.
// Processing only happens on a goroutine started when the mailbox transitions from
// empty to non-empty, so an idle Process holds no goroutine.
type Process struct {
	name       string
	handler    Handler
	mailbox    *mailbox.Unbounded[*Context]
	processing atomic.Int32
	running    *uatomic.Bool
	processed  *uatomic.Uint64
	logger     log.Logger
}

// New creates a running Process
func New(name string, handler Handler, logger log.Logger) *Process {
	if logger == nil {
		logger = log.DiscardLogger
	}

	p := &Process{
		name:      name,
		handler:   handler,
		mailbox:   mailbox.NewUnbounded[*Context](),
		running:   uatomic.NewBool(true),
		processed: uatomic.NewUint64(0),
		logger:    logger.With("process", name),
	}
	p.processing.Store(idle)
	return p
}

// Name returns the process name
func (p *Process) Name() string {
	return p.name
}

// IsRunning returns true when the process accepts messages
func (p *Process) IsRunning() bool {
	return p.running.Load()
}

// ProcessedCount returns the number of handled messages
func (p *Process) ProcessedCount() uint64 {
	return p.processed.Load()
}

// Tell sends an asynchronous message to the process
func (p *Process) Tell(ctx context.Context, message any) error {
	if !p.IsRunning() {
		return gerrors.ErrDead
	}
	return p.doReceive(newContext(ctx, message, false))
}

// Ask sends a message to the process and waits for its reply until the timeout elapses
// or ctx is done.
func (p *Process) Ask(ctx context.Context, message any, timeout time.Duration) (any, error) {
	if !p.IsRunning() {
		return nil, gerrors.ErrDead
	}

	received := newContext(ctx, message, true)
	if err := p.doReceive(received); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-received.response:
		return r.value, r.err
	case <-timer.C:
		return nil, gerrors.ErrRequestTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop stops accepting messages and waits for the messages already enqueued to be handled
func (p *Process) Stop(ctx context.Context) error {
	if !p.running.CompareAndSwap(true, false) {
		return nil
	}

	p.mailbox.Dispose()
	for {
		for p.processing.Load() != idle {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				runtime.Gosched()
			}
		}

		if p.mailbox.IsEmpty() {
			return nil
		}
		p.process()
	}
}

func (p *Process) doReceive(received *Context) error {
	if !p.mailbox.Enqueue(received) {
		return gerrors.ErrMailboxDisposed
	}
	p.process()
	return nil
}

// process drains the mailbox on a single goroutine
func (p *Process) process() {
	// only start a loop when transitioning from idle to busy
	if !p.processing.CompareAndSwap(idle, busy) {
		return
	}

	go func() {
		for {
			if received, ok := p.mailbox.Dequeue(); ok {
				p.handle(received)
				continue
			}

			p.processing.Store(idle)

			// new messages may have been added in the meantime
			if !p.mailbox.IsEmpty() && p.processing.CompareAndSwap(idle, busy) {
				continue
			}
			return
		}
	}()
}

func (p *Process) handle(received *Context) {
	defer p.recovery(received)
	p.processed.Inc()
	p.handler.Receive(received)
	// an Ask the handler did not answer completes without a value
	received.complete(reply{})
}

func (p *Process) recovery(received *Context) {
	r := recover()
	if r == nil {
		return
	}

	pc, fn, line, _ := runtime.Caller(2)
	var err error
	switch cause := r.(type) {
	case error:
		var pe *gerrors.PanicError
		if errors.As(cause, &pe) {
			err = pe
			break
		}
		err = gerrors.NewPanicError(fmt.Errorf("%w at %s[%s:%d]", cause, runtime.FuncForPC(pc).Name(), fn, line))
	default:
		err = gerrors.NewPanicError(fmt.Errorf("%#v at %s[%s:%d]", r, runtime.FuncForPC(pc).Name(), fn, line))
	}

	p.logger.Errorf("handler panicked while handling %T: %v", received.Message(), err)
	received.complete(reply{err: err})
}
