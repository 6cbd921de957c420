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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/log"
)

type counter struct {
	value int
}

type increment struct{}
type get struct{}
type boom struct{}
type fail struct{}

func (c *counter) Receive(ctx *Context) {
	switch ctx.Message().(type) {
	case increment:
		c.value++
	case get:
		ctx.Respond(c.value)
	case boom:
		panic("boom")
	case fail:
		ctx.Err(errors.New("failed"))
	default:
		ctx.Unhandled()
	}
}

func TestProcess(t *testing.T) {
	t.Run("handles messages one at a time", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.TODO()
		p := New("counter", &counter{}, log.DiscardLogger)

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 100 {
					assert.NoError(t, p.Tell(ctx, increment{}))
				}
			}()
		}
		wg.Wait()

		value, err := p.Ask(ctx, get{}, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1000, value)
		assert.EqualValues(t, 1001, p.ProcessedCount())

		require.NoError(t, p.Stop(ctx))
	})
	t.Run("recovers from panics", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.TODO()
		p := New("counter", &counter{}, log.DiscardLogger)

		_, err := p.Ask(ctx, boom{}, time.Second)
		var pe *gerrors.PanicError
		require.ErrorAs(t, err, &pe)

		// still alive
		value, err := p.Ask(ctx, get{}, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 0, value)
		require.NoError(t, p.Stop(ctx))
	})
	t.Run("returns handler errors", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.TODO()
		p := New("counter", &counter{}, log.DiscardLogger)

		_, err := p.Ask(ctx, fail{}, time.Second)
		require.EqualError(t, err, "failed")

		_, err = p.Ask(ctx, "unknown", time.Second)
		require.ErrorIs(t, err, gerrors.ErrUnhandled)

		value, err := p.Ask(ctx, increment{}, time.Second)
		require.NoError(t, err)
		assert.Nil(t, value)
		require.NoError(t, p.Stop(ctx))
	})
	t.Run("times out", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.TODO()
		release := make(chan struct{})
		p := New("slow", HandlerFunc(func(*Context) { <-release }), log.DiscardLogger)

		_, err := p.Ask(ctx, "wait", 10*time.Millisecond)
		require.ErrorIs(t, err, gerrors.ErrRequestTimeout)
		close(release)
		require.NoError(t, p.Stop(ctx))
	})
	t.Run("rejects messages once stopped", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.TODO()
		p := New("counter", &counter{}, log.DiscardLogger)
		require.NoError(t, p.Tell(ctx, increment{}))
		require.NoError(t, p.Stop(ctx))
		assert.False(t, p.IsRunning())

		require.ErrorIs(t, p.Tell(ctx, increment{}), gerrors.ErrDead)
		_, err := p.Ask(ctx, get{}, time.Second)
		require.ErrorIs(t, err, gerrors.ErrDead)
		assert.EqualValues(t, 1, p.ProcessedCount())
		// stopping twice is fine
		require.NoError(t, p.Stop(ctx))
	})
}
