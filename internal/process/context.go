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

	gerrors "github.com/tochemey/globalstate/errors"
)

type reply struct {
	value any
	err   error
}

// Context carries a message through the handler of a Process
type Context struct {
	ctx       context.Context
	message   any
	response  chan reply
	responded bool
}

func newContext(ctx context.Context, message any, expectReply bool) *Context {
	received := &Context{
		ctx:     ctx,
		message: message,
	}
	if expectReply {
		received.response = make(chan reply, 1)
	}
	return received
}

// Context returns the context of the sender.
// Cancellation of the sender does not interrupt the handler.
func (c *Context) Context() context.Context {
	return context.WithoutCancel(c.ctx)
}

// Message returns the message being handled
func (c *Context) Message() any {
	return c.message
}

// Respond sets the reply of an Ask. Only the first response is delivered.
func (c *Context) Respond(value any) {
	c.complete(reply{value: value})
}

// Err replies to an Ask with an error
func (c *Context) Err(err error) {
	c.complete(reply{err: err})
}

// Unhandled replies with ErrUnhandled
func (c *Context) Unhandled() {
	c.Err(gerrors.NewErrUnhandledMessage(c.message))
}

func (c *Context) complete(r reply) {
	if c.responded {
		return
	}
	c.responded = true
	if c.response != nil {
		c.response <- r
	}
}
