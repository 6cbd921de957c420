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

package replica

import (
	"context"

	"github.com/tochemey/globalstate/protocol"
	"github.com/tochemey/globalstate/state"
)

type updateReceived struct {
	epoch  uint64
	update state.Update
}

type subscriptionLost struct {
	epoch uint64
	err   error
}

type tick struct{}

// subscriber forwards the update stream of one subscription to the replica process.
// Every message is tagged with the subscription epoch so that messages of a replaced
// subscription are ignored.
type subscriber struct {
	replica *Replica
	epoch   uint64
}

var _ protocol.Subscriber = (*subscriber)(nil)

func (s *subscriber) ID() string {
	return s.replica.nodeID
}

func (s *subscriber) Deliver(update state.Update) error {
	return s.replica.process.Tell(context.Background(), updateReceived{epoch: s.epoch, update: update})
}

func (s *subscriber) Terminated(err error) {
	_ = s.replica.process.Tell(context.Background(), subscriptionLost{epoch: s.epoch, err: err})
}
