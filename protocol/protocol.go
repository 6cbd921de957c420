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

// Package protocol defines the handshake between the Authority and its replicas.
//
// A replica subscribes through a Link and receives a Snapshot of the whole Aggregate.
// Every later mutation of the Aggregate is then delivered to the Subscriber in the order
// the Authority applied it. When a subscription cannot be continued the Subscriber is
// terminated and the replica has to subscribe again.
package protocol

import (
	"context"

	"github.com/tochemey/globalstate/state"
)

// Snapshot is the full state handed to a new subscriber
type Snapshot struct {
	// Aggregate is a private copy owned by the subscriber
	Aggregate *state.Aggregate
	// SharedNonce is the cluster secret of the running Authority
	SharedNonce state.SharedNonce
	// Epoch identifies the subscription at the Authority.
	// It increases with every subscription the Authority accepts.
	Epoch uint64
}

// Subscriber receives the ordered update stream of a subscription
type Subscriber interface {
	// ID identifies the subscriber. Subscribing again with the same ID replaces
	// the previous subscription.
	ID() string
	// Deliver hands over the next update. It must not block.
	// An error ends the subscription.
	Deliver(update state.Update) error
	// Terminated is called once when the subscription ends on the Authority side
	Terminated(err error)
}

// AssignmentDelta is the change of population of one experiment variant
type AssignmentDelta struct {
	ExperimentID string
	VariantID    string
	Delta        int64
}

// Batch identifies one drained batch of statistics of a replica. A batch sent again
// after an ambiguous failure keeps its Seq and is merged at most once.
type Batch struct {
	// Reporter identifies the sending replica instance. An empty Reporter
	// disables the duplicate check.
	Reporter string
	// Seq increases with every new batch of the Reporter
	Seq uint64
}

// Link connects a replica to the Authority
type Link interface {
	// Subscribe registers the subscriber and returns the snapshot the update
	// stream starts from
	Subscribe(ctx context.Context, subscriber Subscriber) (*Snapshot, error)
	// Unsubscribe removes the subscriber with the given id
	Unsubscribe(ctx context.Context, subscriberID string) error
	// ReportBroadcastConsumption adds the given per-broadcast receive counts
	ReportBroadcastConsumption(ctx context.Context, batch Batch, counts map[int32]int64) error
	// ReportExperimentAssignmentDeltas adds the given population deltas
	ReportExperimentAssignmentDeltas(ctx context.Context, batch Batch, deltas []AssignmentDelta) error
}
