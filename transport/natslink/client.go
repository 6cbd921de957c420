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

package natslink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/internal/codec"
	"github.com/tochemey/globalstate/log"
	"github.com/tochemey/globalstate/protocol"
	"github.com/tochemey/globalstate/state"
)

const (
	retryInitialDelay = 50 * time.Millisecond
	retryMaxDelay     = time.Second
)

// Client is a protocol.Link to a remote Server
type Client struct {
	settings
	conn *nats.Conn

	mu      sync.Mutex
	streams map[string]*stream
}

var _ protocol.Link = (*Client)(nil)

// NewClient creates a Client sending its requests on conn
func NewClient(conn *nats.Conn, opts ...Option) *Client {
	return &Client{
		settings: newSettings(opts),
		conn:     conn,
		streams:  make(map[string]*stream),
	}
}

// Subscribe implements protocol.Link. Updates received before the snapshot are
// held back and handed to the subscriber once the snapshot is known.
func (c *Client) Subscribe(ctx context.Context, subscriber protocol.Subscriber) (*protocol.Snapshot, error) {
	inbox := c.subject(fmt.Sprintf("%s.%s", subjectInbox, uuid.NewString()))
	s := newStream(subscriber, c.keepAliveTimeout, c.logger)

	subscription, err := c.conn.Subscribe(inbox, s.handle)
	if err != nil {
		return nil, err
	}
	s.setSubscription(subscription)

	var response subscribeResponse
	request := &subscribeRequest{SubscriberID: subscriber.ID(), Inbox: inbox}
	if err := c.request(ctx, subjectSubscribe, request, &response); err != nil {
		s.close()
		return nil, err
	}

	aggregate, err := state.Decode(response.Aggregate, response.SchemaVersion)
	if err != nil {
		s.close()
		c.bestEffortUnsubscribe(ctx, subscriber.ID())
		return nil, err
	}

	c.mu.Lock()
	previous := c.streams[subscriber.ID()]
	c.streams[subscriber.ID()] = s
	c.mu.Unlock()
	if previous != nil {
		previous.close()
	}

	s.open()
	return &protocol.Snapshot{
		Aggregate:   aggregate,
		SharedNonce: response.SharedNonce,
		Epoch:       response.Epoch,
	}, nil
}

// Unsubscribe implements protocol.Link
func (c *Client) Unsubscribe(ctx context.Context, subscriberID string) error {
	c.mu.Lock()
	s, ok := c.streams[subscriberID]
	delete(c.streams, subscriberID)
	c.mu.Unlock()
	if ok {
		s.close()
	}
	return c.request(ctx, subjectUnsubscribe, &unsubscribeRequest{SubscriberID: subscriberID}, nil)
}

// ReportBroadcastConsumption implements protocol.Link
func (c *Client) ReportBroadcastConsumption(ctx context.Context, batch protocol.Batch, counts map[int32]int64) error {
	if len(counts) == 0 {
		return nil
	}
	return c.request(ctx, subjectReportBroadcasts, &broadcastReport{Batch: batch, Counts: counts}, nil)
}

// ReportExperimentAssignmentDeltas implements protocol.Link
func (c *Client) ReportExperimentAssignmentDeltas(ctx context.Context, batch protocol.Batch, deltas []protocol.AssignmentDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	return c.request(ctx, subjectReportAssignments, &assignmentReport{Batch: batch, Deltas: deltas}, nil)
}

// Close drops every local stream without notifying the Server
func (c *Client) Close() {
	c.mu.Lock()
	streams := c.streams
	c.streams = make(map[string]*stream)
	c.mu.Unlock()

	for _, s := range streams {
		s.close()
	}
}

// request sends payload and decodes the reply body into out. A request is only sent
// again when no Server was listening, so a request is never served twice.
func (c *Client) request(ctx context.Context, name string, payload, out any) error {
	data, err := codec.Default().Marshal(payload)
	if err != nil {
		return err
	}

	var (
		response reply
		fatal    error
	)

	retrier := retry.NewRetrier(c.retries, retryInitialDelay, retryMaxDelay)
	err = retrier.RunContext(ctx, func(ctx context.Context) error {
		requestCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()

		msg, err := c.conn.RequestWithContext(requestCtx, c.subject(name), data)
		switch {
		case errors.Is(err, nats.ErrNoResponders):
			return err
		case err != nil:
			fatal = err
			return nil
		}

		fatal = codec.Default().Unmarshal(msg.Data, &response)
		return nil
	})

	switch {
	case err != nil:
		return err
	case fatal != nil:
		return fatal
	}

	if err := response.err(); err != nil {
		return err
	}
	if out != nil {
		return codec.Default().Unmarshal(response.Body, out)
	}
	return nil
}

func (c *Client) bestEffortUnsubscribe(ctx context.Context, subscriberID string) {
	if err := c.request(ctx, subjectUnsubscribe, &unsubscribeRequest{SubscriberID: subscriberID}, nil); err != nil {
		c.logger.Debugf("failed to unsubscribe %s: %v", subscriberID, err)
	}
}

// stream turns the envelopes of an inbox back into the ordered update stream.
// Once open, a stream that hears nothing for keepAliveTimeout is lost.
type stream struct {
	mu               sync.Mutex
	subscriber       protocol.Subscriber
	subscription     *nats.Subscription
	logger           log.Logger
	keepAliveTimeout time.Duration
	watchdog         *time.Timer
	lastSeen         time.Time
	opened           bool
	closed           bool
	nextSeq          uint64
	pending          []*envelope
}

func newStream(subscriber protocol.Subscriber, keepAliveTimeout time.Duration, logger log.Logger) *stream {
	return &stream{
		subscriber:       subscriber,
		logger:           logger,
		keepAliveTimeout: keepAliveTimeout,
		nextSeq:          1,
	}
}

func (s *stream) setSubscription(subscription *nats.Subscription) {
	s.mu.Lock()
	s.subscription = subscription
	s.mu.Unlock()
}

func (s *stream) handle(msg *nats.Msg) {
	env := new(envelope)
	decodeErr := codec.Default().Unmarshal(msg.Data, env)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = time.Now()
	switch {
	case s.closed:
		return
	case decodeErr != nil:
		s.terminate(fmt.Errorf("%w: undecodable envelope: %v", gerrors.ErrSubscriptionLost, decodeErr))
	case env.Kind == kindKeepAlive:
		return
	case !s.opened:
		s.pending = append(s.pending, env)
	default:
		s.dispatch(env)
	}
}

// open hands the held back envelopes over and switches to direct delivery
func (s *stream) open() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.opened = true
	s.lastSeen = time.Now()
	s.watchdog = time.AfterFunc(s.keepAliveTimeout, s.expire)
	pending := s.pending
	s.pending = nil
	for _, env := range pending {
		if s.closed {
			return
		}
		s.dispatch(env)
	}
}

func (s *stream) dispatch(env *envelope) {
	if env.Seq != s.nextSeq {
		s.terminate(fmt.Errorf("%w: expected sequence %d, received %d", gerrors.ErrSubscriptionLost, s.nextSeq, env.Seq))
		return
	}
	s.nextSeq++

	if env.Kind == kindTerminated {
		s.terminate(env.terminationError())
		return
	}

	update, err := state.UnmarshalUpdate(state.UpdateKind(env.Kind), env.Body)
	if err != nil {
		s.terminate(fmt.Errorf("%w: %v", gerrors.ErrSubscriptionLost, err))
		return
	}

	if err := s.subscriber.Deliver(update); err != nil {
		s.logger.Warnf("subscriber %s refused update %s: %v", s.subscriber.ID(), env.Kind, err)
		s.shutdown()
	}
}

// expire ends the stream when the inbox stayed silent for too long
func (s *stream) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if silence := time.Since(s.lastSeen); silence < s.keepAliveTimeout {
		s.watchdog.Reset(s.keepAliveTimeout - silence)
		return
	}
	s.terminate(fmt.Errorf("%w: no message from the authority for %s", gerrors.ErrSubscriptionLost, s.keepAliveTimeout))
}

func (s *stream) terminate(err error) {
	s.shutdown()
	s.subscriber.Terminated(err)
}

func (s *stream) shutdown() {
	s.closed = true
	s.pending = nil
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	if s.subscription != nil && s.subscription.IsValid() {
		_ = s.subscription.Unsubscribe()
	}
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown()
}
