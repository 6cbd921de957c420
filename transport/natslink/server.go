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
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/internal/codec"
	"github.com/tochemey/globalstate/internal/scheduler"
	"github.com/tochemey/globalstate/log"
	"github.com/tochemey/globalstate/protocol"
	"github.com/tochemey/globalstate/state"
)

const schedulerStopTimeout = 5 * time.Second

// Server serves a protocol.Link to remote replicas
type Server struct {
	settings
	conn *nats.Conn
	link protocol.Link

	mu            sync.Mutex
	started       *atomic.Bool
	subscriptions []*nats.Subscription
	scheduler     *scheduler.Scheduler

	remotesMu sync.Mutex
	remotes   map[string]*remoteSubscriber
}

// NewServer creates a Server answering on conn on behalf of link
func NewServer(conn *nats.Conn, link protocol.Link, opts ...Option) *Server {
	return &Server{
		settings: newSettings(opts),
		conn:     conn,
		link:     link,
		started:  atomic.NewBool(false),
		remotes:  make(map[string]*remoteSubscriber),
	}
}

// Start subscribes to the request subjects and starts signaling the live subscriptions
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.Load() {
		return nil
	}

	handlers := []struct {
		subject string
		handler nats.MsgHandler
	}{
		{subjectSubscribe, s.handleSubscribe},
		{subjectUnsubscribe, s.handleUnsubscribe},
		{subjectReportBroadcasts, s.handleBroadcastReport},
		{subjectReportAssignments, s.handleAssignmentReport},
	}

	for _, h := range handlers {
		subscription, err := s.conn.Subscribe(s.subject(h.subject), h.handler)
		if err != nil {
			_ = s.unsubscribeAll()
			return err
		}
		s.subscriptions = append(s.subscriptions, subscription)
	}

	if err := s.conn.Flush(); err != nil {
		_ = s.unsubscribeAll()
		return err
	}

	ctx := context.Background()
	s.scheduler = scheduler.New(s.logger, schedulerStopTimeout)
	s.scheduler.Start(ctx)
	if err := s.scheduler.ScheduleFunc(s.sendKeepAlives, s.keepAliveInterval); err != nil {
		s.scheduler.Stop(ctx)
		_ = s.unsubscribeAll()
		return err
	}

	s.started.Store(true)
	s.logger.Infof("global state link serving on %s.>", s.prefix)
	return nil
}

// Stop stops serving requests. Remote subscriptions stay registered at the link.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Load() {
		return nil
	}
	s.started.Store(false)
	s.scheduler.Stop(context.Background())

	s.remotesMu.Lock()
	s.remotes = make(map[string]*remoteSubscriber)
	s.remotesMu.Unlock()
	return s.unsubscribeAll()
}

// sendKeepAlives signals every live subscription and forgets the terminated ones
func (s *Server) sendKeepAlives(context.Context) error {
	s.remotesMu.Lock()
	remotes := make([]*remoteSubscriber, 0, len(s.remotes))
	for id, remote := range s.remotes {
		if remote.terminated.Load() {
			delete(s.remotes, id)
			continue
		}
		remotes = append(remotes, remote)
	}
	s.remotesMu.Unlock()

	for _, remote := range remotes {
		if err := remote.publish(&envelope{Kind: kindKeepAlive}); err != nil {
			s.logger.Debugf("failed to signal remote subscriber %s: %v", remote.id, err)
		}
	}
	return nil
}

func (s *Server) unsubscribeAll() error {
	var err error
	for _, subscription := range s.subscriptions {
		if subscription.IsValid() {
			err = multierr.Append(err, subscription.Unsubscribe())
		}
	}
	s.subscriptions = nil
	return err
}

func (s *Server) handleSubscribe(msg *nats.Msg) {
	var request subscribeRequest
	if err := codec.Default().Unmarshal(msg.Data, &request); err != nil {
		s.respond(msg, nil, gerrors.NewValidationError("SubscribeRequest", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()

	remote := newRemoteSubscriber(s.conn, request, s.logger)
	snapshot, err := s.link.Subscribe(ctx, remote)
	if err != nil {
		s.respond(msg, nil, err)
		return
	}

	payload, err := state.Encode(snapshot.Aggregate)
	if err != nil {
		s.respond(msg, nil, gerrors.NewInternalError(err))
		return
	}

	s.remotesMu.Lock()
	s.remotes[remote.id] = remote
	s.remotesMu.Unlock()

	s.logger.Debugf("remote subscriber %s subscribed on %s", request.SubscriberID, request.Inbox)
	s.respond(msg, &subscribeResponse{
		SchemaVersion: snapshot.Aggregate.SchemaVersion,
		Aggregate:     payload,
		SharedNonce:   snapshot.SharedNonce,
		Epoch:         snapshot.Epoch,
	}, nil)
}

func (s *Server) handleUnsubscribe(msg *nats.Msg) {
	var request unsubscribeRequest
	if err := codec.Default().Unmarshal(msg.Data, &request); err != nil {
		s.respond(msg, nil, gerrors.NewValidationError("UnsubscribeRequest", err))
		return
	}

	s.remotesMu.Lock()
	delete(s.remotes, request.SubscriberID)
	s.remotesMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	s.respond(msg, nil, s.link.Unsubscribe(ctx, request.SubscriberID))
}

func (s *Server) handleBroadcastReport(msg *nats.Msg) {
	var report broadcastReport
	if err := codec.Default().Unmarshal(msg.Data, &report); err != nil {
		s.respond(msg, nil, gerrors.NewValidationError("BroadcastReport", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	s.respond(msg, nil, s.link.ReportBroadcastConsumption(ctx, report.Batch, report.Counts))
}

func (s *Server) handleAssignmentReport(msg *nats.Msg) {
	var report assignmentReport
	if err := codec.Default().Unmarshal(msg.Data, &report); err != nil {
		s.respond(msg, nil, gerrors.NewValidationError("AssignmentReport", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	s.respond(msg, nil, s.link.ReportExperimentAssignmentDeltas(ctx, report.Batch, report.Deltas))
}

func (s *Server) respond(msg *nats.Msg, body any, err error) {
	if msg.Reply == "" {
		return
	}

	response := &reply{}
	if err != nil {
		s.logger.Warnf("failed to serve %s: %v", msg.Subject, err)
		response = errorReply(err)
	} else if body != nil {
		payload, marshalErr := codec.Default().Marshal(body)
		if marshalErr != nil {
			response = errorReply(gerrors.NewInternalError(marshalErr))
		} else {
			response.Body = payload
		}
	}

	data, err := codec.Default().Marshal(response)
	if err != nil {
		s.logger.Errorf("failed to encode reply to %s: %v", msg.Subject, err)
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warnf("failed to reply to %s: %v", msg.Subject, err)
	}
}

// remoteSubscriber publishes the update stream of one subscription to its inbox
type remoteSubscriber struct {
	id         string
	inbox      string
	conn       *nats.Conn
	seq        *atomic.Uint64
	terminated *atomic.Bool
	logger     log.Logger
}

var _ protocol.Subscriber = (*remoteSubscriber)(nil)

func newRemoteSubscriber(conn *nats.Conn, request subscribeRequest, logger log.Logger) *remoteSubscriber {
	return &remoteSubscriber{
		id:         request.SubscriberID,
		inbox:      request.Inbox,
		conn:       conn,
		seq:        atomic.NewUint64(0),
		terminated: atomic.NewBool(false),
		logger:     logger,
	}
}

func (r *remoteSubscriber) ID() string {
	return r.id
}

func (r *remoteSubscriber) Deliver(update state.Update) error {
	body, err := state.MarshalUpdate(update)
	if err != nil {
		return err
	}
	return r.publish(&envelope{Kind: string(update.Kind()), Seq: r.seq.Inc(), Body: body})
}

func (r *remoteSubscriber) Terminated(err error) {
	r.terminated.Store(true)
	if publishErr := r.publish(&envelope{Kind: kindTerminated, Seq: r.seq.Inc(), Reason: terminationReason(err)}); publishErr != nil {
		r.logger.Warnf("failed to notify remote subscriber %s of its termination: %v", r.id, publishErr)
	}
}

func (r *remoteSubscriber) publish(env *envelope) error {
	data, err := codec.Default().Marshal(env)
	if err != nil {
		return err
	}
	return r.conn.Publish(r.inbox, data)
}
