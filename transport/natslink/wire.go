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

// Package natslink carries the replication protocol over NATS.
//
// A Server exposes a protocol.Link, usually the Authority, on a set of request subjects.
// A Client implements protocol.Link on a remote node. Every subscription gets its own
// inbox on which the Server publishes the update stream as sequenced envelopes, plus
// unsequenced keepalives. A gap in the sequence, a terminated notice or a silent inbox
// ends the subscription on the Client side.
package natslink

import (
	"errors"
	"fmt"

	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/protocol"
	"github.com/tochemey/globalstate/state"
)

const (
	subjectSubscribe          = "subscribe"
	subjectUnsubscribe        = "unsubscribe"
	subjectReportBroadcasts   = "report.broadcasts"
	subjectReportAssignments  = "report.assignments"
	subjectInbox              = "inbox"
	kindTerminated            = "terminated"
	kindKeepAlive             = "keepalive"
	reasonAuthorityTerminated = "authority_terminated"
	reasonSubscriptionLost    = "subscription_lost"
	codeAuthorityNotRunning   = "authority_not_running"
	codeInvalidRequest        = "invalid_request"
	codeInternal              = "internal"
)

// ErrRemote is returned when the Server fails to serve a request
var ErrRemote = errors.New("natslink: remote request failed")

// envelope is one message of an update stream. Keepalives carry no sequence number.
type envelope struct {
	Kind   string
	Seq    uint64
	Body   []byte `cbor:",omitempty"`
	Reason string `cbor:",omitempty"`
}

func (e *envelope) terminationError() error {
	if e.Reason == reasonAuthorityTerminated {
		return gerrors.ErrAuthorityTerminated
	}
	return gerrors.ErrSubscriptionLost
}

func terminationReason(err error) string {
	if errors.Is(err, gerrors.ErrAuthorityTerminated) {
		return reasonAuthorityTerminated
	}
	return reasonSubscriptionLost
}

type subscribeRequest struct {
	SubscriberID string
	Inbox        string
}

type subscribeResponse struct {
	SchemaVersion int
	Aggregate     []byte
	SharedNonce   state.SharedNonce
	Epoch         uint64
}

type unsubscribeRequest struct {
	SubscriberID string
}

type broadcastReport struct {
	Batch  protocol.Batch
	Counts map[int32]int64
}

type assignmentReport struct {
	Batch  protocol.Batch
	Deltas []protocol.AssignmentDelta
}

// reply answers every request. An empty Code means success.
type reply struct {
	Code    string `cbor:",omitempty"`
	Message string `cbor:",omitempty"`
	Body    []byte `cbor:",omitempty"`
}

func errorReply(err error) *reply {
	code := codeInternal
	var validationErr *gerrors.ValidationError
	switch {
	case errors.Is(err, gerrors.ErrAuthorityNotRunning):
		code = codeAuthorityNotRunning
	case errors.As(err, &validationErr):
		code = codeInvalidRequest
	}
	return &reply{Code: code, Message: err.Error()}
}

func (r *reply) err() error {
	switch r.Code {
	case "":
		return nil
	case codeAuthorityNotRunning:
		return fmt.Errorf("%w: %s", gerrors.ErrAuthorityNotRunning, r.Message)
	default:
		return fmt.Errorf("%w (%s): %s", ErrRemote, r.Code, r.Message)
	}
}
