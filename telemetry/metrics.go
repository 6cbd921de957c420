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

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	mutationsCounterName         = "globalstate.authority.mutations"
	persistsCounterName          = "globalstate.authority.persists"
	persistFailuresCounterName   = "globalstate.authority.persist.failures"
	subscribersGaugeName         = "globalstate.authority.subscribers"
	recomputationsCounterName    = "globalstate.replica.recomputations"
	recomputeFailuresCounterName = "globalstate.replica.recomputation.failures"
	resubscriptionsCounterName   = "globalstate.replica.subscriptions"
	reportsCounterName           = "globalstate.replica.reports"
)

// AuthorityMetrics defines the Authority instruments
type AuthorityMetrics struct {
	mutations       metric.Int64Counter
	persists        metric.Int64Counter
	persistFailures metric.Int64Counter
	subscribers     metric.Int64UpDownCounter
}

// NewAuthorityMetrics creates the Authority instruments
func NewAuthorityMetrics(meter metric.Meter) (*AuthorityMetrics, error) {
	metrics := new(AuthorityMetrics)
	var err error

	if metrics.mutations, err = meter.Int64Counter(
		mutationsCounterName,
		metric.WithDescription("The total number of applied mutations")); err != nil {
		return nil, fmt.Errorf("failed to create mutations instrument, %v", err)
	}

	if metrics.persists, err = meter.Int64Counter(
		persistsCounterName,
		metric.WithDescription("The total number of successful persists")); err != nil {
		return nil, fmt.Errorf("failed to create persists instrument, %v", err)
	}

	if metrics.persistFailures, err = meter.Int64Counter(
		persistFailuresCounterName,
		metric.WithDescription("The total number of failed persists")); err != nil {
		return nil, fmt.Errorf("failed to create persist failures instrument, %v", err)
	}

	if metrics.subscribers, err = meter.Int64UpDownCounter(
		subscribersGaugeName,
		metric.WithDescription("The number of subscribed replicas")); err != nil {
		return nil, fmt.Errorf("failed to create subscribers instrument, %v", err)
	}

	return metrics, nil
}

// RecordMutation records an applied mutation of the given kind
func (m *AuthorityMetrics) RecordMutation(ctx context.Context, kind string) {
	m.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordPersist records the outcome of a persist attempt
func (m *AuthorityMetrics) RecordPersist(ctx context.Context, err error) {
	if err != nil {
		m.persistFailures.Add(ctx, 1)
		return
	}
	m.persists.Add(ctx, 1)
}

// RecordSubscribers records a change in the number of subscribers
func (m *AuthorityMetrics) RecordSubscribers(ctx context.Context, delta int64) {
	m.subscribers.Add(ctx, delta)
}

// ReplicaMetrics defines the Replica instruments
type ReplicaMetrics struct {
	recomputations    metric.Int64Counter
	recomputeFailures metric.Int64Counter
	subscriptions     metric.Int64Counter
	reports           metric.Int64Counter
	node              attribute.KeyValue
}

// NewReplicaMetrics creates the Replica instruments for the given node
func NewReplicaMetrics(meter metric.Meter, nodeID string) (*ReplicaMetrics, error) {
	metrics := &ReplicaMetrics{node: attribute.String("node", nodeID)}
	var err error

	if metrics.recomputations, err = meter.Int64Counter(
		recomputationsCounterName,
		metric.WithDescription("The total number of derived value publications")); err != nil {
		return nil, fmt.Errorf("failed to create recomputations instrument, %v", err)
	}

	if metrics.recomputeFailures, err = meter.Int64Counter(
		recomputeFailuresCounterName,
		metric.WithDescription("The total number of failed recomputations")); err != nil {
		return nil, fmt.Errorf("failed to create recomputation failures instrument, %v", err)
	}

	if metrics.subscriptions, err = meter.Int64Counter(
		resubscriptionsCounterName,
		metric.WithDescription("The total number of successful subscriptions")); err != nil {
		return nil, fmt.Errorf("failed to create subscriptions instrument, %v", err)
	}

	if metrics.reports, err = meter.Int64Counter(
		reportsCounterName,
		metric.WithDescription("The total number of usage reports sent")); err != nil {
		return nil, fmt.Errorf("failed to create reports instrument, %v", err)
	}

	return metrics, nil
}

// RecordRecomputation records the publication of a derived value
func (m *ReplicaMetrics) RecordRecomputation(ctx context.Context, value string) {
	m.recomputations.Add(ctx, 1, metric.WithAttributes(m.node, attribute.String("value", value)))
}

// RecordRecomputationFailure records a failed recomputation
func (m *ReplicaMetrics) RecordRecomputationFailure(ctx context.Context, value string) {
	m.recomputeFailures.Add(ctx, 1, metric.WithAttributes(m.node, attribute.String("value", value)))
}

// RecordSubscription records a successful (re)subscription
func (m *ReplicaMetrics) RecordSubscription(ctx context.Context) {
	m.subscriptions.Add(ctx, 1, metric.WithAttributes(m.node))
}

// RecordReport records a usage report of the given kind
func (m *ReplicaMetrics) RecordReport(ctx context.Context, kind string) {
	m.reports.Add(ctx, 1, metric.WithAttributes(m.node, attribute.String("kind", kind)))
}
