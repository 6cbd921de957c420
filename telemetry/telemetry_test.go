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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestTelemetry(t *testing.T) {
	t.Run("With global provider", func(t *testing.T) {
		tel := New()
		globalMeterProvider := otel.GetMeterProvider()
		assert.Equal(t, globalMeterProvider, tel.MeterProvider)
		assert.Equal(t, globalMeterProvider.Meter(instrumentationName,
			metric.WithInstrumentationVersion(Version())), tel.Meter)
	})
	t.Run("With custom provider", func(t *testing.T) {
		provider := sdkmetric.NewMeterProvider()
		tel := New(WithMeterProvider(provider))
		assert.Equal(t, provider, tel.MeterProvider)
	})
}

func TestAuthorityMetrics(t *testing.T) {
	ctx := context.TODO()
	reader := sdkmetric.NewManualReader()
	tel := New(WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))))

	metrics, err := NewAuthorityMetrics(tel.Meter)
	require.NoError(t, err)

	metrics.RecordMutation(ctx, "broadcast")
	metrics.RecordMutation(ctx, "broadcast")
	metrics.RecordPersist(ctx, nil)
	metrics.RecordPersist(ctx, errors.New("boom"))
	metrics.RecordSubscribers(ctx, 2)
	metrics.RecordSubscribers(ctx, -1)

	values := collect(t, reader)
	assert.EqualValues(t, 2, values[mutationsCounterName])
	assert.EqualValues(t, 1, values[persistsCounterName])
	assert.EqualValues(t, 1, values[persistFailuresCounterName])
	assert.EqualValues(t, 1, values[subscribersGaugeName])
}

func TestReplicaMetrics(t *testing.T) {
	ctx := context.TODO()
	reader := sdkmetric.NewManualReader()
	tel := New(WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))))

	metrics, err := NewReplicaMetrics(tel.Meter, "node-1")
	require.NoError(t, err)

	metrics.RecordRecomputation(ctx, "gameconfig")
	metrics.RecordRecomputationFailure(ctx, "gameconfig")
	metrics.RecordSubscription(ctx)
	metrics.RecordReport(ctx, "broadcast")
	metrics.RecordReport(ctx, "experiment")

	values := collect(t, reader)
	assert.EqualValues(t, 1, values[recomputationsCounterName])
	assert.EqualValues(t, 1, values[recomputeFailuresCounterName])
	assert.EqualValues(t, 1, values[resubscriptionsCounterName])
	assert.EqualValues(t, 2, values[reportsCounterName])
}

// collect sums the data points of every int64 sum instrument
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.TODO(), &rm))

	values := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, point := range sum.DataPoints {
					values[m.Name] += point.Value
				}
			}
		}
	}
	return values
}
