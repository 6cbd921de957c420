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
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/tochemey/globalstate"
	version             = "0.1.0"
)

// Telemetry holds the meter used by the Authority and the Replica
type Telemetry struct {
	MeterProvider metric.MeterProvider
	Meter         metric.Meter
}

// New creates an instance of Telemetry backed by the global meter provider
// unless WithMeterProvider is given.
func New(options ...Option) *Telemetry {
	telemetry := &Telemetry{
		MeterProvider: otel.GetMeterProvider(),
	}

	for _, opt := range options {
		opt.Apply(telemetry)
	}

	telemetry.Meter = telemetry.MeterProvider.Meter(
		instrumentationName,
		metric.WithInstrumentationVersion(Version()),
	)

	return telemetry
}

// Version returns the instrumentation version
func Version() string {
	return version
}

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(telemetry *Telemetry)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Telemetry)

// Apply applies the option
func (f OptionFunc) Apply(c *Telemetry) {
	f(c)
}

// WithMeterProvider specifies the meter provider to use
func WithMeterProvider(provider metric.MeterProvider) Option {
	return OptionFunc(func(cfg *Telemetry) {
		cfg.MeterProvider = provider
	})
}
