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
	"time"

	"github.com/tochemey/globalstate/config"
	"github.com/tochemey/globalstate/log"
	"github.com/tochemey/globalstate/telemetry"
)

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(replica *Replica)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Replica)

// Apply applies the option
func (f OptionFunc) Apply(r *Replica) {
	f(r)
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(r *Replica) {
		r.logger = logger
	})
}

// WithTickInterval sets the period of the subscription and maintenance checks
func WithTickInterval(interval time.Duration) Option {
	return OptionFunc(func(r *Replica) {
		r.tickInterval = interval
	})
}

// WithReportInterval sets the period of the statistics reports
func WithReportInterval(interval time.Duration) Option {
	return OptionFunc(func(r *Replica) {
		r.reportInterval = interval
	})
}

// WithRuntimeSource sets the source of the runtime settings
func WithRuntimeSource(source config.Source) Option {
	return OptionFunc(func(r *Replica) {
		r.runtime = source
	})
}

// WithTelemetry sets the telemetry
func WithTelemetry(telemetry *telemetry.Telemetry) Option {
	return OptionFunc(func(r *Replica) {
		r.telemetry = telemetry
	})
}

// WithRequestTimeout sets how long the replica waits for the Authority
func WithRequestTimeout(timeout time.Duration) Option {
	return OptionFunc(func(r *Replica) {
		r.requestTimeout = timeout
	})
}

// WithClock sets the wall clock. It is meant for tests.
func WithClock(clock func() time.Time) Option {
	return OptionFunc(func(r *Replica) {
		r.clock = clock
	})
}
