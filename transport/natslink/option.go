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
	"time"

	"github.com/tochemey/globalstate/log"
)

const (
	DefaultSubjectPrefix     = "globalstate"
	defaultRequestTimeout    = 5 * time.Second
	defaultRetries           = 3
	defaultKeepAliveInterval = time.Second
	defaultKeepAliveTimeout  = 5 * time.Second
)

type settings struct {
	prefix            string
	logger            log.Logger
	requestTimeout    time.Duration
	retries           int
	keepAliveInterval time.Duration
	keepAliveTimeout  time.Duration
}

func newSettings(opts []Option) settings {
	s := settings{
		prefix:         DefaultSubjectPrefix,
		logger:         log.DefaultLogger,
		requestTimeout:    defaultRequestTimeout,
		retries:           defaultRetries,
		keepAliveInterval: defaultKeepAliveInterval,
		keepAliveTimeout:  defaultKeepAliveTimeout,
	}
	for _, opt := range opts {
		opt.Apply(&s)
	}
	if s.logger == nil {
		s.logger = log.DiscardLogger
	}
	s.retries = max(s.retries, 1)
	return s
}

func (s settings) subject(name string) string {
	return s.prefix + "." + name
}

// Option configures a Server or a Client
type Option interface {
	// Apply sets the Option value of a config.
	Apply(s *settings)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(s *settings)

// Apply applies the option
func (f OptionFunc) Apply(s *settings) {
	f(s)
}

// WithSubjectPrefix sets the prefix of every subject. Server and Client must agree on it.
func WithSubjectPrefix(prefix string) Option {
	return OptionFunc(func(s *settings) {
		s.prefix = prefix
	})
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(s *settings) {
		s.logger = logger
	})
}

// WithRequestTimeout bounds every request made or served
func WithRequestTimeout(timeout time.Duration) Option {
	return OptionFunc(func(s *settings) {
		s.requestTimeout = timeout
	})
}

// WithRetries sets how many times a Client sends a request nobody answered
func WithRetries(retries int) Option {
	return OptionFunc(func(s *settings) {
		s.retries = retries
	})
}

// WithKeepAliveInterval sets how often a Server signals every live subscription
func WithKeepAliveInterval(interval time.Duration) Option {
	return OptionFunc(func(s *settings) {
		s.keepAliveInterval = interval
	})
}

// WithKeepAliveTimeout sets how long a Client waits for any message on a subscription
// before it considers the subscription lost. It must exceed the Server's keepalive interval.
func WithKeepAliveTimeout(timeout time.Duration) Option {
	return OptionFunc(func(s *settings) {
		s.keepAliveTimeout = timeout
	})
}
