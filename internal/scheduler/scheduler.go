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

package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reugn/go-quartz/job"
	quartzlogger "github.com/reugn/go-quartz/logger"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/atomic"

	"github.com/tochemey/globalstate/internal/process"
	"github.com/tochemey/globalstate/log"
)

// ErrNotStarted is returned when scheduling on a scheduler that is not running
var ErrNotStarted = errors.New("scheduler has not started")

// Scheduler delivers messages to processes at fixed intervals
type Scheduler struct {
	mu              sync.Mutex
	quartzScheduler quartz.Scheduler
	started         *atomic.Bool
	logger          log.Logger
	stopTimeout     time.Duration
}

// New creates an instance of Scheduler
func New(logger log.Logger, stopTimeout time.Duration) *Scheduler {
	// quartz logs are turned off; errors surface through the jobs themselves
	quartzScheduler, _ := quartz.NewStdScheduler(quartz.WithLogger(quartzlogger.NewSimpleLogger(nil, quartzlogger.LevelOff)))
	if logger == nil {
		logger = log.DiscardLogger
	}

	return &Scheduler{
		quartzScheduler: quartzScheduler,
		started:         atomic.NewBool(false),
		logger:          logger,
		stopTimeout:     stopTimeout,
	}
}

// Start starts the scheduler. The scheduler keeps running after ctx is canceled until Stop is called.
func (x *Scheduler) Start(ctx context.Context) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.started.Load() {
		return
	}

	x.quartzScheduler.Start(context.WithoutCancel(ctx))
	x.started.Store(x.quartzScheduler.IsStarted())
	x.logger.Debug("scheduler started")
}

// Stop stops the scheduler and waits for running jobs up to the stop timeout
func (x *Scheduler) Stop(ctx context.Context) {
	if !x.started.Load() {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	_ = x.quartzScheduler.Clear()
	x.quartzScheduler.Stop()
	x.started.Store(x.quartzScheduler.IsStarted())

	ctx, cancel := context.WithTimeout(ctx, x.stopTimeout)
	defer cancel()
	x.quartzScheduler.Wait(ctx)
	x.logger.Debug("scheduler stopped")
}

// Schedule tells message to the process at every interval
func (x *Scheduler) Schedule(message any, pid *process.Process, interval time.Duration) error {
	return x.ScheduleFunc(func(ctx context.Context) error {
		return pid.Tell(ctx, message)
	}, interval)
}

// ScheduleFunc runs fn at every interval
func (x *Scheduler) ScheduleFunc(fn func(ctx context.Context) error, interval time.Duration) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.started.Load() {
		return ErrNotStarted
	}

	functionJob := job.NewFunctionJob[bool](
		func(ctx context.Context) (bool, error) {
			err := fn(ctx)
			return err == nil, err
		},
	)

	detail := quartz.NewJobDetail(functionJob, quartz.NewJobKey(uuid.NewString()))
	return x.quartzScheduler.ScheduleJob(detail, quartz.NewSimpleTrigger(interval))
}
