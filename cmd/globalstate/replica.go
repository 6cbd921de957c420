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

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/globalstate/internal/admin"
	"github.com/tochemey/globalstate/replica"
	"github.com/tochemey/globalstate/telemetry"
	"github.com/tochemey/globalstate/transport/natslink"
)

var (
	errBridgeWithoutNats  = errors.New("--nats-bridge requires --nats-url")
	errReplicaWithoutNats = errors.New("a remote replica requires --nats-url")
)

func newReplicaCommand(common *commonOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replica",
		Short: "Runs a replica subscribed to a remote Authority over NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runReplica(ctx, common)
		},
	}
}

func runReplica(ctx context.Context, opts *commonOptions) (err error) {
	if opts.natsURL == "" {
		return errReplicaWithoutNats
	}
	logger := opts.logger()

	runtime, stopRuntime, err := openRuntimeSource(ctx, opts.runtimeConfig, logger)
	if err != nil {
		return err
	}
	defer stopRuntime()

	provider, metricsHandler, err := newMeterProvider()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, provider.Shutdown(context.WithoutCancel(ctx))) }()

	resolver, err := loadGameConfigs(opts.gameConfigs)
	if err != nil {
		return err
	}

	conn, err := connectNats(opts.natsURL, opts.nodeID)
	if err != nil {
		return err
	}
	defer conn.Close()

	client := natslink.NewClient(conn, natslink.WithLogger(logger), natslink.WithSubjectPrefix(opts.subjectPrefix))
	defer client.Close()

	current := runtime.Runtime()
	node := replica.New(opts.nodeID, client, resolver,
		replica.WithLogger(logger),
		replica.WithRuntimeSource(runtime),
		replica.WithTelemetry(telemetry.New(telemetry.WithMeterProvider(provider))),
		replica.WithTickInterval(current.TickInterval),
		replica.WithReportInterval(current.ReportInterval))
	if err := node.Start(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		router := admin.NewRouter(nil, []admin.Replica{node}, metricsHandler)
		return admin.NewServer(opts.adminAddr, router, logger).Run(groupCtx)
	})
	runErr := group.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return multierr.Combine(runErr, node.Stop(stopCtx))
}
