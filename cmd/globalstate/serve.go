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

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/globalstate/authority"
	"github.com/tochemey/globalstate/config"
	"github.com/tochemey/globalstate/internal/admin"
	"github.com/tochemey/globalstate/replica"
	"github.com/tochemey/globalstate/telemetry"
	"github.com/tochemey/globalstate/transport/natslink"
)

type serveOptions struct {
	*commonOptions
	store      storeOptions
	build      config.Build
	natsBridge bool
}

func newServeCommand(common *commonOptions) *cobra.Command {
	opts := &serveOptions{commonOptions: common}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the Authority together with the replica of this node",
		Long: `Runs the singleton Authority owning the global state, persisted in the chosen store,
and a replica of this node subscribed to it. With --nats-bridge the Authority is also
served to the replicas of other nodes over NATS.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runServe(ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.store.kind, "store", storeBolt, "Store of the global state (memory, bolt, natskv, redis)")
	flags.StringVar(&opts.store.boltPath, "bolt-path", "globalstate.db", "Path of the bolt database")
	flags.StringVar(&opts.store.natsKVURL, "natskv-url", "", "NATS server of the natskv bucket, defaults to the --nats-url connection")
	flags.StringVar(&opts.store.natsBucket, "nats-bucket", "globalstate", "Key-value bucket of the natskv store")
	flags.IntVar(&opts.store.natsReplicas, "nats-replicas", 1, "Number of replicas of the natskv bucket")
	flags.StringVar(&opts.store.redisAddr, "redis-addr", "127.0.0.1:6379", "Address of the redis server")
	flags.StringVar(&opts.store.redisPrefix, "redis-prefix", "globalstate", "Key prefix of the redis store")
	flags.IntVar(&opts.build.MinSupportedLogicVersion, "min-logic-version", 1, "Oldest client logic version this build supports")
	flags.IntVar(&opts.build.MaxSupportedLogicVersion, "max-logic-version", 1, "Newest client logic version this build supports")
	flags.BoolVar(&opts.natsBridge, "nats-bridge", false, "Serve the Authority to remote replicas over NATS")
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) (err error) {
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
	tel := telemetry.New(telemetry.WithMeterProvider(provider))

	resolver, err := loadGameConfigs(opts.gameConfigs)
	if err != nil {
		return err
	}

	var conn *nats.Conn
	if opts.natsURL != "" {
		if conn, err = connectNats(opts.natsURL, opts.nodeID); err != nil {
			return err
		}
		defer conn.Close()
	}

	store, closeStore, err := openStore(&opts.store, conn)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	current := runtime.Runtime()
	auth := authority.New(opts.build, store,
		authority.WithLogger(logger),
		authority.WithRuntimeSource(runtime),
		authority.WithTelemetry(tel),
		authority.WithSnapshotInterval(current.SnapshotInterval))
	if err := auth.Start(ctx); err != nil {
		return err
	}

	var server *natslink.Server
	if opts.natsBridge {
		if conn == nil {
			return multierr.Append(errBridgeWithoutNats, auth.Stop(context.WithoutCancel(ctx)))
		}
		server = natslink.NewServer(conn, auth, natslink.WithLogger(logger), natslink.WithSubjectPrefix(opts.subjectPrefix))
		if err := server.Start(); err != nil {
			return multierr.Append(err, auth.Stop(context.WithoutCancel(ctx)))
		}
	}

	node := replica.New(opts.nodeID, auth, resolver,
		replica.WithLogger(logger),
		replica.WithRuntimeSource(runtime),
		replica.WithTelemetry(tel),
		replica.WithTickInterval(current.TickInterval),
		replica.WithReportInterval(current.ReportInterval))
	if err := node.Start(ctx); err != nil {
		if server != nil {
			err = multierr.Append(err, server.Stop())
		}
		return multierr.Append(err, auth.Stop(context.WithoutCancel(ctx)))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		router := admin.NewRouter(auth, []admin.Replica{node}, metricsHandler)
		return admin.NewServer(opts.adminAddr, router, logger).Run(groupCtx)
	})
	group.Go(func() error {
		if err := node.WaitSynced(groupCtx); err == nil {
			logger.Infof("%s synced with the authority", node)
		}
		return nil
	})
	runErr := group.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	err = multierr.Combine(runErr, node.Stop(stopCtx))
	if server != nil {
		err = multierr.Append(err, server.Stop())
	}
	return multierr.Append(err, auth.Stop(stopCtx))
}
