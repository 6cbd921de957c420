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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/tochemey/globalstate/config"
	"github.com/tochemey/globalstate/log"
	"github.com/tochemey/globalstate/transport/natslink"
)

const shutdownTimeout = 10 * time.Second

// commonOptions are the flags shared by every command running a replica
type commonOptions struct {
	logLevel      string
	nodeID        string
	adminAddr     string
	runtimeConfig string
	gameConfigs   string
	natsURL       string
	subjectPrefix string
}

func newRootCommand() *cobra.Command {
	common := &commonOptions{}

	root := &cobra.Command{
		Use:          "globalstate",
		Short:        "Runs the global state Authority and its node replicas",
		SilenceUsage: true,
	}

	hostname, _ := os.Hostname()
	flags := root.PersistentFlags()
	flags.StringVar(&common.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&common.nodeID, "node-id", hostname, "Id of this node")
	flags.StringVar(&common.adminAddr, "admin-addr", ":8080", "Listen address of the admin HTTP server")
	flags.StringVar(&common.runtimeConfig, "config", "", "Path of the runtime YAML config, watched for changes")
	flags.StringVar(&common.gameConfigs, "game-configs", "", "Path of the YAML catalog of game configs known to this node")
	flags.StringVar(&common.natsURL, "nats-url", "", "URL of the NATS server")
	flags.StringVar(&common.subjectPrefix, "subject-prefix", natslink.DefaultSubjectPrefix, "Prefix of the replication subjects")

	root.AddCommand(newServeCommand(common))
	root.AddCommand(newReplicaCommand(common))
	return root
}

func (o *commonOptions) logger() log.Logger {
	return log.NewZap(log.ParseLevel(o.logLevel), os.Stdout).With("node", o.nodeID)
}

// signalContext is canceled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openRuntimeSource returns the runtime flags, from the watched file when one is given
func openRuntimeSource(ctx context.Context, path string, logger log.Logger) (config.Source, func(), error) {
	if path == "" {
		return config.NewStaticSource(config.DefaultRuntime()), func() {}, nil
	}

	source, err := config.NewFileSource(path, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := source.Watch(ctx); err != nil {
		return nil, nil, err
	}
	return source, source.Stop, nil
}

// connectNats connects to NATS, retrying a few times while the server comes up
func connectNats(url, name string) (*nats.Conn, error) {
	opts := nats.GetDefaultOptions()
	opts.Url = url
	opts.Name = name
	opts.ReconnectWait = 2 * time.Second
	opts.MaxReconnect = -1

	var conn *nats.Conn
	retrier := retry.NewRetrier(5, 100*time.Millisecond, opts.ReconnectWait)
	err := retrier.Run(func() error {
		var err error
		conn, err = opts.Connect()
		return err
	})
	return conn, err
}
