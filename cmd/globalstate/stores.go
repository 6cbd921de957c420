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
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tochemey/globalstate/persistence"
	"github.com/tochemey/globalstate/persistence/bolt"
	"github.com/tochemey/globalstate/persistence/natskv"
	"github.com/tochemey/globalstate/persistence/redis"
)

const (
	storeMemory = "memory"
	storeBolt   = "bolt"
	storeNatsKV = "natskv"
	storeRedis  = "redis"

	connectTimeout = 5 * time.Second
)

type storeOptions struct {
	kind         string
	boltPath     string
	natsKVURL    string
	natsBucket   string
	natsReplicas int
	redisAddr    string
	redisPrefix  string
}

// openStore opens the configured store. The natskv store connects to natsKVURL when set
// and shares conn otherwise.
func openStore(opts *storeOptions, conn *nats.Conn) (persistence.Store, func() error, error) {
	switch opts.kind {
	case storeMemory:
		return persistence.NewMemoryStore(), func() error { return nil }, nil
	case storeBolt:
		store, err := bolt.Open(opts.boltPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case storeNatsKV:
		store, err := openNatsKV(opts, conn)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { store.Close(); return nil }, nil
	case storeRedis:
		client := goredis.NewClient(&goredis.Options{Addr: opts.redisAddr})
		return redis.New(client, opts.redisPrefix), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (expected one of %s, %s, %s, %s)", opts.kind, storeMemory, storeBolt, storeNatsKV, storeRedis)
	}
}

func openNatsKV(opts *storeOptions, conn *nats.Conn) (*natskv.Store, error) {
	switch {
	case opts.natsKVURL != "":
		return natskv.Open(&natskv.Config{
			URL:            opts.natsKVURL,
			Bucket:         opts.natsBucket,
			ConnectTimeout: connectTimeout,
			Replicas:       opts.natsReplicas,
		})
	case conn != nil:
		return natskv.New(conn, opts.natsBucket, opts.natsReplicas)
	default:
		return nil, fmt.Errorf("the %s store requires --natskv-url or --nats-url", storeNatsKV)
	}
}
