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

package authority

import (
	"context"
	"errors"
	"time"

	"github.com/flowchartsman/retry"

	"github.com/tochemey/globalstate/persistence"
	"github.com/tochemey/globalstate/state"
)

const (
	persistRetryDelay    = 10 * time.Millisecond
	persistRetryMaxDelay = 200 * time.Millisecond
)

// persist writes the Aggregate to the store. The first write inserts the record
// and every later write updates it.
func (a *Authority) persist(ctx context.Context, isFinal bool) error {
	payload, err := state.Encode(a.aggregate)
	if err != nil {
		a.metrics.RecordPersist(ctx, err)
		return err
	}

	record := &persistence.Record{
		Key:           PersistenceKey,
		Payload:       payload,
		SchemaVersion: state.CurrentSchemaVersion,
		IsFinal:       isFinal,
		PersistedAt:   a.now(),
	}

	retrier := retry.NewRetrier(max(a.persistRetries, 1), persistRetryDelay, persistRetryMaxDelay)
	err = retrier.RunContext(ctx, func(ctx context.Context) error {
		if a.hasRecord {
			err := a.store.Update(ctx, record)
			if errors.Is(err, persistence.ErrKeyNotFound) {
				a.hasRecord = false
			}
			return err
		}

		err := a.store.Insert(ctx, record)
		switch {
		case err == nil:
			a.hasRecord = true
		case errors.Is(err, persistence.ErrKeyExists):
			a.hasRecord = true
		}
		return err
	})

	a.metrics.RecordPersist(ctx, err)
	return err
}
