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
	"context"
	"sort"

	"go.uber.org/multierr"

	"github.com/tochemey/globalstate/protocol"
)

type assignmentKey struct {
	experimentID string
	variantID    string
}

// RecordBroadcastConsumption counts one delivery of a broadcast message
func (r *Replica) RecordBroadcastConsumption(broadcastID int32) {
	r.statsMu.Lock()
	r.broadcastCounts[broadcastID]++
	r.statsMu.Unlock()
}

// RecordAssignmentDelta changes the population of an experiment variant by delta
func (r *Replica) RecordAssignmentDelta(experimentID, variantID string, delta int64) {
	r.statsMu.Lock()
	r.assignmentDeltas[assignmentKey{experimentID: experimentID, variantID: variantID}] += delta
	r.statsMu.Unlock()
}

// broadcastBatch is a drained set of broadcast counters awaiting confirmation
type broadcastBatch struct {
	batch  protocol.Batch
	counts map[int32]int64
}

// assignmentBatch is a drained set of population deltas awaiting confirmation
type assignmentBatch struct {
	batch  protocol.Batch
	deltas []protocol.AssignmentDelta
}

// FlushReports sends the accumulated statistics to the Authority.
// A batch that was not confirmed is sent again unchanged by the next flush, and the
// Authority merges it once. Counters recorded meanwhile go into a later batch.
func (r *Replica) FlushReports(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	if r.pendingBroadcasts == nil {
		if counts := r.drainBroadcastCounts(); len(counts) > 0 {
			r.pendingBroadcasts = &broadcastBatch{batch: r.nextBatch(), counts: counts}
		}
	}
	if r.pendingAssignments == nil {
		if deltas := r.drainAssignmentDeltas(); len(deltas) > 0 {
			r.pendingAssignments = &assignmentBatch{batch: r.nextBatch(), deltas: toAssignmentDeltas(deltas)}
		}
	}

	var err error
	if pending := r.pendingBroadcasts; pending != nil {
		reportCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
		if reportErr := r.link.ReportBroadcastConsumption(reportCtx, pending.batch, pending.counts); reportErr != nil {
			err = multierr.Append(err, reportErr)
		} else {
			r.pendingBroadcasts = nil
			if r.metrics != nil {
				r.metrics.RecordReport(ctx, "broadcast_consumption")
			}
		}
		cancel()
	}

	if pending := r.pendingAssignments; pending != nil {
		reportCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
		if reportErr := r.link.ReportExperimentAssignmentDeltas(reportCtx, pending.batch, pending.deltas); reportErr != nil {
			err = multierr.Append(err, reportErr)
		} else {
			r.pendingAssignments = nil
			if r.metrics != nil {
				r.metrics.RecordReport(ctx, "experiment_assignments")
			}
		}
		cancel()
	}

	if err != nil {
		r.logger.Warnf("failed to report statistics, retrying with the next flush: %v", err)
	}
	return err
}

func (r *Replica) nextBatch() protocol.Batch {
	r.batchSeq++
	return protocol.Batch{Reporter: r.reporter, Seq: r.batchSeq}
}

// drainBroadcastCounts swaps the broadcast counters for empty ones
func (r *Replica) drainBroadcastCounts() map[int32]int64 {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	counts := r.broadcastCounts
	r.broadcastCounts = make(map[int32]int64)
	return counts
}

// drainAssignmentDeltas swaps the population deltas for empty ones
func (r *Replica) drainAssignmentDeltas() map[assignmentKey]int64 {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	deltas := r.assignmentDeltas
	r.assignmentDeltas = make(map[assignmentKey]int64)

	// zero deltas cancel out
	for key, delta := range deltas {
		if delta == 0 {
			delete(deltas, key)
		}
	}
	return deltas
}

func toAssignmentDeltas(deltas map[assignmentKey]int64) []protocol.AssignmentDelta {
	out := make([]protocol.AssignmentDelta, 0, len(deltas))
	for key, delta := range deltas {
		out = append(out, protocol.AssignmentDelta{
			ExperimentID: key.experimentID,
			VariantID:    key.variantID,
			Delta:        delta,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExperimentID != out[j].ExperimentID {
			return out[i].ExperimentID < out[j].ExperimentID
		}
		return out[i].VariantID < out[j].VariantID
	})
	return out
}
