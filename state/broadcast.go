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

package state

import (
	"fmt"
	"maps"
	"slices"
	"time"

	gerrors "github.com/tochemey/globalstate/errors"
)

// BroadcastParams are the administrator-defined parameters of a broadcast message
type BroadcastParams struct {
	Name            string
	StartAt         time.Time
	EndAt           time.Time
	Contents        map[string]string
	TargetPlatforms []string
}

// Validate checks the parameters are structurally valid
func (p BroadcastParams) Validate() error {
	if p.Name == "" {
		return gerrors.NewValidationError("Name", fmt.Errorf("%w: name is required", gerrors.ErrInvalidBroadcast))
	}
	if !p.EndAt.IsZero() && p.EndAt.Before(p.StartAt) {
		return gerrors.NewValidationError("EndAt", fmt.Errorf("%w: ends before it starts", gerrors.ErrInvalidBroadcast))
	}
	return nil
}

// IsActiveAt returns true when the broadcast should be shown at now
func (p BroadcastParams) IsActiveAt(now time.Time) bool {
	if now.Before(p.StartAt) {
		return false
	}
	return p.EndAt.IsZero() || now.Before(p.EndAt)
}

// BroadcastStats holds delivery statistics
type BroadcastStats struct {
	ReceivedCount int64
}

// BroadcastMessage is a broadcast with its delivery statistics
type BroadcastMessage struct {
	ID     int32
	Params BroadcastParams
	Stats  BroadcastStats
}

// Clone returns a deep copy of the message
func (b *BroadcastMessage) Clone() *BroadcastMessage {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Params.Contents = maps.Clone(b.Params.Contents)
	clone.Params.TargetPlatforms = slices.Clone(b.Params.TargetPlatforms)
	return &clone
}
