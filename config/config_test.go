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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/globalstate/state"
)

func TestBuild(t *testing.T) {
	t.Run("With valid build", func(t *testing.T) {
		build := Build{MinSupportedLogicVersion: 3, MaxSupportedLogicVersion: 7}
		require.NoError(t, build.Validate())
		assert.Equal(t, state.LogicVersionRange{Min: 3, Max: 7}, build.SupportedRange())
	})
	t.Run("With inverted range", func(t *testing.T) {
		build := Build{MinSupportedLogicVersion: 7, MaxSupportedLogicVersion: 3}
		require.EqualError(t, build.Validate(), "the [MinSupportedLogicVersion] 7 must not exceed the [MaxSupportedLogicVersion] 3")
	})
	t.Run("With negative minimum", func(t *testing.T) {
		build := Build{MinSupportedLogicVersion: -1, MaxSupportedLogicVersion: 3}
		require.EqualError(t, build.Validate(), "the [MinSupportedLogicVersion] must not be negative")
	})
}

func TestRuntime(t *testing.T) {
	t.Run("With defaults", func(t *testing.T) {
		runtime := DefaultRuntime()
		require.NoError(t, runtime.Validate())
		assert.False(t, runtime.EnableTimeSkip)
		assert.Equal(t, time.Second, runtime.TickInterval)
	})
	t.Run("With invalid intervals", func(t *testing.T) {
		runtime := DefaultRuntime()
		runtime.TickInterval = 0
		runtime.ReportInterval = -time.Second
		err := runtime.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TickInterval")
		assert.Contains(t, err.Error(), "ReportInterval")
	})
	t.Run("With static source", func(t *testing.T) {
		runtime := DefaultRuntime()
		runtime.EnableTimeSkip = true
		source := NewStaticSource(runtime)
		assert.Equal(t, runtime, source.Runtime())
	})
}
