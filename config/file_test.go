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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tochemey/globalstate/log"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestFileSource(t *testing.T) {
	t.Run("With partial file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "runtime.yaml")
		writeFile(t, path, "enableTimeSkip: true\nreportInterval: 10s\n")

		source, err := NewFileSource(path, log.DiscardLogger)
		require.NoError(t, err)

		runtime := source.Runtime()
		assert.True(t, runtime.EnableTimeSkip)
		assert.False(t, runtime.AutoUpgradeLogicVersion)
		assert.Equal(t, 10*time.Second, runtime.ReportInterval)
		assert.Equal(t, DefaultRuntime().SnapshotInterval, runtime.SnapshotInterval)
	})
	t.Run("With missing file", func(t *testing.T) {
		_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.yaml"), nil)
		require.Error(t, err)
	})
	t.Run("With invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "runtime.yaml")
		writeFile(t, path, "tickInterval: 0s\n")
		_, err := NewFileSource(path, nil)
		require.Error(t, err)
	})
	t.Run("With malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "runtime.yaml")
		writeFile(t, path, "enableTimeSkip: [\n")
		_, err := NewFileSource(path, nil)
		require.Error(t, err)
	})
	t.Run("With hot reload", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		path := filepath.Join(t.TempDir(), "runtime.yaml")
		writeFile(t, path, "enableTimeSkip: false\n")

		source, err := NewFileSource(path, log.DiscardLogger)
		require.NoError(t, err)
		require.NoError(t, source.Watch(context.Background()))

		writeFile(t, path, "enableTimeSkip: true\n")
		require.Eventually(t, func() bool {
			return source.Runtime().EnableTimeSkip
		}, 5*time.Second, 10*time.Millisecond)

		// an invalid edit keeps the last valid settings
		writeFile(t, path, "tickInterval: -1s\n")
		time.Sleep(100 * time.Millisecond)
		assert.True(t, source.Runtime().EnableTimeSkip)

		source.Stop()
		source.Stop()
	})
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	writeFile(t, path, "\n")
	_, err := LoadFile(path)
	require.Error(t, err)
}
