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
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/atomic"
	"gopkg.in/yaml.v3"

	"github.com/tochemey/globalstate/log"
)

// FileSource reads the runtime settings from a YAML file and reloads them
// whenever the file changes. An invalid file keeps the last valid settings.
type FileSource struct {
	path     string
	current  *atomic.Pointer[Runtime]
	logger   log.Logger
	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	done     chan struct{}
}

var _ Source = (*FileSource)(nil)

// NewFileSource loads the file at path. Settings missing from the file keep their default value.
func NewFileSource(path string, logger log.Logger) (*FileSource, error) {
	if logger == nil {
		logger = log.DiscardLogger
	}

	runtime, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	return &FileSource{
		path:    path,
		current: atomic.NewPointer(runtime),
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// LoadFile reads and validates runtime settings from a YAML file
func LoadFile(path string) (*Runtime, error) {
	bytea, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime config %s: %w", path, err)
	}

	// a truncated file is seen while an editor rewrites it
	if len(bytes.TrimSpace(bytea)) == 0 {
		return nil, fmt.Errorf("runtime config %s is empty", path)
	}

	runtime := DefaultRuntime()
	if err := yaml.Unmarshal(bytea, &runtime); err != nil {
		return nil, fmt.Errorf("failed to parse runtime config %s: %w", path, err)
	}

	if err := runtime.Validate(); err != nil {
		return nil, fmt.Errorf("invalid runtime config %s: %w", path, err)
	}
	return &runtime, nil
}

// Runtime implements Source
func (s *FileSource) Runtime() Runtime {
	return *s.current.Load()
}

// Watch starts reloading the file on change until ctx is done or Stop is called.
// The parent directory is watched so that files replaced by a rename are picked up.
func (s *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return err
	}

	s.watcher = watcher
	go s.processEvents(ctx)
	return nil
}

// Stop stops watching the file
func (s *FileSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
	})
}

func (s *FileSource) processEvents(ctx context.Context) {
	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warnf("runtime config watcher error: %v", err)
		}
	}
}

func (s *FileSource) reload() {
	runtime, err := LoadFile(s.path)
	if err != nil {
		s.logger.Errorf("keeping previous runtime config: %v", err)
		return
	}

	s.current.Store(runtime)
	s.logger.Infof("runtime config reloaded from %s", s.path)
}
