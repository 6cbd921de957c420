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

// Package gameconfig defines how the game configuration content is resolved.
// Building and uploading the content is done elsewhere.
package gameconfig

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ExperimentSpec is an experiment as declared by a game config
type ExperimentSpec struct {
	ID         string
	VariantIDs []string
}

// Imports are the external resources a game config pulls in
type Imports struct {
	Resources map[string]string
}

// Config is a loaded game configuration
type Config interface {
	// StaticID returns the id of the baseline config
	StaticID() string
	// DynamicID returns the id of the dynamic content layered over the baseline
	DynamicID() string
	// Experiments returns the declared experiments in declaration order
	Experiments() []ExperimentSpec
}

// Resolver loads game configs
type Resolver interface {
	// ResolveImports resolves the import resources of the (static, dynamic) pair
	ResolveImports(ctx context.Context, staticID, dynamicID string) (*Imports, error)
	// Load loads the config of the (static, dynamic) pair
	Load(ctx context.Context, staticID, dynamicID string, imports *Imports) (Config, error)
}

// ExperimentIDs returns the ids of the experiments declared by config, in order
func ExperimentIDs(config Config) []string {
	specs := config.Experiments()
	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		ids = append(ids, spec.ID)
	}
	return ids
}

// StaticConfig is an in-memory Config
type StaticConfig struct {
	Static  string
	Dynamic string
	Specs   []ExperimentSpec
}

var _ Config = (*StaticConfig)(nil)

func (c *StaticConfig) StaticID() string              { return c.Static }
func (c *StaticConfig) DynamicID() string             { return c.Dynamic }
func (c *StaticConfig) Experiments() []ExperimentSpec { return slices.Clone(c.Specs) }

type configKey struct {
	static  string
	dynamic string
}

// StaticResolver resolves configs registered in memory
type StaticResolver struct {
	mu      sync.RWMutex
	configs map[configKey]*StaticConfig
	imports map[configKey]*Imports
}

var _ Resolver = (*StaticResolver)(nil)

// NewStaticResolver creates an empty StaticResolver
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		configs: make(map[configKey]*StaticConfig),
		imports: make(map[configKey]*Imports),
	}
}

// Register makes config resolvable with the given imports
func (r *StaticResolver) Register(config *StaticConfig, imports map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := configKey{config.Static, config.Dynamic}
	r.configs[key] = config
	r.imports[key] = &Imports{Resources: maps.Clone(imports)}
}

// ResolveImports implements Resolver
func (r *StaticResolver) ResolveImports(ctx context.Context, staticID, dynamicID string) (*Imports, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	imports, ok := r.imports[configKey{staticID, dynamicID}]
	if !ok {
		return nil, fmt.Errorf("no imports registered for config (%s, %s)", staticID, dynamicID)
	}
	return imports, nil
}

// Load implements Resolver
func (r *StaticResolver) Load(ctx context.Context, staticID, dynamicID string, _ *Imports) (Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.configs[configKey{staticID, dynamicID}]
	if !ok {
		return nil, fmt.Errorf("config (%s, %s) not found", staticID, dynamicID)
	}
	return config, nil
}
