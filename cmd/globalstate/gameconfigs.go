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
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tochemey/globalstate/gameconfig"
)

type experimentEntry struct {
	ID       string   `yaml:"id"`
	Variants []string `yaml:"variants"`
}

type gameConfigEntry struct {
	Static      string            `yaml:"static"`
	Dynamic     string            `yaml:"dynamic"`
	Experiments []experimentEntry `yaml:"experiments"`
	Imports     map[string]string `yaml:"imports"`
}

type gameConfigCatalog struct {
	Configs []gameConfigEntry `yaml:"configs"`
}

// loadGameConfigs builds a resolver from the YAML catalog at path.
// An empty path yields a resolver that knows no config.
func loadGameConfigs(path string) (*gameconfig.StaticResolver, error) {
	resolver := gameconfig.NewStaticResolver()
	if path == "" {
		return resolver, nil
	}

	bytea, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read game config catalog: %w", err)
	}

	var catalog gameConfigCatalog
	if err := yaml.Unmarshal(bytea, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse game config catalog %s: %w", path, err)
	}

	for i, entry := range catalog.Configs {
		if entry.Static == "" {
			return nil, fmt.Errorf("game config #%d of %s has no static id", i, path)
		}

		specs := make([]gameconfig.ExperimentSpec, 0, len(entry.Experiments))
		for _, experiment := range entry.Experiments {
			specs = append(specs, gameconfig.ExperimentSpec{ID: experiment.ID, VariantIDs: experiment.Variants})
		}
		resolver.Register(&gameconfig.StaticConfig{
			Static:  entry.Static,
			Dynamic: entry.Dynamic,
			Specs:   specs,
		}, entry.Imports)
	}
	return resolver, nil
}
