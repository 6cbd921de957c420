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

	gerrors "github.com/tochemey/globalstate/errors"
)

const (
	// CurrentSchemaVersion is the schema version written by this code
	CurrentSchemaVersion = 3
	// OldestSupportedSchemaVersion is the oldest schema version that can be migrated
	OldestSupportedSchemaVersion = 1
)

// migration upgrades an aggregate from the version it is keyed by to the next one
type migration func(agg *Aggregate) error

var migrations = map[int]migration{
	// developers used to be stored as a list
	1: func(agg *Aggregate) error {
		agg.DeveloperPlayerIDs = make(map[PlayerID]bool, len(agg.LegacyDeveloperPlayerIDs))
		for _, playerID := range agg.LegacyDeveloperPlayerIDs {
			agg.DeveloperPlayerIDs[playerID] = true
		}
		agg.LegacyDeveloperPlayerIDs = nil
		return nil
	},
	// rollout ratios used to be expressed in percent
	2: func(agg *Aggregate) error {
		for id, experiment := range agg.PlayerExperiments {
			if experiment.LegacyRolloutRatioPercent < 0 || experiment.LegacyRolloutRatioPercent > 100 {
				return fmt.Errorf("experiment %s has an invalid rollout percent %d", id, experiment.LegacyRolloutRatioPercent)
			}
			experiment.RolloutRatioPermille = experiment.LegacyRolloutRatioPercent * 10
			experiment.LegacyRolloutRatioPercent = 0
		}
		return nil
	},
}

func checkSchemaVersion(version int) error {
	if version < OldestSupportedSchemaVersion || version > CurrentSchemaVersion {
		return gerrors.NewErrUnsupportedSchemaVersion(version, OldestSupportedSchemaVersion, CurrentSchemaVersion)
	}
	return nil
}

// Migrate applies, in order, every migration from fromVersion up to CurrentSchemaVersion
func Migrate(agg *Aggregate, fromVersion int) error {
	if err := checkSchemaVersion(fromVersion); err != nil {
		return err
	}

	for version := fromVersion; version < CurrentSchemaVersion; version++ {
		migrate, ok := migrations[version]
		if !ok {
			return gerrors.NewErrUnsupportedSchemaVersion(version, OldestSupportedSchemaVersion, CurrentSchemaVersion)
		}
		if err := migrate(agg); err != nil {
			return fmt.Errorf("migration from schema %d failed: %w", version, err)
		}
	}

	agg.SchemaVersion = CurrentSchemaVersion
	return nil
}
