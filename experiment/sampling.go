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

package experiment

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/zeebo/xxh3"

	"github.com/tochemey/globalstate/state"
)

// PermilleScale is the denominator of rollout ratios
const PermilleScale = 1000

// IsInSamplePopulation reports whether the player falls in the sampled share of an
// experiment. The result only depends on its arguments, so every node agrees.
func IsInSamplePopulation(nonce uint64, playerID state.PlayerID, rolloutRatioPermille int) bool {
	if rolloutRatioPermille <= 0 {
		return false
	}
	if rolloutRatioPermille >= PermilleScale {
		return true
	}

	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], uint64(playerID))
	return xxh3.HashSeed(key[:], nonce)%PermilleScale < uint64(rolloutRatioPermille)
}

// SelectVariant draws a variant by weight among the active variants and the control group.
// It returns state.ControlVariantID for the control group. A nil rng uses the global source.
func SelectVariant(policy *Policy, rng *rand.Rand) string {
	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}

	total := max(policy.ControlWeight, 0)
	for _, variant := range policy.Variants {
		if variant.IsActive && variant.Weight > 0 {
			total += variant.Weight
		}
	}

	if total == 0 {
		return state.ControlVariantID
	}

	draw := intN(total)
	if draw < policy.ControlWeight {
		return state.ControlVariantID
	}
	draw -= max(policy.ControlWeight, 0)

	for _, variant := range policy.Variants {
		if !variant.IsActive || variant.Weight <= 0 {
			continue
		}
		if draw < variant.Weight {
			return variant.ID
		}
		draw -= variant.Weight
	}

	return state.ControlVariantID
}
