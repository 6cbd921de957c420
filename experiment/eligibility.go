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
	"slices"

	"github.com/tochemey/globalstate/state"
)

// Player describes the player being evaluated
type Player struct {
	ID       state.PlayerID
	Platform string
	Country  string
	// IsNew is true for players created while the experiment was already running
	IsNew bool
}

// Decision is the outcome of an eligibility evaluation
type Decision int

const (
	Eligible Decision = iota
	EligibleAsTester
	RolloutDisabled
	CapacityReached
	FilteredOut
	NotNewPlayer
	NotSampled
)

// String implements fmt.Stringer
func (d Decision) String() string {
	switch d {
	case Eligible:
		return "eligible"
	case EligibleAsTester:
		return "eligible_as_tester"
	case RolloutDisabled:
		return "rollout_disabled"
	case CapacityReached:
		return "capacity_reached"
	case FilteredOut:
		return "filtered_out"
	case NotNewPlayer:
		return "not_new_player"
	default:
		return "not_sampled"
	}
}

// IsEligible returns true for decisions that allow enrollment
func (d Decision) IsEligible() bool {
	return d == Eligible || d == EligibleAsTester
}

// MatchesFilter returns true when the player satisfies the filter.
// Players listed explicitly always match; otherwise every non-empty criterion must hold.
func MatchesFilter(filter state.PlayerFilter, player Player) bool {
	if filter.IsEmpty() {
		return true
	}

	if slices.Contains(filter.PlayerIDs, player.ID) {
		return true
	}

	if len(filter.Platforms) == 0 && len(filter.Countries) == 0 {
		return false
	}

	if len(filter.Platforms) > 0 && !slices.Contains(filter.Platforms, player.Platform) {
		return false
	}

	if len(filter.Countries) > 0 && !slices.Contains(filter.Countries, player.Country) {
		return false
	}

	return true
}

// Evaluate decides whether player may be enrolled into the experiment
func (p *Policy) Evaluate(player Player) Decision {
	if p.Testers != nil && p.Testers.Contains(player.ID) {
		return EligibleAsTester
	}

	switch {
	case !p.RolloutEnabled:
		return RolloutDisabled
	case p.CapacityReached:
		return CapacityReached
	case !MatchesFilter(p.Filter, player):
		return FilteredOut
	case p.NewPlayersOnly && !player.IsNew:
		return NotNewPlayer
	case !IsInSamplePopulation(p.Nonce, player.ID, p.RolloutRatioPermille):
		return NotSampled
	default:
		return Eligible
	}
}
