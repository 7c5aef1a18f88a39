// Copyright 2026 Fredrick Odondi
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package negotiation

import (
	"time"

	"github.com/FredrickOdondi/concord/advisor"
	"github.com/FredrickOdondi/concord/conflict"
)

// converge checks whether one round's proposals agree on the same concrete
// action. Yielding parties accept whatever the rest propose; hold is not a
// resolution (the clash would persist), so hold-only rounds never converge.
// Reschedule proposals must agree on the new time to the minute. The
// returned resolution names the party whose activity will change: among the
// agreeing proposers, the one with the highest confidence (ties go to party
// order).
func converge(parties []string, proposals []advisor.Proposal) (conflict.PendingResolution, bool) {
	if len(proposals) < len(parties) {
		return conflict.PendingResolution{}, false
	}
	byParty := make(map[string]advisor.Proposal, len(proposals))
	for _, p := range proposals {
		byParty[p.Party] = p
	}
	var concrete []advisor.Proposal
	for _, party := range parties {
		p, ok := byParty[party]
		if !ok {
			return conflict.PendingResolution{}, false
		}
		if p.Action == advisor.ActionYield {
			continue
		}
		concrete = append(concrete, p)
	}
	if len(concrete) == 0 {
		return conflict.PendingResolution{}, false
	}

	action := concrete[0].Action
	for _, p := range concrete[1:] {
		if p.Action != action {
			return conflict.PendingResolution{}, false
		}
	}
	switch action {
	case advisor.ActionCancel:
	case advisor.ActionReschedule:
		base := truncateMinute(concrete[0].NewStart)
		if base == nil {
			return conflict.PendingResolution{}, false
		}
		for _, p := range concrete[1:] {
			t := truncateMinute(p.NewStart)
			if t == nil || !t.Equal(*base) {
				return conflict.PendingResolution{}, false
			}
		}
	default:
		return conflict.PendingResolution{}, false
	}

	chosen := concrete[0]
	for _, p := range concrete[1:] {
		if p.Confidence > chosen.Confidence {
			chosen = p
		}
	}
	// Times are compared at minute granularity, but the resolution carries
	// the chosen proposal's time untouched; the applier must never move an
	// activity to a time nobody proposed.
	return conflict.PendingResolution{
		Party:     chosen.Party,
		Action:    string(chosen.Action),
		NewStart:  chosen.NewStart,
		Rationale: chosen.Rationale,
	}, true
}

func truncateMinute(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	tt := t.UTC().Truncate(time.Minute)
	return &tt
}
