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

package detector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/FredrickOdondi/concord/activity"
	"github.com/FredrickOdondi/concord/conflict"
)

func roleRank(role string) int {
	switch role {
	case activity.RoleHeadOfState:
		return 3
	case activity.RoleMinister:
		return 2
	case activity.RoleDirector:
		return 1
	default:
		return 0
	}
}

// dimensionSeverity is one classification rule's outcome for an overlap.
type dimensionSeverity struct {
	dimension Dimension
	severity  conflict.Severity
	reason    string
}

// Classify maps an overlap's shared participants, venue, and owning group
// onto a single severity, taking the maximum over the applicable rules:
//
//  1. head-of-state or minister present -> critical
//  2. director-level VIP present -> high
//  3. physical venue conflict -> high
//  4. owning-group double booking -> medium
//  5. shared participant count: >10 -> high, >3 -> medium, else low
//
// The returned reason concatenates every applicable rule's explanation.
func Classify(o Overlap) (conflict.Severity, string) {
	rules := classifyRules(o)
	severity := conflict.SeverityLow
	reasons := make([]string, 0, len(rules))
	for _, r := range rules {
		severity = conflict.MaxSeverity(severity, r.severity)
		reasons = append(reasons, r.reason)
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "overlapping schedules")
	}
	return severity, strings.Join(reasons, "; ")
}

func classifyRules(o Overlap) []dimensionSeverity {
	var rules []dimensionSeverity

	if o.HasDimension(DimensionParticipant) {
		var ministers, directors []string
		for _, p := range o.Shared {
			switch p.Role {
			case activity.RoleHeadOfState, activity.RoleMinister:
				ministers = append(ministers, p.ID)
			case activity.RoleDirector:
				directors = append(directors, p.ID)
			}
		}
		sort.Strings(ministers)
		sort.Strings(directors)
		switch {
		case len(ministers) > 0:
			rules = append(rules, dimensionSeverity{
				dimension: DimensionParticipant,
				severity:  conflict.SeverityCritical,
				reason: fmt.Sprintf(
					"Minister-level participant(s) double-booked: %s",
					strings.Join(ministers, ", "),
				),
			})
		case len(directors) > 0:
			rules = append(rules, dimensionSeverity{
				dimension: DimensionParticipant,
				severity:  conflict.SeverityHigh,
				reason: fmt.Sprintf(
					"Director-level participant(s) double-booked: %s",
					strings.Join(directors, ", "),
				),
			})
		default:
			severity := conflict.SeverityLow
			switch {
			case len(o.Shared) > 10:
				severity = conflict.SeverityHigh
			case len(o.Shared) > 3:
				severity = conflict.SeverityMedium
			}
			rules = append(rules, dimensionSeverity{
				dimension: DimensionParticipant,
				severity:  severity,
				reason: fmt.Sprintf(
					"%d shared participant(s)",
					len(o.Shared),
				),
			})
		}
	}

	if o.HasDimension(DimensionVenue) {
		rules = append(rules, dimensionSeverity{
			dimension: DimensionVenue,
			severity:  conflict.SeverityHigh,
			reason: fmt.Sprintf(
				"Venue conflict at %s",
				strings.TrimSpace(o.A.Location),
			),
		})
	}

	if o.HasDimension(DimensionGroup) {
		rules = append(rules, dimensionSeverity{
			dimension: DimensionGroup,
			severity:  conflict.SeverityMedium,
			reason: fmt.Sprintf(
				"Double booking within group %s",
				o.A.GroupID,
			),
		})
	}

	return rules
}

// Candidate turns an overlap into a persistable conflict candidate. The kind
// follows the dimension that produced the worst severity (participant beats
// venue beats group on ties), so a pair triggering several dimensions yields
// one candidate keyed by its dominant dimension.
func Candidate(o Overlap) conflict.Candidate {
	rules := classifyRules(o)
	severity := conflict.SeverityLow
	reasons := make([]string, 0, len(rules))
	dominant := DimensionGroup
	dominantRank := -1
	for _, r := range rules {
		severity = conflict.MaxSeverity(severity, r.severity)
		reasons = append(reasons, r.reason)
		rank := r.severity.Rank()*10 + dimensionTiebreak(r.dimension)
		if rank > dominantRank {
			dominantRank = rank
			dominant = r.dimension
		}
	}

	refA := activityRef(o.A)
	refB := activityRef(o.B)
	start, end := o.OverlapStart(), o.OverlapEnd()

	var kind conflict.Kind
	var details conflict.Details
	switch dominant {
	case DimensionParticipant:
		kind = conflict.KindParticipantOverlap
		shared := make([]conflict.SharedParticipant, 0, len(o.Shared))
		for _, p := range o.Shared {
			shared = append(shared, conflict.SharedParticipant{ID: p.ID, Role: p.Role})
		}
		details = conflict.ParticipantOverlapDetails{
			Shared:       shared,
			ActivityA:    refA,
			ActivityB:    refB,
			OverlapStart: start,
			OverlapEnd:   end,
		}
	case DimensionVenue:
		kind = conflict.KindVenueConflict
		details = conflict.VenueConflictDetails{
			Venue:        activity.NormalizeLocation(o.A.Location),
			ActivityA:    refA,
			ActivityB:    refB,
			OverlapStart: start,
			OverlapEnd:   end,
		}
	default:
		kind = conflict.KindScheduleClash
		details = conflict.ScheduleClashDetails{
			GroupID:      o.A.GroupID,
			ActivityA:    refA,
			ActivityB:    refB,
			OverlapStart: start,
			OverlapEnd:   end,
		}
	}

	parties := []string{o.A.GroupID}
	if o.B.GroupID != o.A.GroupID {
		parties = append(parties, o.B.GroupID)
	}
	positions := map[string]conflict.Position{
		o.A.GroupID: positionFor(o.A),
	}
	// Same owning group on both sides keeps the earlier activity's
	// position; the clash itself carries both refs.
	if o.B.GroupID != o.A.GroupID {
		positions[o.B.GroupID] = positionFor(o.B)
	}

	return conflict.Candidate{
		Kind:        kind,
		Severity:    severity,
		Description: conflict.CanonicalDescription(kind, o.A.Title, o.B.Title, start, end),
		Reason:      strings.Join(reasons, "; "),
		Parties:     parties,
		Positions:   positions,
		Details:     details,
	}
}

func dimensionTiebreak(d Dimension) int {
	switch d {
	case DimensionParticipant:
		return 2
	case DimensionVenue:
		return 1
	default:
		return 0
	}
}

func activityRef(a activity.Activity) conflict.ActivityRef {
	return conflict.ActivityRef{
		ID:      a.ID,
		Title:   a.Title,
		GroupID: a.GroupID,
		Start:   a.StartTime,
		End:     a.End(),
	}
}

func positionFor(a activity.Activity) conflict.Position {
	return conflict.Position{
		Party:      a.GroupID,
		ActivityID: a.ID,
		Title:      a.Title,
		Start:      a.StartTime,
		End:        a.End(),
		Statement:  fmt.Sprintf("%s holds %q from %s to %s", a.GroupID, a.Title, a.StartTime.UTC().Format("2006-01-02 15:04"), a.End().UTC().Format("15:04")),
	}
}
