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

package conflict

import (
	"time"
)

// Details carries the kind-specific payload of a conflict. Each kind has
// exactly one concrete type.
type Details interface {
	DetailKind() Kind
}

// ActivityRef identifies a scheduled activity as it looked at scan time.
type ActivityRef struct {
	ID      string
	Title   string
	GroupID string
	Start   time.Time
	End     time.Time
}

// ScheduleClashDetails describes a double booking within one owning group.
type ScheduleClashDetails struct {
	GroupID      string
	ActivityA    ActivityRef
	ActivityB    ActivityRef
	OverlapStart time.Time
	OverlapEnd   time.Time
}

func (ScheduleClashDetails) DetailKind() Kind { return KindScheduleClash }

// VenueConflictDetails describes two activities booked into the same
// physical venue at overlapping times.
type VenueConflictDetails struct {
	Venue        string
	ActivityA    ActivityRef
	ActivityB    ActivityRef
	OverlapStart time.Time
	OverlapEnd   time.Time
}

func (VenueConflictDetails) DetailKind() Kind { return KindVenueConflict }

// SharedParticipant is a participant booked into both activities.
type SharedParticipant struct {
	ID   string
	Role string
}

// ParticipantOverlapDetails describes activities sharing participants in
// overlapping time windows.
type ParticipantOverlapDetails struct {
	Shared       []SharedParticipant
	ActivityA    ActivityRef
	ActivityB    ActivityRef
	OverlapStart time.Time
	OverlapEnd   time.Time
}

func (ParticipantOverlapDetails) DetailKind() Kind { return KindParticipantOverlap }

// PolicyDivergenceDetails describes parties holding incompatible stated
// positions on a topic. Not produced by the scanner; recorded via the
// service by outer collaborators.
type PolicyDivergenceDetails struct {
	Topic     string
	Statement string
}

func (PolicyDivergenceDetails) DetailKind() Kind { return KindPolicyDivergence }

// DependencyBlockerDetails describes one group's deliverable blocking
// another's scheduled work.
type DependencyBlockerDetails struct {
	BlockedGroup  string
	BlockingGroup string
	Dependency    string
}

func (DependencyBlockerDetails) DetailKind() Kind { return KindDependencyBlocker }
