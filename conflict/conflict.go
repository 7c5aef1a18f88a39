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

// Kind classifies what collided. The set is closed: each kind has its own
// details struct (see details.go) behind the common Conflict envelope.
type Kind string

const (
	KindScheduleClash      Kind = "schedule_clash"
	KindVenueConflict      Kind = "venue_conflict"
	KindParticipantOverlap Kind = "participant_overlap"
	KindPolicyDivergence   Kind = "policy_divergence"
	KindDependencyBlocker  Kind = "dependency_blocker"
)

// Severity is an ordinal classification of how disruptive a conflict is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal position of the severity. Unknown values rank
// below low.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast returns true if s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// MaxSeverity returns the most severe of the given severities.
func MaxSeverity(severities ...Severity) Severity {
	max := SeverityLow
	for _, s := range severities {
		if s.Rank() > max.Rank() {
			max = s
		}
	}
	return max
}

// Status is the lifecycle state of a conflict.
//
//	detected -> negotiating -> {resolved, escalated, dismissed}
//
// Escalated conflicts are terminal for the negotiation engine but stay open
// for manual resolution, so they still count as active for deduplication.
type Status string

const (
	StatusDetected    Status = "detected"
	StatusNegotiating Status = "negotiating"
	StatusResolved    Status = "resolved"
	StatusEscalated   Status = "escalated"
	StatusDismissed   Status = "dismissed"
)

// ActiveStatuses are the statuses under which a conflict suppresses
// rediscovery of the same (kind, description) key.
var ActiveStatuses = []Status{
	StatusDetected,
	StatusNegotiating,
	StatusEscalated,
}

// Closed returns true for statuses that end a conflict's lifecycle entirely.
func (s Status) Closed() bool {
	return s == StatusResolved || s == StatusDismissed
}

// Active returns true if the status suppresses rediscovery.
func (s Status) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// Position is one party's structured statement of what it currently holds
// scheduled or true.
type Position struct {
	Party      string
	ActivityID string
	Title      string
	Start      time.Time
	End        time.Time
	Statement  string
}

// LogEntry is one record in a conflict's append-only resolution log.
type LogEntry struct {
	Timestamp time.Time
	Actor     string
	Action    string
	Detail    string
}

// Conflict is the central entity tracked by the engine.
type Conflict struct {
	ID            string
	Kind          Kind
	Severity      Severity
	Description   string
	Parties       []string
	Positions     map[string]Position
	Details       Details
	Status        Status
	ResolutionLog []LogEntry
	DetectedAt    time.Time
	ResolvedAt    *time.Time
}

// PendingResolution reports whether the conflict has negotiated a candidate
// resolution that is waiting for human approval. Populated by the store when
// an active negotiation session holds one.
type PendingResolution struct {
	Party     string
	Action    string
	NewStart  *time.Time
	Rationale string
}

// Candidate is a detected-but-not-yet-persisted conflict handed from the
// detector to the store.
type Candidate struct {
	Kind        Kind
	Severity    Severity
	Description string
	Reason      string
	Parties     []string
	Positions   map[string]Position
	Details     Details
}
