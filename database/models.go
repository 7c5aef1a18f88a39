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

package database

import (
	"time"

	"github.com/FredrickOdondi/concord/conflict"
)

var migrateModels = []any{
	&ConflictRow{},
	&ConflictPartyRow{},
	&ConflictPositionRow{},
	&ConflictParticipantRow{},
	&ResolutionLogRow{},
	&NegotiationSessionRow{},
	&ProposalRow{},
	&ActivityRow{},
	&ActivityParticipantRow{},
}

// ConflictRow is the persisted conflict envelope. Kind-specific detail
// fields live in dedicated nullable columns rather than a serialized blob;
// only the columns for the row's kind are populated.
type ConflictRow struct {
	ID          string `gorm:"primaryKey;size:36"`
	Kind        string `gorm:"index;size:32"`
	Description string `gorm:"index;size:512"`
	Severity    string `gorm:"size:16"`
	Reason      string
	Status      string `gorm:"index;size:16"`
	DetectedAt  time.Time
	ResolvedAt  *time.Time

	// schedule_clash / venue_conflict / participant_overlap
	ActivityAID    string `gorm:"size:64"`
	ActivityATitle string
	ActivityAGroup string `gorm:"size:64"`
	ActivityAStart time.Time
	ActivityAEnd   time.Time
	ActivityBID    string `gorm:"size:64"`
	ActivityBTitle string
	ActivityBGroup string `gorm:"size:64"`
	ActivityBStart time.Time
	ActivityBEnd   time.Time
	OverlapStart   time.Time
	OverlapEnd     time.Time
	Venue          string `gorm:"size:128"`
	GroupID        string `gorm:"size:64"`

	// policy_divergence
	Topic     string
	Statement string

	// dependency_blocker
	BlockedGroup  string `gorm:"size:64"`
	BlockingGroup string `gorm:"size:64"`
	Dependency    string
}

func (ConflictRow) TableName() string {
	return "conflict"
}

// ConflictPartyRow keeps the ordered set of involved group ids.
type ConflictPartyRow struct {
	ID         uint   `gorm:"primarykey"`
	ConflictID string `gorm:"index;size:36"`
	Ord        int
	Party      string `gorm:"size:64"`
}

func (ConflictPartyRow) TableName() string {
	return "conflict_party"
}

// ConflictPositionRow is one party's stated position at detection time.
type ConflictPositionRow struct {
	ID         uint   `gorm:"primarykey"`
	ConflictID string `gorm:"index;size:36"`
	Party      string `gorm:"size:64"`
	ActivityID string `gorm:"size:64"`
	Title      string
	Start      time.Time
	End        time.Time
	Statement  string
}

func (ConflictPositionRow) TableName() string {
	return "conflict_position"
}

// ConflictParticipantRow is one shared participant of a participant_overlap
// conflict.
type ConflictParticipantRow struct {
	ID            uint   `gorm:"primarykey"`
	ConflictID    string `gorm:"index;size:36"`
	ParticipantID string `gorm:"size:64"`
	Role          string `gorm:"size:32"`
}

func (ConflictParticipantRow) TableName() string {
	return "conflict_participant"
}

// ResolutionLogRow is one append-only audit entry. The autoincrement primary
// key preserves append order.
type ResolutionLogRow struct {
	ID         uint   `gorm:"primarykey"`
	ConflictID string `gorm:"index;size:36"`
	Timestamp  time.Time
	Actor      string `gorm:"size:64"`
	Action     string `gorm:"size:64"`
	Detail     string
}

func (ResolutionLogRow) TableName() string {
	return "conflict_resolution_log"
}

// NegotiationSessionRow is 1:1 with a conflict while its outcome is pending;
// concluded sessions are kept for audit.
type NegotiationSessionRow struct {
	ID         string `gorm:"primaryKey;size:36"`
	ConflictID string `gorm:"index;size:36"`
	Round      int
	MaxRounds  int
	Outcome    string `gorm:"size:32"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	PendingParty     string `gorm:"size:64"`
	PendingAction    string `gorm:"size:32"`
	PendingNewStart  *time.Time
	PendingRationale string
}

func (NegotiationSessionRow) TableName() string {
	return "negotiation_session"
}

// ProposalRow is one party's proposal in one negotiation round.
type ProposalRow struct {
	ID         uint   `gorm:"primarykey"`
	SessionID  string `gorm:"index;size:36"`
	Round      int
	Party      string `gorm:"size:64"`
	Action     string `gorm:"size:32"`
	NewStart   *time.Time
	Rationale  string
	Confidence float64
	CreatedAt  time.Time
}

func (ProposalRow) TableName() string {
	return "negotiation_proposal"
}

// ActivityRow is the booking subsystem's schedule table. Scans read it;
// only the resolution applier writes it.
type ActivityRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	Title       string
	GroupID     string `gorm:"index;size:64"`
	Location    string `gorm:"size:128"`
	StartTime   time.Time `gorm:"index"`
	DurationNs  int64
	Canceled    bool `gorm:"default:false"`
}

func (ActivityRow) TableName() string {
	return "activity"
}

// ActivityParticipantRow is one attendee of a scheduled activity.
type ActivityParticipantRow struct {
	ID            uint   `gorm:"primarykey"`
	ActivityID    string `gorm:"index;size:64"`
	ParticipantID string `gorm:"size:64"`
	Role          string `gorm:"size:32"`
}

func (ActivityParticipantRow) TableName() string {
	return "activity_participant"
}

func activeStatusStrings() []string {
	out := make([]string, 0, len(conflict.ActiveStatuses))
	for _, s := range conflict.ActiveStatuses {
		out = append(out, string(s))
	}
	return out
}
