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

// Package activity defines the read-only view of the booking subsystem that
// the engine scans, and the narrow mutation surface used when applying an
// approved resolution.
package activity

import (
	"context"
	"strings"
	"time"
)

// Role tags carried by participants. Only the VIP roles influence severity
// classification; anything else is treated as a regular delegate.
const (
	RoleHeadOfState = "head_of_state"
	RoleMinister    = "minister"
	RoleDirector    = "director"
	RoleDelegate    = "delegate"
)

// Participant is an attendee identity with an optional role tag.
type Participant struct {
	ID   string
	Role string
}

// Activity is an immutable snapshot of one scheduled event, taken at scan
// time. The time window is half-open: [StartTime, StartTime+Duration).
type Activity struct {
	ID           string
	Title        string
	GroupID      string
	Location     string
	StartTime    time.Time
	Duration     time.Duration
	Participants []Participant
	Canceled     bool
}

// End returns the exclusive end of the activity's time window.
func (a Activity) End() time.Time {
	return a.StartTime.Add(a.Duration)
}

// Overlaps reports whether the half-open windows of a and b intersect.
// Touching windows (a.End == b.Start) do not overlap.
func (a Activity) Overlaps(b Activity) bool {
	return a.StartTime.Before(b.End()) && b.StartTime.Before(a.End())
}

// virtualLocations are aliases for online meetings. Virtual venues have
// unlimited concurrent capacity and never produce venue conflicts.
var virtualLocations = map[string]struct{}{
	"virtual": {},
	"online":  {},
	"remote":  {},
}

// NormalizeLocation trims and lowercases a location for comparison.
func NormalizeLocation(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}

// IsVirtualLocation reports whether the location is a virtual-meeting alias
// (or empty).
func IsVirtualLocation(location string) bool {
	norm := NormalizeLocation(location)
	if norm == "" {
		return true
	}
	_, ok := virtualLocations[norm]
	return ok
}

// Source provides read-only activity snapshots from the booking subsystem.
type Source interface {
	// Activities returns every non-canceled activity whose window
	// intersects [from, to).
	Activities(ctx context.Context, from, to time.Time) ([]Activity, error)
}

// Mutator applies approved schedule changes to the booking subsystem. Used
// only by the resolution applier.
type Mutator interface {
	Cancel(ctx context.Context, activityID string) error
	Reschedule(ctx context.Context, activityID string, newStart time.Time) error
}
