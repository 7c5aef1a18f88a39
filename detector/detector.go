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

// Package detector holds the pure scan pass: interval overlap detection over
// activity snapshots and severity classification of the resulting overlaps.
package detector

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/FredrickOdondi/concord/activity"
)

// Dimension identifies which shared resource triggered an overlap.
type Dimension string

const (
	DimensionVenue       Dimension = "venue"
	DimensionGroup       Dimension = "group"
	DimensionParticipant Dimension = "participant"
)

// Overlap is one pair of activities with intersecting time windows and at
// least one shared dimension. A pair may trigger several dimensions at once;
// all of them are reported so the classifier can pick the worst case.
type Overlap struct {
	A          activity.Activity
	B          activity.Activity
	Dimensions []Dimension
	Shared     []activity.Participant
}

// OverlapStart returns the later of the two start times.
func (o Overlap) OverlapStart() (t time.Time) {
	t = o.A.StartTime
	if o.B.StartTime.After(t) {
		t = o.B.StartTime
	}
	return t
}

// OverlapEnd returns the earlier of the two end times.
func (o Overlap) OverlapEnd() (t time.Time) {
	t = o.A.End()
	if o.B.End().Before(t) {
		t = o.B.End()
	}
	return t
}

// HasDimension reports whether d triggered this overlap.
func (o Overlap) HasDimension(d Dimension) bool {
	return slices.Contains(o.Dimensions, d)
}

// MalformedActivityError marks an activity snapshot that cannot take part in
// detection. The scan skips it and continues.
type MalformedActivityError struct {
	ActivityID string
	Reason     string
}

func (e *MalformedActivityError) Error() string {
	return fmt.Sprintf("malformed activity %q: %s", e.ActivityID, e.Reason)
}

func validate(a activity.Activity) error {
	if a.ID == "" {
		return &MalformedActivityError{ActivityID: a.Title, Reason: "empty id"}
	}
	if a.StartTime.IsZero() {
		return &MalformedActivityError{ActivityID: a.ID, Reason: "zero start time"}
	}
	if a.Duration <= 0 {
		return &MalformedActivityError{ActivityID: a.ID, Reason: "non-positive duration"}
	}
	return nil
}

// Detect finds every overlapping pair within the given activities and the
// dimensions each pair shares. Activities are sorted by start time so the
// inner loop can stop at the first candidate starting at or after the outer
// activity's end; touching windows (a.End == b.Start) do not overlap.
// Malformed snapshots are excluded and returned as errors for best-effort
// reporting.
func Detect(activities []activity.Activity) ([]Overlap, []error) {
	var errs []error
	sorted := make([]activity.Activity, 0, len(activities))
	for _, a := range activities {
		if err := validate(a); err != nil {
			errs = append(errs, err)
			continue
		}
		if a.Canceled {
			continue
		}
		sorted = append(sorted, a)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	var overlaps []Overlap
	for i := range sorted {
		a := sorted[i]
		for j := i + 1; j < len(sorted); j++ {
			b := sorted[j]
			if !a.Overlaps(b) {
				// Sorted by start time, so no later activity can
				// overlap a either.
				break
			}
			dims, shared := sharedDimensions(a, b)
			if len(dims) == 0 {
				continue
			}
			overlaps = append(overlaps, Overlap{
				A:          a,
				B:          b,
				Dimensions: dims,
				Shared:     shared,
			})
		}
	}
	return overlaps, errs
}

func sharedDimensions(a, b activity.Activity) ([]Dimension, []activity.Participant) {
	var dims []Dimension
	if !activity.IsVirtualLocation(a.Location) && !activity.IsVirtualLocation(b.Location) &&
		activity.NormalizeLocation(a.Location) == activity.NormalizeLocation(b.Location) {
		dims = append(dims, DimensionVenue)
	}
	if a.GroupID != "" && a.GroupID == b.GroupID {
		dims = append(dims, DimensionGroup)
	}
	shared := sharedParticipants(a, b)
	if len(shared) > 0 {
		dims = append(dims, DimensionParticipant)
	}
	return dims, shared
}

func sharedParticipants(a, b activity.Activity) []activity.Participant {
	inA := make(map[string]activity.Participant, len(a.Participants))
	for _, p := range a.Participants {
		inA[p.ID] = p
	}
	var shared []activity.Participant
	seen := make(map[string]struct{})
	for _, p := range b.Participants {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		if first, ok := inA[p.ID]; ok {
			// Prefer the more privileged role tag if the two
			// snapshots disagree.
			if roleRank(p.Role) > roleRank(first.Role) {
				shared = append(shared, p)
			} else {
				shared = append(shared, first)
			}
			seen[p.ID] = struct{}{}
		}
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i].ID < shared[j].ID })
	return shared
}
