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
	"fmt"
	"time"
)

// CanonicalDescription builds the deterministic human-readable description
// used, together with Kind, as the deduplication key for a detected pair.
// Titles are ordered lexically so the same pair always produces an identical
// string regardless of scan order, and the overlap window is rendered in UTC.
//
// Known limitation: keying on the description means a pair that is resolved
// and later rescheduled back into collision with identical titles and window
// is suppressed as a closed issue rather than reopened. Keying on activity
// identity plus a window hash would disambiguate, at the cost of churning
// keys when titles are edited.
func CanonicalDescription(kind Kind, titleA, titleB string, overlapStart, overlapEnd time.Time) string {
	if titleB < titleA {
		titleA, titleB = titleB, titleA
	}
	window := fmt.Sprintf(
		"%s/%s",
		overlapStart.UTC().Format(time.RFC3339),
		overlapEnd.UTC().Format(time.RFC3339),
	)
	switch kind {
	case KindScheduleClash:
		return fmt.Sprintf("Schedule clash between %q and %q during %s", titleA, titleB, window)
	case KindVenueConflict:
		return fmt.Sprintf("Venue conflict between %q and %q during %s", titleA, titleB, window)
	case KindParticipantOverlap:
		return fmt.Sprintf("Participant overlap between %q and %q during %s", titleA, titleB, window)
	default:
		return fmt.Sprintf("%s between %q and %q during %s", kind, titleA, titleB, window)
	}
}
