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

package activity_test

import (
	"testing"
	"time"

	"github.com/FredrickOdondi/concord/activity"
	"github.com/stretchr/testify/assert"
)

func TestOverlapsHalfOpen(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	window := func(offset, duration time.Duration) activity.Activity {
		return activity.Activity{StartTime: base.Add(offset), Duration: duration}
	}

	tests := []struct {
		name     string
		a, b     activity.Activity
		overlaps bool
	}{
		{"partial overlap", window(0, time.Hour), window(30*time.Minute, time.Hour), true},
		{"contained", window(0, 2*time.Hour), window(30*time.Minute, time.Hour), true},
		{"identical", window(0, time.Hour), window(0, time.Hour), true},
		{"touching", window(0, time.Hour), window(time.Hour, time.Hour), false},
		{"disjoint", window(0, time.Hour), window(3*time.Hour, time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overlaps, tt.a.Overlaps(tt.b))
			// Symmetric
			assert.Equal(t, tt.overlaps, tt.b.Overlaps(tt.a))
		})
	}
}
