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
	"context"
	"testing"
	"time"

	"github.com/FredrickOdondi/concord/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSourceWindowFilter(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	source := activity.NewStaticSource(
		activity.Activity{
			ID: "in-window", StartTime: base.Add(time.Hour),
			Duration: time.Hour,
		},
		activity.Activity{
			// Straddles the window start
			ID: "straddling", StartTime: base.Add(-30 * time.Minute),
			Duration: time.Hour,
		},
		activity.Activity{
			ID: "too-late", StartTime: base.Add(48 * time.Hour),
			Duration: time.Hour,
		},
		activity.Activity{
			ID: "canceled", StartTime: base.Add(time.Hour),
			Duration: time.Hour, Canceled: true,
		},
	)

	got, err := source.Activities(context.Background(), base, base.Add(24*time.Hour))
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{"in-window", "straddling"}, ids)
}

func TestStaticSourceMutations(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	source := activity.NewStaticSource(activity.Activity{
		ID: "act-1", StartTime: base, Duration: time.Hour,
	})

	newStart := base.Add(3 * time.Hour)
	require.NoError(t, source.Reschedule(ctx, "act-1", newStart))
	a, ok := source.Get("act-1")
	require.True(t, ok)
	assert.True(t, a.StartTime.Equal(newStart))
	// Duration is preserved on reschedule
	assert.Equal(t, time.Hour, a.Duration)

	require.NoError(t, source.Cancel(ctx, "act-1"))
	a, _ = source.Get("act-1")
	assert.True(t, a.Canceled)

	assert.Error(t, source.Cancel(ctx, "missing"))
	assert.Error(t, source.Reschedule(ctx, "missing", newStart))
}
