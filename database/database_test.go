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

package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/FredrickOdondi/concord/conflict"
	"github.com/FredrickOdondi/concord/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabase(t *testing.T) *database.Database {
	t.Helper()
	// Each test gets its own on-disk database; the shared in-memory
	// database would leak state between tests in this package.
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})
	return db
}

var testWindow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func testCandidate() conflict.Candidate {
	start := testWindow
	end := testWindow.Add(time.Hour)
	return conflict.Candidate{
		Kind:     conflict.KindScheduleClash,
		Severity: conflict.SeverityMedium,
		Description: conflict.CanonicalDescription(
			conflict.KindScheduleClash,
			"Budget review",
			"Trade briefing",
			start,
			end,
		),
		Reason:  "Double booking within group economic-affairs",
		Parties: []string{"economic-affairs"},
		Positions: map[string]conflict.Position{
			"economic-affairs": {
				Party:      "economic-affairs",
				ActivityID: "act-1",
				Title:      "Budget review",
				Start:      start,
				End:        end,
			},
		},
		Details: conflict.ScheduleClashDetails{
			GroupID: "economic-affairs",
			ActivityA: conflict.ActivityRef{
				ID: "act-1", Title: "Budget review",
				GroupID: "economic-affairs", Start: start, End: end,
			},
			ActivityB: conflict.ActivityRef{
				ID: "act-2", Title: "Trade briefing",
				GroupID: "economic-affairs", Start: start, End: end,
			},
			OverlapStart: start,
			OverlapEnd:   end,
		},
	}
}

func TestRecordCandidateCreated(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	outcome, c, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)
	assert.Equal(t, database.RecordCreated, outcome)
	require.NotNil(t, c)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, conflict.StatusDetected, c.Status)
	assert.Equal(t, []string{"economic-affairs"}, c.Parties)
	assert.False(t, c.DetectedAt.IsZero())
	assert.Nil(t, c.ResolvedAt)

	details, ok := c.Details.(conflict.ScheduleClashDetails)
	require.True(t, ok)
	assert.Equal(t, "act-1", details.ActivityA.ID)
	assert.Equal(t, "act-2", details.ActivityB.ID)
}

func TestRecordCandidateMatchesActive(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	outcome, first, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)
	require.Equal(t, database.RecordCreated, outcome)

	// Same key again while the first is still active
	outcome, second, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)
	assert.Equal(t, database.RecordMatchedActive, outcome)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
}

func TestRecordCandidateSkipsClosed(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	_, c, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)
	require.NoError(
		t,
		db.MarkClosed(ctx, c.ID, conflict.StatusResolved, time.Now().UTC()),
	)

	outcome, matched, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)
	assert.Equal(t, database.RecordSkippedClosed, outcome)
	assert.Nil(t, matched)
}

func TestRecordCandidateEscalatedStillMatches(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	_, c, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)
	ok, err := db.CompareAndSetStatus(
		ctx, c.ID, conflict.StatusDetected, conflict.StatusEscalated,
	)
	require.NoError(t, err)
	require.True(t, ok)

	// Escalated conflicts are open for manual resolution and still
	// suppress rediscovery
	outcome, _, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)
	assert.Equal(t, database.RecordMatchedActive, outcome)
}

func TestRecordCandidateDifferentKindsCoexist(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	_, _, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)

	venue := testCandidate()
	venue.Kind = conflict.KindVenueConflict
	venue.Description = conflict.CanonicalDescription(
		conflict.KindVenueConflict,
		"Budget review",
		"Trade briefing",
		testWindow,
		testWindow.Add(time.Hour),
	)
	venue.Details = conflict.VenueConflictDetails{Venue: "main hall"}

	outcome, _, err := db.RecordCandidate(ctx, venue)
	require.NoError(t, err)
	assert.Equal(t, database.RecordCreated, outcome)
}

func TestCompareAndSetStatus(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	_, c, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)

	ok, err := db.CompareAndSetStatus(
		ctx, c.ID, conflict.StatusDetected, conflict.StatusNegotiating,
	)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second transition from the same expected state must lose
	ok, err = db.CompareAndSetStatus(
		ctx, c.ID, conflict.StatusDetected, conflict.StatusNegotiating,
	)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := db.GetConflict(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, conflict.StatusNegotiating, got.Status)
}

func TestMarkClosedRejectsNonTerminal(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	_, c, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)
	assert.Error(
		t,
		db.MarkClosed(ctx, c.ID, conflict.StatusNegotiating, time.Now().UTC()),
	)
}

func TestMarkClosedSetsResolvedAt(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	_, c, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)
	at := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	require.NoError(t, db.MarkClosed(ctx, c.ID, conflict.StatusDismissed, at))

	got, err := db.GetConflict(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, conflict.StatusDismissed, got.Status)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(at))
}

func TestMarkClosedExactlyOnce(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	_, c, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)
	at := time.Now().UTC()
	require.NoError(t, db.MarkClosed(ctx, c.ID, conflict.StatusResolved, at))

	// A racing second close loses; the recorded outcome stands
	err = db.MarkClosed(ctx, c.ID, conflict.StatusDismissed, at.Add(time.Second))
	assert.ErrorIs(t, err, database.ErrConflictClosed)

	got, err := db.GetConflict(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, conflict.StatusResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(at))

	assert.ErrorIs(
		t,
		db.MarkClosed(ctx, "missing", conflict.StatusResolved, at),
		database.ErrConflictNotFound,
	)
}

func TestResolutionLogAppendOrder(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	_, c, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)

	for _, action := range []string{"negotiation_round", "negotiation_round", "escalated"} {
		require.NoError(t, db.AppendResolutionLog(ctx, c.ID, conflict.LogEntry{
			Actor:  "negotiation-engine",
			Action: action,
		}))
	}

	got, err := db.GetConflict(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.ResolutionLog, 3)
	assert.Equal(t, "negotiation_round", got.ResolutionLog[0].Action)
	assert.Equal(t, "negotiation_round", got.ResolutionLog[1].Action)
	assert.Equal(t, "escalated", got.ResolutionLog[2].Action)
}

func TestListConflicts(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	_, first, err := db.RecordCandidate(ctx, testCandidate())
	require.NoError(t, err)

	second := testCandidate()
	second.Description = "another key entirely"
	_, c2, err := db.RecordCandidate(ctx, second)
	require.NoError(t, err)
	require.NoError(
		t,
		db.MarkClosed(ctx, c2.ID, conflict.StatusResolved, time.Now().UTC()),
	)

	active, err := db.ListConflicts(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)

	all, err := db.ListConflicts(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetConflictNotFound(t *testing.T) {
	db := testDatabase(t)
	_, err := db.GetConflict(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, database.ErrConflictNotFound)
}
