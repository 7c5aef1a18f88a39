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

package resolution_test

import (
	"context"
	"testing"
	"time"

	"github.com/FredrickOdondi/concord/activity"
	"github.com/FredrickOdondi/concord/conflict"
	"github.com/FredrickOdondi/concord/database"
	"github.com/FredrickOdondi/concord/resolution"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testWindow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db      *database.Database
	applier *resolution.Applier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})
	return &fixture{
		db: db,
		applier: resolution.NewApplier(resolution.Config{
			Store:   db,
			Mutator: db,
		}),
	}
}

// seedConflict stores both activities and records a two-party venue
// conflict between them, returning it in detected status.
func (f *fixture) seedConflict(t *testing.T) *conflict.Conflict {
	t.Helper()
	ctx := context.Background()
	start := testWindow
	end := testWindow.Add(time.Hour)
	for _, a := range []activity.Activity{
		{
			ID: "act-1", Title: "Budget review", GroupID: "alpha",
			Location: "Main Hall", StartTime: start, Duration: time.Hour,
		},
		{
			ID: "act-2", Title: "Trade briefing", GroupID: "beta",
			Location: "Main Hall", StartTime: start.Add(15 * time.Minute),
			Duration: time.Hour,
		},
	} {
		require.NoError(t, f.db.PutActivity(ctx, a))
	}
	cand := conflict.Candidate{
		Kind:     conflict.KindVenueConflict,
		Severity: conflict.SeverityHigh,
		Description: conflict.CanonicalDescription(
			conflict.KindVenueConflict,
			"Budget review", "Trade briefing",
			start.Add(15*time.Minute), end,
		),
		Reason:  "Venue conflict at Main Hall",
		Parties: []string{"alpha", "beta"},
		Positions: map[string]conflict.Position{
			"alpha": {
				Party: "alpha", ActivityID: "act-1",
				Title: "Budget review", Start: start, End: end,
			},
			"beta": {
				Party: "beta", ActivityID: "act-2",
				Title: "Trade briefing",
				Start: start.Add(15 * time.Minute),
				End:   end.Add(15 * time.Minute),
			},
		},
		Details: conflict.VenueConflictDetails{
			Venue: "main hall",
			ActivityA: conflict.ActivityRef{
				ID: "act-1", Title: "Budget review", GroupID: "alpha",
				Start: start, End: end,
			},
			ActivityB: conflict.ActivityRef{
				ID: "act-2", Title: "Trade briefing", GroupID: "beta",
				Start: start.Add(15 * time.Minute),
				End:   end.Add(15 * time.Minute),
			},
			OverlapStart: start.Add(15 * time.Minute),
			OverlapEnd:   end,
		},
	}
	outcome, c, err := f.db.RecordCandidate(ctx, cand)
	require.NoError(t, err)
	require.Equal(t, database.RecordCreated, outcome)
	return c
}

// negotiateToPending moves the conflict to negotiating with a consensus
// resolution held for approval.
func (f *fixture) negotiateToPending(
	t *testing.T,
	c *conflict.Conflict,
	pending conflict.PendingResolution,
) {
	t.Helper()
	ctx := context.Background()
	ok, err := f.db.CompareAndSetStatus(
		ctx, c.ID, conflict.StatusDetected, conflict.StatusNegotiating,
	)
	require.NoError(t, err)
	require.True(t, ok)
	session, err := f.db.CreateSession(ctx, c.ID, 3)
	require.NoError(t, err)
	require.NoError(t, f.db.ConcludeSession(
		ctx, session.ID, database.SessionConsensus, &pending,
	))
}

func TestApplyRejectsDetectedConflict(t *testing.T) {
	f := newFixture(t)
	c := f.seedConflict(t)

	_, err := f.applier.Apply(context.Background(), resolution.Request{
		ConflictID: c.ID,
		Action:     resolution.ActionCancel,
		Actor:      "human",
	})
	var precondition *resolution.PreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.Equal(t, conflict.StatusDetected, precondition.Status)
	assert.Contains(t, precondition.Reason, "has not been negotiated or escalated")

	// Status unchanged
	got, err := f.db.GetConflict(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, conflict.StatusDetected, got.Status)
}

func TestApplyPendingReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedConflict(t)
	newStart := testWindow.Add(4 * time.Hour)
	f.negotiateToPending(t, c, conflict.PendingResolution{
		Party:     "beta",
		Action:    string(resolution.ActionReschedule),
		NewStart:  &newStart,
		Rationale: "afternoon slot is free",
	})

	applied, err := f.applier.Apply(ctx, resolution.Request{
		ConflictID: c.ID,
		Action:     resolution.ActionReschedule,
		NewStart:   &newStart,
		Actor:      "human",
	})
	require.NoError(t, err)
	// The pending party's own activity is the one moved
	assert.Equal(t, "act-2", applied.ActivityID)

	moved, err := f.db.GetActivity(ctx, "act-2")
	require.NoError(t, err)
	assert.True(t, moved.StartTime.Equal(newStart))

	got, err := f.db.GetConflict(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, conflict.StatusResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)
	require.NotEmpty(t, got.ResolutionLog)
	last := got.ResolutionLog[len(got.ResolutionLog)-1]
	assert.Equal(t, "human", last.Actor)
	assert.Equal(t, string(resolution.ActionReschedule), last.Action)
}

func TestApplyNegotiatingWithoutPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedConflict(t)
	ok, err := f.db.CompareAndSetStatus(
		ctx, c.ID, conflict.StatusDetected, conflict.StatusNegotiating,
	)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.applier.Apply(ctx, resolution.Request{
		ConflictID: c.ID,
		Action:     resolution.ActionCancel,
		Actor:      "human",
	})
	var precondition *resolution.PreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.Contains(t, precondition.Reason, "no pending resolution to apply")
}

func TestApplyManualCancelOnEscalated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedConflict(t)
	ok, err := f.db.CompareAndSetStatus(
		ctx, c.ID, conflict.StatusDetected, conflict.StatusEscalated,
	)
	require.NoError(t, err)
	require.True(t, ok)

	applied, err := f.applier.Apply(ctx, resolution.Request{
		ConflictID: c.ID,
		Action:     resolution.ActionCancel,
		Actor:      "human",
		Detail:     "minister unavailable, drop the briefing",
	})
	require.NoError(t, err)
	// No pending resolution: the later-starting activity is targeted
	assert.Equal(t, "act-2", applied.ActivityID)

	canceled, err := f.db.GetActivity(ctx, "act-2")
	require.NoError(t, err)
	assert.True(t, canceled.Canceled)

	got, err := f.db.GetConflict(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, conflict.StatusResolved, got.Status)
	last := got.ResolutionLog[len(got.ResolutionLog)-1]
	assert.Equal(t, "minister unavailable, drop the briefing", last.Detail)
}

func TestApplyDismissFromDetected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedConflict(t)

	applied, err := f.applier.Apply(ctx, resolution.Request{
		ConflictID: c.ID,
		Action:     resolution.ActionDismiss,
		Actor:      "human",
		Detail:     "false positive, rooms were merged",
	})
	require.NoError(t, err)
	assert.Empty(t, applied.ActivityID)

	// The schedule is untouched
	a, err := f.db.GetActivity(ctx, "act-1")
	require.NoError(t, err)
	assert.False(t, a.Canceled)

	got, err := f.db.GetConflict(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, conflict.StatusDismissed, got.Status)
}

func TestApplyClosedConflictIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedConflict(t)
	require.NoError(
		t,
		f.db.MarkClosed(ctx, c.ID, conflict.StatusResolved, time.Now().UTC()),
	)

	_, err := f.applier.Apply(ctx, resolution.Request{
		ConflictID: c.ID,
		Action:     resolution.ActionDismiss,
		Actor:      "human",
	})
	var precondition *resolution.PreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.Contains(t, precondition.Reason, "already closed")
}

func TestApplyMutationFailureKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedConflict(t)
	ok, err := f.db.CompareAndSetStatus(
		ctx, c.ID, conflict.StatusDetected, conflict.StatusEscalated,
	)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.applier.Apply(ctx, resolution.Request{
		ConflictID: c.ID,
		Action:     resolution.ActionCancel,
		ActivityID: "no-such-activity",
		Actor:      "human",
	})
	var mutation *resolution.MutationError
	require.ErrorAs(t, err, &mutation)
	assert.Equal(t, "no-such-activity", mutation.ActivityID)
	assert.ErrorIs(t, err, database.ErrActivityNotFound)

	// A failed mutation never closes the conflict
	got, err := f.db.GetConflict(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, conflict.StatusEscalated, got.Status)
	assert.Nil(t, got.ResolvedAt)
}

func TestApplyRescheduleRequiresNewStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedConflict(t)
	ok, err := f.db.CompareAndSetStatus(
		ctx, c.ID, conflict.StatusDetected, conflict.StatusEscalated,
	)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.applier.Apply(ctx, resolution.Request{
		ConflictID: c.ID,
		Action:     resolution.ActionReschedule,
		Actor:      "human",
	})
	var precondition *resolution.PreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.Contains(t, precondition.Reason, "new start time")
}

func TestApplyUnknownAction(t *testing.T) {
	f := newFixture(t)
	c := f.seedConflict(t)

	_, err := f.applier.Apply(context.Background(), resolution.Request{
		ConflictID: c.ID,
		Action:     resolution.Action("merge"),
		Actor:      "human",
	})
	var precondition *resolution.PreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.Contains(t, precondition.Reason, `unknown action "merge"`)
}
