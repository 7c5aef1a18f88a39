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

package concord_test

import (
	"context"
	"testing"
	"time"

	"github.com/FredrickOdondi/concord"
	"github.com/FredrickOdondi/concord/activity"
	"github.com/FredrickOdondi/concord/advisor"
	"github.com/FredrickOdondi/concord/conflict"
	"github.com/FredrickOdondi/concord/database"
	"github.com/FredrickOdondi/concord/negotiation"
	"github.com/FredrickOdondi/concord/resolution"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T, adv advisor.Advisor) *concord.Service {
	t.Helper()
	svc, err := concord.New(concord.NewConfig(
		concord.WithDataDir(t.TempDir()),
		concord.WithAdvisor(adv),
		// Scans run on demand in tests
		concord.WithAutoNegotiate(false),
	))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := svc.Close(); err != nil {
			t.Errorf("failed to close service: %v", err)
		}
	})
	return svc
}

func seedSchedule(t *testing.T, svc *concord.Service) {
	t.Helper()
	ctx := context.Background()
	start := time.Now().UTC().Add(2 * time.Hour)
	for _, a := range []activity.Activity{
		{
			ID: "act-1", Title: "Budget review", GroupID: "alpha",
			Location: "Main Hall", StartTime: start, Duration: time.Hour,
		},
		{
			ID: "act-2", Title: "Trade briefing", GroupID: "beta",
			Location: "Main Hall",
			StartTime: start.Add(30 * time.Minute), Duration: time.Hour,
		},
	} {
		require.NoError(t, svc.Database().PutActivity(ctx, a))
	}
}

func TestNewRequiresAdvisor(t *testing.T) {
	_, err := concord.New(concord.NewConfig(
		concord.WithDataDir(t.TempDir()),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "advisor")
}

// Full pass from schedule to applied resolution: scan, negotiate to
// consensus, approve, verify the reschedule landed.
func TestScanNegotiateApprove(t *testing.T) {
	ctx := context.Background()
	newStart := time.Now().UTC().Add(26 * time.Hour)
	adv := advisor.NewScriptedAdvisor().
		Queue("alpha", advisor.Proposal{
			Action:     advisor.ActionReschedule,
			NewStart:   &newStart,
			Rationale:  "the next morning is clear",
			Confidence: 0.9,
		}).
		Queue("beta", advisor.Proposal{
			Action:     advisor.ActionYield,
			Rationale:  "briefing can move",
			Confidence: 0.6,
		})
	svc := testService(t, adv)
	seedSchedule(t, svc)

	result, err := svc.ScanNow(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	conflictID := result.Conflicts[0].ConflictID

	negotiated, err := svc.Negotiate(ctx, conflictID, negotiation.Options{})
	require.NoError(t, err)
	assert.Equal(t, negotiation.OutcomeConsensus, negotiated.Outcome)
	require.NotNil(t, negotiated.Pending)
	assert.Equal(t, "alpha", negotiated.Pending.Party)

	// Consensus waits for a human
	c, err := svc.GetConflict(ctx, conflictID)
	require.NoError(t, err)
	assert.Equal(t, conflict.StatusNegotiating, c.Status)

	applied, err := svc.ApproveResolution(ctx, conflictID)
	require.NoError(t, err)
	assert.Equal(t, resolution.ActionReschedule, applied.Action)
	assert.Equal(t, "act-1", applied.ActivityID)

	moved, err := svc.Database().GetActivity(ctx, "act-1")
	require.NoError(t, err)
	assert.True(t, moved.StartTime.Equal(newStart))

	c, err = svc.GetConflict(ctx, conflictID)
	require.NoError(t, err)
	assert.Equal(t, conflict.StatusResolved, c.Status)

	// The resolved schedule no longer conflicts
	result, err = svc.ScanNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Overlaps)
}

func TestApproveWithoutConsensus(t *testing.T) {
	ctx := context.Background()
	svc := testService(t, advisor.NewScriptedAdvisor())
	seedSchedule(t, svc)

	result, err := svc.ScanNow(ctx)
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)

	_, err = svc.ApproveResolution(ctx, result.Conflicts[0].ConflictID)
	var precondition *resolution.PreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.Contains(t, precondition.Reason, "no pending resolution to approve")
}

func TestNegotiateApplyImmediately(t *testing.T) {
	ctx := context.Background()
	adv := advisor.NewScriptedAdvisor().
		Queue("alpha", advisor.Proposal{
			Action:     advisor.ActionCancel,
			Rationale:  "review can fold into the plenary",
			Confidence: 0.8,
		}).
		Queue("beta", advisor.Proposal{
			Action:     advisor.ActionCancel,
			Rationale:  "either side can give way",
			Confidence: 0.5,
		})
	svc := testService(t, adv)
	seedSchedule(t, svc)

	result, err := svc.ScanNow(ctx)
	require.NoError(t, err)
	conflictID := result.Conflicts[0].ConflictID

	negotiated, err := svc.Negotiate(ctx, conflictID, negotiation.Options{
		ApplyImmediately: true,
	})
	require.NoError(t, err)
	assert.Equal(t, negotiation.OutcomeConsensus, negotiated.Outcome)

	c, err := svc.GetConflict(ctx, conflictID)
	require.NoError(t, err)
	assert.Equal(t, conflict.StatusResolved, c.Status)
	// Highest confidence party's activity was canceled
	canceled, err := svc.Database().GetActivity(ctx, "act-1")
	require.NoError(t, err)
	assert.True(t, canceled.Canceled)
}

func TestResolveManuallyDismiss(t *testing.T) {
	ctx := context.Background()
	svc := testService(t, advisor.NewScriptedAdvisor())
	seedSchedule(t, svc)

	result, err := svc.ScanNow(ctx)
	require.NoError(t, err)
	conflictID := result.Conflicts[0].ConflictID

	applied, err := svc.ResolveManually(
		ctx, conflictID, resolution.ActionDismiss, nil,
		"rooms were merged for the summit",
	)
	require.NoError(t, err)
	assert.Empty(t, applied.ActivityID)

	c, err := svc.GetConflict(ctx, conflictID)
	require.NoError(t, err)
	assert.Equal(t, conflict.StatusDismissed, c.Status)
	last := c.ResolutionLog[len(c.ResolutionLog)-1]
	assert.Equal(t, "rooms were merged for the summit", last.Detail)
}

// An external booking system supplies the schedule and receives the
// mutations; the service's own activity table stays out of the loop.
func TestExternalActivitySource(t *testing.T) {
	ctx := context.Background()
	start := time.Now().UTC().Add(2 * time.Hour)
	booking := activity.NewStaticSource(
		activity.Activity{
			ID: "act-1", Title: "Budget review", GroupID: "alpha",
			Location: "Main Hall", StartTime: start, Duration: time.Hour,
		},
		activity.Activity{
			ID: "act-2", Title: "Trade briefing", GroupID: "beta",
			Location: "Main Hall",
			StartTime: start.Add(30 * time.Minute), Duration: time.Hour,
		},
	)
	svc, err := concord.New(concord.NewConfig(
		concord.WithDataDir(t.TempDir()),
		concord.WithAdvisor(advisor.NewScriptedAdvisor()),
		concord.WithActivitySource(booking),
		concord.WithActivityMutator(booking),
		concord.WithAutoNegotiate(false),
	))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := svc.Close(); err != nil {
			t.Errorf("failed to close service: %v", err)
		}
	})

	result, err := svc.ScanNow(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	conflictID := result.Conflicts[0].ConflictID

	// Escalate, then resolve against the external system
	_, err = svc.Negotiate(ctx, conflictID, negotiation.Options{})
	require.NoError(t, err)
	c, err := svc.GetConflict(ctx, conflictID)
	require.NoError(t, err)
	require.Equal(t, conflict.StatusEscalated, c.Status)

	applied, err := svc.ResolveManually(
		ctx, conflictID, resolution.ActionCancel, nil, "dropped by protocol office",
	)
	require.NoError(t, err)
	canceled, ok := booking.Get(applied.ActivityID)
	require.True(t, ok)
	assert.True(t, canceled.Canceled)
}

func TestRecordConflictExternalKind(t *testing.T) {
	ctx := context.Background()
	svc := testService(t, advisor.NewScriptedAdvisor())

	cand := conflict.Candidate{
		Kind:        conflict.KindPolicyDivergence,
		Severity:    conflict.SeverityMedium,
		Description: "policy_divergence|alpha|beta|tariff schedule",
		Reason:      "delegations filed incompatible tariff positions",
		Parties:     []string{"alpha", "beta"},
		Positions: map[string]conflict.Position{
			"alpha": {Party: "alpha", Statement: "phase-out over five years"},
			"beta":  {Party: "beta", Statement: "phase-out over two years"},
		},
		Details: conflict.PolicyDivergenceDetails{
			Topic: "tariff schedule",
		},
	}
	outcome, c, err := svc.RecordConflict(ctx, cand)
	require.NoError(t, err)
	assert.Equal(t, database.RecordCreated, outcome)
	assert.Equal(t, conflict.StatusDetected, c.Status)

	// Same description is suppressed while the first is active
	outcome, matched, err := svc.RecordConflict(ctx, cand)
	require.NoError(t, err)
	assert.Equal(t, database.RecordMatchedActive, outcome)
	assert.Equal(t, c.ID, matched.ID)
}
