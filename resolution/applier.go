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

// Package resolution applies approved conflict resolutions to the schedule.
// This is the only place the engine mutates the booking subsystem, and it
// only ever runs on an explicit, human-authorized call: automated
// negotiation proposes, a human disposes.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/FredrickOdondi/concord/activity"
	"github.com/FredrickOdondi/concord/conflict"
	"github.com/FredrickOdondi/concord/database"
	"github.com/FredrickOdondi/concord/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResolvedEventType  event.EventType = "conflict.resolved"
	DismissedEventType event.EventType = "conflict.dismissed"
)

type ResolvedEvent struct {
	ConflictID string
	Action     Action
	ActivityID string
	Actor      string
}

// Action is an approved resolution step.
type Action string

const (
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
	// ActionDismiss closes the conflict without touching the schedule.
	ActionDismiss Action = "dismiss"
)

// PreconditionError rejects an apply against a conflict that is not in an
// applicable state. Applying to an already-closed conflict is a no-op
// error, never a double mutation.
type PreconditionError struct {
	ConflictID string
	Status     conflict.Status
	Reason     string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf(
		"cannot apply resolution to conflict %s (status %q): %s",
		e.ConflictID,
		e.Status,
		e.Reason,
	)
}

// MutationError reports a failed schedule mutation. The conflict keeps its
// previous status; it is never marked resolved on a failed mutation.
type MutationError struct {
	ConflictID string
	ActivityID string
	Err        error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf(
		"failed to mutate activity %s for conflict %s: %v",
		e.ActivityID,
		e.ConflictID,
		e.Err,
	)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// Request describes one apply call.
type Request struct {
	ConflictID string
	Action     Action
	// NewStart is required for reschedule.
	NewStart *time.Time
	// ActivityID targets a specific activity; when empty the applier
	// derives it from the pending resolution's party, falling back to the
	// later-starting activity of the pair.
	ActivityID string
	Actor      string
	Detail     string
}

// Applied is the audit record returned from a successful apply.
type Applied struct {
	ConflictID string
	Action     Action
	ActivityID string
	NewStart   *time.Time
	Actor      string
	AppliedAt  time.Time
}

type Config struct {
	Store        *database.Database
	Mutator      activity.Mutator
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

type Applier struct {
	store    *database.Database
	mutator  activity.Mutator
	eventBus *event.EventBus
	logger   *slog.Logger
	metrics  struct {
		appliesTotal *prometheus.CounterVec
	}
}

func NewApplier(cfg Config) *Applier {
	a := &Applier{
		store:    cfg.Store,
		mutator:  cfg.Mutator,
		eventBus: cfg.EventBus,
		logger:   cfg.Logger,
	}
	if a.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		a.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.PromRegistry != nil {
		factory := promauto.With(cfg.PromRegistry)
		a.metrics.appliesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concord_resolutions_applied_total",
				Help: "applied resolutions by action",
			},
			[]string{"action"},
		)
	}
	return a
}

// Apply validates preconditions, mutates the schedule, writes the audit
// entry, and closes the conflict. Dismissal skips the schedule mutation and
// is allowed from any active status; cancel and reschedule require a
// negotiated pending resolution or an escalated conflict.
func (a *Applier) Apply(ctx context.Context, req Request) (*Applied, error) {
	c, err := a.store.GetConflict(ctx, req.ConflictID)
	if err != nil {
		return nil, err
	}
	if c.Status.Closed() {
		return nil, &PreconditionError{
			ConflictID: c.ID,
			Status:     c.Status,
			Reason:     "conflict is already closed",
		}
	}

	var pending *conflict.PendingResolution
	switch req.Action {
	case ActionDismiss:
		// No schedule mutation; any active status is fine.
	case ActionCancel, ActionReschedule:
		switch c.Status {
		case conflict.StatusNegotiating:
			session, serr := a.store.SessionForConflict(ctx, c.ID)
			if serr != nil && !errors.Is(serr, database.ErrSessionNotFound) {
				return nil, serr
			}
			if session == nil || session.Pending == nil {
				return nil, &PreconditionError{
					ConflictID: c.ID,
					Status:     c.Status,
					Reason:     "no pending resolution to apply",
				}
			}
			pending = session.Pending
		case conflict.StatusEscalated:
			// Manual resolution of an escalated conflict.
		default:
			return nil, &PreconditionError{
				ConflictID: c.ID,
				Status:     c.Status,
				Reason:     "conflict has not been negotiated or escalated",
			}
		}
	default:
		return nil, &PreconditionError{
			ConflictID: c.ID,
			Status:     c.Status,
			Reason:     fmt.Sprintf("unknown action %q", req.Action),
		}
	}

	applied := &Applied{
		ConflictID: c.ID,
		Action:     req.Action,
		NewStart:   req.NewStart,
		Actor:      req.Actor,
		AppliedAt:  time.Now().UTC(),
	}
	if req.Action != ActionDismiss {
		applied.ActivityID = req.ActivityID
		if applied.ActivityID == "" {
			applied.ActivityID = targetActivity(c, pending)
		}
		if applied.ActivityID == "" {
			return nil, &PreconditionError{
				ConflictID: c.ID,
				Status:     c.Status,
				Reason:     "no target activity to mutate",
			}
		}
		if err := a.mutate(ctx, c.ID, applied); err != nil {
			return nil, err
		}
	}

	detail := req.Detail
	if detail == "" {
		detail = applyDetail(applied)
	}
	if err := a.store.AppendResolutionLog(ctx, c.ID, conflict.LogEntry{
		Actor:  req.Actor,
		Action: string(req.Action),
		Detail: detail,
	}); err != nil {
		return nil, err
	}

	closedStatus := conflict.StatusResolved
	eventType := ResolvedEventType
	if req.Action == ActionDismiss {
		closedStatus = conflict.StatusDismissed
		eventType = DismissedEventType
	}
	if err := a.store.MarkClosed(ctx, c.ID, closedStatus, applied.AppliedAt); err != nil {
		return nil, err
	}
	if a.metrics.appliesTotal != nil {
		a.metrics.appliesTotal.WithLabelValues(string(req.Action)).Inc()
	}
	a.logger.Info(
		"resolution applied",
		"component", "resolution",
		"conflict_id", c.ID,
		"action", req.Action,
		"activity_id", applied.ActivityID,
		"actor", req.Actor,
	)
	if a.eventBus != nil {
		a.eventBus.Publish(eventType, event.NewEvent(eventType, ResolvedEvent{
			ConflictID: c.ID,
			Action:     req.Action,
			ActivityID: applied.ActivityID,
			Actor:      req.Actor,
		}))
	}
	return applied, nil
}

func (a *Applier) mutate(ctx context.Context, conflictID string, applied *Applied) error {
	switch applied.Action {
	case ActionCancel:
		if err := a.mutator.Cancel(ctx, applied.ActivityID); err != nil {
			return &MutationError{
				ConflictID: conflictID,
				ActivityID: applied.ActivityID,
				Err:        err,
			}
		}
	case ActionReschedule:
		if applied.NewStart == nil {
			return &PreconditionError{
				ConflictID: conflictID,
				Reason:     "reschedule requires a new start time",
			}
		}
		if err := a.mutator.Reschedule(ctx, applied.ActivityID, *applied.NewStart); err != nil {
			return &MutationError{
				ConflictID: conflictID,
				ActivityID: applied.ActivityID,
				Err:        err,
			}
		}
	}
	return nil
}

// targetActivity picks the activity to mutate: the pending resolution
// party's own activity when a consensus exists, otherwise the
// later-starting activity of the conflicting pair.
func targetActivity(c *conflict.Conflict, pending *conflict.PendingResolution) string {
	if pending != nil {
		if pos, ok := c.Positions[pending.Party]; ok && pos.ActivityID != "" {
			return pos.ActivityID
		}
	}
	var refA, refB conflict.ActivityRef
	switch details := c.Details.(type) {
	case conflict.ScheduleClashDetails:
		refA, refB = details.ActivityA, details.ActivityB
	case conflict.VenueConflictDetails:
		refA, refB = details.ActivityA, details.ActivityB
	case conflict.ParticipantOverlapDetails:
		refA, refB = details.ActivityA, details.ActivityB
	default:
		return ""
	}
	if refB.Start.After(refA.Start) {
		return refB.ID
	}
	if refA.Start.After(refB.Start) {
		return refA.ID
	}
	if refB.ID > refA.ID {
		return refB.ID
	}
	return refA.ID
}

func applyDetail(applied *Applied) string {
	switch applied.Action {
	case ActionReschedule:
		return fmt.Sprintf(
			"rescheduled activity %s to %s",
			applied.ActivityID,
			applied.NewStart.UTC().Format(time.RFC3339),
		)
	case ActionCancel:
		return fmt.Sprintf("canceled activity %s", applied.ActivityID)
	default:
		return "dismissed without schedule changes"
	}
}
