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

// Package concord coordinates conflict detection and autonomous negotiation
// over working-group schedules. The Service is constructed explicitly with
// injected collaborators and owns the store, engine, applier, and scan
// dispatcher; there is no module-level state.
package concord

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/FredrickOdondi/concord/conflict"
	"github.com/FredrickOdondi/concord/database"
	"github.com/FredrickOdondi/concord/dispatcher"
	"github.com/FredrickOdondi/concord/event"
	"github.com/FredrickOdondi/concord/negotiation"
	"github.com/FredrickOdondi/concord/resolution"
)

const actorHuman = "human"

type Service struct {
	config     Config
	logger     *slog.Logger
	db         *database.Database
	eventBus   *event.EventBus
	engine     *negotiation.Engine
	applier    *resolution.Applier
	dispatcher *dispatcher.Dispatcher
}

func New(cfg Config) (*Service, error) {
	if cfg.advisor == nil {
		return nil, errors.New("no advisor configured")
	}
	logger := cfg.logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	db, err := database.New(&database.Config{
		DataDir:      cfg.dataDir,
		Logger:       logger,
		PromRegistry: cfg.promRegistry,
	})
	if err != nil {
		return nil, err
	}
	source := cfg.source
	if source == nil {
		source = db
	}
	mutator := cfg.mutator
	if mutator == nil {
		mutator = db
	}
	eventBus := event.NewEventBus(cfg.promRegistry)
	engine := negotiation.NewEngine(negotiation.Config{
		Store:          db,
		Advisor:        cfg.advisor,
		EventBus:       eventBus,
		Logger:         logger,
		PromRegistry:   cfg.promRegistry,
		MaxRounds:      cfg.maxRounds,
		AdvisorTimeout: cfg.advisorTimeout,
	})
	applier := resolution.NewApplier(resolution.Config{
		Store:        db,
		Mutator:      mutator,
		EventBus:     eventBus,
		Logger:       logger,
		PromRegistry: cfg.promRegistry,
	})
	disp := dispatcher.New(dispatcher.Config{
		Source:        source,
		Store:         db,
		Engine:        engine,
		EventBus:      eventBus,
		Logger:        logger,
		PromRegistry:  cfg.promRegistry,
		Interval:      cfg.scanInterval,
		Horizon:       cfg.scanHorizon,
		AutoNegotiate: cfg.autoNegotiate,
	})
	s := &Service{
		config:     cfg,
		logger:     logger,
		db:         db,
		eventBus:   eventBus,
		engine:     engine,
		applier:    applier,
		dispatcher: disp,
	}
	if cfg.notifier != nil {
		s.bridgeNotifications(cfg.notifier)
	}
	return s, nil
}

// Run starts the periodic scan loop and blocks until ctx is canceled, then
// shuts everything down.
func (s *Service) Run(ctx context.Context) error {
	s.dispatcher.Start(ctx)
	<-ctx.Done()
	return s.Close()
}

// Close stops the dispatcher, drains the event bus, and closes the store.
func (s *Service) Close() error {
	s.dispatcher.Stop()
	s.eventBus.Stop()
	return s.db.Close()
}

// Database exposes the underlying store, mainly for seeding the schedule
// table in dev mode and tests.
func (s *Service) Database() *database.Database {
	return s.db
}

// EventBus exposes the lifecycle event bus for outer collaborators.
func (s *Service) EventBus() *event.EventBus {
	return s.eventBus
}

// ScanNow runs one scan pass immediately. Returns ErrScanInProgress if the
// periodic loop (or another caller) is mid-scan.
func (s *Service) ScanNow(ctx context.Context) (*dispatcher.ScanResult, error) {
	return s.dispatcher.Scan(ctx)
}

// ListConflicts returns active conflicts, or every conflict when
// includeHistory is set.
func (s *Service) ListConflicts(ctx context.Context, includeHistory bool) ([]conflict.Conflict, error) {
	return s.db.ListConflicts(ctx, includeHistory)
}

// GetConflict returns one conflict with its full resolution log.
func (s *Service) GetConflict(ctx context.Context, conflictID string) (*conflict.Conflict, error) {
	return s.db.GetConflict(ctx, conflictID)
}

// RecordConflict records an externally reported conflict (policy
// divergences and dependency blockers come from outer collaborators, not
// from schedule scans) under the same dedup rules as scan findings.
func (s *Service) RecordConflict(
	ctx context.Context,
	cand conflict.Candidate,
) (database.RecordOutcome, *conflict.Conflict, error) {
	return s.db.RecordCandidate(ctx, cand)
}

// Negotiate runs one full negotiation for a conflict. When the options ask
// for immediate application, a reached consensus is applied on the caller's
// behalf instead of waiting for a separate approval.
func (s *Service) Negotiate(
	ctx context.Context,
	conflictID string,
	opts negotiation.Options,
) (*negotiation.Result, error) {
	result, err := s.engine.Negotiate(ctx, conflictID, opts)
	if err != nil {
		return nil, err
	}
	if opts.ApplyImmediately &&
		result.Outcome == negotiation.OutcomeConsensus &&
		result.Pending != nil {
		if _, err := s.applier.Apply(ctx, resolution.Request{
			ConflictID: conflictID,
			Action:     resolution.Action(result.Pending.Action),
			NewStart:   result.Pending.NewStart,
			Actor:      "system",
			Detail:     "applied immediately at caller request",
		}); err != nil {
			return result, err
		}
	}
	return result, nil
}

// ApproveResolution applies the consensus resolution held on a negotiating
// conflict. The caller carries human-approval authority; RBAC is enforced
// by the outer API layer.
func (s *Service) ApproveResolution(
	ctx context.Context,
	conflictID string,
) (*resolution.Applied, error) {
	c, err := s.db.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	session, err := s.db.SessionForConflict(ctx, conflictID)
	if err != nil && !errors.Is(err, database.ErrSessionNotFound) {
		return nil, err
	}
	if session == nil || session.Pending == nil {
		return nil, &resolution.PreconditionError{
			ConflictID: conflictID,
			Status:     c.Status,
			Reason:     "no pending resolution to approve",
		}
	}
	return s.applier.Apply(ctx, resolution.Request{
		ConflictID: conflictID,
		Action:     resolution.Action(session.Pending.Action),
		NewStart:   session.Pending.NewStart,
		Actor:      actorHuman,
	})
}

// ResolveManually applies a human-chosen action to a negotiated or
// escalated conflict (dismiss is allowed from any active status).
func (s *Service) ResolveManually(
	ctx context.Context,
	conflictID string,
	action resolution.Action,
	newStart *time.Time,
	detail string,
) (*resolution.Applied, error) {
	return s.applier.Apply(ctx, resolution.Request{
		ConflictID: conflictID,
		Action:     action,
		NewStart:   newStart,
		Actor:      actorHuman,
		Detail:     detail,
	})
}
