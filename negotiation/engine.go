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

// Package negotiation runs the bounded round-robin protocol that tries to
// bring the parties of a conflict to consensus, escalating to a human when
// it cannot.
package negotiation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/FredrickOdondi/concord/advisor"
	"github.com/FredrickOdondi/concord/conflict"
	"github.com/FredrickOdondi/concord/database"
	"github.com/FredrickOdondi/concord/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StartedEventType   event.EventType = "negotiation.started"
	ConsensusEventType event.EventType = "negotiation.consensus"
	EscalatedEventType event.EventType = "conflict.escalated"
)

type StartedEvent struct {
	ConflictID string
	SessionID  string
	Parties    []string
}

type ConsensusEvent struct {
	ConflictID string
	SessionID  string
	Resolution conflict.PendingResolution
}

type EscalatedEvent struct {
	ConflictID string
	Reason     string
}

const (
	DefaultMaxRounds      = 3
	DefaultAdvisorTimeout = 30 * time.Second

	actorEngine = "negotiation-engine"
)

// Outcome is the result of one full negotiation run.
type Outcome string

const (
	OutcomeConsensus Outcome = "consensus_reached"
	OutcomeEscalated Outcome = "escalated"
)

// Result summarizes one Negotiate call.
type Result struct {
	ConflictID string
	SessionID  string
	Outcome    Outcome
	Rounds     int
	Reason     string
	Pending    *conflict.PendingResolution
}

// Options tunes one negotiation run.
type Options struct {
	// MaxRounds overrides the engine default when positive.
	MaxRounds int
	// Constraints are passed verbatim to every advisor call.
	Constraints []string
	// ApplyImmediately asks the caller-facing service to apply a reached
	// consensus without waiting for human approval. The engine itself
	// never mutates the schedule.
	ApplyImmediately bool
}

// NotNegotiableError is returned when a conflict is not in a state that
// allows (further) negotiation.
type NotNegotiableError struct {
	ConflictID string
	Status     conflict.Status
}

func (e *NotNegotiableError) Error() string {
	return fmt.Sprintf(
		"conflict %s is not negotiable in status %q",
		e.ConflictID,
		e.Status,
	)
}

type Config struct {
	Store          *database.Database
	Advisor        advisor.Advisor
	EventBus       *event.EventBus
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
	MaxRounds      int
	AdvisorTimeout time.Duration
}

type Engine struct {
	store          *database.Database
	advisor        advisor.Advisor
	eventBus       *event.EventBus
	logger         *slog.Logger
	maxRounds      int
	advisorTimeout time.Duration
	metrics        struct {
		roundsTotal     prometheus.Counter
		consensusTotal  prometheus.Counter
		escalationTotal prometheus.Counter
	}
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		store:          cfg.Store,
		advisor:        cfg.Advisor,
		eventBus:       cfg.EventBus,
		logger:         cfg.Logger,
		maxRounds:      cfg.MaxRounds,
		advisorTimeout: cfg.AdvisorTimeout,
	}
	if e.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		e.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if e.maxRounds <= 0 {
		e.maxRounds = DefaultMaxRounds
	}
	if e.advisorTimeout <= 0 {
		e.advisorTimeout = DefaultAdvisorTimeout
	}
	if cfg.PromRegistry != nil {
		factory := promauto.With(cfg.PromRegistry)
		e.metrics.roundsTotal = factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_negotiation_rounds_total",
			Help: "total negotiation rounds run",
		})
		e.metrics.consensusTotal = factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_negotiations_consensus_total",
			Help: "negotiations concluded by consensus",
		})
		e.metrics.escalationTotal = factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_negotiations_escalated_total",
			Help: "negotiations concluded by escalation",
		})
	}
	return e
}

// Negotiate runs one full negotiation for a detected conflict. Critical
// conflicts bypass the rounds entirely and escalate immediately. The
// transition into negotiating is a compare-and-set on the status column, so
// two racing workers cannot both open a session.
func (e *Engine) Negotiate(
	ctx context.Context,
	conflictID string,
	opts Options,
) (*Result, error) {
	c, err := e.store.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}

	if c.Severity == conflict.SeverityCritical {
		return e.escalateCritical(ctx, c)
	}

	ok, err := e.store.CompareAndSetStatus(
		ctx,
		c.ID,
		conflict.StatusDetected,
		conflict.StatusNegotiating,
	)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, gerr := e.store.GetConflict(ctx, c.ID)
		status := c.Status
		if gerr == nil {
			status = cur.Status
		}
		return nil, &NotNegotiableError{ConflictID: c.ID, Status: status}
	}

	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = e.maxRounds
	}
	session, err := e.store.CreateSession(ctx, c.ID, maxRounds)
	if err != nil {
		return nil, err
	}
	e.logger.Info(
		"negotiation started",
		"component", "negotiation",
		"conflict_id", c.ID,
		"session_id", session.ID,
		"parties", c.Parties,
		"max_rounds", maxRounds,
	)
	if e.eventBus != nil {
		e.eventBus.Publish(
			StartedEventType,
			event.NewEvent(StartedEventType, StartedEvent{
				ConflictID: c.ID,
				SessionID:  session.ID,
				Parties:    c.Parties,
			}),
		)
	}

	var previous []advisor.Proposal
	for round := 1; round <= maxRounds; round++ {
		if err := e.store.SetSessionRound(ctx, session.ID, round); err != nil {
			return nil, err
		}
		proposals, failedParty, err := e.runRound(ctx, c, session.ID, round, previous, opts.Constraints)
		if err != nil {
			return nil, err
		}
		if failedParty != "" {
			reason := fmt.Sprintf(
				"party %s did not respond in round %d",
				failedParty,
				round,
			)
			return e.escalate(ctx, c, session.ID, round, reason)
		}
		if e.metrics.roundsTotal != nil {
			e.metrics.roundsTotal.Inc()
		}
		if err := e.store.AppendResolutionLog(ctx, c.ID, conflict.LogEntry{
			Actor:  actorEngine,
			Action: "negotiation_round",
			Detail: fmt.Sprintf("round %d: %s", round, summarize(proposals)),
		}); err != nil {
			return nil, err
		}

		if pending, ok := converge(c.Parties, proposals); ok {
			return e.concludeConsensus(ctx, c, session.ID, round, pending)
		}
		previous = proposals
	}

	reason := fmt.Sprintf("no consensus after %d round(s)", maxRounds)
	return e.escalate(ctx, c, session.ID, maxRounds, reason)
}

// runRound collects one proposal per party. An advisor failure is retried
// once; a second failure names the party so the caller can escalate.
func (e *Engine) runRound(
	ctx context.Context,
	c *conflict.Conflict,
	sessionID string,
	round int,
	previous []advisor.Proposal,
	constraints []string,
) ([]advisor.Proposal, string, error) {
	proposals := make([]advisor.Proposal, 0, len(c.Parties))
	for _, party := range c.Parties {
		req := advisor.Request{
			Party:          party,
			Description:    c.Description,
			Severity:       c.Severity,
			Round:          round,
			Position:       c.Positions[party],
			OtherPositions: otherPositions(c, party),
			OtherProposals: otherProposals(previous, party),
			Constraints:    constraints,
		}
		proposal, err := e.propose(ctx, req)
		if err != nil {
			e.logger.Warn(
				"advisor retry",
				"component", "negotiation",
				"conflict_id", c.ID,
				"party", party,
				"round", round,
				"error", err,
			)
			proposal, err = e.propose(ctx, req)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			if lerr := e.store.AppendResolutionLog(ctx, c.ID, conflict.LogEntry{
				Actor:  actorEngine,
				Action: "advisor_error",
				Detail: fmt.Sprintf("round %d: %v", round, err),
			}); lerr != nil {
				return nil, "", lerr
			}
			return nil, party, nil
		}
		if err := e.store.AddProposal(ctx, sessionID, database.Proposal{
			Round:      round,
			Party:      proposal.Party,
			Action:     string(proposal.Action),
			NewStart:   proposal.NewStart,
			Rationale:  proposal.Rationale,
			Confidence: proposal.Confidence,
		}); err != nil {
			return nil, "", err
		}
		proposals = append(proposals, proposal)
	}
	return proposals, "", nil
}

func (e *Engine) propose(ctx context.Context, req advisor.Request) (advisor.Proposal, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.advisorTimeout)
	defer cancel()
	return e.advisor.Propose(callCtx, req)
}

func (e *Engine) concludeConsensus(
	ctx context.Context,
	c *conflict.Conflict,
	sessionID string,
	round int,
	pending conflict.PendingResolution,
) (*Result, error) {
	if err := e.store.ConcludeSession(
		ctx,
		sessionID,
		database.SessionConsensus,
		&pending,
	); err != nil {
		return nil, err
	}
	if err := e.store.AppendResolutionLog(ctx, c.ID, conflict.LogEntry{
		Actor:  actorEngine,
		Action: "consensus_reached",
		Detail: fmt.Sprintf(
			"round %d: %s will %s; awaiting approval",
			round,
			pending.Party,
			pending.Action,
		),
	}); err != nil {
		return nil, err
	}
	if e.metrics.consensusTotal != nil {
		e.metrics.consensusTotal.Inc()
	}
	e.logger.Info(
		"consensus reached",
		"component", "negotiation",
		"conflict_id", c.ID,
		"round", round,
		"party", pending.Party,
		"action", pending.Action,
	)
	if e.eventBus != nil {
		e.eventBus.Publish(
			ConsensusEventType,
			event.NewEvent(ConsensusEventType, ConsensusEvent{
				ConflictID: c.ID,
				SessionID:  sessionID,
				Resolution: pending,
			}),
		)
	}
	// The conflict stays negotiating with the resolution held for human
	// approval; only the resolution applier moves it to resolved.
	return &Result{
		ConflictID: c.ID,
		SessionID:  sessionID,
		Outcome:    OutcomeConsensus,
		Rounds:     round,
		Pending:    &pending,
	}, nil
}

func (e *Engine) escalate(
	ctx context.Context,
	c *conflict.Conflict,
	sessionID string,
	rounds int,
	reason string,
) (*Result, error) {
	if err := e.store.ConcludeSession(
		ctx,
		sessionID,
		database.SessionEscalated,
		nil,
	); err != nil {
		return nil, err
	}
	ok, err := e.store.CompareAndSetStatus(
		ctx,
		c.ID,
		conflict.StatusNegotiating,
		conflict.StatusEscalated,
	)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotNegotiableError{ConflictID: c.ID, Status: c.Status}
	}
	return e.finishEscalation(ctx, c, sessionID, rounds, reason)
}

// escalateCritical moves a critical conflict straight from detected to
// escalated without opening a session.
func (e *Engine) escalateCritical(
	ctx context.Context,
	c *conflict.Conflict,
) (*Result, error) {
	ok, err := e.store.CompareAndSetStatus(
		ctx,
		c.ID,
		conflict.StatusDetected,
		conflict.StatusEscalated,
	)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotNegotiableError{ConflictID: c.ID, Status: c.Status}
	}
	reason := "critical severity requires human resolution: " + c.Description
	return e.finishEscalation(ctx, c, "", 0, reason)
}

func (e *Engine) finishEscalation(
	ctx context.Context,
	c *conflict.Conflict,
	sessionID string,
	rounds int,
	reason string,
) (*Result, error) {
	if err := e.store.AppendResolutionLog(ctx, c.ID, conflict.LogEntry{
		Actor:  actorEngine,
		Action: "escalated",
		Detail: reason,
	}); err != nil {
		return nil, err
	}
	if e.metrics.escalationTotal != nil {
		e.metrics.escalationTotal.Inc()
	}
	e.logger.Warn(
		"conflict escalated",
		"component", "negotiation",
		"conflict_id", c.ID,
		"reason", reason,
	)
	if e.eventBus != nil {
		e.eventBus.Publish(
			EscalatedEventType,
			event.NewEvent(EscalatedEventType, EscalatedEvent{
				ConflictID: c.ID,
				Reason:     reason,
			}),
		)
	}
	return &Result{
		ConflictID: c.ID,
		SessionID:  sessionID,
		Outcome:    OutcomeEscalated,
		Rounds:     rounds,
		Reason:     reason,
	}, nil
}

func otherPositions(c *conflict.Conflict, party string) []conflict.Position {
	var out []conflict.Position
	for _, p := range c.Parties {
		if p == party {
			continue
		}
		if pos, ok := c.Positions[p]; ok {
			out = append(out, pos)
		}
	}
	return out
}

func otherProposals(previous []advisor.Proposal, party string) []advisor.Proposal {
	var out []advisor.Proposal
	for _, p := range previous {
		if p.Party != party {
			out = append(out, p)
		}
	}
	return out
}

func summarize(proposals []advisor.Proposal) string {
	parts := make([]string, 0, len(proposals))
	for _, p := range proposals {
		if p.NewStart != nil {
			parts = append(parts, fmt.Sprintf(
				"%s proposes %s to %s",
				p.Party,
				p.Action,
				p.NewStart.UTC().Format(time.RFC3339),
			))
		} else {
			parts = append(parts, fmt.Sprintf("%s proposes %s", p.Party, p.Action))
		}
	}
	return strings.Join(parts, "; ")
}
