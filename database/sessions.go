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

package database

import (
	"context"
	"errors"
	"time"

	"github.com/FredrickOdondi/concord/conflict"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrSessionNotFound = errors.New("negotiation session not found")
	ErrSessionExists   = errors.New("conflict already has an active negotiation session")
)

// SessionOutcome is the negotiation session's result state.
type SessionOutcome string

const (
	SessionPending   SessionOutcome = "pending"
	SessionConsensus SessionOutcome = "consensus_reached"
	SessionEscalated SessionOutcome = "escalated"
)

// Proposal is one party's proposal in one round, as persisted.
type Proposal struct {
	Round      int
	Party      string
	Action     string
	NewStart   *time.Time
	Rationale  string
	Confidence float64
}

// Session is a negotiation session with its ordered proposals.
type Session struct {
	ID         string
	ConflictID string
	Round      int
	MaxRounds  int
	Outcome    SessionOutcome
	Proposals  []Proposal
	Pending    *conflict.PendingResolution
	CreatedAt  time.Time
}

// CreateSession opens the negotiation session for a conflict. At most one
// pending session may exist per conflict; a racing create returns
// ErrSessionExists.
func (d *Database) CreateSession(
	ctx context.Context,
	conflictID string,
	maxRounds int,
) (*Session, error) {
	row := NegotiationSessionRow{
		ID:         uuid.NewString(),
		ConflictID: conflictID,
		Round:      0,
		MaxRounds:  maxRounds,
		Outcome:    string(SessionPending),
	}
	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrSessionExists
		}
		return nil, err
	}
	return sessionFromRow(row, nil), nil
}

// SetSessionRound records the round the session has advanced to.
func (d *Database) SetSessionRound(ctx context.Context, sessionID string, round int) error {
	res := d.db.WithContext(ctx).Model(&NegotiationSessionRow{}).
		Where("id = ?", sessionID).
		Update("round", round)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AddProposal appends a proposal to the session's ordered list.
func (d *Database) AddProposal(ctx context.Context, sessionID string, p Proposal) error {
	return d.db.WithContext(ctx).Create(&ProposalRow{
		SessionID:  sessionID,
		Round:      p.Round,
		Party:      p.Party,
		Action:     p.Action,
		NewStart:   p.NewStart,
		Rationale:  p.Rationale,
		Confidence: p.Confidence,
		CreatedAt:  time.Now().UTC(),
	}).Error
}

// ConcludeSession sets the session outcome and, for consensus, the candidate
// resolution held for human approval.
func (d *Database) ConcludeSession(
	ctx context.Context,
	sessionID string,
	outcome SessionOutcome,
	pending *conflict.PendingResolution,
) error {
	updates := map[string]any{
		"outcome": string(outcome),
	}
	if pending != nil {
		updates["pending_party"] = pending.Party
		updates["pending_action"] = pending.Action
		updates["pending_new_start"] = pending.NewStart
		updates["pending_rationale"] = pending.Rationale
	}
	res := d.db.WithContext(ctx).Model(&NegotiationSessionRow{}).
		Where("id = ?", sessionID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SessionForConflict returns the most recent session for a conflict.
func (d *Database) SessionForConflict(ctx context.Context, conflictID string) (*Session, error) {
	var row NegotiationSessionRow
	err := d.db.WithContext(ctx).
		Where("conflict_id = ?", conflictID).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var proposalRows []ProposalRow
	if err := d.db.WithContext(ctx).
		Where("session_id = ?", row.ID).
		Order("id").
		Find(&proposalRows).Error; err != nil {
		return nil, err
	}
	return sessionFromRow(row, proposalRows), nil
}

func sessionFromRow(row NegotiationSessionRow, proposalRows []ProposalRow) *Session {
	s := &Session{
		ID:         row.ID,
		ConflictID: row.ConflictID,
		Round:      row.Round,
		MaxRounds:  row.MaxRounds,
		Outcome:    SessionOutcome(row.Outcome),
		CreatedAt:  row.CreatedAt,
	}
	for _, p := range proposalRows {
		s.Proposals = append(s.Proposals, Proposal{
			Round:      p.Round,
			Party:      p.Party,
			Action:     p.Action,
			NewStart:   p.NewStart,
			Rationale:  p.Rationale,
			Confidence: p.Confidence,
		})
	}
	if row.PendingAction != "" {
		s.Pending = &conflict.PendingResolution{
			Party:     row.PendingParty,
			Action:    row.PendingAction,
			NewStart:  row.PendingNewStart,
			Rationale: row.PendingRationale,
		}
	}
	return s
}
