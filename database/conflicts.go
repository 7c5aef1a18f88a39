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
	ErrConflictNotFound = errors.New("conflict not found")
	// ErrConflictClosed reports a lost close race: the conflict was already
	// moved to a terminal status by another caller.
	ErrConflictClosed = errors.New("conflict already closed")
)

// RecordOutcome is the result of recording a detected candidate.
type RecordOutcome string

const (
	// RecordCreated means a new conflict row was inserted.
	RecordCreated RecordOutcome = "created"
	// RecordMatchedActive means an active conflict already holds the key;
	// the candidate is reported for visibility but not persisted again.
	RecordMatchedActive RecordOutcome = "matched_active"
	// RecordSkippedClosed means a resolved or dismissed conflict holds the
	// key; the candidate is suppressed so a closed issue is not re-litigated.
	RecordSkippedClosed RecordOutcome = "skipped_resolved"
)

// RecordCandidate deduplicates and persists a detected conflict. Safe to
// call concurrently from overlapping scans: a losing insert race against the
// partial unique index is reported as matched_active rather than an error.
func (d *Database) RecordCandidate(
	ctx context.Context,
	cand conflict.Candidate,
) (RecordOutcome, *conflict.Conflict, error) {
	var existing []ConflictRow
	if err := d.db.WithContext(ctx).
		Where("kind = ? AND description = ?", string(cand.Kind), cand.Description).
		Order("detected_at DESC").
		Find(&existing).Error; err != nil {
		return "", nil, err
	}
	for _, row := range existing {
		if conflict.Status(row.Status).Active() {
			c, err := d.loadConflict(ctx, row)
			if err != nil {
				return "", nil, err
			}
			d.countRecord(RecordMatchedActive)
			return RecordMatchedActive, c, nil
		}
	}
	if len(existing) > 0 {
		// Only closed rows hold this key
		d.countRecord(RecordSkippedClosed)
		return RecordSkippedClosed, nil, nil
	}

	row := candidateRow(cand)
	row.ID = uuid.NewString()
	row.Status = string(conflict.StatusDetected)
	row.DetectedAt = time.Now().UTC()
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		for i, party := range cand.Parties {
			if err := tx.Create(&ConflictPartyRow{
				ConflictID: row.ID,
				Ord:        i,
				Party:      party,
			}).Error; err != nil {
				return err
			}
		}
		for _, pos := range cand.Positions {
			if err := tx.Create(&ConflictPositionRow{
				ConflictID: row.ID,
				Party:      pos.Party,
				ActivityID: pos.ActivityID,
				Title:      pos.Title,
				Start:      pos.Start,
				End:        pos.End,
				Statement:  pos.Statement,
			}).Error; err != nil {
				return err
			}
		}
		if details, ok := cand.Details.(conflict.ParticipantOverlapDetails); ok {
			for _, p := range details.Shared {
				if err := tx.Create(&ConflictParticipantRow{
					ConflictID:    row.ID,
					ParticipantID: p.ID,
					Role:          p.Role,
				}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			// Lost the insert race to a concurrent scan; the existing
			// active row wins.
			c, lerr := d.activeConflictByKey(ctx, cand.Kind, cand.Description)
			if lerr != nil {
				return "", nil, lerr
			}
			d.countRecord(RecordMatchedActive)
			return RecordMatchedActive, c, nil
		}
		return "", nil, err
	}
	d.countRecord(RecordCreated)
	d.refreshActiveGauge()
	c, err := d.loadConflict(ctx, row)
	if err != nil {
		return "", nil, err
	}
	return RecordCreated, c, nil
}

func (d *Database) activeConflictByKey(
	ctx context.Context,
	kind conflict.Kind,
	description string,
) (*conflict.Conflict, error) {
	var row ConflictRow
	err := d.db.WithContext(ctx).
		Where(
			"kind = ? AND description = ? AND status IN ?",
			string(kind), description, activeStatusStrings(),
		).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConflictNotFound
		}
		return nil, err
	}
	return d.loadConflict(ctx, row)
}

// GetConflict loads one conflict with its parties, positions, and
// resolution log.
func (d *Database) GetConflict(ctx context.Context, id string) (*conflict.Conflict, error) {
	var row ConflictRow
	if err := d.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConflictNotFound
		}
		return nil, err
	}
	return d.loadConflict(ctx, row)
}

// ListConflicts returns active conflicts, or every conflict when
// includeHistory is set, newest first.
func (d *Database) ListConflicts(ctx context.Context, includeHistory bool) ([]conflict.Conflict, error) {
	q := d.db.WithContext(ctx).Order("detected_at DESC, id")
	if !includeHistory {
		q = q.Where("status IN ?", activeStatusStrings())
	}
	var rows []ConflictRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]conflict.Conflict, 0, len(rows))
	for _, row := range rows {
		c, err := d.loadConflict(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// CompareAndSetStatus atomically transitions a conflict's status, returning
// false if the conflict was not in the expected state. This is the guard
// that keeps at most one negotiation session per conflict under racing
// workers.
func (d *Database) CompareAndSetStatus(
	ctx context.Context,
	id string,
	from, to conflict.Status,
) (bool, error) {
	res := d.db.WithContext(ctx).Model(&ConflictRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", string(to))
	if res.Error != nil {
		return false, res.Error
	}
	d.refreshActiveGauge()
	return res.RowsAffected == 1, nil
}

// MarkClosed sets a terminal status and the resolution timestamp. Only an
// active conflict can be closed; a racing close loses with
// ErrConflictClosed, so a conflict is closed exactly once.
func (d *Database) MarkClosed(
	ctx context.Context,
	id string,
	status conflict.Status,
	at time.Time,
) error {
	if !status.Closed() {
		return errors.New("status is not terminal")
	}
	res := d.db.WithContext(ctx).Model(&ConflictRow{}).
		Where("id = ? AND status IN ?", id, activeStatusStrings()).
		Updates(map[string]any{
			"status":      string(status),
			"resolved_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var row ConflictRow
		err := d.db.WithContext(ctx).Select("id").First(&row, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConflictNotFound
		}
		if err != nil {
			return err
		}
		return ErrConflictClosed
	}
	d.refreshActiveGauge()
	return nil
}

// AppendResolutionLog appends one audit entry. Entries are never updated or
// deleted.
func (d *Database) AppendResolutionLog(
	ctx context.Context,
	id string,
	entry conflict.LogEntry,
) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return d.db.WithContext(ctx).Create(&ResolutionLogRow{
		ConflictID: id,
		Timestamp:  entry.Timestamp,
		Actor:      entry.Actor,
		Action:     entry.Action,
		Detail:     entry.Detail,
	}).Error
}

func (d *Database) countRecord(outcome RecordOutcome) {
	if d.metrics.recordsTotal != nil {
		d.metrics.recordsTotal.WithLabelValues(string(outcome)).Inc()
	}
}

func (d *Database) loadConflict(ctx context.Context, row ConflictRow) (*conflict.Conflict, error) {
	var partyRows []ConflictPartyRow
	if err := d.db.WithContext(ctx).
		Where("conflict_id = ?", row.ID).
		Order("ord").
		Find(&partyRows).Error; err != nil {
		return nil, err
	}
	var positionRows []ConflictPositionRow
	if err := d.db.WithContext(ctx).
		Where("conflict_id = ?", row.ID).
		Find(&positionRows).Error; err != nil {
		return nil, err
	}
	var logRows []ResolutionLogRow
	if err := d.db.WithContext(ctx).
		Where("conflict_id = ?", row.ID).
		Order("id").
		Find(&logRows).Error; err != nil {
		return nil, err
	}

	c := &conflict.Conflict{
		ID:          row.ID,
		Kind:        conflict.Kind(row.Kind),
		Severity:    conflict.Severity(row.Severity),
		Description: row.Description,
		Status:      conflict.Status(row.Status),
		DetectedAt:  row.DetectedAt,
		ResolvedAt:  row.ResolvedAt,
		Positions:   make(map[string]conflict.Position, len(positionRows)),
	}
	for _, p := range partyRows {
		c.Parties = append(c.Parties, p.Party)
	}
	for _, p := range positionRows {
		c.Positions[p.Party] = conflict.Position{
			Party:      p.Party,
			ActivityID: p.ActivityID,
			Title:      p.Title,
			Start:      p.Start,
			End:        p.End,
			Statement:  p.Statement,
		}
	}
	for _, l := range logRows {
		c.ResolutionLog = append(c.ResolutionLog, conflict.LogEntry{
			Timestamp: l.Timestamp,
			Actor:     l.Actor,
			Action:    l.Action,
			Detail:    l.Detail,
		})
	}
	details, err := d.loadDetails(ctx, row)
	if err != nil {
		return nil, err
	}
	c.Details = details
	return c, nil
}

func (d *Database) loadDetails(ctx context.Context, row ConflictRow) (conflict.Details, error) {
	refA := conflict.ActivityRef{
		ID:      row.ActivityAID,
		Title:   row.ActivityATitle,
		GroupID: row.ActivityAGroup,
		Start:   row.ActivityAStart,
		End:     row.ActivityAEnd,
	}
	refB := conflict.ActivityRef{
		ID:      row.ActivityBID,
		Title:   row.ActivityBTitle,
		GroupID: row.ActivityBGroup,
		Start:   row.ActivityBStart,
		End:     row.ActivityBEnd,
	}
	switch conflict.Kind(row.Kind) {
	case conflict.KindScheduleClash:
		return conflict.ScheduleClashDetails{
			GroupID:      row.GroupID,
			ActivityA:    refA,
			ActivityB:    refB,
			OverlapStart: row.OverlapStart,
			OverlapEnd:   row.OverlapEnd,
		}, nil
	case conflict.KindVenueConflict:
		return conflict.VenueConflictDetails{
			Venue:        row.Venue,
			ActivityA:    refA,
			ActivityB:    refB,
			OverlapStart: row.OverlapStart,
			OverlapEnd:   row.OverlapEnd,
		}, nil
	case conflict.KindParticipantOverlap:
		var participantRows []ConflictParticipantRow
		if err := d.db.WithContext(ctx).
			Where("conflict_id = ?", row.ID).
			Order("participant_id").
			Find(&participantRows).Error; err != nil {
			return nil, err
		}
		shared := make([]conflict.SharedParticipant, 0, len(participantRows))
		for _, p := range participantRows {
			shared = append(shared, conflict.SharedParticipant{
				ID:   p.ParticipantID,
				Role: p.Role,
			})
		}
		return conflict.ParticipantOverlapDetails{
			Shared:       shared,
			ActivityA:    refA,
			ActivityB:    refB,
			OverlapStart: row.OverlapStart,
			OverlapEnd:   row.OverlapEnd,
		}, nil
	case conflict.KindPolicyDivergence:
		return conflict.PolicyDivergenceDetails{
			Topic:     row.Topic,
			Statement: row.Statement,
		}, nil
	case conflict.KindDependencyBlocker:
		return conflict.DependencyBlockerDetails{
			BlockedGroup:  row.BlockedGroup,
			BlockingGroup: row.BlockingGroup,
			Dependency:    row.Dependency,
		}, nil
	default:
		return nil, nil
	}
}

func candidateRow(cand conflict.Candidate) ConflictRow {
	row := ConflictRow{
		Kind:        string(cand.Kind),
		Description: cand.Description,
		Severity:    string(cand.Severity),
		Reason:      cand.Reason,
	}
	switch details := cand.Details.(type) {
	case conflict.ScheduleClashDetails:
		row.GroupID = details.GroupID
		fillPairColumns(&row, details.ActivityA, details.ActivityB, details.OverlapStart, details.OverlapEnd)
	case conflict.VenueConflictDetails:
		row.Venue = details.Venue
		fillPairColumns(&row, details.ActivityA, details.ActivityB, details.OverlapStart, details.OverlapEnd)
	case conflict.ParticipantOverlapDetails:
		fillPairColumns(&row, details.ActivityA, details.ActivityB, details.OverlapStart, details.OverlapEnd)
	case conflict.PolicyDivergenceDetails:
		row.Topic = details.Topic
		row.Statement = details.Statement
	case conflict.DependencyBlockerDetails:
		row.BlockedGroup = details.BlockedGroup
		row.BlockingGroup = details.BlockingGroup
		row.Dependency = details.Dependency
	}
	return row
}

func fillPairColumns(row *ConflictRow, a, b conflict.ActivityRef, start, end time.Time) {
	row.ActivityAID = a.ID
	row.ActivityATitle = a.Title
	row.ActivityAGroup = a.GroupID
	row.ActivityAStart = a.Start
	row.ActivityAEnd = a.End
	row.ActivityBID = b.ID
	row.ActivityBTitle = b.Title
	row.ActivityBGroup = b.GroupID
	row.ActivityBStart = b.Start
	row.ActivityBEnd = b.End
	row.OverlapStart = start
	row.OverlapEnd = end
}
