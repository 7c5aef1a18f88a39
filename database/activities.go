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
	"fmt"
	"time"

	"github.com/FredrickOdondi/concord/activity"
	"gorm.io/gorm"
)

var ErrActivityNotFound = errors.New("activity not found")

// Database implements activity.Source and activity.Mutator over the shared
// schedule table.
var (
	_ activity.Source  = (*Database)(nil)
	_ activity.Mutator = (*Database)(nil)
)

// Activities returns every non-canceled activity whose window intersects
// [from, to).
func (d *Database) Activities(ctx context.Context, from, to time.Time) ([]activity.Activity, error) {
	var rows []ActivityRow
	// end = start_time + duration; sqlite stores times as text so the
	// window filter happens in Go after a coarse start-time cut.
	if err := d.db.WithContext(ctx).
		Where("canceled = ? AND start_time < ?", false, to).
		Order("start_time").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	var out []activity.Activity
	for _, row := range rows {
		a, err := d.activityFromRow(ctx, row)
		if err != nil {
			return nil, err
		}
		if a.StartTime.Before(to) && from.Before(a.End()) {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetActivity returns one activity snapshot by id.
func (d *Database) GetActivity(ctx context.Context, id string) (activity.Activity, error) {
	var row ActivityRow
	if err := d.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return activity.Activity{}, ErrActivityNotFound
		}
		return activity.Activity{}, err
	}
	return d.activityFromRow(ctx, row)
}

// PutActivity inserts or replaces a scheduled activity. Used by seeding and
// by the booking subsystem's import path.
func (d *Database) PutActivity(ctx context.Context, a activity.Activity) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := ActivityRow{
			ID:         a.ID,
			Title:      a.Title,
			GroupID:    a.GroupID,
			Location:   a.Location,
			StartTime:  a.StartTime,
			DurationNs: int64(a.Duration),
			Canceled:   a.Canceled,
		}
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("activity_id = ?", a.ID).
			Delete(&ActivityParticipantRow{}).Error; err != nil {
			return err
		}
		for _, p := range a.Participants {
			if err := tx.Create(&ActivityParticipantRow{
				ActivityID:    a.ID,
				ParticipantID: p.ID,
				Role:          p.Role,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Cancel marks an activity canceled. Only the resolution applier calls this.
func (d *Database) Cancel(ctx context.Context, activityID string) error {
	res := d.db.WithContext(ctx).Model(&ActivityRow{}).
		Where("id = ?", activityID).
		Update("canceled", true)
	if res.Error != nil {
		return fmt.Errorf("failed to cancel activity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrActivityNotFound
	}
	return nil
}

// Reschedule moves an activity to a new start time, keeping its duration.
func (d *Database) Reschedule(ctx context.Context, activityID string, newStart time.Time) error {
	res := d.db.WithContext(ctx).Model(&ActivityRow{}).
		Where("id = ?", activityID).
		Update("start_time", newStart)
	if res.Error != nil {
		return fmt.Errorf("failed to reschedule activity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrActivityNotFound
	}
	return nil
}

func (d *Database) activityFromRow(ctx context.Context, row ActivityRow) (activity.Activity, error) {
	var participantRows []ActivityParticipantRow
	if err := d.db.WithContext(ctx).
		Where("activity_id = ?", row.ID).
		Order("id").
		Find(&participantRows).Error; err != nil {
		return activity.Activity{}, err
	}
	a := activity.Activity{
		ID:        row.ID,
		Title:     row.Title,
		GroupID:   row.GroupID,
		Location:  row.Location,
		StartTime: row.StartTime,
		Duration:  time.Duration(row.DurationNs),
		Canceled:  row.Canceled,
	}
	for _, p := range participantRows {
		a.Participants = append(a.Participants, activity.Participant{
			ID:   p.ParticipantID,
			Role: p.Role,
		})
	}
	return a, nil
}
