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

package activity

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StaticSource is an in-memory Source and Mutator, used for development
// seeding and tests.
type StaticSource struct {
	mu         sync.RWMutex
	activities map[string]Activity
}

func NewStaticSource(activities ...Activity) *StaticSource {
	s := &StaticSource{
		activities: make(map[string]Activity),
	}
	for _, a := range activities {
		s.activities[a.ID] = a
	}
	return s
}

// Add inserts or replaces an activity.
func (s *StaticSource) Add(a Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[a.ID] = a
}

// Get returns the current snapshot of one activity.
func (s *StaticSource) Get(activityID string) (Activity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[activityID]
	return a, ok
}

func (s *StaticSource) Activities(_ context.Context, from, to time.Time) ([]Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Activity
	for _, a := range s.activities {
		if a.Canceled {
			continue
		}
		if a.StartTime.Before(to) && from.Before(a.End()) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *StaticSource) Cancel(_ context.Context, activityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[activityID]
	if !ok {
		return fmt.Errorf("activity %s not found", activityID)
	}
	a.Canceled = true
	s.activities[activityID] = a
	return nil
}

func (s *StaticSource) Reschedule(_ context.Context, activityID string, newStart time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[activityID]
	if !ok {
		return fmt.Errorf("activity %s not found", activityID)
	}
	a.StartTime = newStart
	s.activities[activityID] = a
	return nil
}
