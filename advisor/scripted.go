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

package advisor

import (
	"context"
	"fmt"
	"sync"
)

// scriptStep is one queued response for a party.
type scriptStep struct {
	proposal Proposal
	err      error
}

// ScriptedAdvisor replays queued proposals per party, in order. Used by
// tests and the dev run mode; deterministic by construction.
type ScriptedAdvisor struct {
	mu    sync.Mutex
	steps map[string][]scriptStep
	calls map[string]int
}

func NewScriptedAdvisor() *ScriptedAdvisor {
	return &ScriptedAdvisor{
		steps: make(map[string][]scriptStep),
		calls: make(map[string]int),
	}
}

// Queue appends a proposal to a party's script.
func (s *ScriptedAdvisor) Queue(party string, p Proposal) *ScriptedAdvisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Party = party
	s.steps[party] = append(s.steps[party], scriptStep{proposal: p})
	return s
}

// QueueError appends a failure to a party's script.
func (s *ScriptedAdvisor) QueueError(party string, err error) *ScriptedAdvisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[party] = append(s.steps[party], scriptStep{err: err})
	return s
}

// Calls returns how many times the party's advisor was invoked.
func (s *ScriptedAdvisor) Calls(party string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[party]
}

func (s *ScriptedAdvisor) Propose(ctx context.Context, req Request) (Proposal, error) {
	if err := ctx.Err(); err != nil {
		return Proposal{}, &Error{Party: req.Party, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.Party]++
	queue := s.steps[req.Party]
	if len(queue) == 0 {
		return Proposal{}, &Error{
			Party: req.Party,
			Err:   fmt.Errorf("no scripted response for party %s", req.Party),
		}
	}
	step := queue[0]
	s.steps[req.Party] = queue[1:]
	if step.err != nil {
		return Proposal{}, &Error{Party: req.Party, Err: step.err}
	}
	return step.proposal, nil
}
