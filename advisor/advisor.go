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

// Package advisor abstracts the suggestion engine that proposes a party's
// position during negotiation. The production implementation is LLM-backed;
// tests inject a scripted one. The engine only ever sees the typed Proposal,
// never raw model output.
package advisor

import (
	"context"
	"fmt"
	"time"

	"github.com/FredrickOdondi/concord/conflict"
)

// Action is the concrete step a party proposes to resolve a conflict.
type Action string

const (
	// ActionReschedule moves the party's activity to NewStart.
	ActionReschedule Action = "reschedule"
	// ActionCancel cancels the party's activity.
	ActionCancel Action = "cancel"
	// ActionYield defers to whatever the other parties propose.
	ActionYield Action = "yield"
	// ActionHold keeps the party's activity as scheduled.
	ActionHold Action = "hold"
)

// Proposal is one party's typed proposal for one negotiation round.
type Proposal struct {
	Party      string
	Action     Action
	NewStart   *time.Time
	Rationale  string
	Confidence float64
}

// Request carries the conflict context for one party's proposal.
type Request struct {
	Party          string
	Description    string
	Severity       conflict.Severity
	Round          int
	Position       conflict.Position
	OtherPositions []conflict.Position
	// Latest proposals from the other parties, empty on round 1.
	OtherProposals []Proposal
	// Hard constraints supplied by the caller, passed through verbatim.
	Constraints []string
}

// Advisor proposes a party's resolution given the conflict context.
// Implementations must honor ctx cancellation; the engine applies a
// per-call timeout.
type Advisor interface {
	Propose(ctx context.Context, req Request) (Proposal, error)
}

// Error wraps an advisor failure for one party. The engine treats it as a
// non-response: retried once, then escalated.
type Error struct {
	Party string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("advisor failed for party %s: %v", e.Party, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
