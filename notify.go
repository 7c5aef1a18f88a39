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

package concord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FredrickOdondi/concord/dispatcher"
	"github.com/FredrickOdondi/concord/event"
	"github.com/FredrickOdondi/concord/negotiation"
	"github.com/FredrickOdondi/concord/resolution"
)

// Notifier delivers fire-and-forget notifications to a conflict party.
// Delivery failures are the notifier's own problem to log; the engine never
// blocks a resolution on a notification.
type Notifier interface {
	Notify(ctx context.Context, partyID string, message string)
}

// SlogNotifier writes notifications to a structured logger. It is the
// default delivery channel when nothing richer is wired in.
type SlogNotifier struct {
	logger *slog.Logger
}

func NewSlogNotifier(logger *slog.Logger) *SlogNotifier {
	return &SlogNotifier{logger: logger}
}

func (n *SlogNotifier) Notify(_ context.Context, partyID string, message string) {
	n.logger.Info(
		message,
		"component", "notifier",
		"party", partyID,
	)
}

// bridgeNotifications fans conflict lifecycle events out to the configured
// notifier. Events that don't carry the party list are resolved against the
// store before delivery.
func (s *Service) bridgeNotifications(notifier Notifier) {
	s.eventBus.SubscribeFunc(
		dispatcher.DetectedEventType,
		func(evt event.Event) {
			payload, ok := evt.Data.(dispatcher.DetectedEvent)
			if !ok {
				return
			}
			s.notifyParties(
				payload.ConflictID,
				payload.Parties,
				notifier,
				fmt.Sprintf(
					"conflict detected (%s, %s severity): %s",
					payload.Kind,
					payload.Severity,
					payload.Description,
				),
			)
		},
	)
	s.eventBus.SubscribeFunc(
		negotiation.ConsensusEventType,
		func(evt event.Event) {
			payload, ok := evt.Data.(negotiation.ConsensusEvent)
			if !ok {
				return
			}
			s.notifyParties(
				payload.ConflictID,
				nil,
				notifier,
				fmt.Sprintf(
					"negotiation reached consensus: %s will %s; awaiting approval",
					payload.Resolution.Party,
					payload.Resolution.Action,
				),
			)
		},
	)
	s.eventBus.SubscribeFunc(
		negotiation.EscalatedEventType,
		func(evt event.Event) {
			payload, ok := evt.Data.(negotiation.EscalatedEvent)
			if !ok {
				return
			}
			s.notifyParties(
				payload.ConflictID,
				nil,
				notifier,
				fmt.Sprintf(
					"conflict escalated for human resolution: %s",
					payload.Reason,
				),
			)
		},
	)
	s.eventBus.SubscribeFunc(
		resolution.ResolvedEventType,
		func(evt event.Event) {
			payload, ok := evt.Data.(resolution.ResolvedEvent)
			if !ok {
				return
			}
			s.notifyParties(
				payload.ConflictID,
				nil,
				notifier,
				fmt.Sprintf(
					"conflict resolved by %s: %s of activity %s",
					payload.Actor,
					payload.Action,
					payload.ActivityID,
				),
			)
		},
	)
}

// notifyParties delivers a message to each named party, loading the party
// list from the store when the event didn't carry one.
func (s *Service) notifyParties(
	conflictID string,
	parties []string,
	notifier Notifier,
	message string,
) {
	ctx := context.Background()
	if len(parties) == 0 {
		c, err := s.db.GetConflict(ctx, conflictID)
		if err != nil {
			s.logger.Warn(
				"could not load conflict for notification",
				"component", "notifier",
				"conflict_id", conflictID,
				"error", err,
			)
			return
		}
		parties = c.Parties
	}
	for _, party := range parties {
		notifier.Notify(ctx, party, message)
	}
}
