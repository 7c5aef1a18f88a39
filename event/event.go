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

// Package event provides the in-process bus carrying conflict lifecycle
// events between the engine's components and out to notifiers.
package event

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const EventQueueSize = 20

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

type eventMetrics struct {
	eventsTotal *prometheus.CounterVec
	subscribers *prometheus.GaugeVec
}

// EventBus fans typed events out to channel and callback subscribers.
// Publish delivers synchronously in subscription order.
type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]chan Event
	metrics     *eventMetrics
	lastSubId   EventSubscriberId
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

func NewEventBus(promRegistry prometheus.Registerer) *EventBus {
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]chan Event),
	}
	if promRegistry != nil {
		factory := promauto.With(promRegistry)
		e.metrics = &eventMetrics{
			eventsTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "concord_events_total",
					Help: "total events published by type",
				},
				[]string{"type"},
			),
			subscribers: factory.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "concord_event_subscribers",
					Help: "current subscriber count by event type",
				},
				[]string{"type"},
			),
		}
	}
	return e
}

// Subscribe returns a channel receiving events of the given type.
func (e *EventBus) Subscribe(eventType EventType) (EventSubscriberId, <-chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subId := e.lastSubId + 1
	e.lastSubId = subId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]chan Event)
	}
	ch := make(chan Event, EventQueueSize)
	e.subscribers[eventType][subId] = ch
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return subId, ch
}

// SubscribeFunc registers a callback for events of the given type. The
// callback runs on a dedicated goroutine fed by a subscription channel.
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	subId, ch := e.Subscribe(eventType)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for evt := range ch {
			handlerFunc(evt)
		}
	}()
	return subId
}

// Unsubscribe stops delivery to the given subscriber and closes its channel.
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if subs, ok := e.subscribers[eventType]; ok {
		if ch, ok := subs[subId]; ok {
			delete(subs, subId)
			close(ch)
			if e.metrics != nil {
				e.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
			}
		}
	}
}

// Publish delivers an event to all subscribers of its type. Sends block when
// a subscriber's queue is full, so slow consumers exert backpressure on the
// publisher rather than dropping events.
func (e *EventBus) Publish(eventType EventType, evt Event) {
	e.mu.RLock()
	channels := make([]chan Event, 0, len(e.subscribers[eventType]))
	for _, ch := range e.subscribers[eventType] {
		channels = append(channels, ch)
	}
	e.mu.RUnlock()
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
	for _, ch := range channels {
		ch <- evt
	}
}

// Stop closes every subscription channel and waits for callback goroutines
// to drain.
func (e *EventBus) Stop() {
	e.mu.Lock()
	for eventType, subs := range e.subscribers {
		for subId, ch := range subs {
			delete(subs, subId)
			close(ch)
			if e.metrics != nil {
				e.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
			}
		}
	}
	e.mu.Unlock()
	e.wg.Wait()
}
