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

// Package dispatcher runs the periodic scan pass and routes newly created
// conflicts into negotiation. Scan passes never overlap, and each conflict
// negotiates under mutual exclusion.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FredrickOdondi/concord/activity"
	"github.com/FredrickOdondi/concord/conflict"
	"github.com/FredrickOdondi/concord/database"
	"github.com/FredrickOdondi/concord/detector"
	"github.com/FredrickOdondi/concord/event"
	"github.com/FredrickOdondi/concord/negotiation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DetectedEventType event.EventType = "conflict.detected"

type DetectedEvent struct {
	ConflictID  string
	Kind        conflict.Kind
	Severity    conflict.Severity
	Description string
	Parties     []string
}

const (
	DefaultScanInterval = 30 * time.Minute
	DefaultScanHorizon  = 7 * 24 * time.Hour
)

// ErrScanInProgress is returned when a scan is requested while another is
// still running. The running scan's results stand; the request is not
// queued.
var ErrScanInProgress = errors.New("scan already in progress")

// ConflictSummary is one scan finding, including re-detections of already
// known conflicts (reported for visibility, not persisted again).
type ConflictSummary struct {
	ConflictID  string
	Kind        conflict.Kind
	Severity    conflict.Severity
	Description string
	Outcome     database.RecordOutcome
}

// ScanResult is the partial-results summary of one scan pass.
type ScanResult struct {
	ScannedActivities   int
	Overlaps            int
	Created             int
	MatchedActive       int
	SkippedClosed       int
	Errors              int
	StartedNegotiations int
	Conflicts           []ConflictSummary
}

type Config struct {
	Source       activity.Source
	Store        *database.Database
	Engine       *negotiation.Engine
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Interval     time.Duration
	Horizon      time.Duration
	// AutoNegotiate dispatches created conflicts of medium or higher
	// severity into negotiation. Low-severity conflicts are recorded only.
	AutoNegotiate bool
}

type Dispatcher struct {
	source   activity.Source
	store    *database.Database
	engine   *negotiation.Engine
	eventBus *event.EventBus
	logger   *slog.Logger
	interval time.Duration
	horizon  time.Duration
	auto     bool

	scanning   atomic.Bool
	inflight   map[string]struct{}
	inflightMu sync.Mutex
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	metrics struct {
		scansTotal    prometheus.Counter
		scanErrors    prometheus.Counter
		detectedTotal *prometheus.CounterVec
	}
}

func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		source:   cfg.Source,
		store:    cfg.Store,
		engine:   cfg.Engine,
		eventBus: cfg.EventBus,
		logger:   cfg.Logger,
		interval: cfg.Interval,
		horizon:  cfg.Horizon,
		auto:     cfg.AutoNegotiate,
		inflight: make(map[string]struct{}),
		stopCh:   make(chan struct{}),
	}
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if d.interval <= 0 {
		d.interval = DefaultScanInterval
	}
	if d.horizon <= 0 {
		d.horizon = DefaultScanHorizon
	}
	if cfg.PromRegistry != nil {
		factory := promauto.With(cfg.PromRegistry)
		d.metrics.scansTotal = factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_scans_total",
			Help: "total scan passes run",
		})
		d.metrics.scanErrors = factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_scan_errors_total",
			Help: "total detection errors skipped during scans",
		})
		d.metrics.detectedTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concord_conflicts_detected_total",
				Help: "new conflicts created by scans, by severity",
			},
			[]string{"severity"},
		)
	}
	return d
}

// Start launches the periodic scan loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := d.Scan(ctx); err != nil &&
					!errors.Is(err, ErrScanInProgress) {
					d.logger.Error(
						"scan failed",
						"component", "dispatcher",
						"error", err,
					)
				}
			}
		}
	}()
}

// Stop halts the loop and waits for in-flight negotiations to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	d.wg.Wait()
}

// Scan runs one scan pass: snapshot, detect, classify, record, dispatch.
// Single-flight: a scan requested while another runs returns
// ErrScanInProgress instead of piling up. Detection errors are skipped and
// counted; the scan always reports partial results.
func (d *Dispatcher) Scan(ctx context.Context) (*ScanResult, error) {
	if !d.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer d.scanning.Store(false)
	if d.metrics.scansTotal != nil {
		d.metrics.scansTotal.Inc()
	}

	now := time.Now().UTC()
	activities, err := d.source.Activities(ctx, now, now.Add(d.horizon))
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot activities: %w", err)
	}
	overlaps, detectErrs := detector.Detect(activities)
	result := &ScanResult{
		ScannedActivities: len(activities),
		Overlaps:          len(overlaps),
		Errors:            len(detectErrs),
	}
	for _, derr := range detectErrs {
		d.logger.Warn(
			"skipping malformed activity",
			"component", "dispatcher",
			"error", derr,
		)
	}
	if d.metrics.scanErrors != nil {
		d.metrics.scanErrors.Add(float64(len(detectErrs)))
	}

	for _, overlap := range overlaps {
		cand := detector.Candidate(overlap)
		outcome, c, rerr := d.store.RecordCandidate(ctx, cand)
		if rerr != nil {
			result.Errors++
			d.logger.Error(
				"failed to record conflict",
				"component", "dispatcher",
				"description", cand.Description,
				"error", rerr,
			)
			continue
		}
		summary := ConflictSummary{
			Kind:        cand.Kind,
			Severity:    cand.Severity,
			Description: cand.Description,
			Outcome:     outcome,
		}
		if c != nil {
			summary.ConflictID = c.ID
		}
		switch outcome {
		case database.RecordCreated:
			result.Created++
			if d.metrics.detectedTotal != nil {
				d.metrics.detectedTotal.
					WithLabelValues(string(cand.Severity)).Inc()
			}
			d.logger.Info(
				"conflict detected",
				"component", "dispatcher",
				"conflict_id", c.ID,
				"kind", cand.Kind,
				"severity", cand.Severity,
				"description", cand.Description,
			)
			if d.eventBus != nil {
				d.eventBus.Publish(
					DetectedEventType,
					event.NewEvent(DetectedEventType, DetectedEvent{
						ConflictID:  c.ID,
						Kind:        cand.Kind,
						Severity:    cand.Severity,
						Description: cand.Description,
						Parties:     cand.Parties,
					}),
				)
			}
			if d.auto && cand.Severity.AtLeast(conflict.SeverityMedium) {
				if d.dispatchNegotiation(ctx, c.ID) {
					result.StartedNegotiations++
				}
			}
		case database.RecordMatchedActive:
			result.MatchedActive++
		case database.RecordSkippedClosed:
			result.SkippedClosed++
			// Reporting a suppressed key would invite re-litigating a
			// closed issue, so it is counted but not listed.
			continue
		}
		result.Conflicts = append(result.Conflicts, summary)
	}
	return result, nil
}

// dispatchNegotiation starts a negotiation goroutine for a conflict unless
// one is already in flight for it.
func (d *Dispatcher) dispatchNegotiation(ctx context.Context, conflictID string) bool {
	d.inflightMu.Lock()
	if _, busy := d.inflight[conflictID]; busy {
		d.inflightMu.Unlock()
		return false
	}
	d.inflight[conflictID] = struct{}{}
	d.inflightMu.Unlock()

	// Negotiations outlive the scan that triggered them.
	negotiateCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.inflightMu.Lock()
			delete(d.inflight, conflictID)
			d.inflightMu.Unlock()
		}()
		_, err := d.engine.Negotiate(negotiateCtx, conflictID, negotiation.Options{})
		if err != nil {
			var notNegotiable *negotiation.NotNegotiableError
			if errors.As(err, &notNegotiable) {
				// Lost the dispatch race to another worker
				d.logger.Debug(
					"negotiation skipped",
					"component", "dispatcher",
					"conflict_id", conflictID,
					"status", notNegotiable.Status,
				)
				return
			}
			d.logger.Error(
				"negotiation failed",
				"component", "dispatcher",
				"conflict_id", conflictID,
				"error", err,
			)
		}
	}()
	return true
}
