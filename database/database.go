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

// Package database is the SQLite-backed store for conflicts, negotiation
// sessions, and the activity schedule. Deduplication of detected conflicts
// is enforced with a partial unique index so concurrent scans cannot create
// two active conflicts for the same (kind, description) key.
package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Config struct {
	DataDir      string
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

type Database struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics struct {
		activeConflicts prometheus.Gauge
		recordsTotal    *prometheus.CounterVec
	}
}

// New opens (or creates) the store. An empty DataDir opens an in-memory
// database, useful for testing.
func New(cfg *Config) (*Database, error) {
	var gormDb *gorm.DB
	var err error
	gormCfg := &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}
	if cfg.DataDir == "" {
		// cache=shared lets multiple connections see the same in-memory database
		gormDb, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			gormCfg,
		)
	} else {
		if _, serr := os.Stat(cfg.DataDir); serr != nil {
			if !errors.Is(serr, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", serr)
			}
			if merr := os.MkdirAll(cfg.DataDir, fs.ModePerm); merr != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", merr)
			}
		}
		dbPath := filepath.Join(cfg.DataDir, "concord.sqlite")
		// WAL journal mode so readers don't block the scan writer
		connOpts := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		gormDb, err = gorm.Open(
			sqlite.Open(fmt.Sprintf("file:%s?%s", dbPath, connOpts)),
			gormCfg,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	d := &Database{
		db:     gormDb,
		logger: cfg.Logger,
	}
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	for _, model := range migrateModels {
		d.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := d.db.AutoMigrate(model); err != nil {
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	// AutoMigrate cannot express partial indexes, so the dedup constraints
	// are created directly. The status predicate restricts uniqueness to
	// non-terminal conflicts: a resolved or dismissed conflict does not
	// block a new row with the same key.
	for _, stmt := range []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_conflict_active
			ON conflict (kind, description)
			WHERE status IN ('detected','negotiating','escalated')`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_session_active
			ON negotiation_session (conflict_id)
			WHERE outcome = 'pending'`,
	} {
		if err := d.db.Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
	}
	if cfg.PromRegistry != nil {
		factory := promauto.With(cfg.PromRegistry)
		d.metrics.activeConflicts = factory.NewGauge(prometheus.GaugeOpts{
			Name: "concord_conflicts_active",
			Help: "current count of active (non-terminal) conflicts",
		})
		d.metrics.recordsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concord_conflict_records_total",
				Help: "conflict record outcomes by result",
			},
			[]string{"outcome"},
		)
	}
	return d, nil
}

// Close releases the underlying connection pool.
func (d *Database) Close() error {
	sqlDb, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}

// Transaction runs fn inside a database transaction.
func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	return d.db.Transaction(fn)
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite does not translate failures against partial indexes
	return err != nil &&
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (d *Database) refreshActiveGauge() {
	if d.metrics.activeConflicts == nil {
		return
	}
	var count int64
	if err := d.db.Model(&ConflictRow{}).
		Where("status IN ?", activeStatusStrings()).
		Count(&count).Error; err != nil {
		return
	}
	d.metrics.activeConflicts.Set(float64(count))
}
