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
	"log/slog"
	"time"

	"github.com/FredrickOdondi/concord/activity"
	"github.com/FredrickOdondi/concord/advisor"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	logger         *slog.Logger
	promRegistry   prometheus.Registerer
	advisor        advisor.Advisor
	source         activity.Source
	mutator        activity.Mutator
	notifier       Notifier
	dataDir        string
	scanInterval   time.Duration
	scanHorizon    time.Duration
	maxRounds      int
	advisorTimeout time.Duration
	autoNegotiate  bool
}

// NewConfig builds a service config from defaults and the given options.
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		autoNegotiate: true,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

type ConfigOptionFunc func(*Config)

func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithAdvisor injects the suggestion engine used during negotiation.
func WithAdvisor(a advisor.Advisor) ConfigOptionFunc {
	return func(c *Config) {
		c.advisor = a
	}
}

// WithActivitySource overrides the activity snapshot source. When unset the
// service reads the schedule table in its own database.
func WithActivitySource(source activity.Source) ConfigOptionFunc {
	return func(c *Config) {
		c.source = source
	}
}

// WithActivityMutator overrides the schedule mutation target used by the
// resolution applier.
func WithActivityMutator(mutator activity.Mutator) ConfigOptionFunc {
	return func(c *Config) {
		c.mutator = mutator
	}
}

func WithNotifier(n Notifier) ConfigOptionFunc {
	return func(c *Config) {
		c.notifier = n
	}
}

func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

func WithScanInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.scanInterval = interval
	}
}

func WithScanHorizon(horizon time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.scanHorizon = horizon
	}
}

func WithMaxRounds(rounds int) ConfigOptionFunc {
	return func(c *Config) {
		c.maxRounds = rounds
	}
}

func WithAdvisorTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.advisorTimeout = timeout
	}
}

// WithAutoNegotiate controls whether scans dispatch created conflicts of
// medium or higher severity into negotiation automatically.
func WithAutoNegotiate(auto bool) ConfigOptionFunc {
	return func(c *Config) {
		c.autoNegotiate = auto
	}
}
