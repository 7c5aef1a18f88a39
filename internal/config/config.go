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

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "concord.config"

const (
	DefaultScanInterval    = "30m"
	DefaultScanHorizon     = "168h"
	DefaultAdvisorTimeout  = "30s"
	DefaultShutdownTimeout = "30s"
	DefaultMaxRounds       = 3
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	DataDir         string `yaml:"dataDir"                                           split_words:"true"`
	BindAddr        string `yaml:"bindAddr"                                          split_words:"true"`
	ScanInterval    string `yaml:"scanInterval"                                      split_words:"true"`
	ScanHorizon     string `yaml:"scanHorizon"                                       split_words:"true"`
	AdvisorTimeout  string `yaml:"advisorTimeout"                                    split_words:"true"`
	ShutdownTimeout string `yaml:"shutdownTimeout"                                   split_words:"true"`
	OpenAiApiKey    string `yaml:"openAiApiKey"    envconfig:"CONCORD_OPENAI_API_KEY"`
	OpenAiModel     string `yaml:"openAiModel"     envconfig:"CONCORD_OPENAI_MODEL"`
	MetricsPort     uint   `yaml:"metricsPort"                                       split_words:"true"`
	MaxRounds       int    `yaml:"maxRounds"                                         split_words:"true"`
	AutoNegotiate   bool   `yaml:"autoNegotiate"                                     split_words:"true"`
}

func defaultConfig() *Config {
	return &Config{
		DataDir:         ".concord",
		BindAddr:        "0.0.0.0",
		ScanInterval:    DefaultScanInterval,
		ScanHorizon:     DefaultScanHorizon,
		AdvisorTimeout:  DefaultAdvisorTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsPort:     12798,
		MaxRounds:       DefaultMaxRounds,
		AutoNegotiate:   true,
	}
}

// LoadConfig builds the runtime config. Defaults are overlaid by an optional
// YAML file (explicit path, then ~/.concord/concord.yaml, then
// /etc/concord/concord.yaml), then by CONCORD_* environment variables.
func LoadConfig(configFile string) (*Config, error) {
	cfg := defaultConfig()
	if configFile == "" {
		// Check for config file in this path: ~/.concord/concord.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".concord", "concord.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		// Try to check for /etc/concord/concord.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/concord/concord.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	if err := envconfig.Process("concord", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for name, val := range map[string]string{
		"scanInterval":    c.ScanInterval,
		"scanHorizon":     c.ScanHorizon,
		"advisorTimeout":  c.AdvisorTimeout,
		"shutdownTimeout": c.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, val, err)
		}
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("maxRounds must be at least 1, got %d", c.MaxRounds)
	}
	return nil
}

// Duration accessors for the string duration fields. The strings are
// validated at load time; anything unparseable here falls back to the
// documented default.

func (c *Config) ScanIntervalDuration() time.Duration {
	return parseDurationOr(c.ScanInterval, DefaultScanInterval)
}

func (c *Config) ScanHorizonDuration() time.Duration {
	return parseDurationOr(c.ScanHorizon, DefaultScanHorizon)
}

func (c *Config) AdvisorTimeoutDuration() time.Duration {
	return parseDurationOr(c.AdvisorTimeout, DefaultAdvisorTimeout)
}

func (c *Config) ShutdownTimeoutDuration() time.Duration {
	return parseDurationOr(c.ShutdownTimeout, DefaultShutdownTimeout)
}

func parseDurationOr(val string, fallback string) time.Duration {
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	d, err := time.ParseDuration(fallback)
	if err != nil {
		// Defaults are compile-time constants
		panic(err)
	}
	return d
}
