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

// Package node assembles a concord Service from the runtime config and runs
// it behind a metrics listener and signal handling.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FredrickOdondi/concord"
	"github.com/FredrickOdondi/concord/advisor"
	"github.com/FredrickOdondi/concord/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Build assembles a Service from the runtime config. One-shot commands use
// this directly; Run wraps it with the listeners and signal handling a
// long-running process needs.
func Build(cfg *config.Config, logger *slog.Logger) (*concord.Service, error) {
	if cfg.OpenAiApiKey == "" {
		return nil, errors.New(
			"no advisor credentials: set CONCORD_OPENAI_API_KEY or openAiApiKey in the config file",
		)
	}
	adv := advisor.NewOpenAIAdvisor(cfg.OpenAiApiKey, cfg.OpenAiModel)
	return concord.New(
		concord.NewConfig(
			concord.WithLogger(logger),
			concord.WithDataDir(cfg.DataDir),
			concord.WithAdvisor(adv),
			concord.WithNotifier(concord.NewSlogNotifier(logger)),
			concord.WithScanInterval(cfg.ScanIntervalDuration()),
			concord.WithScanHorizon(cfg.ScanHorizonDuration()),
			concord.WithMaxRounds(cfg.MaxRounds),
			concord.WithAdvisorTimeout(cfg.AdvisorTimeoutDuration()),
			concord.WithAutoNegotiate(cfg.AutoNegotiate),
			// Enable metrics with default prometheus registry
			concord.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		),
	)
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")

	svc, err := Build(cfg, logger)
	if err != nil {
		return err
	}

	shutdownTimeout := cfg.ShutdownTimeoutDuration()

	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component",
		"node",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "node",
			)
			os.Exit(1)
		}
	}()

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run service in goroutine
	errChan := make(chan error, 1)
	go func() {
		//nolint:contextcheck
		err := svc.Run(signalCtx)
		select {
		case errChan <- err:
		case <-signalCtx.Done():
		}
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
		logger.Info("shutdown complete")
		return nil

	case err := <-errChan:
		signalCtxStop()
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("metrics server shutdown error", "error", shutdownErr)
		}
		if err != nil {
			logger.Error("service error", "error", err)
		}
		return err
	}
}
