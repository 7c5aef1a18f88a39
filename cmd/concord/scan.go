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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/FredrickOdondi/concord/internal/config"
	"github.com/FredrickOdondi/concord/internal/node"
	"github.com/spf13/cobra"
)

func scanRun(ctx context.Context, cfg *config.Config) {
	logger := commonRun()

	svc, err := node.Build(cfg, logger)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error(err.Error())
		}
	}()

	result, err := svc.ScanNow(ctx)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	fmt.Printf(
		"scanned %d activities: %d overlap(s), %d conflict(s) created, %d matched active, %d skipped resolved\n",
		result.ScannedActivities,
		result.Overlaps,
		result.Created,
		result.MatchedActive,
		result.SkippedClosed,
	)
	for _, c := range result.Conflicts {
		fmt.Printf(
			"  [%s/%s] %s (%s)\n",
			c.Kind,
			c.Severity,
			c.Description,
			c.Outcome,
		)
	}
}

func scanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan pass and print the findings",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			scanRun(cmd.Context(), cfg)
		},
	}
	return cmd
}
