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

func conflictsRun(ctx context.Context, cfg *config.Config, includeHistory bool) {
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

	conflicts, err := svc.ListConflicts(ctx, includeHistory)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	if len(conflicts) == 0 {
		fmt.Println("no conflicts")
		return
	}
	for _, c := range conflicts {
		fmt.Printf(
			"%s  [%s/%s/%s]  %s\n",
			c.ID,
			c.Kind,
			c.Severity,
			c.Status,
			c.Description,
		)
	}
}

func conflictsCommand() *cobra.Command {
	var includeHistory bool
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List recorded conflicts",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			conflictsRun(cmd.Context(), cfg, includeHistory)
		},
	}
	cmd.Flags().
		BoolVarP(&includeHistory, "all", "a", false, "include resolved and dismissed conflicts")
	return cmd
}
