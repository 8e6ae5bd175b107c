// Copyright (c) 2026 John Earle
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
// HR desk historical import
//
// Standalone CLI tool that stores already-read inbox mail from a
// configurable lookback window, so follow-ups to older conversations are
// answered with their thread history. Imported mail is never classified
// or answered. Intended for seeding data on new deployments.
//
// Usage:
//
//	go run ./cmd/backfill/ [--since 168h] [--query "from:corp.com"]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/hrdesk/internal/backfill"
	"github.com/bcem/hrdesk/internal/config"
	"github.com/bcem/hrdesk/internal/mailbox"
	"github.com/bcem/hrdesk/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// --- CLI Flags ---
	sinceFlag := flag.String("since", "168h", "Lookback duration (e.g. 168h for 1 week, 720h for 30 days)")
	queryFlag := flag.String("query", "", "Extra Gmail search terms to narrow the import")
	flag.Parse()

	since, err := time.ParseDuration(*sinceFlag)
	if err != nil || since <= 0 {
		fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q\n", *sinceFlag)
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	emails, err := store.NewPostgres(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise email store", "error", err)
		os.Exit(1)
	}

	// --- Mailbox ---
	gmailBox, err := mailbox.NewGmail(ctx, mailbox.GmailConfig{
		CredentialsFile: cfg.Mailbox.CredentialsFile,
		TokenFile:       cfg.Mailbox.TokenFile,
		Address:         cfg.Mailbox.Address,
	})
	if err != nil {
		slog.Error("failed to open mailbox", "error", err)
		os.Exit(1)
	}

	// --- Run Import ---
	runner := backfill.NewRunner(backfill.RunnerConfig{
		Lister: gmailBox,
		Store:  emails,
	})

	result, err := runner.Run(ctx, backfill.Request{Since: since, Query: *queryFlag})
	if err != nil {
		slog.Error("historical import failed", "error", err)
		os.Exit(1)
	}

	if result.Errors > 0 {
		slog.Warn("some messages were not imported", "errors", result.Errors)
		os.Exit(2)
	}
}
