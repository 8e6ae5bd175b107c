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

// HR desk responder
//
// Entry point for the mail responder. It:
//  1. Loads configuration from config.yaml, .env and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Opens the HR mailbox through the Gmail API
//  4. Runs one pipeline batch per poll interval, or a single batch with -once
//  5. Serves /health and /metrics
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/hrdesk/internal/admin"
	"github.com/bcem/hrdesk/internal/classify"
	"github.com/bcem/hrdesk/internal/config"
	"github.com/bcem/hrdesk/internal/dedup"
	"github.com/bcem/hrdesk/internal/escalation"
	"github.com/bcem/hrdesk/internal/mailbox"
	"github.com/bcem/hrdesk/internal/pipeline"
	"github.com/bcem/hrdesk/internal/queue"
	"github.com/bcem/hrdesk/internal/respond"
	"github.com/bcem/hrdesk/internal/store"
)

func main() {
	once := flag.Bool("once", false, "run a single batch and exit")
	dryRun := flag.Bool("dry-run", false, "process mail without sending, storing or consuming anything")
	flag.Parse()

	// Structured JSON logging
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	slog.Info("starting HR desk responder")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	slog.Info("configuration loaded",
		"mailbox", cfg.Mailbox.Address,
		"sink", cfg.Mailbox.Sink,
		"threshold", cfg.Threshold,
		"batch_size", cfg.BatchSize,
		"poll_interval", cfg.PollInterval,
		"generator_model", cfg.Generator.Model,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	emails, err := store.NewPostgres(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise email store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.EscalationQueue, cfg.FeedbackQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	claims := dedup.NewFilter(rdb, cfg.ClaimTTL)

	// --- Mailbox ---
	gmailBox, err := mailbox.NewGmail(ctx, mailbox.GmailConfig{
		CredentialsFile:   cfg.Mailbox.CredentialsFile,
		TokenFile:         cfg.Mailbox.TokenFile,
		Address:           cfg.Mailbox.Address,
		Query:             cfg.Mailbox.Query,
		DeleteAfterImport: cfg.Mailbox.DeleteAfterImport,
	})
	if err != nil {
		slog.Error("failed to open mailbox", "error", err)
		os.Exit(1)
	}

	// A logged reply is never delivered, so the log sink implies a dry run.
	dry := *dryRun || cfg.Mailbox.Sink == "log"

	var sink mailbox.Sink = gmailBox
	if cfg.Mailbox.Sink == "smtp" {
		sink = mailbox.NewSMTP(mailbox.SMTPConfig{
			Host:     cfg.Mailbox.SMTP.Host,
			Port:     cfg.Mailbox.SMTP.Port,
			Username: cfg.Mailbox.SMTP.Username,
			Password: cfg.Mailbox.SMTP.Password,
			From:     cfg.Mailbox.Address,
		})
	}

	// --- Classifier ---
	catalog, err := cfg.Catalog()
	if err != nil {
		slog.Error("invalid topic catalog", "error", err)
		os.Exit(1)
	}

	zsCfg := classify.ZeroShotConfig{
		Endpoint: cfg.Classifier.Endpoint,
		APIKey:   cfg.Classifier.APIKey,
		Timeout:  cfg.Classifier.Timeout,
	}
	if cfg.Classifier.ClientID != "" {
		creds := &clientcredentials.Config{
			ClientID:     cfg.Classifier.ClientID,
			ClientSecret: cfg.Classifier.ClientSecret,
			TokenURL:     cfg.Classifier.TokenURL,
			Scopes:       cfg.Classifier.Scopes,
		}
		client := creds.Client(ctx)
		client.Timeout = cfg.Classifier.Timeout
		zsCfg.HTTPClient = client
	}
	gateway := classify.NewGateway(classify.NewZeroShot(zsCfg), catalog)

	// --- Generator ---
	var capability respond.Capability
	if cfg.Generator.APIKey != "" {
		capability = respond.NewOpenAI(respond.OpenAIConfig{
			APIKey:      cfg.Generator.APIKey,
			BaseURL:     cfg.Generator.BaseURL,
			Model:       cfg.Generator.Model,
			MaxTokens:   cfg.Generator.MaxTokens,
			Temperature: cfg.Generator.Temperature,
		})
	} else {
		slog.Warn("no generator API key configured, replies will use templates")
	}

	policy, err := escalation.NewPolicy(cfg.Threshold)
	if err != nil {
		slog.Error("invalid escalation policy", "error", err)
		os.Exit(1)
	}

	deps := pipeline.Deps{
		Source:     gmailBox,
		Sink:       sink,
		Store:      emails,
		Classifier: gateway,
		Policy:     &policy,
		Generator:  respond.NewGenerator(capability),
		Claims:     claims,
		Notifier:   publisher,
		BatchSize:  cfg.BatchSize,
	}
	if dry {
		slog.Warn("dry run: replies are logged, records kept in memory, mailbox left unread")
		deps = pipeline.DryRun(deps)
	}

	orch, err := pipeline.New(deps)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if *once {
		res, err := orch.RunBatch(ctx)
		if err != nil {
			slog.Error("batch failed", "error", err)
			os.Exit(1)
		}
		if res.Count(pipeline.ResultFailed) > 0 {
			os.Exit(2)
		}
		return
	}

	// --- Health and Metrics Server ---
	ops := admin.NewOpsRouter(admin.NewHandler(admin.Deps{
		Store:   emails,
		Sink:    sink,
		Catalog: catalog,
		Checks:  map[string]admin.Pinger{"redis": publisher},
	}))
	ready, err := admin.Serve(ctx, cfg.Port, ops)
	if err != nil {
		slog.Error("failed to start health server", "error", err)
		os.Exit(1)
	}
	<-ready

	pipeline.NewPoller(orch, cfg.PollInterval).Run(ctx)

	slog.Info("responder stopped")
}
