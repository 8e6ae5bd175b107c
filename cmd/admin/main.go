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

// HR desk admin API
//
// Serves the escalation queue to HR staff: list escalated mail, correct
// categories and send human-written replies through the HR mailbox.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/hrdesk/internal/admin"
	"github.com/bcem/hrdesk/internal/config"
	"github.com/bcem/hrdesk/internal/mailbox"
	"github.com/bcem/hrdesk/internal/queue"
	"github.com/bcem/hrdesk/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()
	publisher := queue.NewPublisher(rdb, cfg.EscalationQueue, cfg.FeedbackQueue)

	var sink mailbox.Sink
	switch cfg.Mailbox.Sink {
	case "log":
		slog.Error("the log sink is for responder dry runs; human replies need a real sink")
		os.Exit(1)
	case "smtp":
		sink = mailbox.NewSMTP(mailbox.SMTPConfig{
			Host:     cfg.Mailbox.SMTP.Host,
			Port:     cfg.Mailbox.SMTP.Port,
			Username: cfg.Mailbox.SMTP.Username,
			Password: cfg.Mailbox.SMTP.Password,
			From:     cfg.Mailbox.Address,
		})
	default:
		sink, err = mailbox.NewGmail(ctx, mailbox.GmailConfig{
			CredentialsFile: cfg.Mailbox.CredentialsFile,
			TokenFile:       cfg.Mailbox.TokenFile,
			Address:         cfg.Mailbox.Address,
		})
		if err != nil {
			slog.Error("failed to open mailbox", "error", err)
			os.Exit(1)
		}
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		slog.Error("invalid topic catalog", "error", err)
		os.Exit(1)
	}

	h := admin.NewHandler(admin.Deps{
		Store:    emails,
		Sink:     sink,
		Catalog:  catalog,
		Feedback: publisher,
		Checks:   map[string]admin.Pinger{"redis": publisher},
	})

	ready, err := admin.Serve(ctx, cfg.AdminPort, admin.NewRouter(h))
	if err != nil {
		slog.Error("failed to start admin server", "error", err)
		os.Exit(1)
	}
	<-ready

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()
	slog.Info("admin API stopped")
}
