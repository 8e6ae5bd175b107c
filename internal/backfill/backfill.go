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
// Package backfill imports historical mail into the record store so thread
// history exists before the live pipeline starts answering follow-ups.
// Imported messages are stored unclassified and never answered.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/hrdesk/internal/models"
	"github.com/bcem/hrdesk/internal/normalize"
	"github.com/bcem/hrdesk/internal/store"
	"github.com/bcem/hrdesk/internal/thread"
)

const pageSize = 100

// Lister pages through a mailbox search, newest first.
type Lister interface {
	ListPage(ctx context.Context, query, pageToken string, size int) (ids []string, next string, err error)
	Fetch(ctx context.Context, id string) (*models.RawMessage, error)
}

// Request defines the scope of a historical import.
type Request struct {
	Since time.Duration // lookback window (e.g. 168h = 1 week)
	Query string        // extra search terms, ANDed with the date filter
}

// Result summarises a completed import.
type Result struct {
	Listed   int
	Imported int
	Skipped  int
	Errors   int
	Pages    int
	Elapsed  time.Duration
}

// Runner performs the historical import.
type Runner struct {
	lister    Lister
	store     store.Store
	resolver  *thread.Resolver
	pageDelay time.Duration // delay between pages to avoid throttling
	now       func() time.Time
}

// RunnerConfig holds dependencies for the import runner.
type RunnerConfig struct {
	Lister    Lister
	Store     store.Store
	PageDelay time.Duration
}

// NewRunner creates an import runner.
func NewRunner(cfg RunnerConfig) *Runner {
	delay := cfg.PageDelay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}
	return &Runner{
		lister:    cfg.Lister,
		store:     cfg.Store,
		resolver:  thread.NewResolver(cfg.Store),
		pageDelay: delay,
		now:       time.Now,
	}
}

// Query builds the mailbox search for a request. Unread mail is excluded;
// the live pipeline owns it.
func (r *Runner) Query(req Request) string {
	q := fmt.Sprintf("in:inbox -is:unread after:%d", r.now().Add(-req.Since).Unix())
	if req.Query != "" {
		q += " " + req.Query
	}
	return q
}

// Run lists every matching message and stores the ones not already on file.
// Messages are imported oldest first so a reply finds its parent's thread.
// Per-message failures are counted and skipped; only listing errors abort.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	query := r.Query(req)

	slog.Info("starting historical import", "query", query)

	result := &Result{}
	ids, err := r.list(ctx, query, result)
	if err != nil {
		return result, err
	}
	result.Listed = len(ids)

	for i := len(ids) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		created, err := r.importOne(ctx, ids[i])
		switch {
		case err != nil:
			slog.Warn("import: message failed", "source_id", ids[i], "error", err)
			result.Errors++
		case created:
			result.Imported++
		default:
			result.Skipped++
		}
	}

	result.Elapsed = time.Since(start)

	slog.Info("historical import complete",
		"listed", result.Listed,
		"imported", result.Imported,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"pages", result.Pages,
		"elapsed", result.Elapsed,
	)

	return result, nil
}

func (r *Runner) list(ctx context.Context, query string, result *Result) ([]string, error) {
	var ids []string
	token := ""
	for {
		if result.Pages > 0 {
			select {
			case <-ctx.Done():
				return ids, ctx.Err()
			case <-time.After(r.pageDelay):
			}
		}

		page, next, err := r.lister.ListPage(ctx, query, token, pageSize)
		if err != nil {
			return ids, fmt.Errorf("list page %d: %w", result.Pages, err)
		}
		result.Pages++
		ids = append(ids, page...)

		slog.Debug("import page listed", "page", result.Pages, "messages", len(page))

		if next == "" {
			return ids, nil
		}
		token = next
	}
}

func (r *Runner) importOne(ctx context.Context, sourceID string) (bool, error) {
	raw, err := r.lister.Fetch(ctx, sourceID)
	if err != nil {
		return false, fmt.Errorf("fetch: %w", err)
	}

	msg := normalize.Parse(raw, r.now)
	tid, err := r.resolver.Resolve(ctx, msg)
	if err != nil {
		return false, fmt.Errorf("resolve thread: %w", err)
	}
	msg.ThreadID = tid

	_, created, err := r.store.Insert(ctx, models.NewRecord(msg))
	if err != nil {
		return false, fmt.Errorf("insert: %w", err)
	}
	return created, nil
}
