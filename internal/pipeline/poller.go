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

package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Batcher runs one pipeline batch.
type Batcher interface {
	RunBatch(ctx context.Context) (BatchResult, error)
}

// Poller runs a batch immediately and then once per interval.
type Poller struct {
	batcher  Batcher
	interval time.Duration
}

// NewPoller creates a poller.
func NewPoller(b Batcher, interval time.Duration) *Poller {
	return &Poller{batcher: b, interval: interval}
}

// Run blocks until ctx is cancelled. A failed batch is logged and retried
// on the next tick.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("mail poller starting", "interval", p.interval)

	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("mail poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if _, err := p.batcher.RunBatch(ctx); err != nil {
		slog.Error("batch failed", "error", err)
	}
}
