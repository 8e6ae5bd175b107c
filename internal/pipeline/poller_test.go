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
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingBatcher struct {
	runs atomic.Int32
	err  error
}

func (b *countingBatcher) RunBatch(context.Context) (BatchResult, error) {
	b.runs.Add(1)
	return BatchResult{}, b.err
}

func TestPoller_RunsImmediatelyAndOnTick(t *testing.T) {
	b := &countingBatcher{err: errors.New("store unavailable")}
	p := NewPoller(b, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for b.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d batches ran", b.runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}
