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

import "fmt"

// FailureKind classifies what went wrong while processing one message.
type FailureKind string

const (
	// FailureTransport covers mail fetch and send errors. Retried next run.
	FailureTransport FailureKind = "transport"
	// FailureModel covers classifier and generator errors. These degrade
	// (escalation, template reply) rather than fail the message.
	FailureModel FailureKind = "model"
	// FailurePersistence covers store errors. The message's transaction is
	// rolled back and it is retried next run.
	FailurePersistence FailureKind = "persistence"
	// FailureData covers unusable input that was replaced with a default.
	FailureData FailureKind = "data"
)

// Result is what happened to a message.
type Result string

const (
	ResultResponded Result = "responded"
	ResultEscalated Result = "escalated"
	// ResultHumanQueued is a human-intervention message: escalated but still
	// NOT_RESPONDED until someone answers it.
	ResultHumanQueued Result = "human_queued"
	// ResultDuplicate means the record was already settled by an earlier run.
	ResultDuplicate Result = "duplicate"
	// ResultClaimed means another run is processing the message right now.
	ResultClaimed Result = "claimed"
	ResultFailed  Result = "failed"
)

// Outcome is the typed result of processing one message. Kind and Err are
// set on failures and on degraded model or data paths.
type Outcome struct {
	SourceID  string
	MessageID string
	EmailID   int64
	ThreadID  int64
	Result    Result
	Kind      FailureKind
	Err       error
}

// Failed reports whether the message produced no committed outcome.
func (o Outcome) Failed() bool { return o.Result == ResultFailed }

// Retryable reports whether the next run should try the message again.
func (o Outcome) Retryable() bool {
	return o.Failed() && o.Kind != FailureData
}

// Consumed reports whether the source message can be marked as consumed.
func (o Outcome) Consumed() bool {
	switch o.Result {
	case ResultResponded, ResultEscalated, ResultHumanQueued, ResultDuplicate:
		return true
	}
	return false
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s (%s: %v)", o.Result, o.Kind, o.Err)
	}
	return string(o.Result)
}

func failure(o Outcome, kind FailureKind, err error) Outcome {
	o.Result = ResultFailed
	o.Kind = kind
	o.Err = err
	return o
}

// BatchResult summarises one run.
type BatchResult struct {
	Listed   int
	Outcomes []Outcome
}

// Count returns how many outcomes had result r.
func (b BatchResult) Count(r Result) int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Result == r {
			n++
		}
	}
	return n
}
