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

// Package store persists email records and escalations. Postgres is the
// production backend; Memory backs tests and dry runs (pipeline.DryRun).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/bcem/hrdesk/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the record API the pipeline and admin surface depend on.
type Store interface {
	Ping(ctx context.Context) error

	// Insert persists rec if no record with the same message id exists and
	// returns the record's id either way. created reports a new row.
	Insert(ctx context.Context, rec *models.EmailRecord) (id int64, created bool, err error)

	Get(ctx context.Context, id int64) (*models.EmailRecord, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.EmailRecord, error)
	ThreadIDForMessage(ctx context.Context, messageID string) (int64, bool, error)

	// ThreadHistory returns every record of a thread, oldest first.
	ThreadHistory(ctx context.Context, threadID int64) ([]models.EmailRecord, error)

	// ListEscalated returns escalated records that no one has answered yet.
	ListEscalated(ctx context.Context) ([]Escalated, error)

	// InTx runs fn in a transaction. A non-nil error from fn rolls back
	// everything fn wrote.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side of a single per-message transaction.
type Tx interface {
	// GetForUpdate reads a record and locks it until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*models.EmailRecord, error)
	SaveClassification(ctx context.Context, id int64, topic models.Topic, confidence float64) error
	UpdateCategory(ctx context.Context, id int64, topic models.Topic) error
	MarkResponded(ctx context.Context, id int64, body string, at time.Time) error
	// MarkEscalated sets escalated=true and the given status.
	MarkEscalated(ctx context.Context, id int64, status models.Status) error
	// AddEscalation records an escalation unless the email already has one.
	AddEscalation(ctx context.Context, esc models.Escalation) (created bool, err error)
}

// Escalated is an escalated record with its escalation details.
type Escalated struct {
	models.EmailRecord
	Reason      string    `json:"reason"`
	EscalatedAt time.Time `json:"escalated_at"`
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
