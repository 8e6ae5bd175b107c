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

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/hrdesk/internal/models"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a store backed by pool and makes sure the schema exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	s := &Postgres{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure email schema: %w", err)
	}
	slog.Info("email store initialised")
	return s, nil
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS emails (
			email_id                  BIGSERIAL PRIMARY KEY,
			message_id                TEXT NOT NULL,
			thread_id                 BIGINT NOT NULL,
			sender_email              TEXT NOT NULL DEFAULT '',
			subject                   TEXT NOT NULL DEFAULT '',
			body                      TEXT NOT NULL DEFAULT '',
			received_at               TIMESTAMPTZ NOT NULL,
			status                    TEXT NOT NULL DEFAULT 'NOT_RESPONDED'
			                          CHECK (status IN ('NOT_RESPONDED', 'RESPONDED', 'ESCALATED')),
			classified_category       TEXT,
			classification_confidence DOUBLE PRECISION,
			escalated                 BOOLEAN NOT NULL DEFAULT FALSE,
			response_body             TEXT,
			responded_at              TIMESTAMPTZ,
			created_at                TIMESTAMPTZ DEFAULT NOW(),
			updated_at                TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id);
		CREATE INDEX IF NOT EXISTS idx_emails_thread ON emails(thread_id, received_at);
		CREATE INDEX IF NOT EXISTS idx_emails_escalated ON emails(escalated) WHERE escalated;

		CREATE TABLE IF NOT EXISTS escalations (
			id         BIGSERIAL PRIMARY KEY,
			email_id   BIGINT NOT NULL REFERENCES emails(email_id),
			reason     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_escalations_email ON escalations(email_id);
	`)
	return err
}

// Ping checks the Postgres connection.
func (s *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Insert implements Store.
func (s *Postgres) Insert(ctx context.Context, rec *models.EmailRecord) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO emails (message_id, thread_id, sender_email, subject, body, received_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING email_id
	`, rec.MessageID, rec.ThreadID, rec.Sender, rec.Subject, rec.Body, rec.ReceivedAt, string(rec.Status)).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("insert email: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT email_id FROM emails WHERE message_id = $1`, rec.MessageID).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("look up existing email: %w", err)
	}
	return id, false, nil
}

const recordColumns = `
	email_id, message_id, thread_id, sender_email, subject, body, received_at,
	status, classified_category, classification_confidence, escalated,
	response_body, responded_at`

// Get implements Store.
func (s *Postgres) Get(ctx context.Context, id int64) (*models.EmailRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM emails WHERE email_id = $1`, id)
	return scanRecord(row)
}

// GetByMessageID implements Store.
func (s *Postgres) GetByMessageID(ctx context.Context, messageID string) (*models.EmailRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM emails WHERE message_id = $1`, messageID)
	return scanRecord(row)
}

// ThreadIDForMessage implements Store.
func (s *Postgres) ThreadIDForMessage(ctx context.Context, messageID string) (int64, bool, error) {
	var threadID int64
	err := s.pool.QueryRow(ctx, `SELECT thread_id FROM emails WHERE message_id = $1`, messageID).Scan(&threadID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return threadID, true, nil
}

// ThreadHistory implements Store.
func (s *Postgres) ThreadHistory(ctx context.Context, threadID int64) ([]models.EmailRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM emails
		WHERE thread_id = $1
		ORDER BY received_at ASC, email_id ASC
	`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListEscalated implements Store.
func (s *Postgres) ListEscalated(ctx context.Context) ([]Escalated, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.email_id, e.message_id, e.thread_id, e.sender_email, e.subject, e.body,
		       e.received_at, e.status, e.classified_category, e.classification_confidence,
		       e.escalated, e.response_body, e.responded_at, x.reason, x.created_at
		FROM emails e
		JOIN escalations x ON x.email_id = e.email_id
		WHERE e.escalated AND e.status <> 'RESPONDED'
		ORDER BY x.created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Escalated
	for rows.Next() {
		var e Escalated
		var status string
		var category *string
		if err := rows.Scan(
			&e.ID, &e.MessageID, &e.ThreadID, &e.Sender, &e.Subject, &e.Body,
			&e.ReceivedAt, &status, &category, &e.ClassificationConfidence,
			&e.Escalated, &e.ResponseBody, &e.RespondedAt, &e.Reason, &e.EscalatedAt,
		); err != nil {
			return nil, err
		}
		e.Status = models.Status(status)
		e.ClassifiedCategory = topicPtr(category)
		out = append(out, e)
	}
	return out, rows.Err()
}

// InTx implements Store.
func (s *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetForUpdate(ctx context.Context, id int64) (*models.EmailRecord, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM emails WHERE email_id = $1 FOR UPDATE`, id)
	return scanRecord(row)
}

func (t *pgTx) SaveClassification(ctx context.Context, id int64, topic models.Topic, confidence float64) error {
	var category *string
	if topic != "" {
		c := string(topic)
		category = &c
	}
	return t.exec(ctx, `
		UPDATE emails
		SET classified_category = $1, classification_confidence = $2, updated_at = NOW()
		WHERE email_id = $3
	`, category, confidence, id)
}

func (t *pgTx) UpdateCategory(ctx context.Context, id int64, topic models.Topic) error {
	return t.exec(ctx, `
		UPDATE emails
		SET classified_category = $1, updated_at = NOW()
		WHERE email_id = $2
	`, string(topic), id)
}

func (t *pgTx) MarkResponded(ctx context.Context, id int64, body string, at time.Time) error {
	return t.exec(ctx, `
		UPDATE emails
		SET status = 'RESPONDED', response_body = $1, responded_at = $2, updated_at = NOW()
		WHERE email_id = $3
	`, body, at, id)
}

func (t *pgTx) MarkEscalated(ctx context.Context, id int64, status models.Status) error {
	return t.exec(ctx, `
		UPDATE emails
		SET escalated = TRUE, status = $1, updated_at = NOW()
		WHERE email_id = $2
	`, string(status), id)
}

func (t *pgTx) AddEscalation(ctx context.Context, esc models.Escalation) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO escalations (email_id, reason, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email_id) DO NOTHING
	`, esc.EmailID, esc.Reason, esc.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// exec runs an update that must touch exactly one row.
func (t *pgTx) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	return requireOne(tag)
}

func requireOne(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanRecord scans a single row into an EmailRecord.
func scanRecord(row pgx.Row) (*models.EmailRecord, error) {
	var r models.EmailRecord
	var status string
	var category *string
	err := row.Scan(
		&r.ID, &r.MessageID, &r.ThreadID, &r.Sender, &r.Subject, &r.Body, &r.ReceivedAt,
		&status, &category, &r.ClassificationConfidence, &r.Escalated,
		&r.ResponseBody, &r.RespondedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = models.Status(status)
	r.ClassifiedCategory = topicPtr(category)
	return &r, nil
}

// collectRecords scans multiple rows into a slice of EmailRecords.
func collectRecords(rows pgx.Rows) ([]models.EmailRecord, error) {
	var records []models.EmailRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func topicPtr(s *string) *models.Topic {
	if s == nil {
		return nil
	}
	t := models.Topic(*s)
	return &t
}
