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

// Package models defines the data structures shared across the responder.
package models

import "time"

// Status is the pipeline state of a persisted email.
type Status string

const (
	StatusNotResponded Status = "NOT_RESPONDED"
	StatusResponded    Status = "RESPONDED"
	StatusEscalated    Status = "ESCALATED"
)

// Terminal reports whether no automated transition leaves this status.
func (s Status) Terminal() bool {
	return s == StatusResponded || s == StatusEscalated
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNotResponded, StatusResponded, StatusEscalated:
		return true
	}
	return false
}

// Topic is a short HR topic key such as "Leave Request". The empty Topic
// means "not classified".
type Topic string

// TopicHumanIntervention is the reserved topic that always routes a message
// to a human, regardless of confidence.
const TopicHumanIntervention Topic = "human_intervention"

// RawMessage is one message as delivered by the mail source.
type RawMessage struct {
	// SourceID is the mailbox-local identifier used to fetch and mark the message.
	SourceID string
	// Data is the full RFC 822 message.
	Data []byte
}

// Message is one inbound email after normalisation.
type Message struct {
	SourceID   string
	MessageID  string // Message-ID header without angle brackets
	Sender     string
	Subject    string
	Body       string
	ReceivedAt time.Time
	InReplyTo  string
	References []string
	ThreadID   int64
}

// EmailRecord is the persisted form of a Message plus its pipeline state.
type EmailRecord struct {
	ID                       int64      `json:"email_id"`
	MessageID                string     `json:"message_id"`
	ThreadID                 int64      `json:"thread_id"`
	Sender                   string     `json:"sender_email"`
	Subject                  string     `json:"subject"`
	Body                     string     `json:"body"`
	ReceivedAt               time.Time  `json:"received_at"`
	Status                   Status     `json:"status"`
	ClassifiedCategory       *Topic     `json:"classified_category"`
	ClassificationConfidence *float64   `json:"classification_confidence"`
	Escalated                bool       `json:"escalated"`
	ResponseBody             *string    `json:"response_body"`
	RespondedAt              *time.Time `json:"responded_at"`
}

// Category returns the classified topic, or "" when unclassified.
func (r *EmailRecord) Category() Topic {
	if r.ClassifiedCategory == nil {
		return ""
	}
	return *r.ClassifiedCategory
}

// Settled reports whether the pipeline must not touch this record again:
// it reached a terminal status or a human already owns it.
func (r *EmailRecord) Settled() bool {
	return r.Status.Terminal() || r.Escalated
}

// NewRecord builds the NOT_RESPONDED record persisted on ingestion.
func NewRecord(m *Message) *EmailRecord {
	return &EmailRecord{
		MessageID:  m.MessageID,
		ThreadID:   m.ThreadID,
		Sender:     m.Sender,
		Subject:    m.Subject,
		Body:       m.Body,
		ReceivedAt: m.ReceivedAt,
		Status:     StatusNotResponded,
	}
}

// Escalation records that an email needs human handling. At most one exists
// per email.
type Escalation struct {
	EmailID   int64     `json:"email_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
