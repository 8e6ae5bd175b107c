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

// Package mailbox connects the pipeline to a real mailbox: a Source that
// lists and fetches unseen messages, and a Sink that delivers replies.
package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/bcem/hrdesk/internal/models"
)

// Source lists and fetches inbound mail.
type Source interface {
	// ListUnseen returns the ids of up to limit unseen messages.
	ListUnseen(ctx context.Context, limit int) ([]string, error)
	Fetch(ctx context.Context, id string) (*models.RawMessage, error)
	// MarkConsumed stops a message from being listed again.
	MarkConsumed(ctx context.Context, id string) error
}

// Outgoing is one reply to deliver.
type Outgoing struct {
	To      string
	Subject string
	Body    string
	// InReplyTo and References keep the reply in the sender's thread.
	InReplyTo  string
	References []string
}

// Sink delivers replies. A nil error means the mail was accepted for delivery.
type Sink interface {
	Send(ctx context.Context, msg *Outgoing) error
}

// compose renders out as a plain-text UTF-8 message carrying the reply's
// threading headers.
func compose(from, messageID string, out *Outgoing, now time.Time) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("from %q: %w", from, err)
	}
	if err := msg.To(out.To); err != nil {
		return nil, fmt.Errorf("to %q: %w", out.To, err)
	}
	msg.Subject(out.Subject)
	msg.SetMessageIDWithValue(strings.Trim(messageID, "<>"))
	msg.SetDateWithValue(now)
	if irt := angle(out.InReplyTo); irt != "" {
		msg.SetGenHeader(mail.HeaderInReplyTo, irt)
	}
	if refs := referencesHeader(out.References); refs != "" {
		msg.SetGenHeader(mail.HeaderReferences, refs)
	}
	msg.SetBodyString(mail.TypeTextPlain, out.Body)
	return msg, nil
}

// build renders out as raw RFC 822 bytes.
func build(from, messageID string, out *Outgoing, now time.Time) ([]byte, error) {
	msg, err := compose(from, messageID, out, now)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render message: %w", err)
	}
	return buf.Bytes(), nil
}

// referencesHeader renders message ids as a space-separated References value.
func referencesHeader(ids []string) string {
	refs := make([]string, 0, len(ids))
	for _, id := range ids {
		if a := angle(id); a != "" {
			refs = append(refs, a)
		}
	}
	return strings.Join(refs, " ")
}

func angle(id string) string {
	id = strings.Trim(strings.TrimSpace(id), "<>")
	if id == "" {
		return ""
	}
	return "<" + id + ">"
}

// LogSink logs replies instead of sending them. Used for dry runs.
type LogSink struct{}

// Send implements Sink.
func (LogSink) Send(_ context.Context, msg *Outgoing) error {
	slog.Info("dry run: reply not sent",
		"to", msg.To,
		"subject", msg.Subject,
		"body_length", len(msg.Body),
	)
	return nil
}

// ReadOnly wraps a Source so messages are never marked consumed. Used for
// dry runs, which must leave the mailbox as they found it.
type ReadOnly struct {
	Source
}

// MarkConsumed implements Source and does nothing.
func (ReadOnly) MarkConsumed(_ context.Context, id string) error {
	slog.Debug("dry run: message left unconsumed", "source_id", id)
	return nil
}
