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

// Package respond builds the reply to an HR email: a topic-specific prompt
// over the thread history, one call to a text generation capability, and a
// deterministic acknowledgment when that call yields nothing.
package respond

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/bcem/hrdesk/internal/models"
)

// Capability generates text for a prompt. An empty result counts as failure.
type Capability interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Current describes the message being answered.
type Current struct {
	Sender     string
	Subject    string
	Topic      models.Topic
	Confidence float64
}

// Reply is the generated response text.
type Reply struct {
	Body string
	// Fallback is set when the templated acknowledgment was used.
	Fallback bool
}

// Generator produces replies. A nil capability always falls back.
type Generator struct {
	capability Capability
}

// NewGenerator creates a Generator.
func NewGenerator(capability Capability) *Generator {
	return &Generator{capability: capability}
}

// Generate returns a non-empty reply for current given its thread history
// (oldest first, current message included). It never fails.
func (g *Generator) Generate(ctx context.Context, history []models.EmailRecord, current Current) Reply {
	if g.capability != nil {
		prompt := BuildPrompt(history, current)

		text, err := g.capability.Generate(ctx, prompt)
		text = strings.TrimSpace(text)
		switch {
		case err != nil:
			slog.Warn("response generation failed, using fallback", "topic", current.Topic, "error", err)
		case text == "":
			slog.Warn("response generation returned nothing, using fallback", "topic", current.Topic)
		default:
			return Reply{Body: text}
		}
	}

	return Reply{Body: Fallback(current, IsFollowUp(history)), Fallback: true}
}

// IsFollowUp reports whether history holds more than the current message.
func IsFollowUp(history []models.EmailRecord) bool {
	return len(history) > 1
}

// Fallback is the deterministic acknowledgment. It always names the subject
// and names the topic when one is known.
func Fallback(current Current, followUp bool) string {
	var b strings.Builder
	if followUp {
		fmt.Fprintf(&b, "Thank you for your follow-up email regarding '%s'. ", current.Subject)
		if current.Topic != "" {
			fmt.Fprintf(&b, "This appears to be a %s request. ", current.Topic)
		}
		b.WriteString("We are actively working on your request and will provide an update soon.")
		return b.String()
	}

	fmt.Fprintf(&b, "Thank you for your email regarding '%s'. ", current.Subject)
	if current.Topic != "" {
		fmt.Fprintf(&b, "This appears to be a %s request. ", current.Topic)
	}
	b.WriteString("We have received your message and will process it accordingly.")
	return b.String()
}

type historyEntry struct {
	Sender    string  `json:"sender"`
	Subject   string  `json:"subject"`
	Body      string  `json:"body"`
	Timestamp string  `json:"timestamp"`
	Category  *string `json:"category"`
}

// BuildPrompt assembles the single generation request.
func BuildPrompt(history []models.EmailRecord, current Current) string {
	entries := make([]historyEntry, 0, len(history))
	for _, r := range history {
		e := historyEntry{
			Sender:    r.Sender,
			Subject:   r.Subject,
			Body:      r.Body,
			Timestamp: r.ReceivedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if r.ClassifiedCategory != nil {
			c := string(*r.ClassifiedCategory)
			e.Category = &c
		}
		entries = append(entries, e)
	}

	historyJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		historyJSON = []byte("[]")
	}

	topic := string(current.Topic)
	if topic == "" {
		topic = "Unclassified"
	}

	var b strings.Builder
	b.WriteString(Instruction(current.Topic))
	b.WriteString("\n\nConversation History:\n")
	b.Write(historyJSON)
	b.WriteString("\n\nCurrent Email:\n")
	fmt.Fprintf(&b, "Sender: %s\n", current.Sender)
	fmt.Fprintf(&b, "Subject: %s\n", current.Subject)
	fmt.Fprintf(&b, "Category: %s\n", topic)
	fmt.Fprintf(&b, "Confidence: %s\n", strconv.FormatFloat(current.Confidence, 'f', -1, 64))
	b.WriteString(`
Please generate a response that:
1. Acknowledges the email appropriately
2. References the conversation history if it's a follow-up
3. Addresses the specific category of the request
4. Maintains a professional and helpful tone
5. Provides appropriate next steps or updates

Response:`)

	return b.String()
}

// ReplySubject prefixes subject with "Re: " unless it already has one.
func ReplySubject(subject string) string {
	if len(subject) >= 3 && strings.EqualFold(subject[:3], "re:") {
		return subject
	}
	return "Re: " + subject
}
