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

// Package thread assigns conversation identifiers to inbound messages.
//
// Replies hash the referenced Message-ID into [0, 10^9). New conversations
// combine a numeric form of the message's own Message-ID with a bounded hash
// of the sender: (h(message_id) mod 10^9) * 10^6 + (h(sender) mod 10^6).
// Both spaces are bounded, so two unrelated ids can collide. That risk is
// accepted; persisted assignments always win over freshly computed ones.
package thread

import (
	"context"
	"crypto/md5"
	"fmt"
	"math/big"
	"strings"

	"github.com/bcem/hrdesk/internal/models"
)

const (
	referenceSpace = 1_000_000_000
	senderSpace    = 1_000_000
)

// Lookup returns the thread id already stored for a Message-ID.
type Lookup interface {
	ThreadIDForMessage(ctx context.Context, messageID string) (int64, bool, error)
}

// Resolver computes thread ids, preferring persisted assignments.
type Resolver struct {
	lookup Lookup
}

// NewResolver creates a resolver. A nil lookup makes it a pure function of
// the message headers.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve returns the thread id for m. The order is:
//  1. m's own Message-ID already on file: reuse its thread.
//  2. m is a reply: the stored thread of the nearest referenced message on
//     file (In-Reply-To, then References newest first), else the hash of
//     the primary reference.
//  3. otherwise a new synthesized id.
//
// Walking every reference keeps a follow-up in its thread when it answers
// one of our own replies, which are never stored.
// An error is returned only when the lookup itself fails.
func (r *Resolver) Resolve(ctx context.Context, m *models.Message) (int64, error) {
	if id, ok, err := r.stored(ctx, m.MessageID); err != nil || ok {
		return id, err
	}

	refs := Candidates(m)
	if len(refs) == 0 {
		return ForNewMessage(m.MessageID, m.Sender), nil
	}

	for _, ref := range refs {
		if id, ok, err := r.stored(ctx, ref); err != nil || ok {
			return id, err
		}
	}
	return ForReference(refs[0]), nil
}

func (r *Resolver) stored(ctx context.Context, messageID string) (int64, bool, error) {
	if r.lookup == nil || messageID == "" {
		return 0, false, nil
	}
	id, ok, err := r.lookup.ThreadIDForMessage(ctx, messageID)
	if err != nil {
		return 0, false, fmt.Errorf("lookup thread for %s: %w", messageID, err)
	}
	return id, ok, nil
}

// Reference returns the Message-ID m replies to: In-Reply-To when present,
// otherwise the last entry of References. Empty for a new conversation.
func Reference(m *models.Message) string {
	if refs := Candidates(m); len(refs) > 0 {
		return refs[0]
	}
	return ""
}

// Candidates lists the Message-IDs m refers to, nearest first: In-Reply-To,
// then References from last to first, without duplicates.
func Candidates(m *models.Message) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		id = strings.Trim(strings.TrimSpace(id), "<>")
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	add(m.InReplyTo)
	for i := len(m.References) - 1; i >= 0; i-- {
		add(m.References[i])
	}
	return out
}

// ForReference hashes a referenced Message-ID into [0, 10^9).
func ForReference(ref string) int64 {
	return mod(strings.Trim(strings.TrimSpace(ref), "<>"), referenceSpace)
}

// ForNewMessage synthesizes the id of a conversation started by messageID.
func ForNewMessage(messageID, sender string) int64 {
	return mod(messageID, referenceSpace)*senderSpace + mod(strings.ToLower(sender), senderSpace)
}

// mod reduces the full 128-bit MD5 digest of s modulo n.
func mod(s string, n int64) int64 {
	sum := md5.Sum([]byte(s))
	v := new(big.Int).SetBytes(sum[:])
	return v.Mod(v, big.NewInt(n)).Int64()
}
