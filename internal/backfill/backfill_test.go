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
package backfill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bcem/hrdesk/internal/models"
	"github.com/bcem/hrdesk/internal/store"
)

// --- Mock lister ---

// mockLister serves ids newest first in pages of pageLen.
type mockLister struct {
	mu       sync.Mutex
	ids      []string
	raw      map[string]string
	pageLen  int
	fetchErr map[string]error
	listErr  error
	queries  []string
	fetched  []string
}

func newMockLister(pageLen int) *mockLister {
	return &mockLister{raw: make(map[string]string), fetchErr: make(map[string]error), pageLen: pageLen}
}

// add appends an older message to the end of the newest-first listing.
func (m *mockLister) add(id, raw string) {
	m.ids = append(m.ids, id)
	m.raw[id] = raw
}

func (m *mockLister) ListPage(_ context.Context, query, token string, _ int) ([]string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if m.listErr != nil {
		return nil, "", m.listErr
	}

	start, _ := strconv.Atoi(token)
	end := start + m.pageLen
	if end >= len(m.ids) {
		return append([]string(nil), m.ids[start:]...), "", nil
	}
	return append([]string(nil), m.ids[start:end]...), strconv.Itoa(end), nil
}

func (m *mockLister) Fetch(_ context.Context, id string) (*models.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, id)
	if err := m.fetchErr[id]; err != nil {
		return nil, err
	}
	return &models.RawMessage{SourceID: id, Data: []byte(m.raw[id])}, nil
}

// --- Test helpers ---

func rawMail(messageID, inReplyTo, subject string) string {
	lines := []string{
		"From: jane@corp.com",
		"To: hr@corp.com",
		"Subject: " + subject,
		"Date: Mon, 3 Mar 2025 10:15:00 +0000",
		"Message-ID: <" + messageID + ">",
	}
	if inReplyTo != "" {
		lines = append(lines, "In-Reply-To: <"+inReplyTo+">")
	}
	lines = append(lines, "", "Body of "+subject)
	return strings.Join(lines, "\r\n")
}

func newTestRunner(l Lister, s store.Store) *Runner {
	r := NewRunner(RunnerConfig{Lister: l, Store: s, PageDelay: time.Millisecond})
	r.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return r
}

// TestRun_ImportsOldestFirst verifies a reply listed before its parent still
// lands in the parent's thread.
func TestRun_ImportsOldestFirst(t *testing.T) {
	l := newMockLister(10)
	l.add("src-2", rawMail("reply@corp.com", "orig@corp.com", "Re: Leave"))
	l.add("src-1", rawMail("orig@corp.com", "", "Leave"))
	mem := store.NewMemory()

	res, err := newTestRunner(l, mem).Run(context.Background(), Request{Since: time.Hour})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Imported != 2 || res.Errors != 0 || res.Listed != 2 {
		t.Fatalf("result = %+v, want 2 imported", res)
	}
	if l.fetched[0] != "src-1" {
		t.Errorf("fetch order = %v, want oldest first", l.fetched)
	}

	orig, err := mem.GetByMessageID(context.Background(), "orig@corp.com")
	if err != nil {
		t.Fatalf("GetByMessageID orig: %v", err)
	}
	reply, err := mem.GetByMessageID(context.Background(), "reply@corp.com")
	if err != nil {
		t.Fatalf("GetByMessageID reply: %v", err)
	}
	if orig.ThreadID != reply.ThreadID {
		t.Errorf("thread ids = %d / %d, want equal", orig.ThreadID, reply.ThreadID)
	}
	if reply.Status != models.StatusNotResponded || reply.ClassifiedCategory != nil {
		t.Errorf("reply = %+v, want unclassified NOT_RESPONDED", reply)
	}
}

func TestRun_SkipsKnownMessages(t *testing.T) {
	l := newMockLister(10)
	l.add("src-1", rawMail("orig@corp.com", "", "Leave"))
	mem := store.NewMemory()
	r := newTestRunner(l, mem)

	if _, err := r.Run(context.Background(), Request{Since: time.Hour}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	res, err := r.Run(context.Background(), Request{Since: time.Hour})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Imported != 0 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 1 skipped", res)
	}
	if mem.Count() != 1 {
		t.Errorf("records = %d, want 1", mem.Count())
	}
}

func TestRun_FetchErrorContinues(t *testing.T) {
	l := newMockLister(10)
	l.add("src-3", rawMail("c@corp.com", "", "Payslip"))
	l.add("src-2", rawMail("b@corp.com", "", "Benefits"))
	l.add("src-1", rawMail("a@corp.com", "", "Leave"))
	l.fetchErr["src-2"] = errors.New("gmail: 500")

	res, err := newTestRunner(l, store.NewMemory()).Run(context.Background(), Request{Since: time.Hour})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Imported != 2 || res.Errors != 1 {
		t.Errorf("result = %+v, want 2 imported 1 error", res)
	}
}

func TestRun_Paginates(t *testing.T) {
	l := newMockLister(2)
	for i := 5; i > 0; i-- {
		id := fmt.Sprintf("src-%d", i)
		l.add(id, rawMail(fmt.Sprintf("m%d@corp.com", i), "", "Subject "+id))
	}

	res, err := newTestRunner(l, store.NewMemory()).Run(context.Background(), Request{Since: time.Hour})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Pages != 3 || res.Listed != 5 || res.Imported != 5 {
		t.Errorf("result = %+v, want 3 pages 5 imported", res)
	}
}

func TestRun_ListErrorAborts(t *testing.T) {
	l := newMockLister(10)
	l.listErr = errors.New("quota exceeded")

	_, err := newTestRunner(l, store.NewMemory()).Run(context.Background(), Request{Since: time.Hour})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v, want list error", err)
	}
}

func TestQuery(t *testing.T) {
	r := newTestRunner(newMockLister(1), store.NewMemory())

	if got, want := r.Query(Request{Since: time.Hour}), "in:inbox -is:unread after:1699996400"; got != want {
		t.Errorf("Query = %q, want %q", got, want)
	}
	if got, want := r.Query(Request{Since: time.Hour, Query: "from:corp.com"}), "in:inbox -is:unread after:1699996400 from:corp.com"; got != want {
		t.Errorf("Query = %q, want %q", got, want)
	}
}
