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
	"sort"
	"sync"
	"time"

	"github.com/bcem/hrdesk/internal/models"
)

// Memory is an in-process Store. Transactions work on a copy of the data
// and are swapped in on commit, so a failed transaction leaves no trace.
type Memory struct {
	mu   sync.Mutex
	data memData
}

type memData struct {
	nextID      int64
	records     map[int64]models.EmailRecord
	byMessageID map[string]int64
	escalations map[int64]models.Escalation
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: memData{
		records:     make(map[int64]models.EmailRecord),
		byMessageID: make(map[string]int64),
		escalations: make(map[int64]models.Escalation),
	}}
}

func (d memData) clone() memData {
	c := memData{
		nextID:      d.nextID,
		records:     make(map[int64]models.EmailRecord, len(d.records)),
		byMessageID: make(map[string]int64, len(d.byMessageID)),
		escalations: make(map[int64]models.Escalation, len(d.escalations)),
	}
	for k, v := range d.records {
		c.records[k] = v
	}
	for k, v := range d.byMessageID {
		c.byMessageID[k] = v
	}
	for k, v := range d.escalations {
		c.escalations[k] = v
	}
	return c
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error { return nil }

// Insert implements Store.
func (m *Memory) Insert(_ context.Context, rec *models.EmailRecord) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.data.byMessageID[rec.MessageID]; ok {
		return id, false, nil
	}

	m.data.nextID++
	r := copyRecord(*rec)
	r.ID = m.data.nextID
	if r.Status == "" {
		r.Status = models.StatusNotResponded
	}
	m.data.records[r.ID] = r
	m.data.byMessageID[r.MessageID] = r.ID
	return r.ID, true, nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, id int64) (*models.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.get(id)
}

func (d memData) get(id int64) (*models.EmailRecord, error) {
	r, ok := d.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := copyRecord(r)
	return &c, nil
}

// GetByMessageID implements Store.
func (m *Memory) GetByMessageID(_ context.Context, messageID string) (*models.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.data.byMessageID[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.data.get(id)
}

// ThreadIDForMessage implements Store.
func (m *Memory) ThreadIDForMessage(_ context.Context, messageID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.data.byMessageID[messageID]
	if !ok {
		return 0, false, nil
	}
	return m.data.records[id].ThreadID, true, nil
}

// ThreadHistory implements Store.
func (m *Memory) ThreadHistory(_ context.Context, threadID int64) ([]models.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.EmailRecord
	for _, r := range m.data.records {
		if r.ThreadID == threadID {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListEscalated implements Store.
func (m *Memory) ListEscalated(context.Context) ([]Escalated, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Escalated
	for id, esc := range m.data.escalations {
		r := m.data.records[id]
		if !r.Escalated || r.Status == models.StatusResponded {
			continue
		}
		out = append(out, Escalated{EmailRecord: copyRecord(r), Reason: esc.Reason, EscalatedAt: esc.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EscalatedAt.Equal(out[j].EscalatedAt) {
			return out[i].EscalatedAt.Before(out[j].EscalatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Escalation returns the escalation recorded for an email.
func (m *Memory) Escalation(emailID int64) (models.Escalation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data.escalations[emailID]
	return e, ok
}

// Count returns the number of stored records.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.records)
}

// InTx implements Store. Transactions are serialised; fn must only use tx,
// never m itself.
func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{data: m.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data = tx.data
	return nil
}

type memTx struct {
	data memData
}

func (t *memTx) GetForUpdate(_ context.Context, id int64) (*models.EmailRecord, error) {
	return t.data.get(id)
}

func (t *memTx) update(id int64, fn func(r *models.EmailRecord)) error {
	r, ok := t.data.records[id]
	if !ok {
		return ErrNotFound
	}
	fn(&r)
	t.data.records[id] = r
	return nil
}

func (t *memTx) SaveClassification(_ context.Context, id int64, topic models.Topic, confidence float64) error {
	return t.update(id, func(r *models.EmailRecord) {
		if topic == "" {
			r.ClassifiedCategory = nil
		} else {
			r.ClassifiedCategory = &topic
		}
		r.ClassificationConfidence = &confidence
	})
}

func (t *memTx) UpdateCategory(_ context.Context, id int64, topic models.Topic) error {
	return t.update(id, func(r *models.EmailRecord) {
		r.ClassifiedCategory = &topic
	})
}

func (t *memTx) MarkResponded(_ context.Context, id int64, body string, at time.Time) error {
	return t.update(id, func(r *models.EmailRecord) {
		r.Status = models.StatusResponded
		r.ResponseBody = &body
		r.RespondedAt = &at
	})
}

func (t *memTx) MarkEscalated(_ context.Context, id int64, status models.Status) error {
	return t.update(id, func(r *models.EmailRecord) {
		r.Escalated = true
		r.Status = status
	})
}

func (t *memTx) AddEscalation(_ context.Context, esc models.Escalation) (bool, error) {
	if _, ok := t.data.records[esc.EmailID]; !ok {
		return false, ErrNotFound
	}
	if _, dup := t.data.escalations[esc.EmailID]; dup {
		return false, nil
	}
	t.data.escalations[esc.EmailID] = esc
	return true, nil
}

// copyRecord detaches the pointer fields so callers cannot mutate stored state.
func copyRecord(r models.EmailRecord) models.EmailRecord {
	if r.ClassifiedCategory != nil {
		c := *r.ClassifiedCategory
		r.ClassifiedCategory = &c
	}
	if r.ClassificationConfidence != nil {
		c := *r.ClassificationConfidence
		r.ClassificationConfidence = &c
	}
	if r.ResponseBody != nil {
		b := *r.ResponseBody
		r.ResponseBody = &b
	}
	if r.RespondedAt != nil {
		at := *r.RespondedAt
		r.RespondedAt = &at
	}
	return r
}
