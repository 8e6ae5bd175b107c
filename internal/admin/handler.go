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

// Package admin serves the HTTP API HR staff use to work the escalation
// queue: list escalated mail, correct categories and send human replies.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/bcem/hrdesk/internal/classify"
	"github.com/bcem/hrdesk/internal/mailbox"
	"github.com/bcem/hrdesk/internal/models"
	"github.com/bcem/hrdesk/internal/queue"
	"github.com/bcem/hrdesk/internal/respond"
	"github.com/bcem/hrdesk/internal/store"
)

const maxBodyBytes = 64 << 10

// FeedbackPublisher queues category corrections for retraining.
type FeedbackPublisher interface {
	PublishFeedback(ctx context.Context, event *queue.FeedbackEvent) error
}

// Pinger is a dependency probed by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the handler's collaborators. Feedback and Checks are optional.
type Deps struct {
	Store    store.Store
	Sink     mailbox.Sink
	Catalog  *classify.Catalog
	Feedback FeedbackPublisher
	// Checks are extra health probes keyed by name, e.g. "redis".
	Checks map[string]Pinger
}

// Handler implements the admin endpoints.
type Handler struct {
	store    store.Store
	sink     mailbox.Sink
	catalog  *classify.Catalog
	feedback FeedbackPublisher
	checks   map[string]Pinger
	now      func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	checks := map[string]Pinger{"postgres": d.Store}
	for name, p := range d.Checks {
		checks[name] = p
	}
	return &Handler{
		store:    d.Store,
		sink:     d.Sink,
		catalog:  d.Catalog,
		feedback: d.Feedback,
		checks:   checks,
		now:      time.Now,
	}
}

// UpdateRequest is the body of POST /api/update_email.
type UpdateRequest struct {
	EmailID         int64  `json:"email_id"`
	UpdatedCategory string `json:"updated_category"`
	Response        string `json:"response"`
	Learn           bool   `json:"learn"`
}

// UpdateResponse reports what an update changed.
type UpdateResponse struct {
	Email          *models.EmailRecord `json:"email"`
	Sent           bool                `json:"sent"`
	FeedbackQueued bool                `json:"feedback_queued"`
}

// Check is the status of one health probe.
type Check struct {
	Status  string `json:"status"` // "pass" or "fail"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

var errAlreadyResponded = errors.New("email already has a response")

// Health probes every dependency.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check, len(h.checks))
	healthy := true
	for name, p := range h.checks {
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			checks[name] = Check{Status: "fail", Message: "connection failed"}
			healthy = false
			continue
		}
		checks[name] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	resp := HealthResponse{Status: "healthy", Checks: checks, Timestamp: h.now().UTC().Format(time.RFC3339)}
	code := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// ListEscalations returns escalated mail nobody has answered yet.
func (h *Handler) ListEscalations(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListEscalated(r.Context())
	if err != nil {
		slog.Error("failed to list escalations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list escalations")
		return
	}
	if items == nil {
		items = []store.Escalated{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"escalations": items,
		"count":       len(items),
	})
}

// GetEmail returns one record.
func (h *Handler) GetEmail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid email id")
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "email not found")
		return
	}
	if err != nil {
		slog.Error("failed to load email", "email_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load email")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateEmail applies a human decision: a category correction, a reply, or
// both. A reply is sent before anything is written, so a failed send leaves
// the record as it was.
func (h *Handler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.UpdatedCategory = strings.TrimSpace(req.UpdatedCategory)
	req.Response = strings.TrimSpace(req.Response)
	topic := models.Topic(req.UpdatedCategory)

	switch {
	case req.EmailID <= 0:
		writeError(w, http.StatusBadRequest, "email_id is required")
		return
	case topic == "" && req.Response == "":
		writeError(w, http.StatusBadRequest, "nothing to update: set updated_category or response")
		return
	case topic != "" && !h.catalog.Has(topic):
		writeError(w, http.StatusBadRequest, "unknown category: "+req.UpdatedCategory)
		return
	}

	ctx := r.Context()
	rec, err := h.store.Get(ctx, req.EmailID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "email not found")
		return
	}
	if err != nil {
		slog.Error("failed to load email", "email_id", req.EmailID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load email")
		return
	}

	resp := UpdateResponse{}
	if req.Response != "" {
		if rec.Status == models.StatusResponded {
			writeError(w, http.StatusConflict, errAlreadyResponded.Error())
			return
		}
		if rec.Sender == "" {
			writeError(w, http.StatusUnprocessableEntity, "record has no sender address")
			return
		}
		err := h.sink.Send(ctx, &mailbox.Outgoing{
			To:         rec.Sender,
			Subject:    respond.ReplySubject(rec.Subject),
			Body:       req.Response,
			InReplyTo:  rec.MessageID,
			References: []string{rec.MessageID},
		})
		if err != nil {
			slog.Error("failed to send human reply", "email_id", rec.ID, "error", err)
			writeError(w, http.StatusBadGateway, "failed to send reply")
			return
		}
		resp.Sent = true
	}

	err = h.store.InTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetForUpdate(ctx, rec.ID)
		if err != nil {
			return err
		}
		if topic != "" {
			if err := tx.UpdateCategory(ctx, rec.ID, topic); err != nil {
				return err
			}
		}
		if req.Response != "" {
			if cur.Status == models.StatusResponded {
				return errAlreadyResponded
			}
			return tx.MarkResponded(ctx, rec.ID, req.Response, h.now())
		}
		return nil
	})
	if errors.Is(err, errAlreadyResponded) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to update email", "email_id", rec.ID, "sent", resp.Sent, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update email")
		return
	}

	slog.Info("email updated by reviewer",
		"email_id", rec.ID,
		"category", topic,
		"previous_category", rec.Category(),
		"replied", resp.Sent,
	)

	if req.Learn && topic != "" && h.feedback != nil {
		event := &queue.FeedbackEvent{
			EmailID:       rec.ID,
			Subject:       rec.Subject,
			Body:          rec.Body,
			PreviousTopic: rec.Category(),
			Topic:         topic,
			CreatedAt:     h.now(),
		}
		if err := h.feedback.PublishFeedback(ctx, event); err != nil {
			slog.Warn("failed to queue feedback", "email_id", rec.ID, "error", err)
		} else {
			resp.FeedbackQueued = true
		}
	}

	resp.Email, err = h.store.Get(ctx, rec.ID)
	if err != nil {
		slog.Error("failed to reload email", "email_id", rec.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load email")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
