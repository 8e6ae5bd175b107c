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

// Package pipeline runs inbound HR mail through normalisation, threading,
// classification, escalation and response, one message at a time.
//
// Each message goes through two short store transactions. The first inserts
// the NOT_RESPONDED record if it is new. The second, taken only after any
// reply has been sent, re-reads the record under lock and commits the
// classification together with the final status. A failure anywhere before
// the second commit leaves the record NOT_RESPONDED so the next run retries
// it; a reply whose commit fails may therefore be sent twice.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bcem/hrdesk/internal/classify"
	"github.com/bcem/hrdesk/internal/escalation"
	"github.com/bcem/hrdesk/internal/mailbox"
	"github.com/bcem/hrdesk/internal/metrics"
	"github.com/bcem/hrdesk/internal/models"
	"github.com/bcem/hrdesk/internal/normalize"
	"github.com/bcem/hrdesk/internal/queue"
	"github.com/bcem/hrdesk/internal/respond"
	"github.com/bcem/hrdesk/internal/store"
	"github.com/bcem/hrdesk/internal/thread"
)

// DefaultBatchSize bounds how many unseen messages one run lists.
const DefaultBatchSize = 50

// ReasonMissingSender is recorded when a confident message has no address
// to reply to.
const ReasonMissingSender = "No sender address to reply to"

// errSettled aborts the final transaction when another writer got there first.
var errSettled = errors.New("record already settled")

// Claimer keeps two overlapping runs from working on the same message.
type Claimer interface {
	Claim(ctx context.Context, messageID string) (bool, error)
	Release(ctx context.Context, messageID string) error
}

// Notifier announces new escalations to human reviewers.
type Notifier interface {
	PublishEscalation(ctx context.Context, event *queue.EscalationEvent) error
}

// Deps are the collaborators of an Orchestrator. Claims and Notifier are
// optional. A nil Policy uses escalation.DefaultThreshold.
type Deps struct {
	Source     mailbox.Source
	Sink       mailbox.Sink
	Store      store.Store
	Classifier *classify.Gateway
	Policy     *escalation.Policy
	Generator  *respond.Generator
	Claims     Claimer
	Notifier   Notifier
	BatchSize  int
}

// DryRun returns d rewired so a run has no lasting effect: records go to a
// fresh in-memory store, replies are logged, source messages stay unread,
// and no claims or escalation events reach Redis.
func DryRun(d Deps) Deps {
	d.Store = store.NewMemory()
	d.Sink = mailbox.LogSink{}
	if d.Source != nil {
		d.Source = mailbox.ReadOnly{Source: d.Source}
	}
	d.Claims = nil
	d.Notifier = nil
	return d
}

// Orchestrator processes mail batches.
type Orchestrator struct {
	source    mailbox.Source
	sink      mailbox.Sink
	store     store.Store
	resolver  *thread.Resolver
	gateway   *classify.Gateway
	policy    escalation.Policy
	generator *respond.Generator
	claims    Claimer
	notifier  Notifier
	batchSize int
	now       func() time.Time
}

// New builds an Orchestrator. Source, Sink, Store, Classifier and Generator
// are required.
func New(d Deps) (*Orchestrator, error) {
	switch {
	case d.Source == nil:
		return nil, errors.New("pipeline: mail source is required")
	case d.Sink == nil:
		return nil, errors.New("pipeline: mail sink is required")
	case d.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case d.Classifier == nil:
		return nil, errors.New("pipeline: classifier is required")
	case d.Generator == nil:
		return nil, errors.New("pipeline: generator is required")
	}

	policy := escalation.Policy{Threshold: escalation.DefaultThreshold}
	if d.Policy != nil {
		policy = *d.Policy
	}

	batch := d.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	return &Orchestrator{
		source:    d.Source,
		sink:      d.Sink,
		store:     d.Store,
		resolver:  thread.NewResolver(d.Store),
		gateway:   d.Classifier,
		policy:    policy,
		generator: d.Generator,
		claims:    d.Claims,
		notifier:  d.Notifier,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

// RunBatch lists up to the batch size of unseen messages and processes them
// sequentially. It returns an error only when the store or the mail source
// cannot be reached at all; per-message failures are reported in the result.
// Cancelling ctx stops the batch between messages.
func (o *Orchestrator) RunBatch(ctx context.Context) (BatchResult, error) {
	start := o.now()
	defer func() { metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()

	if err := o.store.Ping(ctx); err != nil {
		return BatchResult{}, fmt.Errorf("store unavailable: %w", err)
	}

	ids, err := o.source.ListUnseen(ctx, o.batchSize)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list unseen mail: %w", err)
	}

	result := BatchResult{Listed: len(ids)}
	if len(ids) == 0 {
		slog.Debug("no unseen messages")
		return result, nil
	}

	slog.Info("processing batch", "count", len(ids))

	for _, id := range ids {
		if ctx.Err() != nil {
			slog.Info("batch interrupted", "processed", len(result.Outcomes), "listed", len(ids))
			break
		}

		out := o.processSource(ctx, id)
		result.Outcomes = append(result.Outcomes, out)
		record(out)
	}

	slog.Info("batch complete",
		"listed", result.Listed,
		"responded", result.Count(ResultResponded),
		"escalated", result.Count(ResultEscalated),
		"human_queued", result.Count(ResultHumanQueued),
		"duplicates", result.Count(ResultDuplicate),
		"failed", result.Count(ResultFailed),
	)

	return result, nil
}

// processSource fetches one message, processes it and marks it consumed
// once its outcome is committed.
func (o *Orchestrator) processSource(ctx context.Context, sourceID string) Outcome {
	raw, err := o.source.Fetch(ctx, sourceID)
	if err != nil {
		out := failure(Outcome{SourceID: sourceID}, FailureTransport, err)
		logOutcome(out)
		return out
	}

	out := o.Process(ctx, raw)
	logOutcome(out)

	if out.Consumed() {
		if err := o.source.MarkConsumed(ctx, sourceID); err != nil {
			// The record is settled, so the next run only sees a duplicate.
			slog.Warn("failed to mark message consumed",
				"source_id", sourceID,
				"message_id", out.MessageID,
				"error", err,
			)
		}
	}

	return out
}

// Process runs one raw message through the pipeline. It never panics on bad
// input and never returns a half-committed state.
func (o *Orchestrator) Process(ctx context.Context, raw *models.RawMessage) Outcome {
	msg := normalize.Parse(raw, o.now)
	out := Outcome{SourceID: raw.SourceID, MessageID: msg.MessageID}

	if o.claims != nil {
		claimed, err := o.claims.Claim(ctx, msg.MessageID)
		switch {
		case err != nil:
			// The store's unique message id still prevents duplicate records.
			slog.Warn("claim unavailable, processing without it", "message_id", msg.MessageID, "error", err)
		case !claimed:
			out.Result = ResultClaimed
			return out
		default:
			defer func() {
				if out.Retryable() {
					if err := o.claims.Release(context.WithoutCancel(ctx), msg.MessageID); err != nil {
						slog.Warn("failed to release claim", "message_id", msg.MessageID, "error", err)
					}
				}
			}()
		}
	}

	out = o.process(ctx, msg, out)
	return out
}

func (o *Orchestrator) process(ctx context.Context, msg *models.Message, out Outcome) Outcome {
	threadID, err := o.resolver.Resolve(ctx, msg)
	if err != nil {
		return failure(out, FailurePersistence, err)
	}
	msg.ThreadID = threadID
	out.ThreadID = threadID

	id, created, err := o.store.Insert(ctx, models.NewRecord(msg))
	if err != nil {
		return failure(out, FailurePersistence, fmt.Errorf("insert record: %w", err))
	}
	out.EmailID = id

	if !created {
		rec, err := o.store.Get(ctx, id)
		if err != nil {
			return failure(out, FailurePersistence, fmt.Errorf("load record %d: %w", id, err))
		}
		if rec.Settled() {
			out.Result = ResultDuplicate
			return out
		}
		// An earlier run stored it but never committed an outcome.
		out.ThreadID = rec.ThreadID
		msg.ThreadID = rec.ThreadID
	}

	cls := o.gateway.Classify(ctx, msg.Subject, msg.Body)
	if cls.OK() {
		metrics.ClassificationConfidence.Observe(cls.Confidence)
	} else {
		metrics.ClassificationErrors.WithLabelValues(string(cls.Err.Kind)).Inc()
		out.Kind = FailureModel
		out.Err = cls.Err
	}

	decision := o.policy.DecideTopic(cls.Topic, cls.Confidence)
	if !cls.OK() {
		// No usable classification, so no threshold may let it through.
		decision = escalation.BelowThreshold(cls.Confidence)
	}
	if !decision.Escalated() && msg.Sender == "" {
		decision = escalation.Decision{Action: escalation.Escalate, Reason: ReasonMissingSender}
		out.Kind = FailureData
		out.Err = errors.New("message has no sender address")
	}

	if decision.Escalated() {
		return o.escalate(ctx, msg, cls, decision, out)
	}
	return o.respond(ctx, msg, cls, out)
}

// escalate commits the classification and the escalation together.
func (o *Orchestrator) escalate(ctx context.Context, msg *models.Message, cls classify.Classification, d escalation.Decision, out Outcome) Outcome {
	status := models.StatusEscalated
	out.Result = ResultEscalated
	if cls.Topic == models.TopicHumanIntervention {
		// Queued for a human; the record stays open until they reply.
		status = models.StatusNotResponded
		out.Result = ResultHumanQueued
	}

	now := o.now()
	var created bool
	err := o.store.InTx(ctx, func(tx store.Tx) error {
		if err := lockOpen(ctx, tx, out.EmailID); err != nil {
			return err
		}
		if err := tx.SaveClassification(ctx, out.EmailID, cls.Topic, cls.Confidence); err != nil {
			return err
		}
		if err := tx.MarkEscalated(ctx, out.EmailID, status); err != nil {
			return err
		}
		var err error
		created, err = tx.AddEscalation(ctx, models.Escalation{
			EmailID:   out.EmailID,
			Reason:    d.Reason,
			CreatedAt: now,
		})
		return err
	})
	if errors.Is(err, errSettled) {
		out.Result = ResultDuplicate
		return out
	}
	if err != nil {
		return failure(out, FailurePersistence, fmt.Errorf("commit escalation: %w", err))
	}

	slog.Info("message escalated",
		"email_id", out.EmailID,
		"message_id", msg.MessageID,
		"topic", cls.Topic,
		"confidence", cls.Confidence,
		"reason", d.Reason,
	)

	if created && o.notifier != nil {
		event := &queue.EscalationEvent{
			EmailID:    out.EmailID,
			MessageID:  msg.MessageID,
			ThreadID:   out.ThreadID,
			Sender:     msg.Sender,
			Subject:    msg.Subject,
			Topic:      cls.Topic,
			Confidence: cls.Confidence,
			Reason:     d.Reason,
			CreatedAt:  now,
		}
		if err := o.notifier.PublishEscalation(ctx, event); err != nil {
			slog.Warn("failed to publish escalation", "email_id", out.EmailID, "error", err)
		}
	}

	return out
}

// respond generates and sends a reply, then commits RESPONDED. Nothing is
// written when sending fails.
func (o *Orchestrator) respond(ctx context.Context, msg *models.Message, cls classify.Classification, out Outcome) Outcome {
	history, err := o.store.ThreadHistory(ctx, msg.ThreadID)
	if err != nil {
		return failure(out, FailurePersistence, fmt.Errorf("load thread %d: %w", msg.ThreadID, err))
	}

	reply := o.generator.Generate(ctx, history, respond.Current{
		Sender:     msg.Sender,
		Subject:    msg.Subject,
		Topic:      cls.Topic,
		Confidence: cls.Confidence,
	})
	metrics.RepliesGenerated.WithLabelValues(strconv.FormatBool(reply.Fallback)).Inc()

	err = o.sink.Send(ctx, &mailbox.Outgoing{
		To:         msg.Sender,
		Subject:    respond.ReplySubject(msg.Subject),
		Body:       reply.Body,
		InReplyTo:  msg.MessageID,
		References: append(append([]string(nil), msg.References...), msg.MessageID),
	})
	if err != nil {
		return failure(out, FailureTransport, fmt.Errorf("send reply: %w", err))
	}

	err = o.store.InTx(ctx, func(tx store.Tx) error {
		if err := lockOpen(ctx, tx, out.EmailID); err != nil {
			return err
		}
		if err := tx.SaveClassification(ctx, out.EmailID, cls.Topic, cls.Confidence); err != nil {
			return err
		}
		return tx.MarkResponded(ctx, out.EmailID, reply.Body, o.now())
	})
	if errors.Is(err, errSettled) {
		slog.Warn("record settled while replying, reply already sent", "email_id", out.EmailID)
		out.Result = ResultDuplicate
		return out
	}
	if err != nil {
		return failure(out, FailurePersistence, fmt.Errorf("commit reply: %w", err))
	}

	slog.Info("message answered",
		"email_id", out.EmailID,
		"message_id", msg.MessageID,
		"thread_id", msg.ThreadID,
		"topic", cls.Topic,
		"confidence", cls.Confidence,
		"fallback", reply.Fallback,
	)

	out.Result = ResultResponded
	return out
}

// lockOpen locks the record and fails with errSettled if it is no longer open.
func lockOpen(ctx context.Context, tx store.Tx, id int64) error {
	rec, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if rec.Settled() {
		return errSettled
	}
	return nil
}

func record(out Outcome) {
	metrics.MessagesProcessed.WithLabelValues(string(out.Result)).Inc()
	if out.Kind != "" {
		metrics.Failures.WithLabelValues(string(out.Kind)).Inc()
	}
}

func logOutcome(out Outcome) {
	if !out.Failed() {
		return
	}
	slog.Error("message processing failed",
		"source_id", out.SourceID,
		"message_id", out.MessageID,
		"email_id", out.EmailID,
		"kind", out.Kind,
		"retryable", out.Retryable(),
		"error", out.Err,
	)
}
