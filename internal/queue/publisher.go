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

// Package queue publishes escalation and feedback events to Redis as
// Celery-compatible tasks, so the Python review and retraining workers can
// consume them with `celery worker -Q <queue>`.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/hrdesk/internal/models"
)

const (
	taskReviewEscalation = "hrdesk.tasks.review_escalation"
	taskLearnFeedback    = "hrdesk.tasks.learn_feedback"
)

// EscalationEvent announces that an email was handed to a human.
type EscalationEvent struct {
	EmailID    int64        `json:"email_id"`
	MessageID  string       `json:"message_id"`
	ThreadID   int64        `json:"thread_id"`
	Sender     string       `json:"sender_email"`
	Subject    string       `json:"subject"`
	Topic      models.Topic `json:"classified_category"`
	Confidence float64      `json:"classification_confidence"`
	Reason     string       `json:"reason"`
	CreatedAt  time.Time    `json:"created_at"`
}

// FeedbackEvent carries a human category correction marked for learning.
type FeedbackEvent struct {
	EmailID       int64        `json:"email_id"`
	Subject       string       `json:"subject"`
	Body          string       `json:"body"`
	PreviousTopic models.Topic `json:"previous_category"`
	Topic         models.Topic `json:"updated_category"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Publisher sends events to Redis in Celery task format.
type Publisher struct {
	rdb             *redis.Client
	escalationQueue string
	feedbackQueue   string
}

// NewPublisher creates a publisher targeting the two queues.
func NewPublisher(rdb *redis.Client, escalationQueue, feedbackQueue string) *Publisher {
	return &Publisher{
		rdb:             rdb,
		escalationQueue: escalationQueue,
		feedbackQueue:   feedbackQueue,
	}
}

// celeryTask represents a Celery-compatible task message.
type celeryTask struct {
	ID      string        `json:"id"`
	Task    string        `json:"task"`
	Args    []interface{} `json:"args"`
	Kwargs  interface{}   `json:"kwargs"`
	Retries int           `json:"retries"`
	ETA     *string       `json:"eta"`
}

// celeryMessage wraps a task for Redis transport.
type celeryMessage struct {
	Body            string                 `json:"body"`
	ContentEncoding string                 `json:"content-encoding"`
	ContentType     string                 `json:"content-type"`
	Headers         map[string]interface{} `json:"headers"`
	Properties      map[string]interface{} `json:"properties"`
}

// PublishEscalation queues an escalation for human review.
func (p *Publisher) PublishEscalation(ctx context.Context, event *EscalationEvent) error {
	taskID, err := p.publish(ctx, p.escalationQueue, taskReviewEscalation, event)
	if err != nil {
		return err
	}
	slog.Info("published escalation",
		"task_id", taskID,
		"email_id", event.EmailID,
		"reason", event.Reason,
		"queue", p.escalationQueue,
	)
	return nil
}

// PublishFeedback queues a category correction for the retraining worker.
func (p *Publisher) PublishFeedback(ctx context.Context, event *FeedbackEvent) error {
	taskID, err := p.publish(ctx, p.feedbackQueue, taskLearnFeedback, event)
	if err != nil {
		return err
	}
	slog.Info("published feedback",
		"task_id", taskID,
		"email_id", event.EmailID,
		"category", event.Topic,
		"queue", p.feedbackQueue,
	)
	return nil
}

func (p *Publisher) publish(ctx context.Context, queueName, taskName string, event interface{}) (string, error) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	taskID := uuid.New().String()

	taskBody, err := json.Marshal(celeryTask{
		ID:     taskID,
		Task:   taskName,
		Args:   []interface{}{string(eventJSON)},
		Kwargs: map[string]interface{}{},
	})
	if err != nil {
		return "", fmt.Errorf("marshal celery task: %w", err)
	}

	msgJSON, err := json.Marshal(celeryMessage{
		Body:            string(taskBody),
		ContentEncoding: "utf-8",
		ContentType:     "application/json",
		Headers: map[string]interface{}{
			"lang":    "py",
			"task":    taskName,
			"id":      taskID,
			"retries": 0,
		},
		Properties: map[string]interface{}{
			"correlation_id": taskID,
			"delivery_mode":  2,
			"delivery_tag":   taskID,
			"body_encoding":  "utf-8",
			"delivery_info": map[string]string{
				"exchange":    queueName,
				"routing_key": queueName,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal celery message: %w", err)
	}

	if err := p.rdb.LPush(ctx, queueName, string(msgJSON)).Err(); err != nil {
		return "", fmt.Errorf("redis LPUSH: %w", err)
	}
	return taskID, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
