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

// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrdesk_messages_processed_total",
			Help: "Messages processed by outcome",
		},
		[]string{"outcome"}, // responded, escalated, human_queued, duplicate, claimed, failed
	)

	Failures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrdesk_failures_total",
			Help: "Per-message failures by kind",
		},
		[]string{"kind"}, // transport, model, persistence, data
	)

	ClassificationConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hrdesk_classification_confidence",
			Help:    "Top classifier score per message",
			Buckets: []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, 1},
		},
	)

	ClassificationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrdesk_classification_errors_total",
			Help: "Classifier failures by kind",
		},
		[]string{"kind"},
	)

	RepliesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrdesk_replies_generated_total",
			Help: "Replies generated, split by whether the template fallback was used",
		},
		[]string{"fallback"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hrdesk_batch_duration_seconds",
			Help:    "Wall time of one pipeline batch",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// Admin HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrdesk_http_requests_total",
			Help: "Total admin HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hrdesk_http_request_duration_seconds",
			Help:    "Admin HTTP request duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)
)
