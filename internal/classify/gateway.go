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

package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/bcem/hrdesk/internal/models"
)

// Capability is the external zero-shot classifier. Labels and scores are
// rank-ordered and of equal length; the first entry is the top prediction.
type Capability interface {
	Classify(ctx context.Context, text string, candidates []string) (labels []string, scores []float64, err error)
}

// ErrMalformedOutput is wrapped by capabilities whose response could not be
// decoded.
var ErrMalformedOutput = errors.New("malformed classifier output")

// ErrorKind tells the caller why classification failed.
type ErrorKind string

const (
	KindUnavailable  ErrorKind = "unavailable"
	KindMalformed    ErrorKind = "malformed"
	KindUnknownLabel ErrorKind = "unknown_label"
)

// Error is the typed failure carried by a Classification.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("classify %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classification is the gateway's result. On failure Topic is empty,
// Confidence is 0 and Err says why.
type Classification struct {
	Topic      models.Topic
	Confidence float64
	Err        *Error
}

// OK reports whether classification succeeded.
func (c Classification) OK() bool { return c.Err == nil }

// Gateway wraps a Capability behind the (topic, confidence) contract.
type Gateway struct {
	capability Capability
	catalog    *Catalog
}

// NewGateway creates a gateway classifying against catalog.
func NewGateway(capability Capability, catalog *Catalog) *Gateway {
	return &Gateway{capability: capability, catalog: catalog}
}

// Catalog returns the gateway's topic catalog.
func (g *Gateway) Catalog() *Catalog { return g.catalog }

// Classify scores subject and body against every catalog description and
// returns the best topic. It never returns an error: failures come back as
// a zero Classification with Err set.
func (g *Gateway) Classify(ctx context.Context, subject, body string) Classification {
	text := fmt.Sprintf("Subject: %s\nBody: %s", subject, body)

	labels, scores, err := g.capability.Classify(ctx, text, g.catalog.Descriptions())
	if err != nil {
		kind := KindUnavailable
		if errors.Is(err, ErrMalformedOutput) {
			kind = KindMalformed
		}
		return failed(kind, err)
	}

	if len(labels) == 0 || len(labels) != len(scores) {
		return failed(KindMalformed, fmt.Errorf("%w: %d labels, %d scores", ErrMalformedOutput, len(labels), len(scores)))
	}

	best := 0
	for i, s := range scores {
		if math.IsNaN(s) || s < 0 || s > 1 {
			return failed(KindMalformed, fmt.Errorf("%w: score %v out of range", ErrMalformedOutput, s))
		}
		if s > scores[best] {
			best = i
		}
	}

	topic, ok := g.catalog.TopicFor(labels[best])
	if !ok {
		return failed(KindUnknownLabel, fmt.Errorf("label %q is not in the catalog", labels[best]))
	}

	slog.Debug("message classified", "topic", topic, "confidence", scores[best])

	return Classification{Topic: topic, Confidence: scores[best]}
}

func failed(kind ErrorKind, err error) Classification {
	slog.Warn("classification failed", "kind", kind, "error", err)
	return Classification{Err: &Error{Kind: kind, Err: err}}
}
