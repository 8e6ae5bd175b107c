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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/bcem/hrdesk/internal/breaker"
)

// ZeroShotConfig configures a ZeroShot client.
type ZeroShotConfig struct {
	// Endpoint is the inference URL, e.g. a hosted bart-large-mnli model.
	Endpoint string
	// APIKey is sent as a bearer token when set. Leave empty when HTTPClient
	// already authenticates (OAuth2 client credentials).
	APIKey     string
	HTTPClient *http.Client
	// Timeout applies only to the default client.
	Timeout time.Duration
}

// ZeroShot calls a zero-shot classification endpoint speaking the
// Hugging Face inference wire format.
type ZeroShot struct {
	endpoint string
	apiKey   string
	client   *http.Client
	cb       *breaker.Breaker
}

// NewZeroShot creates a ZeroShot client guarded by a circuit breaker.
func NewZeroShot(cfg ZeroShotConfig) *ZeroShot {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &ZeroShot{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   client,
		cb:       breaker.New("classifier"),
	}
}

type zeroShotRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters zeroShotParameters `json:"parameters"`
}

type zeroShotParameters struct {
	CandidateLabels []string `json:"candidate_labels"`
	MultiLabel      bool     `json:"multi_label"`
}

type zeroShotResponse struct {
	Sequence string    `json:"sequence"`
	Labels   []string  `json:"labels"`
	Scores   []float64 `json:"scores"`
}

// Classify implements Capability.
func (z *ZeroShot) Classify(ctx context.Context, text string, candidates []string) ([]string, []float64, error) {
	payload, err := json.Marshal(zeroShotRequest{
		Inputs: text,
		Parameters: zeroShotParameters{
			CandidateLabels: candidates,
			MultiLabel:      false,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal classifier request: %w", err)
	}

	var out *zeroShotResponse
	err = z.cb.Do(func() error {
		var postErr error
		out, postErr = z.post(ctx, payload)
		return postErr
	})
	if err != nil {
		return nil, nil, err
	}

	return out.Labels, out.Scores, nil
}

func (z *ZeroShot) post(ctx context.Context, payload []byte) (*zeroShotResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, breaker.Permanent(fmt.Errorf("build classifier request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if z.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+z.apiKey)
	}

	resp, err := z.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read classifier response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, truncate(body, 200))
	case resp.StatusCode >= 400:
		return nil, breaker.Permanent(fmt.Errorf("classifier returned %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	var out zeroShotResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, breaker.Permanent(fmt.Errorf("%w: %v", ErrMalformedOutput, err))
	}
	return &out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
