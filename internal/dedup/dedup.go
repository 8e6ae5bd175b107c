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

// Package dedup guards against two pipeline runs working on the same message
// at once. A run claims a Message-ID with Redis SET NX before processing and
// releases it when the outcome should be retried by a later run.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a crashed run can hold a claim.
	DefaultTTL = 15 * time.Minute

	// keyPrefix namespaces claim keys in Redis.
	keyPrefix = "hrdesk:claim:"
)

// Filter hands out per-message claims.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a claim filter backed by Redis. A zero ttl uses DefaultTTL.
func NewFilter(rdb *redis.Client, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{
		rdb: rdb,
		ttl: ttl,
	}
}

// Claim returns true if messageID was not claimed and is now held by the
// caller. The claim is taken atomically (SETNX).
func (f *Filter) Claim(ctx context.Context, messageID string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, keyPrefix+messageID, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Release drops a claim so the next run can pick the message up again.
func (f *Filter) Release(ctx context.Context, messageID string) error {
	if err := f.rdb.Del(ctx, keyPrefix+messageID).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
