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

// Package breaker wraps calls to external capabilities (classifier, generator,
// Gmail) in circuit breakers so a failing dependency fails fast.
package breaker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker is a named circuit breaker.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a breaker that opens after more than five consecutive
// failures, or at a 60% failure ratio once ten requests have been counted.
// It stays open for 30s, then lets three trial requests through.
func New(name string) *Breaker {
	return &Breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && ratio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var pe *passThrough
			return err == nil || errors.As(err, &pe)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})}
}

// Do runs fn through the breaker. Errors marked with Permanent are returned
// unwrapped and do not count against the dependency.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	var pe *passThrough
	if errors.As(err, &pe) {
		return pe.err
	}
	return err
}

// Open reports whether calls currently fail fast.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// State returns the breaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// IsOpen reports whether err was produced by an open or saturated breaker.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Permanent marks err as a caller-side failure (bad request, undecodable
// response) that says nothing about the dependency's health.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &passThrough{err: err}
}

type passThrough struct {
	err error
}

func (e *passThrough) Error() string { return e.err.Error() }

func (e *passThrough) Unwrap() error { return e.err }
