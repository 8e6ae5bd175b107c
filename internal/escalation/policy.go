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

// Package escalation decides whether a classified message may be answered
// automatically or must go to a human. It only decides; it never writes.
package escalation

import (
	"fmt"

	"github.com/bcem/hrdesk/internal/models"
)

// DefaultThreshold is the confidence below which a message is escalated.
// It replaces the 0.2 cut-off older deployments used for the escalated flag.
const DefaultThreshold = 0.5

// Action is the outcome of a decision.
type Action string

const (
	AutoRespond Action = "AUTO_RESPOND"
	Escalate    Action = "ESCALATE"
)

// Decision is an Action plus the reason recorded with an escalation.
type Decision struct {
	Action Action
	Reason string
}

// Escalated reports whether the decision routes to a human.
func (d Decision) Escalated() bool { return d.Action == Escalate }

// ReasonHumanIntervention is recorded for the reserved topic.
const ReasonHumanIntervention = "Requires human intervention"

// Policy is a single-threshold escalation policy.
type Policy struct {
	Threshold float64
}

// NewPolicy returns a policy, rejecting thresholds outside [0, 1].
func NewPolicy(threshold float64) (Policy, error) {
	if threshold < 0 || threshold > 1 {
		return Policy{}, fmt.Errorf("escalation threshold %v outside [0, 1]", threshold)
	}
	return Policy{Threshold: threshold}, nil
}

// Decide escalates iff confidence < threshold. Equality auto-responds.
func (p Policy) Decide(confidence float64) Decision {
	if confidence < p.Threshold {
		return BelowThreshold(confidence)
	}
	return Decision{Action: AutoRespond}
}

// BelowThreshold is the escalation recorded for a low or missing confidence.
func BelowThreshold(confidence float64) Decision {
	return Decision{
		Action: Escalate,
		Reason: fmt.Sprintf("Confidence below threshold: %.2f", confidence),
	}
}

// DecideTopic is Decide with the reserved human-intervention topic forcing
// escalation regardless of confidence.
func (p Policy) DecideTopic(topic models.Topic, confidence float64) Decision {
	if topic == models.TopicHumanIntervention {
		return Decision{Action: Escalate, Reason: ReasonHumanIntervention}
	}
	return p.Decide(confidence)
}
