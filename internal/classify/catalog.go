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

// Package classify owns the HR topic taxonomy and the gateway that turns an
// external zero-shot classifier's output into a (topic, confidence) pair.
package classify

import (
	"fmt"
	"strings"

	"github.com/bcem/hrdesk/internal/models"
)

// Entry pairs a short topic key with the description the classifier scores.
type Entry struct {
	Topic       models.Topic `yaml:"topic" json:"topic"`
	Description string       `yaml:"description" json:"description"`
}

// Catalog is a static bidirectional mapping between topic keys and their
// descriptions. It is immutable once built.
type Catalog struct {
	entries  []Entry
	byTopic  map[models.Topic]string
	byDesc   map[string]models.Topic
	byFolded map[string]models.Topic
}

// NewCatalog validates entries and builds the mapping. Keys and descriptions
// must be non-empty and unique; descriptions are compared after trimming.
func NewCatalog(entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("topic catalog is empty")
	}

	c := &Catalog{
		entries:  make([]Entry, 0, len(entries)),
		byTopic:  make(map[models.Topic]string, len(entries)),
		byDesc:   make(map[string]models.Topic, len(entries)),
		byFolded: make(map[string]models.Topic, len(entries)),
	}

	for i, e := range entries {
		topic := models.Topic(strings.TrimSpace(string(e.Topic)))
		desc := strings.TrimSpace(e.Description)

		if topic == "" {
			return nil, fmt.Errorf("topic catalog entry %d: empty topic", i)
		}
		if desc == "" {
			return nil, fmt.Errorf("topic %q: empty description", topic)
		}
		if _, dup := c.byTopic[topic]; dup {
			return nil, fmt.Errorf("topic %q listed twice", topic)
		}
		if other, dup := c.byDesc[desc]; dup {
			return nil, fmt.Errorf("topics %q and %q share description %q", other, topic, desc)
		}

		c.entries = append(c.entries, Entry{Topic: topic, Description: desc})
		c.byTopic[topic] = desc
		c.byDesc[desc] = topic
		c.byFolded[strings.ToLower(desc)] = topic
	}

	return c, nil
}

// Description returns the description of a topic.
func (c *Catalog) Description(topic models.Topic) (string, bool) {
	d, ok := c.byTopic[topic]
	return d, ok
}

// TopicFor inverts a description back to its topic key. Matching is exact
// first, then case-insensitive.
func (c *Catalog) TopicFor(description string) (models.Topic, bool) {
	description = strings.TrimSpace(description)
	if t, ok := c.byDesc[description]; ok {
		return t, true
	}
	t, ok := c.byFolded[strings.ToLower(description)]
	return t, ok
}

// Has reports whether topic is in the catalog.
func (c *Catalog) Has(topic models.Topic) bool {
	_, ok := c.byTopic[topic]
	return ok
}

// Descriptions returns the candidate descriptions in catalog order.
func (c *Catalog) Descriptions() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Description
	}
	return out
}

// Entries returns a copy of the catalog entries in order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// DefaultEntries is the built-in HR taxonomy.
var DefaultEntries = []Entry{
	{Topic: "Leave Request", Description: "Requests related to taking leave or vacation"},
	{Topic: "Onboarding", Description: "Questions about new hire onboarding or joining formalities"},
	{Topic: "Job Offer", Description: "Inquiries regarding job offers or employment contracts"},
	{Topic: "Salary or Payroll Inquiry", Description: "Questions related to salary, pay, wages, or payroll processing"},
	{Topic: "Benefits Inquiry", Description: "Questions about insurance, medical, or employee benefits"},
	{Topic: "Resignation & Exit", Description: "Emails about resignation, exit process, or final settlements"},
	{Topic: "Attendance & Timesheet", Description: "Issues about work hours, attendance or timesheets"},
	{Topic: "Recruitment Process", Description: "Questions about interview, screening or hiring stages"},
	{Topic: "Policy Clarification", Description: "Clarification about company policies or procedures"},
	{Topic: "Training & Development", Description: "Queries about training programs or skill development"},
	{Topic: "Work From Home Requests", Description: "Requests or updates regarding remote work"},
	{Topic: "Relocation & Transfer", Description: "Inquiries about internal transfers or relocation"},
	{Topic: "Expense Reimbursement", Description: "Questions about reimbursements or expense claims"},
	{Topic: "IT & Access Issues", Description: "Issues about system access, accounts, or technical problems"},
	{Topic: "Events & Celebrations", Description: "Emails about office events, parties, or celebrations"},
	{Topic: models.TopicHumanIntervention, Description: "Sensitive matters that require human intervention, such as complaints, harassment or legal issues"},
}

// DefaultCatalog returns the catalog built from DefaultEntries.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultEntries)
	if err != nil {
		panic(err)
	}
	return c
}
