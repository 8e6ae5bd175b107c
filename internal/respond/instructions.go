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

package respond

import (
	"fmt"
	"strings"

	"github.com/bcem/hrdesk/internal/models"
)

// instruction describes how the assistant should answer one topic.
type instruction struct {
	handles string
	style   string
	points  []string
	closing string
}

func (in instruction) render() string {
	var b strings.Builder
	if in.handles == "" {
		b.WriteString("You are an HR assistant.\n")
	} else {
		fmt.Fprintf(&b, "You are an HR assistant handling %s.\n", in.handles)
	}
	fmt.Fprintf(&b, "Please generate %s response that:\n", in.style)
	for i, p := range in.points {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p)
	}
	if in.closing != "" {
		b.WriteString(in.closing)
	}
	return strings.TrimRight(b.String(), "\n")
}

var genericInstruction = instruction{
	style: "a professional and helpful",
	points: []string{
		"Acknowledges the email appropriately",
		"References the conversation history if it's a follow-up",
		"Maintains a professional and helpful tone",
		"Provides appropriate next steps or updates",
	},
}

var instructions = map[models.Topic]instruction{
	"Leave Request": {
		handles: "leave requests",
		style:   "a professional",
		points: []string{
			"Acknowledges the leave request",
			"Requests specific details if not provided (dates, type of leave, reason)",
			"Mentions the leave approval process",
			"Provides information about required documentation",
			"Includes next steps for the employee",
		},
		closing: "Maintain a supportive and understanding tone while ensuring all necessary information is collected.",
	},
	"Onboarding": {
		handles: "new hire onboarding queries",
		style:   "a welcoming",
		points: []string{
			"Acknowledges their interest in joining",
			"Provides a clear onboarding timeline",
			"Lists required documents and information",
			"Mentions any pre-joining formalities",
			"Includes contact information for further queries",
		},
		closing: "Ensure the response is informative and helps them feel welcome to the organization.",
	},
	"Job Offer": {
		handles: "job offer inquiries",
		style:   "a professional",
		points: []string{
			"Acknowledges their interest in the position",
			"Provides clear information about the offer details",
			"Mentions the acceptance timeline",
			"Includes next steps in the process",
			"Offers to clarify any terms or conditions",
		},
		closing: "Maintain a positive tone while being clear about the offer terms.",
	},
	"Salary or Payroll Inquiry": {
		handles: "payroll-related queries",
		style:   "a professional",
		points: []string{
			"Acknowledges their payroll concern",
			"Requests specific details if needed (payslip period, specific issues)",
			"Mentions the standard processing timeline",
			"Provides information about payroll policies",
			"Includes next steps for resolution",
		},
		closing: "Be clear and precise while maintaining confidentiality.",
	},
	"Benefits Inquiry": {
		handles: "benefits-related queries",
		style:   "a helpful",
		points: []string{
			"Acknowledges their benefits question",
			"Provides relevant benefits information",
			"Mentions eligibility criteria if applicable",
			"Includes enrollment or modification procedures",
			"Offers to clarify any specific benefits details",
		},
		closing: "Be informative while maintaining a supportive tone.",
	},
	"Resignation & Exit": {
		handles: "resignation and exit process queries",
		style:   "a professional",
		points: []string{
			"Acknowledges their resignation/exit query",
			"Outlines the exit process steps",
			"Mentions required documentation",
			"Provides information about final settlements",
			"Includes next steps in the process",
		},
		closing: "Maintain a professional and supportive tone throughout.",
	},
	"Attendance & Timesheet": {
		handles: "attendance and timesheet issues",
		style:   "a clear",
		points: []string{
			"Acknowledges their attendance/timesheet concern",
			"Requests specific details if needed (dates, issues)",
			"Mentions attendance policies",
			"Provides information about correction procedures",
			"Includes next steps for resolution",
		},
		closing: "Be precise and helpful while maintaining policy compliance.",
	},
	"Recruitment Process": {
		handles: "recruitment process queries",
		style:   "a professional",
		points: []string{
			"Acknowledges their recruitment-related question",
			"Provides information about the current stage",
			"Mentions the next steps in the process",
			"Includes expected timelines",
			"Offers to clarify any specific concerns",
		},
		closing: "Maintain a positive and informative tone.",
	},
	"Policy Clarification": {
		handles: "policy clarification requests",
		style:   "a clear",
		points: []string{
			"Acknowledges their policy question",
			"Provides relevant policy information",
			"Mentions any exceptions or special cases",
			"Includes where to find the complete policy",
			"Offers to clarify any specific points",
		},
		closing: "Be precise and accurate while maintaining policy compliance.",
	},
	"Training & Development": {
		handles: "training and development queries",
		style:   "an encouraging",
		points: []string{
			"Acknowledges their interest in training/development",
			"Provides information about available programs",
			"Mentions eligibility criteria",
			"Includes enrollment procedures",
			"Offers to discuss specific development goals",
		},
		closing: "Maintain a supportive and encouraging tone.",
	},
	"Work From Home Requests": {
		handles: "work from home requests",
		style:   "a professional",
		points: []string{
			"Acknowledges their WFH request",
			"Requests specific details if needed (dates, reason)",
			"Mentions WFH policies and guidelines",
			"Provides information about required approvals",
			"Includes next steps in the process",
		},
		closing: "Be clear about policies while maintaining flexibility.",
	},
	"Relocation & Transfer": {
		handles: "relocation and transfer requests",
		style:   "a professional",
		points: []string{
			"Acknowledges their relocation/transfer request",
			"Requests specific details if needed (location, timing)",
			"Mentions relocation policies and benefits",
			"Provides information about the transfer process",
			"Includes next steps and required approvals",
		},
		closing: "Be clear about the process while maintaining a supportive tone.",
	},
	"Expense Reimbursement": {
		handles: "expense reimbursement queries",
		style:   "a clear",
		points: []string{
			"Acknowledges their expense reimbursement request",
			"Requests specific details if needed (expenses, receipts)",
			"Mentions reimbursement policies",
			"Provides information about the submission process",
			"Includes next steps and expected timeline",
		},
		closing: "Be precise about requirements while maintaining a helpful tone.",
	},
	"IT & Access Issues": {
		handles: "IT and access-related issues",
		style:   "a helpful",
		points: []string{
			"Acknowledges their IT/access concern",
			"Requests specific details about the issue",
			"Mentions standard resolution procedures",
			"Provides information about IT support channels",
			"Includes next steps for resolution",
		},
		closing: "Be clear about the process while maintaining a supportive tone.",
	},
	"Events & Celebrations": {
		handles: "event and celebration queries",
		style:   "an enthusiastic",
		points: []string{
			"Acknowledges their event-related message",
			"Provides information about upcoming events",
			"Mentions participation details",
			"Includes any registration requirements",
			"Encourages participation",
		},
		closing: "Maintain an enthusiastic and welcoming tone.",
	},
}

// Instruction returns the instruction block for topic, or the generic block
// for unknown and empty topics.
func Instruction(topic models.Topic) string {
	if in, ok := instructions[topic]; ok {
		return in.render()
	}
	return genericInstruction.render()
}

// HasInstruction reports whether topic has a dedicated instruction block.
func HasInstruction(topic models.Topic) bool {
	_, ok := instructions[topic]
	return ok
}
