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

package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/bcem/hrdesk/internal/models"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func nowFn() time.Time { return fixedNow }

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParse_PlainMessage(t *testing.T) {
	raw := &models.RawMessage{SourceID: "18c2", Data: crlf(
		"From: Jane Doe <jane@corp.com>",
		"To: hr@corp.com",
		"Subject: Leave for next week",
		"Date: Mon, 3 Mar 2025 10:15:00 +0000",
		"Message-ID: <leave-1@corp.com>",
		"",
		"Hello HR,",
		"",
		"I would like to take\tthree days off.",
		"",
	)}

	m := Parse(raw, nowFn)

	if m.SourceID != "18c2" {
		t.Errorf("SourceID = %q, want %q", m.SourceID, "18c2")
	}
	if m.MessageID != "leave-1@corp.com" {
		t.Errorf("MessageID = %q, want %q", m.MessageID, "leave-1@corp.com")
	}
	if m.Sender != "jane@corp.com" {
		t.Errorf("Sender = %q, want %q", m.Sender, "jane@corp.com")
	}
	if m.Subject != "Leave for next week" {
		t.Errorf("Subject = %q, want %q", m.Subject, "Leave for next week")
	}
	if want := "Hello HR, I would like to take three days off."; m.Body != want {
		t.Errorf("Body = %q, want %q", m.Body, want)
	}
	if want := time.Date(2025, 3, 3, 10, 15, 0, 0, time.UTC); !m.ReceivedAt.Equal(want) {
		t.Errorf("ReceivedAt = %v, want %v", m.ReceivedAt, want)
	}
	if m.InReplyTo != "" || len(m.References) != 0 {
		t.Errorf("reply headers = %q / %v, want empty", m.InReplyTo, m.References)
	}
	if m.ThreadID != 0 {
		t.Errorf("ThreadID = %d, want 0 before resolution", m.ThreadID)
	}
}

func TestParse_ReplyHeaders(t *testing.T) {
	raw := &models.RawMessage{SourceID: "18c3", Data: crlf(
		"From: jane@corp.com",
		"Subject: Re: Leave for next week",
		"Message-ID: <leave-2@corp.com>",
		"In-Reply-To: <hr-ack-1@corp.com>",
		"References: <leave-1@corp.com>\r\n <hr-ack-1@corp.com>",
		"",
		"Any update?",
	)}

	m := Parse(raw, nowFn)

	if m.InReplyTo != "hr-ack-1@corp.com" {
		t.Errorf("InReplyTo = %q, want %q", m.InReplyTo, "hr-ack-1@corp.com")
	}
	want := []string{"leave-1@corp.com", "hr-ack-1@corp.com"}
	if len(m.References) != len(want) {
		t.Fatalf("References = %v, want %v", m.References, want)
	}
	for i := range want {
		if m.References[i] != want[i] {
			t.Errorf("References[%d] = %q, want %q", i, m.References[i], want[i])
		}
	}
	if !m.ReceivedAt.Equal(fixedNow) {
		t.Errorf("ReceivedAt = %v, want fallback %v", m.ReceivedAt, fixedNow)
	}
}

func TestParse_MissingMessageID(t *testing.T) {
	raw := &models.RawMessage{SourceID: "42", Data: crlf(
		"From: a@corp.com",
		"Subject: hi",
		"",
		"body",
	)}
	if got := Parse(raw, nowFn).MessageID; got != "source-42" {
		t.Errorf("MessageID = %q, want %q", got, "source-42")
	}

	noSource := &models.RawMessage{Data: raw.Data}
	first := Parse(noSource, nowFn).MessageID
	if !strings.HasPrefix(first, "digest-") {
		t.Errorf("MessageID = %q, want digest- prefix", first)
	}
	if again := Parse(noSource, nowFn).MessageID; again != first {
		t.Errorf("MessageID not stable: %q then %q", first, again)
	}
}

func TestParse_NotRFC822(t *testing.T) {
	raw := &models.RawMessage{SourceID: "x1", Data: []byte("just some text\nwith no headers at all")}

	m := Parse(raw, nowFn)

	if m.Body != "just some text with no headers at all" {
		t.Errorf("Body = %q", m.Body)
	}
	if m.Sender != "" || m.Subject != "" {
		t.Errorf("Sender/Subject = %q/%q, want empty", m.Sender, m.Subject)
	}
	if !m.ReceivedAt.Equal(fixedNow) {
		t.Errorf("ReceivedAt = %v, want %v", m.ReceivedAt, fixedNow)
	}
	if m.MessageID != "source-x1" {
		t.Errorf("MessageID = %q, want %q", m.MessageID, "source-x1")
	}
}

func TestParse_EmptyInput(t *testing.T) {
	m := Parse(&models.RawMessage{SourceID: "e"}, nowFn)
	if m.Body != "" || m.Subject != "" || m.Sender != "" {
		t.Errorf("got %+v, want empty fields", m)
	}
}

func TestParse_MultipartPrefersPlain(t *testing.T) {
	raw := &models.RawMessage{SourceID: "mp", Data: crlf(
		"From: bob@corp.com",
		"Subject: Payslip",
		"Message-ID: <mp@corp.com>",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>HTML <b>version</b></p>",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"Where is my pay=",
		"slip f=C3=BCr March?",
		"--b1--",
		"",
	)}

	if got, want := Parse(raw, nowFn).Body, "Where is my payslip für March?"; got != want {
		t.Errorf("Body = %q, want %q", got, want)
	}
}

func TestParse_HTMLOnlySkipsAttachment(t *testing.T) {
	raw := &models.RawMessage{SourceID: "att", Data: crlf(
		"From: bob@corp.com",
		"Subject: Receipt",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="outer"`,
		"",
		"--outer",
		"Content-Type: text/html",
		"",
		"<div>Please reimburse<br>the attached taxi receipt.</div>",
		"--outer",
		"Content-Type: text/plain",
		`Content-Disposition: attachment; filename="receipt.txt"`,
		"",
		"TAXI 42.00 EUR",
		"--outer--",
		"",
	)}

	if got, want := Parse(raw, nowFn).Body, "Please reimburse the attached taxi receipt."; got != want {
		t.Errorf("Body = %q, want %q", got, want)
	}
}

func TestParse_Base64Part(t *testing.T) {
	raw := &models.RawMessage{SourceID: "b64", Data: crlf(
		"From: bob@corp.com",
		"Subject: =?UTF-8?B?Q29uZ8OpIGRlbWFuZMOp?=",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="zz"`,
		"",
		"--zz",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: base64",
		"",
		"SmUgdm91ZHJhaXMg",
		"cHJlbmRyZSB1biBjb25nw6ku",
		"--zz--",
		"",
	)}

	m := Parse(raw, nowFn)
	if m.Subject != "Congé demandé" {
		t.Errorf("Subject = %q, want %q", m.Subject, "Congé demandé")
	}
	if want := "Je voudrais prendre un congé."; m.Body != want {
		t.Errorf("Body = %q, want %q", m.Body, want)
	}
}

func TestParse_Latin1Body(t *testing.T) {
	raw := &models.RawMessage{SourceID: "l1", Data: append(crlf(
		"From: a@corp.com",
		"Content-Type: text/plain; charset=iso-8859-1",
		"",
		"",
	), []byte("R\xe9sum\xe9 attached")...)}

	if got, want := Parse(raw, nowFn).Body, "Résumé attached"; got != want {
		t.Errorf("Body = %q, want %q", got, want)
	}
}

func TestSender(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Jane Doe <jane@corp.com>", want: "jane@corp.com"},
		{in: "jane@corp.com", want: "jane@corp.com"},
		{in: "=?UTF-8?Q?J=C3=B6rg?= <jorg@corp.com>", want: "jorg@corp.com"},
		{in: "hr team [at] corp", want: "hr team [at] corp"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		if got := Sender(tt.in); got != tt.want {
			t.Errorf("Sender(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{name: "rfc 5322", in: "Tue, 4 Mar 2025 08:30:00 +0100", want: time.Date(2025, 3, 4, 7, 30, 0, 0, time.UTC)},
		{name: "no zone", in: "Tue, 4 Mar 2025 08:30:00", want: time.Date(2025, 3, 4, 8, 30, 0, 0, time.UTC)},
		{name: "garbage", in: "sometime last week", want: fixedNow},
		{name: "empty", in: "", want: fixedNow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Date(tt.in, nowFn); !got.Equal(tt.want) {
				t.Errorf("Date(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
