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
package mailbox

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSMTP is a minimal SMTP server: every command gets 250 unless
// scripted otherwise, DATA is captured up to the terminating dot.
type fakeSMTP struct {
	ln       net.Listener
	dropQuit bool   // hang up on QUIT without replying
	rejectTo string // answer RCPT for this address with 550
	mu       sync.Mutex
	data     []string
}

func newFakeSMTP(t *testing.T, dropQuit bool, rejectTo string) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeSMTP{ln: ln, dropQuit: dropQuit, rejectTo: rejectTo}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeSMTP) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeSMTP) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

	reply("220 fake.local ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			reply("250-fake.local")
			reply("250 8BITMIME")
		case strings.HasPrefix(cmd, "RCPT TO:") && f.rejectTo != "" && strings.Contains(cmd, strings.ToUpper(f.rejectTo)):
			reply("550 no such user")
		case cmd == "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			f.mu.Lock()
			f.data = append(f.data, b.String())
			f.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			if f.dropQuit {
				return
			}
			reply("221 bye")
			return
		default:
			reply("250 ok")
		}
	}
}

func (f *fakeSMTP) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.data...)
}

func newTestSMTP(f *fakeSMTP) *SMTP {
	s := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: f.port(), From: "hr@corp.com", Timeout: 5 * time.Second})
	s.now = func() time.Time { return time.Date(2025, 3, 3, 11, 0, 0, 0, time.UTC) }
	return s
}

var smtpReply = &Outgoing{
	To:         "jane@corp.com",
	Subject:    "Re: Leave for next week",
	Body:       "Your leave request was received.",
	InReplyTo:  "leave-1@corp.com",
	References: []string{"leave-1@corp.com"},
}

func TestSMTP_Send(t *testing.T) {
	f := newFakeSMTP(t, false, "")

	if err := newTestSMTP(f).Send(context.Background(), smtpReply); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs := f.messages()
	if len(msgs) != 1 {
		t.Fatalf("server got %d messages, want 1", len(msgs))
	}
	for _, want := range []string{
		"Subject: Re: Leave for next week",
		"In-Reply-To: <leave-1@corp.com>",
		"References: <leave-1@corp.com>",
		"Message-ID: <",
		"Your leave request was received.",
	} {
		if !strings.Contains(msgs[0], want) {
			t.Errorf("message missing %q:\n%s", want, msgs[0])
		}
	}
}

func TestSMTP_QuitFailureAfterDataIsDelivered(t *testing.T) {
	f := newFakeSMTP(t, true, "")

	if err := newTestSMTP(f).Send(context.Background(), smtpReply); err != nil {
		t.Fatalf("Send = %v, want nil once DATA was accepted", err)
	}
	if len(f.messages()) != 1 {
		t.Errorf("server got %d messages, want 1", len(f.messages()))
	}
}

func TestSMTP_RejectedRecipient(t *testing.T) {
	f := newFakeSMTP(t, false, "jane@corp.com")

	err := newTestSMTP(f).Send(context.Background(), smtpReply)
	if err == nil {
		t.Fatal("Send = nil, want an error for a rejected recipient")
	}
	if len(f.messages()) != 0 {
		t.Errorf("server got %d messages, want none", len(f.messages()))
	}
}

func TestSMTP_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: port, From: "hr@corp.com", Timeout: time.Second})
	err = s.Send(context.Background(), smtpReply)
	if err == nil || !strings.Contains(err.Error(), "dial smtp 127.0.0.1:"+strconv.Itoa(port)) {
		t.Errorf("Send = %v, want a dial error", err)
	}
}
