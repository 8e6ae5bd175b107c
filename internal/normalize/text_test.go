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
	"testing/quick"
)

// TestText covers the whitespace and control-character rule.
func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "clean ascii", in: "I need 3 days off", want: "I need 3 days off"},
		{name: "crlf", in: "Hello team,\r\n\r\nI need leave.\r\n", want: "Hello team, I need leave."},
		{name: "tabs", in: "name\tdept\t\tdate", want: "name dept date"},
		{name: "control bytes", in: "pay\x00slip\x07 for \x1bMarch", want: "payslip for March"},
		{name: "control between spaces", in: "a \x00 b", want: "a b"},
		{name: "leading and trailing", in: "  \n\t padded \n ", want: "padded"},
		{name: "unicode spaces", in: "tab\u00a0and\u2003em", want: "tab and em"},
		{name: "invalid utf8", in: "bad\xffbyte", want: "bad\uFFFDbyte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestText_Idempotent checks normalize(normalize(x)) == normalize(x) for
// arbitrary strings.
func TestText_Idempotent(t *testing.T) {
	f := func(s string) bool {
		once := Text(s)
		return Text(once) == once
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 2000}); err != nil {
		t.Error(err)
	}

	// Raw byte soup, including invalid UTF-8 and control bytes.
	g := func(b []byte) bool {
		once := Text(string(b))
		return Text(once) == once
	}
	if err := quick.Check(g, &quick.Config{MaxCount: 2000}); err != nil {
		t.Error(err)
	}
}

func TestText_OutputHasNoControlOrDoubleSpace(t *testing.T) {
	out := Text("line one\n\n\tline two\r\n\x01end")
	if strings.Contains(out, "  ") {
		t.Errorf("output %q contains a double space", out)
	}
	for _, r := range out {
		if r < 0x20 {
			t.Errorf("output %q contains control rune %U", out, r)
		}
	}
}

func TestStripHTML(t *testing.T) {
	got := Text(StripHTML("<p>Hello&nbsp;<b>HR</b></p><br/>Thanks"))
	want := "Hello&nbsp; HR Thanks"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Leave for next week", want: "Leave for next week"},
		{name: "utf-8 base64", in: "=?UTF-8?B?Q29uZ8OpIGRlbWFuZMOp?=", want: "Congé demandé"},
		{name: "iso-8859-1 q", in: "=?ISO-8859-1?Q?R=E9sum=E9?=", want: "Résumé"},
		{name: "windows-1252", in: "=?windows-1252?Q?=93quoted=94?=", want: "“quoted”"},
		{name: "mixed words", in: "Re: =?UTF-8?Q?payslip_f=C3=BCr?= March", want: "Re: payslip für March"},
		{name: "unknown charset", in: "=?x-bogus?Q?abc?=", want: "abc"},
		{name: "unknown charset base64", in: "=?x-bogus?B?SGVsbG8=?=", want: "Hello"},
		{name: "unknown charset latin bytes", in: "=?x-bogus?Q?R=E9sum=E9?=", want: "R\uFFFDsum\uFFFD"},
		{name: "unknown next to known", in: "=?UTF-8?Q?Cong=C3=A9?= =?x-bogus?Q?abc?=", want: "Congéabc"},
		{name: "broken word keeps the rest", in: "=?UTF-8?B?!!!?= =?UTF-8?Q?f=C3=BCr?=", want: "=?UTF-8?B?!!!?= für"},
		{name: "folded", in: "Benefits\r\n question", want: "Benefits question"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Header(tt.in); got != tt.want {
				t.Errorf("Header(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHeader_InvalidBytesReplaced(t *testing.T) {
	got := Header("=?x-bogus?Q?abc?= \xfe")
	if !strings.Contains(got, "\uFFFD") {
		t.Errorf("Header() = %q, want a replacement character", got)
	}
}
