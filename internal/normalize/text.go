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

// Package normalize turns raw mail headers and bodies into clean text and
// parses RFC 822 messages into models.Message values.
//
// Text rule, applied in this order:
//  1. Drop every rune that is neither printable nor whitespace. Newlines,
//     tabs and carriage returns survive this stage.
//  2. Collapse every run of whitespace (including the newlines and tabs kept
//     above) into a single space, so paragraphs are joined with one space.
//  3. Trim leading and trailing spaces.
//
// The output therefore contains only printable runes and single ASCII spaces,
// which makes Text idempotent. Invalid UTF-8 bytes become U+FFFD.
//
// HTML is handled best-effort: every <...> span is replaced by a space and
// entities are left undecoded.
package normalize

import (
	"io"
	"mime"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/htmlindex"
)

var (
	htmlTag     = regexp.MustCompile(`<[^>]+>`)
	encodedWord = regexp.MustCompile(`=\?[^?\s]+\?[bBqQ]\?[^?\s]*\?=`)
)

// Text normalises free text according to the package rule.
func Text(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))

	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsPrint(r):
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		default:
			// non-printable, dropped without breaking the current word
		}
	}

	return b.String()
}

// StripHTML replaces every tag with a space. Entities are not decoded.
func StripHTML(s string) string {
	return htmlTag.ReplaceAllString(s, " ")
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// Header decodes RFC 2047 encoded words and normalises the result. A word
// in an unknown charset is decoded as UTF-8; a word whose encoding is broken
// is kept as written. Invalid bytes become U+FFFD either way.
func Header(raw string) string {
	if raw == "" {
		return ""
	}

	decoded, err := wordDecoder.DecodeHeader(raw)
	if err != nil {
		decoded = encodedWord.ReplaceAllStringFunc(raw, func(word string) string {
			if w, err := wordDecoder.Decode(word); err == nil {
				return w
			}
			return word
		})
	}

	return Text(strings.ToValidUTF8(decoded, "\uFFFD"))
}

// charsetReader resolves charsets through the WHATWG index, which covers the
// legacy encodings mail clients still emit (windows-1252, iso-2022-jp, gbk...).
// Unknown charsets pass the bytes through to be read as UTF-8.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return input, nil
	}
	return enc.NewDecoder().Reader(input), nil
}

// decodeCharset converts body bytes in the given charset to UTF-8, replacing
// anything undecodable.
func decodeCharset(data []byte, charset string) string {
	charset = strings.TrimSpace(strings.ToLower(charset))
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}

	return string(out)
}
