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
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	"github.com/bcem/hrdesk/internal/models"
)

// maxBodyBytes bounds how much of a single part is read.
const maxBodyBytes = 1 << 20

// dateLayouts are tried after net/mail's own parser gives up.
var dateLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05",
}

var angleAddr = regexp.MustCompile(`<([^>]+)>`)

// Parse converts a raw RFC 822 message into a Message. It never fails:
// malformed headers fall back to empty strings, an unparseable date to now(),
// and a message that is not RFC 822 at all is kept whole as its body.
// ThreadID is left zero for the thread resolver.
func Parse(raw *models.RawMessage, now func() time.Time) *models.Message {
	if now == nil {
		now = time.Now
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw.Data))
	if err != nil {
		slog.Warn("message is not valid RFC 822, keeping raw text",
			"source_id", raw.SourceID,
			"error", err,
		)
		return &models.Message{
			SourceID:   raw.SourceID,
			MessageID:  fallbackMessageID(raw),
			Body:       Text(StripHTML(decodeCharset(raw.Data, ""))),
			ReceivedAt: now(),
		}
	}

	h := msg.Header
	m := &models.Message{
		SourceID:   raw.SourceID,
		MessageID:  StripAngles(h.Get("Message-ID")),
		Sender:     Sender(h.Get("From")),
		Subject:    Header(h.Get("Subject")),
		Body:       Body(textproto.MIMEHeader(h), msg.Body),
		ReceivedAt: Date(h.Get("Date"), now),
		InReplyTo:  StripAngles(h.Get("In-Reply-To")),
		References: references(h.Get("References")),
	}
	if m.MessageID == "" {
		m.MessageID = fallbackMessageID(raw)
	}

	return m
}

// StripAngles trims whitespace and the enclosing angle brackets of a message id.
func StripAngles(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

// Sender extracts the bare address from a From header.
func Sender(from string) string {
	if from == "" {
		return ""
	}

	if addr, err := (&mail.AddressParser{WordDecoder: wordDecoder}).Parse(from); err == nil {
		return addr.Address
	}

	if m := angleAddr.FindStringSubmatch(from); m != nil {
		return strings.TrimSpace(m[1])
	}

	return strings.TrimSpace(Header(from))
}

// Date parses a Date header, returning now() when it is missing or unparseable.
func Date(value string, now func() time.Time) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return now()
	}

	if t, err := mail.ParseDate(value); err == nil {
		return t
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}

	return now()
}

// Body extracts the readable text of a message. The first text/plain part
// wins; otherwise the first text/html part is used with tags stripped.
// Attachments are skipped. Decode errors yield an empty body.
func Body(header textproto.MIMEHeader, body io.Reader) string {
	var plain, html string
	walkPart(header, body, &plain, &html, 0)

	if plain != "" {
		return Text(plain)
	}
	return Text(StripHTML(html))
}

// walkPart descends multipart trees, collecting the first plain and html parts.
func walkPart(header textproto.MIMEHeader, body io.Reader, plain, html *string, depth int) {
	if depth > 8 || *plain != "" {
		return
	}

	if disp := strings.ToLower(header.Get("Content-Disposition")); strings.Contains(disp, "attachment") {
		return
	}

	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err != nil {
				return
			}
			walkPart(part.Header, part, plain, html, depth+1)
			if *plain != "" {
				return
			}
		}
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		return
	}

	data, err := io.ReadAll(io.LimitReader(transferDecoder(header, body), maxBodyBytes))
	if err != nil {
		slog.Debug("body part decode failed", "media_type", mediaType, "error", err)
		return
	}
	text := decodeCharset(data, params["charset"])

	switch mediaType {
	case "text/plain":
		*plain = text
	case "text/html":
		if *html == "" {
			*html = text
		}
	}
}

// transferDecoder undoes Content-Transfer-Encoding. multipart.Reader already
// strips quoted-printable from parts, so this matters for base64 parts and
// for single-part messages.
func transferDecoder(header textproto.MIMEHeader, body io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(header.Get("Content-Transfer-Encoding"))) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		return quotedprintable.NewReader(body)
	default:
		return body
	}
}

func references(value string) []string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil
	}
	refs := make([]string, 0, len(fields))
	for _, f := range fields {
		if id := StripAngles(f); id != "" {
			refs = append(refs, id)
		}
	}
	return refs
}

// fallbackMessageID derives a stable identifier for messages that carry no
// Message-ID header, so re-fetching the same message still deduplicates.
func fallbackMessageID(raw *models.RawMessage) string {
	if raw.SourceID != "" {
		return "source-" + raw.SourceID
	}
	sum := md5.Sum(raw.Data)
	return "digest-" + hex.EncodeToString(sum[:])
}
