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
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bcem/hrdesk/internal/breaker"
	"github.com/bcem/hrdesk/internal/models"
)

const (
	gmailUser    = "me"
	labelUnread  = "UNREAD"
	defaultQuery = "is:unread in:inbox"
)

// GmailConfig holds the mailbox credentials and behaviour switches.
type GmailConfig struct {
	// CredentialsFile is the OAuth client JSON downloaded from Google Cloud.
	CredentialsFile string
	// TokenFile holds a previously authorised oauth2.Token as JSON.
	TokenFile string
	// Address is used as the From header of replies.
	Address string
	// Query overrides the search used to list unseen messages.
	Query string
	// DeleteAfterImport trashes messages instead of marking them read.
	DeleteAfterImport bool
}

// Gmail is a Source and Sink backed by the Gmail API.
type Gmail struct {
	svc    *gmail.Service
	from   string
	query  string
	delete bool
	cb     *breaker.Breaker
	now    func() time.Time
}

// NewGmail authorises against Google with the stored token and returns a
// ready mailbox. The token is refreshed automatically by the oauth2 client.
func NewGmail(ctx context.Context, cfg GmailConfig) (*Gmail, error) {
	creds, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read gmail credentials: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(creds, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("parse gmail credentials: %w", err)
	}

	tok, err := loadToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	return NewGmailWithService(svc, cfg), nil
}

// NewGmailWithService wraps an existing service, for example one pointed at
// a test server.
func NewGmailWithService(svc *gmail.Service, cfg GmailConfig) *Gmail {
	query := cfg.Query
	if query == "" {
		query = defaultQuery
	}
	return &Gmail{
		svc:    svc,
		from:   cfg.Address,
		query:  query,
		delete: cfg.DeleteAfterImport,
		cb:     breaker.New("gmail"),
		now:    time.Now,
	}
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gmail token: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode gmail token: %w", err)
	}
	return tok, nil
}

// ListUnseen returns the ids of unread inbox messages, oldest first.
func (g *Gmail) ListUnseen(ctx context.Context, limit int) ([]string, error) {
	var resp *gmail.ListMessagesResponse
	err := g.cb.Do(func() error {
		call := g.svc.Users.Messages.List(gmailUser).Q(g.query).Context(ctx)
		if limit > 0 {
			call = call.MaxResults(int64(limit))
		}
		var err error
		resp, err = call.Do()
		return classifyGmailError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("list unseen messages: %w", err)
	}

	// Gmail lists newest first; the pipeline wants arrival order.
	ids := make([]string, 0, len(resp.Messages))
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		ids = append(ids, resp.Messages[i].Id)
	}
	return ids, nil
}

// ListPage returns one page of message ids matching query, newest first,
// and the token of the next page ("" on the last page).
func (g *Gmail) ListPage(ctx context.Context, query, pageToken string, size int) ([]string, string, error) {
	var resp *gmail.ListMessagesResponse
	err := g.cb.Do(func() error {
		call := g.svc.Users.Messages.List(gmailUser).Q(query).MaxResults(int64(size)).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var err error
		resp, err = call.Do()
		return classifyGmailError(err)
	})
	if err != nil {
		return nil, "", fmt.Errorf("list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, resp.NextPageToken, nil
}

// Fetch downloads the full RFC 822 message.
func (g *Gmail) Fetch(ctx context.Context, id string) (*models.RawMessage, error) {
	var msg *gmail.Message
	err := g.cb.Do(func() error {
		var err error
		msg, err = g.svc.Users.Messages.Get(gmailUser, id).Format("raw").Context(ctx).Do()
		return classifyGmailError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", id, err)
	}

	data, err := base64.URLEncoding.DecodeString(msg.Raw)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(msg.Raw)
		if err != nil {
			return nil, fmt.Errorf("decode message %s: %w", id, err)
		}
	}

	return &models.RawMessage{SourceID: id, Data: data}, nil
}

// MarkConsumed removes the UNREAD label, or trashes the message when
// DeleteAfterImport is set.
func (g *Gmail) MarkConsumed(ctx context.Context, id string) error {
	err := g.cb.Do(func() error {
		var err error
		if g.delete {
			_, err = g.svc.Users.Messages.Trash(gmailUser, id).Context(ctx).Do()
		} else {
			_, err = g.svc.Users.Messages.Modify(gmailUser, id, &gmail.ModifyMessageRequest{
				RemoveLabelIds: []string{labelUnread},
			}).Context(ctx).Do()
		}
		return classifyGmailError(err)
	})
	if err != nil {
		return fmt.Errorf("mark message %s consumed: %w", id, err)
	}
	return nil
}

// Send delivers a reply through the authorised account.
func (g *Gmail) Send(ctx context.Context, out *Outgoing) error {
	raw, err := build(g.from, uuid.NewString()+"@"+domainOf(g.from), out, g.now())
	if err != nil {
		return err
	}

	err = g.cb.Do(func() error {
		_, err := g.svc.Users.Messages.Send(gmailUser, &gmail.Message{
			Raw: base64.URLEncoding.EncodeToString(raw),
		}).Context(ctx).Do()
		return classifyGmailError(err)
	})
	if err != nil {
		return fmt.Errorf("send reply to %s: %w", out.To, err)
	}

	slog.Debug("reply sent", "to", out.To, "in_reply_to", out.InReplyTo)
	return nil
}

// classifyGmailError keeps client errors from tripping the breaker. 429 is
// rate limiting and still counts.
func classifyGmailError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) &&
		apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		return breaker.Permanent(err)
	}
	return err
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return strings.Trim(addr[i+1:], ">")
	}
	return "localhost"
}
