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
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

// SMTPConfig describes an outbound relay. Port 465 uses implicit TLS; any
// other port uses STARTTLS when the server offers it.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTP is a Sink that relays replies through an SMTP server.
type SMTP struct {
	cfg SMTPConfig
	now func() time.Time
}

// NewSMTP returns an SMTP sink.
func NewSMTP(cfg SMTPConfig) *SMTP {
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTP{cfg: cfg, now: time.Now}
}

// Send implements Sink. Once the server has accepted the message data the
// reply counts as delivered, even if closing the session fails.
func (s *SMTP) Send(ctx context.Context, out *Outgoing) error {
	msg, err := s.message(out)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.options()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("dial smtp %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	if err := client.Send(msg); err != nil {
		_ = client.Close()
		return fmt.Errorf("smtp send to %s: %w", out.To, err)
	}
	if err := client.Close(); err != nil {
		slog.Warn("smtp session close failed after delivery", "to", out.To, "error", err)
	}
	return nil
}

func (s *SMTP) options() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

func (s *SMTP) message(out *Outgoing) (*mail.Msg, error) {
	msg, err := compose(s.cfg.From, uuid.NewString()+"@"+domainOf(s.cfg.From), out, s.now())
	if err != nil {
		return nil, fmt.Errorf("smtp message: %w", err)
	}
	return msg, nil
}
