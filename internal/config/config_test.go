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

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes yaml to a temp file and points CONFIG_PATH at it.
func writeConfig(t *testing.T, yaml string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
}

func TestLoad_Defaults(t *testing.T) {
	writeConfig(t, "mailbox:\n  address: hr@corp.com\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Threshold != 0.5 {
		t.Errorf("Threshold = %v, want 0.5", cfg.Threshold)
	}
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.BatchSize)
	}
	if cfg.PollInterval != time.Minute {
		t.Errorf("PollInterval = %s, want 1m", cfg.PollInterval)
	}
	if cfg.Mailbox.Sink != "gmail" || cfg.Mailbox.SMTP.Port != 465 {
		t.Errorf("Mailbox = %+v", cfg.Mailbox)
	}
	if cfg.Generator.Model != "gpt-4o-mini" || cfg.Generator.MaxTokens != 512 || cfg.Generator.Temperature != 0.7 {
		t.Errorf("Generator = %+v", cfg.Generator)
	}
	if cfg.EscalationQueue != "escalations" || cfg.FeedbackQueue != "feedback" {
		t.Errorf("queues = %q, %q", cfg.EscalationQueue, cfg.FeedbackQueue)
	}
	if len(cfg.Topics) != 16 {
		t.Errorf("got %d topics, want the 16 built-in ones", len(cfg.Topics))
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoad_YAMLWithExpansion(t *testing.T) {
	t.Setenv("TEST_PG_PASSWORD", "s3cret")
	writeConfig(t, `
database:
  url: postgres://hrdesk:${TEST_PG_PASSWORD}@db:5432/hrdesk
redis:
  url: redis://cache:6379/1
  queues:
    escalations: hr-escalations
mailbox:
  address: hr@corp.com
  sink: smtp
  delete_after_import: true
  smtp:
    host: smtp.corp.com
    port: 587
classifier:
  endpoint: https://inference.corp.com/models/bart-large-mnli
  client_id: responder
  client_secret: abc
  token_url: https://auth.corp.com/token
generator:
  temperature: 0
escalation:
  threshold: 0.65
topics:
  - topic: Leave Request
    description: Requests related to taking leave or vacation
  - topic: human_intervention
    description: Sensitive matters that need a person
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DatabaseURL != "postgres://hrdesk:s3cret@db:5432/hrdesk" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.RedisURL != "redis://cache:6379/1" || cfg.EscalationQueue != "hr-escalations" {
		t.Errorf("redis = %q / %q", cfg.RedisURL, cfg.EscalationQueue)
	}
	if cfg.Mailbox.Sink != "smtp" || cfg.Mailbox.SMTP.Host != "smtp.corp.com" || cfg.Mailbox.SMTP.Port != 587 || !cfg.Mailbox.DeleteAfterImport {
		t.Errorf("Mailbox = %+v", cfg.Mailbox)
	}
	if cfg.Classifier.ClientID != "responder" || cfg.Classifier.TokenURL == "" {
		t.Errorf("Classifier = %+v", cfg.Classifier)
	}
	if cfg.Generator.Temperature != 0 {
		t.Errorf("Temperature = %v, want explicit 0", cfg.Generator.Temperature)
	}
	if cfg.Threshold != 0.65 {
		t.Errorf("Threshold = %v, want 0.65", cfg.Threshold)
	}

	cat, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if got, ok := cat.TopicFor("Sensitive matters that need a person"); !ok || got != "human_intervention" {
		t.Errorf("TopicFor = %q, %v", got, ok)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	writeConfig(t, "{}\n")
	t.Setenv("BATCH_SIZE", "10")
	t.Setenv("POLL_INTERVAL", "5m")
	t.Setenv("ESCALATION_THRESHOLD", "0.3")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAIL_SINK", "LOG")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BatchSize != 10 || cfg.PollInterval != 5*time.Minute || cfg.Threshold != 0.3 {
		t.Errorf("cfg = batch %d, interval %s, threshold %v", cfg.BatchSize, cfg.PollInterval, cfg.Threshold)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.Mailbox.Sink != "log" {
		t.Errorf("Sink = %q, want log", cfg.Mailbox.Sink)
	}
	if cfg.Generator.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.Generator.APIKey)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	writeConfig(t, "generator:\n  api_key: ${TEST_DOTENV_KEY}\n")
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("TEST_DOTENV_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", envFile)
	t.Cleanup(func() { os.Unsetenv("TEST_DOTENV_KEY") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generator.APIKey != "from-dotenv" {
		t.Errorf("APIKey = %q, want from-dotenv", cfg.Generator.APIKey)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{name: "threshold", yaml: "escalation:\n  threshold: 1.5\n", want: "threshold"},
		{name: "batch size", yaml: "{}\n", env: map[string]string{"BATCH_SIZE": "0"}, want: "batch size"},
		{name: "sink", yaml: "mailbox:\n  sink: pigeon\n", want: "unknown mail sink"},
		{name: "smtp host", yaml: "mailbox:\n  sink: smtp\n", want: "smtp.host"},
		{
			name: "duplicate descriptions",
			yaml: "topics:\n  - topic: A\n    description: same\n  - topic: B\n    description: same\n",
			want: "topics",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.yaml)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "nope.env"))
	if _, err := Load(); err == nil {
		t.Error("Load() error = nil for a missing file")
	}
}

func TestLoad_ShippedConfigHonoursEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join("..", "..", "config.yaml"))
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{"ESCALATION_THRESHOLD", "OPENAI_TEMPERATURE", "OPENAI_MAX_TOKENS", "OPENAI_MODEL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Threshold != 0.5 || cfg.Generator.Temperature != 0.7 || cfg.Generator.MaxTokens != 512 {
		t.Errorf("defaults = %v / %v / %d, want 0.5 / 0.7 / 512",
			cfg.Threshold, cfg.Generator.Temperature, cfg.Generator.MaxTokens)
	}

	t.Setenv("ESCALATION_THRESHOLD", "0.65")
	t.Setenv("OPENAI_TEMPERATURE", "0.2")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Threshold != 0.65 {
		t.Errorf("Threshold = %v, want 0.65 from the environment", cfg.Threshold)
	}
	if cfg.Generator.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2 from the environment", cfg.Generator.Temperature)
	}
}
