package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xaenox/relay-bot/internal/storage"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.ListenAddr != ":10000" {
		t.Errorf("ListenAddr = %q", cfg.Telegram.ListenAddr)
	}
	if cfg.Telegram.RequestTimeout != 15*time.Second || cfg.Telegram.PollTimeout != 30*time.Second {
		t.Errorf("timeouts = %s/%s", cfg.Telegram.RequestTimeout, cfg.Telegram.PollTimeout)
	}
	if !cfg.Reaper.Enabled || cfg.Reaper.Schedule != "@daily" || cfg.Reaper.InactiveAfter != 168*time.Hour {
		t.Errorf("reaper = %+v", cfg.Reaper)
	}
	if !cfg.Relay.AnnounceNewThreads || cfg.Relay.EagerThreads {
		t.Errorf("relay = %+v", cfg.Relay)
	}
	if cfg.Storage.Driver != storage.DriverFile {
		t.Errorf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Telegram.UseWebhook() {
		t.Error("polling should be the default")
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
  forum_chat_id: -1001234
  request_timeout: 5s
relay:
  staff_ids: [11, 22]
  eager_threads: true
reaper:
  schedule: "0 3 * * *"
  inactive_after: 72h
storage:
  driver: SQLite
  path: /var/lib/relay/state.db
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.ForumChatID != -1001234 {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Telegram.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %s", cfg.Telegram.RequestTimeout)
	}
	if len(cfg.Relay.StaffIDs) != 2 || cfg.Relay.StaffIDs[0] != 11 || cfg.Relay.StaffIDs[1] != 22 {
		t.Errorf("StaffIDs = %v", cfg.Relay.StaffIDs)
	}
	if !cfg.Relay.EagerThreads {
		t.Error("EagerThreads should be true")
	}
	if cfg.Reaper.InactiveAfter != 72*time.Hour {
		t.Errorf("InactiveAfter = %s", cfg.Reaper.InactiveAfter)
	}
	if cfg.Storage.Driver != storage.DriverSQLite {
		t.Errorf("driver = %q, want lower-cased sqlite", cfg.Storage.Driver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfig_EnvAliases(t *testing.T) {
	t.Setenv("TOKEN", "env-token")
	t.Setenv("FORUM_CHAT_ID", "-100777")
	t.Setenv("STAFF_IDS", "5,6")
	t.Setenv("RENDER_EXTERNAL_URL", "https://relay.onrender.com")
	t.Setenv("WEBHOOK_SECRET", "s")
	t.Setenv("STATE_FILE", "/data/state.json")
	t.Setenv("TELEGRAM_POLL_TIMEOUT", "10s")

	path := writeConfig(t, "telegram:\n  token: file-token\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("Token = %q, env should win over file", cfg.Telegram.Token)
	}
	if cfg.Telegram.ForumChatID != -100777 {
		t.Errorf("ForumChatID = %d", cfg.Telegram.ForumChatID)
	}
	if len(cfg.Relay.StaffIDs) != 2 || cfg.Relay.StaffIDs[1] != 6 {
		t.Errorf("StaffIDs = %v", cfg.Relay.StaffIDs)
	}
	if cfg.Telegram.WebhookURL != "https://relay.onrender.com" || !cfg.Telegram.UseWebhook() {
		t.Errorf("WebhookURL = %q", cfg.Telegram.WebhookURL)
	}
	if cfg.Storage.Path != "/data/state.json" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
	if cfg.Telegram.PollTimeout != 10*time.Second {
		t.Errorf("PollTimeout = %s", cfg.Telegram.PollTimeout)
	}
}

func TestLoadConfig_DatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://relay:pw@db.internal:6543/relaydb?sslmode=require")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := DatabaseConfig{Host: "db.internal", Port: 6543, User: "relay", Password: "pw", DBName: "relaydb", SSLMode: "require"}
	if cfg.Database != want {
		t.Errorf("Database = %+v, want %+v", cfg.Database, want)
	}
	if got := cfg.StorageOptions().Postgres.Host; got != "db.internal" {
		t.Errorf("StorageOptions host = %q", got)
	}
}

func TestLoadConfig_BadDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "mysql://x@y/z")

	if _, err := LoadConfig(""); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("err = %v, want DATABASE_URL error", err)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := writeConfig(t, "telegram: [unclosed\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func validConfig() Config {
	return Config{
		Telegram: TelegramConfig{Token: "t", ForumChatID: -1, RequestTimeout: time.Second, PollTimeout: time.Second},
		Reaper:   ReaperConfig{Enabled: true, Schedule: "@daily", InactiveAfter: time.Hour},
		Storage:  StorageConfig{Driver: storage.DriverFile},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"missing chat", func(c *Config) { c.Telegram.ForumChatID = 0 }, "forum_chat_id"},
		{"webhook without secret", func(c *Config) { c.Telegram.WebhookURL = "https://x" }, "webhook_secret"},
		{"zero request timeout", func(c *Config) { c.Telegram.RequestTimeout = 0 }, "request_timeout"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"mysql without dsn", func(c *Config) { c.Storage.Driver = storage.DriverMySQL }, "storage.dsn"},
		{"bad schedule", func(c *Config) { c.Reaper.Schedule = "sometimes" }, "reaper.schedule"},
		{"zero window", func(c *Config) { c.Reaper.InactiveAfter = 0 }, "inactive_after"},
		{"disabled reaper skips schedule", func(c *Config) {
			c.Reaper.Enabled = false
			c.Reaper.Schedule = "sometimes"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
