package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
api:
  rest_url: https://auction.example.com
  ws_url: wss://auction.example.com/ws/auction-updates
  token: abc
connection:
  reconnect_base_delay: 250ms
  max_reconnect_attempts: 8
reconciler:
  tie_break: incumbent
journal:
  enabled: true
database:
  host: localhost
  port: 5432
  name: auctions
  user: watcher
  password: watcherpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.RestURL != "https://auction.example.com" {
		t.Errorf("API.RestURL = %q, want %q", cfg.API.RestURL, "https://auction.example.com")
	}
	if cfg.API.Token != "abc" {
		t.Errorf("API.Token = %q, want %q", cfg.API.Token, "abc")
	}
	if cfg.Connection.ReconnectBaseDelay != 250*time.Millisecond {
		t.Errorf("Connection.ReconnectBaseDelay = %v, want 250ms", cfg.Connection.ReconnectBaseDelay)
	}
	if cfg.Connection.MaxReconnectAttempts != 8 {
		t.Errorf("Connection.MaxReconnectAttempts = %d, want 8", cfg.Connection.MaxReconnectAttempts)
	}
	if cfg.Reconciler.TieBreak != "incumbent" {
		t.Errorf("Reconciler.TieBreak = %q, want incumbent", cfg.Reconciler.TieBreak)
	}
	if !cfg.Journal.Enabled {
		t.Error("Journal.Enabled = false, want true")
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_AUCTION_TOKEN", "secret-jwt")
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
api:
  token: ${TEST_AUCTION_TOKEN}
database:
  host: localhost
  name: auctions
  user: watcher
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.Token != "secret-jwt" {
		t.Errorf("API.Token = %q, want %q", cfg.API.Token, "secret-jwt")
	}
	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load error = %v, want read config file error", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempFile(t, "api: [unterminated")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("Load error = %v, want parse error", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "api:\n  token: abc\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.API.RestURL != DefaultRestURL {
		t.Errorf("API.RestURL = %q, want default %q", cfg.API.RestURL, DefaultRestURL)
	}
	if cfg.API.WSURL != DefaultWSURL {
		t.Errorf("API.WSURL = %q, want default %q", cfg.API.WSURL, DefaultWSURL)
	}
	if cfg.Connection.ReconnectBaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("Connection.ReconnectBaseDelay = %v, want default %v", cfg.Connection.ReconnectBaseDelay, DefaultReconnectBaseDelay)
	}
	if cfg.Connection.ReconnectMaxDelay != DefaultReconnectMaxDelay {
		t.Errorf("Connection.ReconnectMaxDelay = %v, want default %v", cfg.Connection.ReconnectMaxDelay, DefaultReconnectMaxDelay)
	}
	if cfg.Connection.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("Connection.MaxReconnectAttempts = %d, want default %d", cfg.Connection.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	}
	if cfg.Reconciler.TieBreak != DefaultTieBreak {
		t.Errorf("Reconciler.TieBreak = %q, want default %q", cfg.Reconciler.TieBreak, DefaultTieBreak)
	}
	if cfg.Catalog.RefreshInterval != DefaultCatalogRefresh {
		t.Errorf("Catalog.RefreshInterval = %v, want default %v", cfg.Catalog.RefreshInterval, DefaultCatalogRefresh)
	}
	if cfg.Poller.TickInterval != DefaultPollTickInterval {
		t.Errorf("Poller.TickInterval = %v, want default %v", cfg.Poller.TickInterval, DefaultPollTickInterval)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Health.Port != DefaultHealthPort {
		t.Errorf("Health.Port = %d, want default %d", cfg.Health.Port, DefaultHealthPort)
	}
	if cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("Logging.Format = %q, want default %q", cfg.Logging.Format, DefaultLogFormat)
	}
}

func TestLoadAndValidate(t *testing.T) {
	t.Run("journal disabled needs no database", func(t *testing.T) {
		path := writeTempFile(t, "journal:\n  enabled: false\n")
		if _, err := LoadAndValidate(path); err != nil {
			t.Errorf("LoadAndValidate failed: %v", err)
		}
	})

	t.Run("journal enabled requires database", func(t *testing.T) {
		path := writeTempFile(t, "journal:\n  enabled: true\n")
		_, err := LoadAndValidate(path)
		if err == nil || !strings.Contains(err.Error(), "database.host is required") {
			t.Errorf("LoadAndValidate error = %v, want database.host is required", err)
		}
	})
}

func TestDefault(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WatcherConfig)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *WatcherConfig) {},
			wantErr: "",
		},
		{
			name:    "missing rest url",
			mutate:  func(c *WatcherConfig) { c.API.RestURL = "" },
			wantErr: "api.rest_url is required",
		},
		{
			name:    "ws url with http scheme",
			mutate:  func(c *WatcherConfig) { c.API.WSURL = "http://localhost:8080/ws" },
			wantErr: `api.ws_url must use scheme ws or wss, got "http"`,
		},
		{
			name:    "max delay below base",
			mutate:  func(c *WatcherConfig) { c.Connection.ReconnectMaxDelay = 100 * time.Millisecond },
			wantErr: "connection.reconnect_max_delay (100ms) cannot be less than reconnect_base_delay (500ms)",
		},
		{
			name:    "zero reconnect attempts",
			mutate:  func(c *WatcherConfig) { c.Connection.MaxReconnectAttempts = -1 },
			wantErr: "connection.max_reconnect_attempts must be >= 1",
		},
		{
			name:    "ping timeout not above interval",
			mutate:  func(c *WatcherConfig) { c.Connection.PingTimeout = c.Connection.PingInterval },
			wantErr: "connection.ping_timeout must be greater than ping_interval",
		},
		{
			name:    "unknown tie break",
			mutate:  func(c *WatcherConfig) { c.Reconciler.TieBreak = "earlier" },
			wantErr: `reconciler.tie_break must be later or incumbent, got "earlier"`,
		},
		{
			name: "missing database password",
			mutate: func(c *WatcherConfig) {
				c.Journal.Enabled = true
				c.Database.Host = "localhost"
				c.Database.Name = "db"
				c.Database.User = "user"
			},
			wantErr: "database.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *WatcherConfig) {
				c.Journal.Enabled = true
				c.Database = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "negative catalog refresh",
			mutate:  func(c *WatcherConfig) { c.Catalog.RefreshInterval = -time.Second },
			wantErr: "catalog.refresh_interval must be > 0",
		},
		{
			name:    "health port out of range",
			mutate:  func(c *WatcherConfig) { c.Health.Port = 70000 },
			wantErr: "health.port must be 1-65535, got 70000",
		},
		{
			name:    "bad log format",
			mutate:  func(c *WatcherConfig) { c.Logging.Format = "xml" },
			wantErr: `logging.format must be text or json, got "xml"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
