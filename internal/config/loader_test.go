package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadFile(t *testing.T) {
	// Create a temp YAML file
	tmpFile, err := os.CreateTemp("", "test-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "0.0.0.0"
  port: 9999
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	os.Setenv("TEST_PORT", "7777")
	defer os.Unsetenv("TEST_PORT")

	tmpFile, err := os.CreateTemp("", "test-config-env-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "${TEST_HOST:127.0.0.1}"
  port: ${TEST_PORT}
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1 (default), got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const fileSourceConfig = `
moderation:
  rule_source: file
  on_store_error: reject
`

const rulesYAML = `
settings:
  enabled: true
  max_message_length: "120"
rules:
  - pattern: "spam"
    action: block
  - pattern: "darn"
    action: replace
    replacement: "d***"
  - pattern: "old"
    action: flag
    active: false
`

func TestLoader_LoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "moderator.yaml"), "server:\n  port: 9000\n")

	l := NewLoader(dir, testLogger())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := l.Config()
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Moderation.RuleSource != RuleSourcePostgres {
		t.Errorf("expected default rule source postgres, got %q", cfg.Moderation.RuleSource)
	}
	if cfg.Moderation.OnStoreError != StoreErrorDefaults {
		t.Errorf("expected default store error policy, got %q", cfg.Moderation.OnStoreError)
	}
	if cfg.Moderation.SettingsKey != "chat_filter" {
		t.Errorf("expected default settings key, got %q", cfg.Moderation.SettingsKey)
	}
	if l.Rules() != nil {
		t.Error("expected no file rules for postgres source")
	}
}

func TestLoader_LoadFileRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "moderator.yaml"), fileSourceConfig)
	writeFile(t, filepath.Join(dir, "rules.yaml"), rulesYAML)

	l := NewLoader(dir, testLogger())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	rules := l.Rules()
	if rules == nil {
		t.Fatal("expected rules to be loaded")
	}
	if len(rules.Rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rules.Rules))
	}
	if rules.Rules[1].Replacement != "d***" {
		t.Errorf("unexpected replacement %q", rules.Rules[1].Replacement)
	}
	if !rules.Rules[0].IsActive() || rules.Rules[2].IsActive() {
		t.Error("unexpected active flags")
	}
	if rules.Settings["max_message_length"] != "120" {
		t.Errorf("unexpected settings %v", rules.Settings)
	}
}

func TestLoader_MissingRulesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "moderator.yaml"), fileSourceConfig)

	l := NewLoader(dir, testLogger())
	if err := l.Load(); err == nil {
		t.Fatal("expected error for missing rules file")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"file source", func(c *Config) { c.Moderation.RuleSource = RuleSourceFile }, false},
		{"unknown source", func(c *Config) { c.Moderation.RuleSource = "mongo" }, true},
		{"reject policy", func(c *Config) { c.Moderation.OnStoreError = StoreErrorReject }, false},
		{"unknown policy", func(c *Config) { c.Moderation.OnStoreError = "panic" }, true},
		{"empty settings key", func(c *Config) { c.Moderation.SettingsKey = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "chatfilter", User: "svc", Password: "p@ss"}
	want := "postgres://svc:p%40ss@db:5432/chatfilter?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoader_WatchReloadsRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "moderator.yaml"), fileSourceConfig)
	rulesPath := filepath.Join(dir, "rules.yaml")
	writeFile(t, rulesPath, rulesYAML)

	l := NewLoader(dir, testLogger())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	reloaded := make(chan struct{}, 10)
	l.OnReload(func() { reloaded <- struct{}{} })
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writeFile(t, rulesPath, "rules:\n  - pattern: \"new\"\n    action: flag\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-reloaded:
			if rules := l.Rules(); rules != nil && len(rules.Rules) == 1 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

func TestLoader_OnReloadWhileNotifying(t *testing.T) {
	l := NewLoader(t.TempDir(), testLogger())

	var mu sync.Mutex
	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			l.notify()
		}
	}()
	for i := 0; i < 100; i++ {
		l.OnReload(func() {
			mu.Lock()
			calls++
			mu.Unlock()
		})
	}
	<-done

	mu.Lock()
	calls = 0
	mu.Unlock()
	l.notify()
	mu.Lock()
	defer mu.Unlock()
	if calls != 100 {
		t.Errorf("expected every registered callback to run, got %d", calls)
	}
}

func TestLoader_OnReloadAfterWatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "moderator.yaml"), fileSourceConfig)
	rulesPath := filepath.Join(dir, "rules.yaml")
	writeFile(t, rulesPath, rulesYAML)

	l := NewLoader(dir, testLogger())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	reloaded := make(chan struct{}, 10)
	l.OnReload(func() { reloaded <- struct{}{} })

	writeFile(t, rulesPath, "rules:\n  - pattern: \"later\"\n    action: flag\n")

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a callback registered after Watch")
	}
}
