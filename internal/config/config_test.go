package config

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/court-autobook/internal/secret"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"LISTEN_ADDR", "AUTOBOOK_CONFIG", "CONTROL_PASSWORD_HASH", "SECRET_KEY", "BOOKING_PACE_MS", "UPSTREAM_TIMEOUT_SECONDS", "PROXY_TIMEOUT_SECONDS"} {
		t.Setenv(k, "")
	}
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ListenAddr != ":3000" || cfg.SettingsPath != "config.json" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.UpstreamTimeout != 10*time.Second || cfg.ProxyTimeout != 120*time.Second || cfg.BookingPace != 0 {
		t.Fatalf("unexpected timeouts: %+v", cfg)
	}
	if cfg.AuthEnabled() {
		t.Fatal("auth should be off without a password hash")
	}
}

func TestFromEnvRequiresCookieKeysWithPassword(t *testing.T) {
	t.Setenv("CONTROL_PASSWORD_HASH", "$2a$10$abc")
	t.Setenv("COOKIE_HASH_KEY", "")
	t.Setenv("COOKIE_BLOCK_KEY", "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error without cookie keys")
	}

	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))
	t.Setenv("COOKIE_HASH_KEY", key)
	t.Setenv("COOKIE_BLOCK_KEY", key)
	t.Setenv("SECRET_KEY", base64.StdEncoding.EncodeToString([]byte("too short")))
	if _, err := FromEnv(); err == nil || !strings.Contains(err.Error(), "SECRET_KEY") {
		t.Fatalf("expected SECRET_KEY length error, got %v", err)
	}

	t.Setenv("SECRET_KEY", key)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if !cfg.AuthEnabled() || len(cfg.CookieHashKey) != 32 || len(cfg.SecretKey) != 32 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestStoreMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	s := NewStore(filepath.Join(t.TempDir(), "config.json"), nil)
	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st != DefaultSettings() {
		t.Fatalf("Load = %+v", st)
	}
}

func TestStoreMergesFileOverDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tests := []struct {
		name, file, body string
	}{
		{name: "json", file: "config.json", body: `{"token":"abc","locationId":"loc-9"}`},
		{name: "yaml", file: "config.yaml", body: "token: abc\nlocationId: loc-9\n"},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, tt.file)
		if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
			t.Fatal(err)
		}
		st, err := NewStore(path, nil).Load()
		if err != nil {
			t.Fatalf("%s: Load: %v", tt.name, err)
		}
		if st.Token != "abc" || st.LocationID != "loc-9" || st.ReservationTypeID != 85 {
			t.Fatalf("%s: Load = %+v", tt.name, st)
		}
	}

	extra := filepath.Join(dir, "extra.json")
	_ = os.WriteFile(extra, []byte(`{"tokne":"typo","locationId":"loc-2"}`), 0o600)
	var logs bytes.Buffer
	s := NewStore(extra, nil)
	s.SetLogger(zerolog.New(&logs))
	st, err := s.Load()
	if err != nil {
		t.Fatalf("unknown key: Load: %v", err)
	}
	if st.LocationID != "loc-2" || st.Token != "" {
		t.Fatalf("unknown key: Load = %+v", st)
	}
	if !strings.Contains(logs.String(), "tokne") {
		t.Fatalf("unknown key not reported: %s", logs.String())
	}

	broken := filepath.Join(dir, "broken.json")
	_ = os.WriteFile(broken, []byte(`{"token":`), 0o600)
	if _, err := NewStore(broken, nil).Load(); err == nil {
		t.Fatal("expected malformed file to fail")
	}
}

func TestStoreUpdateWritesSealedToken(t *testing.T) {
	t.Parallel()
	box, err := secret.New(bytes.Repeat([]byte{3}, 32))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	s := NewStore(path, box)

	patch, err := PatchFromPairs([]string{"token=sekret-token-value", "reservationTypeId=90"})
	if err != nil {
		t.Fatalf("PatchFromPairs: %v", err)
	}
	st, err := s.Update(patch)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if st.Token != "sekret-token-value" || st.ReservationTypeID != 90 || s.Snapshot() != st {
		t.Fatalf("Update = %+v", st)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "sekret-token-value") || !strings.Contains(string(raw), secret.Prefix) {
		t.Fatalf("token not sealed on disk: %s", raw)
	}

	again, err := NewStore(path, box).Load()
	if err != nil || again.Token != "sekret-token-value" {
		t.Fatalf("reload = %+v, %v", again, err)
	}
	if _, err := NewStore(path, nil).Load(); err == nil {
		t.Fatal("expected sealed token without key to fail")
	}
}

func TestStoreUpdateRejectsInvalid(t *testing.T) {
	t.Parallel()
	s := NewStore(filepath.Join(t.TempDir(), "config.json"), nil)
	if _, err := s.Update(map[string]any{"apiBase": "ftp://nope"}); err == nil {
		t.Fatal("expected invalid apiBase to be rejected")
	}
	if _, err := s.Update(map[string]any{"colour": "blue"}); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
	if s.Snapshot() != DefaultSettings() {
		t.Fatal("failed update changed settings")
	}
	if _, err := PatchFromPairs([]string{"novalue"}); err == nil {
		t.Fatal("expected malformed pair to fail")
	}
}

func TestStoreWatchReloads(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"token":"one"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path, nil)
	if _, err := s.Load(); err != nil {
		t.Fatal(err)
	}
	changed := make(chan Settings, 1)
	s.OnChange = func(st Settings) { changed <- st }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Watch(ctx) }()
	// let the watcher register before writing
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`{"token":"two"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case st := <-changed:
		if st.Token != "two" {
			t.Fatalf("reloaded token = %q", st.Token)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not reload")
	}
	if s.Snapshot().Token != "two" {
		t.Fatal("snapshot not updated")
	}
}

func TestRedactToken(t *testing.T) {
	t.Parallel()
	if got := RedactToken("abcdefghijklmnopqrstuvwxyz"); got != "abcd…wxyz" {
		t.Fatalf("RedactToken = %q", got)
	}
	if RedactToken("short") != "****" || RedactToken("") != "" {
		t.Fatal("short tokens must be fully hidden")
	}
}
