package config

import (
	"strings"
	"testing"
	"time"
)

// mapBackend is an in-memory ConfigBackend for tests.
type mapBackend struct {
	data map[string]any
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	s, isStr := v.(string)
	if !isStr {
		return "", false, nil
	}
	return s, true, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	i, isInt := v.(int)
	if !isInt {
		return 0, false, nil
	}
	return i, true, nil
}

func (m *mapBackend) SetString(key, val string) error { m.data[key] = val; return nil }
func (m *mapBackend) SetInt(key string, val int) error {
	m.data[key] = val
	return nil
}
func (m *mapBackend) Delete(key string) error { delete(m.data, key); return nil }

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	b := &mapBackend{data: map[string]any{"auth.user_id": "u1"}}

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8600 {
		t.Errorf("Server.Port = %d, want 8600", cfg.Server.Port)
	}
	if cfg.Cloud.BaseURL != "http://localhost:8600" {
		t.Errorf("Cloud.BaseURL = %q", cfg.Cloud.BaseURL)
	}
	if cfg.Cloud.Timeout != 30*time.Second {
		t.Errorf("Cloud.Timeout = %v, want 30s", cfg.Cloud.Timeout)
	}
	if cfg.Storage.QuotaMB != 200 {
		t.Errorf("Storage.QuotaMB = %d, want 200", cfg.Storage.QuotaMB)
	}
	if cfg.Sync.Interval != 15*time.Second {
		t.Errorf("Sync.Interval = %v, want 15s", cfg.Sync.Interval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)
	b := &mapBackend{data: map[string]any{
		"server.port":      9000,
		"cloud.base_url":   "https://cloud.example.com",
		"cloud.timeout":    "5s",
		"storage.data_dir": "/tmp/inkwell-test",
		"storage.quota_mb": 64,
		"sync.interval":    "1m",
		"log.level":        "debug",
		"auth.user_id":     "u1",
	}}

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Cloud.BaseURL != "https://cloud.example.com" {
		t.Errorf("Cloud.BaseURL = %q", cfg.Cloud.BaseURL)
	}
	if cfg.Cloud.Timeout != 5*time.Second {
		t.Errorf("Cloud.Timeout = %v, want 5s", cfg.Cloud.Timeout)
	}
	if cfg.Storage.DataDir != "/tmp/inkwell-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.QuotaMB != 64 {
		t.Errorf("Storage.QuotaMB = %d, want 64", cfg.Storage.QuotaMB)
	}
	if cfg.Sync.Interval != time.Minute {
		t.Errorf("Sync.Interval = %v, want 1m", cfg.Sync.Interval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Auth.UserID != "u1" {
		t.Errorf("Auth.UserID = %q, want u1", cfg.Auth.UserID)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := &mapBackend{data: map[string]any{
		"cloud.base_url": "https://backend.example.com",
		"auth.user_id":   "backend-user",
	}}

	t.Setenv("INKWELL_CLOUD_BASE_URL", "https://env.example.com")
	t.Setenv("INKWELL_AUTH_USER_ID", "env-user")
	t.Setenv("INKWELL_SYNC_INTERVAL", "45s")

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Cloud.BaseURL != "https://env.example.com" {
		t.Errorf("Cloud.BaseURL = %q, want env override", cfg.Cloud.BaseURL)
	}
	if cfg.Auth.UserID != "env-user" {
		t.Errorf("Auth.UserID = %q, want env-user", cfg.Auth.UserID)
	}
	if cfg.Sync.Interval != 45*time.Second {
		t.Errorf("Sync.Interval = %v, want 45s", cfg.Sync.Interval)
	}
}

func TestBadDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	b := &mapBackend{data: map[string]any{
		"cloud.timeout": "not-a-duration",
		"auth.user_id":  "u1",
	}}

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cloud.Timeout != 30*time.Second {
		t.Errorf("Cloud.Timeout = %v, want default 30s", cfg.Cloud.Timeout)
	}
}

func TestMissingUserID(t *testing.T) {
	clearEnv(t)
	b := &mapBackend{data: map[string]any{}}

	_, err := loadWith(b, mockKeychain{})
	if err == nil {
		t.Fatal("expected error for missing user id, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q, want it to mention missing required config", err)
	}
}

func TestKeychainFallbackForToken(t *testing.T) {
	clearEnv(t)
	b := &mapBackend{data: map[string]any{"auth.user_id": "u1"}}

	cfg, err := loadWith(b, mockKeychain{value: "keychain-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cloud.APIToken != "keychain-secret" {
		t.Errorf("Cloud.APIToken = %q, want keychain-secret", cfg.Cloud.APIToken)
	}
}

func TestEnvTokenBeatsKeychain(t *testing.T) {
	clearEnv(t)
	b := &mapBackend{data: map[string]any{"auth.user_id": "u1"}}

	t.Setenv("INKWELL_CLOUD_API_TOKEN", "env-token")

	cfg, err := loadWith(b, mockKeychain{value: "keychain-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cloud.APIToken != "env-token" {
		t.Errorf("Cloud.APIToken = %q, want env-token", cfg.Cloud.APIToken)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Cloud.APIToken = "super-secret"

	for _, info := range ShowAll(cfg) {
		if info.Key == "cloud.api_token" {
			t.Error("ShowAll exposed cloud.api_token")
		}
		if info.Value == "super-secret" {
			t.Errorf("ShowAll leaked the token via key %s", info.Key)
		}
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	want := map[string]bool{
		"server.port": true, "cloud.base_url": true, "sync.interval": true,
		"auth.user_id": true,
	}
	got := map[string]bool{}
	for _, k := range keys {
		got[k] = true
		if k == "cloud.api_token" {
			t.Error("ValidKeys includes the secret key")
		}
	}
	for k := range want {
		if !got[k] {
			t.Errorf("ValidKeys missing %s", k)
		}
	}
}
