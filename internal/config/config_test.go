package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the secret store.
type mockKeychain struct {
	values map[string]string
}

func (m mockKeychain) Get(account string) (string, error) {
	v, ok := m.values[account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

// mapBackend is an in-memory ConfigBackend.
type mapBackend struct {
	strings map[string]string
	ints    map[string]int
}

func newMapBackend() *mapBackend {
	return &mapBackend{strings: map[string]string{}, ints: map[string]int{}}
}

func (b *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b.strings[key]
	return v, ok, nil
}

func (b *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.ints[key]
	return v, ok, nil
}

func (b *mapBackend) SetString(key, val string) error {
	b.strings[key] = val
	return nil
}

func (b *mapBackend) SetInt(key string, val int) error {
	b.ints[key] = val
	return nil
}

func (b *mapBackend) Delete(key string) error {
	delete(b.strings, key)
	delete(b.ints, key)
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when the backend is empty.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DREAMHOUSE_GEMINI_API_KEY", "test-key")

	cfg, err := loadWith(newMapBackend(), mockKeychain{}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Server.MaxConns != 64 {
		t.Errorf("Server.MaxConns = %d, want 64", cfg.Server.MaxConns)
	}
	if cfg.Gemini.BaseURL != "https://generativelanguage.googleapis.com/v1beta" {
		t.Errorf("Gemini.BaseURL = %q", cfg.Gemini.BaseURL)
	}
	if cfg.Gemini.TextModel != "gemini-2.5-pro" {
		t.Errorf("Gemini.TextModel = %q", cfg.Gemini.TextModel)
	}
	if cfg.Video.PollInterval != 10*time.Second {
		t.Errorf("Video.PollInterval = %v, want 10s", cfg.Video.PollInterval)
	}
	if cfg.Video.MaxWait != 15*time.Minute {
		t.Errorf("Video.MaxWait = %v, want 15m", cfg.Video.MaxWait)
	}
	if cfg.Media.Backend != "file" || cfg.Media.Dir == "" {
		t.Errorf("Media = %+v", cfg.Media)
	}
	if cfg.MinIO.Bucket != "dreamhouse" {
		t.Errorf("MinIO.Bucket = %q", cfg.MinIO.Bucket)
	}
	if cfg.Activity.Limit != 20 {
		t.Errorf("Activity.Limit = %d, want 20", cfg.Activity.Limit)
	}
	if cfg.Pipeline.ImageConcurrency != 0 {
		t.Errorf("Pipeline.ImageConcurrency = %d, want 0", cfg.Pipeline.ImageConcurrency)
	}
}

// TestBackendValues verifies that values stored in the backend are read.
func TestBackendValues(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b.ints["server.port"] = 5000
	b.ints["pipeline.image_concurrency"] = 3
	b.strings["gemini.text_model"] = "gemini-custom"
	b.strings["video.max_wait"] = "5m"
	b.strings["minio.use_ssl"] = "true"
	b.strings["media.backend"] = "minio"
	b.strings["storage.data_dir"] = "/tmp/dreamhouse-test"

	cfg, err := loadWith(b, mockKeychain{values: map[string]string{APIKeyAccount: "k"}}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Pipeline.ImageConcurrency != 3 {
		t.Errorf("Pipeline.ImageConcurrency = %d", cfg.Pipeline.ImageConcurrency)
	}
	if cfg.Gemini.TextModel != "gemini-custom" {
		t.Errorf("Gemini.TextModel = %q", cfg.Gemini.TextModel)
	}
	if cfg.Video.MaxWait != 5*time.Minute {
		t.Errorf("Video.MaxWait = %v", cfg.Video.MaxWait)
	}
	if !cfg.MinIO.UseSSL || cfg.Media.Backend != "minio" {
		t.Errorf("MinIO.UseSSL = %v, Media.Backend = %q", cfg.MinIO.UseSSL, cfg.Media.Backend)
	}
	if cfg.Storage.DataDir != "/tmp/dreamhouse-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b.ints["server.port"] = 5000
	b.strings["video.poll_interval"] = "30s"

	t.Setenv("DREAMHOUSE_SERVER_PORT", "6000")
	t.Setenv("DREAMHOUSE_VIDEO_POLL_INTERVAL", "2s")
	t.Setenv("DREAMHOUSE_GEMINI_API_KEY", "env-key")

	cfg, err := loadWith(b, mockKeychain{values: map[string]string{APIKeyAccount: "keychain-key"}}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Video.PollInterval != 2*time.Second {
		t.Errorf("Video.PollInterval = %v, want 2s", cfg.Video.PollInterval)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("Gemini.APIKey = %q, want %q", cfg.Gemini.APIKey, "env-key")
	}
}

// TestInvalidEnvKeepsDefault verifies unparsable env values are ignored.
func TestInvalidEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("DREAMHOUSE_VIDEO_MAX_WAIT", "forever")
	t.Setenv("DREAMHOUSE_SERVER_PORT", "abc")

	cfg, err := loadWith(newMapBackend(), mockKeychain{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Video.MaxWait != 15*time.Minute || cfg.Server.Port != 4100 {
		t.Errorf("MaxWait = %v, Port = %d; want defaults", cfg.Video.MaxWait, cfg.Server.Port)
	}
}

// TestMissingRequiredField verifies a clear error when the API key is missing everywhere.
func TestMissingRequiredField(t *testing.T) {
	clearEnv(t)

	_, err := loadWith(newMapBackend(), mockKeychain{}, true)
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if want := "missing required config"; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want it to contain %q", err.Error(), want)
	}

	if _, err := loadWith(newMapBackend(), mockKeychain{}, false); err != nil {
		t.Errorf("settings-only load failed: %v", err)
	}
}

// TestKeychainFallback verifies the keychain is consulted for every secret.
func TestKeychainFallback(t *testing.T) {
	clearEnv(t)

	kc := mockKeychain{values: map[string]string{
		APIKeyAccount:         "keychain-secret",
		MinIOAccessKeyAccount: "access",
		MinIOSecretKeyAccount: "secret",
	}}
	cfg, err := loadWith(newMapBackend(), kc, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gemini.APIKey != "keychain-secret" {
		t.Errorf("Gemini.APIKey = %q, want %q", cfg.Gemini.APIKey, "keychain-secret")
	}
	if cfg.MinIO.AccessKey != "access" || cfg.MinIO.SecretKey != "secret" {
		t.Errorf("MinIO keys = %q/%q", cfg.MinIO.AccessKey, cfg.MinIO.SecretKey)
	}
}

// TestSecretsIgnoredInBackend verifies secrets are never read from the plain backend.
func TestSecretsIgnoredInBackend(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b.strings["gemini.api_key"] = "plain-text"

	if _, err := loadWith(b, mockKeychain{}, true); err == nil {
		t.Fatal("expected missing key error; backend secrets must be ignored")
	}
}

func TestInvalidMediaBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("DREAMHOUSE_MEDIA_BACKEND", "s3")

	if _, err := loadWith(newMapBackend(), mockKeychain{}, false); err == nil {
		t.Fatal("expected error for unknown media backend")
	}
}

func TestSetKey(t *testing.T) {
	b := newMapBackend()

	if err := setKey(b, "server.port", "4200"); err != nil {
		t.Fatalf("setKey(server.port): %v", err)
	}
	if b.ints["server.port"] != 4200 {
		t.Errorf("server.port = %d", b.ints["server.port"])
	}
	if err := setKey(b, "video.max_wait", "90s"); err != nil {
		t.Fatalf("setKey(video.max_wait): %v", err)
	}
	if b.strings["video.max_wait"] != "1m30s" {
		t.Errorf("video.max_wait = %q", b.strings["video.max_wait"])
	}
	if err := setKey(b, "minio.use_ssl", "yes"); err == nil {
		t.Error("expected error for invalid bool")
	}
	if err := setKey(b, "server.port", "many"); err == nil {
		t.Error("expected error for invalid integer")
	}
	if err := setKey(b, "gemini.api_key", "x"); err == nil {
		t.Error("expected error when setting a secret")
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Gemini.APIKey = "super-secret"

	for _, k := range ShowAll(cfg) {
		if strings.Contains(k.Key, "api_key") || strings.Contains(k.Key, "secret_key") || k.Value == "super-secret" {
			t.Errorf("secret exposed: %+v", k)
		}
	}
	if len(ShowAll(cfg)) != len(ValidKeys()) {
		t.Error("ShowAll and ValidKeys disagree")
	}
}
