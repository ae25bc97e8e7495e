package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Gemini   GeminiConfig
	Pipeline PipelineConfig
	Video    VideoConfig
	Media    MediaConfig
	MinIO    MinIOConfig
	Activity ActivityConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port     int
	MaxConns int
}

type StorageConfig struct {
	DataDir string
}

type GeminiConfig struct {
	BaseURL    string
	APIKey     string
	TextModel  string
	ImageModel string
	VideoModel string
	EditModel  string
}

type PipelineConfig struct {
	ImageConcurrency int
}

type VideoConfig struct {
	PollInterval time.Duration
	MaxWait      time.Duration
}

type MediaConfig struct {
	Backend string
	Dir     string
}

type MinIOConfig struct {
	Endpoint  string
	Bucket    string
	UseSSL    bool
	AccessKey string
	SecretKey string
}

type ActivityConfig struct {
	Limit int
}

type LogConfig struct {
	Level string
}

// Keychain accounts under the "dreamhouse" service.
const (
	APIKeyAccount         = "gemini_api_key"
	VideoKeyAccount       = "gemini_video_key"
	MinIOAccessKeyAccount = "minio_access_key"
	MinIOSecretKeyAccount = "minio_secret_key"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     4100,
			MaxConns: 64,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Gemini: GeminiConfig{
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
			TextModel:  "gemini-2.5-pro",
			ImageModel: "imagen-4.0-generate-001",
			VideoModel: "veo-3.0-fast-generate-001",
			EditModel:  "gemini-2.5-flash-image",
		},
		Video: VideoConfig{
			PollInterval: 10 * time.Second,
			MaxWait:      15 * time.Minute,
		},
		Media: MediaConfig{
			Backend: "file",
			Dir:     defaultMediaDir(),
		},
		MinIO: MinIOConfig{
			Bucket: "dreamhouse",
		},
		Activity: ActivityConfig{
			Limit: 20,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store, and fails when the Gemini API key is
// missing.
//
// On macOS the backend is UserDefaults (domain: com.dreamhouse.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/dreamhouse/config.json
// and secrets fall back to $XDG_DATA_HOME/dreamhouse/secrets.json.
//
// Environment variables (DREAMHOUSE_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain(), true)
}

// LoadSettings is Load without the API key requirement, for commands that
// only talk to a running server.
func LoadSettings() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain(), false)
}

// secretReader abstracts Keychain access for testing.
type secretReader interface {
	Get(account string) (string, error)
}

func loadWith(b ConfigBackend, kc secretReader, requireKey bool) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	fallback := func(dst *string, account string) {
		if *dst != "" {
			return
		}
		if v, err := kc.Get(account); err == nil && v != "" {
			*dst = v
		}
	}
	fallback(&cfg.Gemini.APIKey, APIKeyAccount)
	fallback(&cfg.MinIO.AccessKey, MinIOAccessKeyAccount)
	fallback(&cfg.MinIO.SecretKey, MinIOSecretKeyAccount)

	if requireKey && cfg.Gemini.APIKey == "" {
		msg := "missing required config: Gemini API key. " +
			"Set it via environment variable DREAMHOUSE_GEMINI_API_KEY" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	switch cfg.Media.Backend {
	case "file", "minio":
	default:
		return Config{}, fmt.Errorf("invalid media.backend %q: want file or minio", cfg.Media.Backend)
	}

	return cfg, nil
}
