package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DREAMHOUSE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_conns", typ: kInt, env: "DREAMHOUSE_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DREAMHOUSE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "gemini.base_url", typ: kString, env: "DREAMHOUSE_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "gemini.text_model", typ: kString, env: "DREAMHOUSE_GEMINI_TEXT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.TextModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.TextModel },
	},
	{
		key: "gemini.image_model", typ: kString, env: "DREAMHOUSE_GEMINI_IMAGE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.ImageModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.ImageModel },
	},
	{
		key: "gemini.video_model", typ: kString, env: "DREAMHOUSE_GEMINI_VIDEO_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.VideoModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.VideoModel },
	},
	{
		key: "gemini.edit_model", typ: kString, env: "DREAMHOUSE_GEMINI_EDIT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.EditModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.EditModel },
	},
	{
		key: "gemini.api_key", typ: kString, env: "DREAMHOUSE_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "pipeline.image_concurrency", typ: kInt, env: "DREAMHOUSE_PIPELINE_IMAGE_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.ImageConcurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.ImageConcurrency },
	},
	{
		key: "video.poll_interval", typ: kDuration, env: "DREAMHOUSE_VIDEO_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Video.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Video.PollInterval },
	},
	{
		key: "video.max_wait", typ: kDuration, env: "DREAMHOUSE_VIDEO_MAX_WAIT",
		apply:   func(cfg *Config, v any) { cfg.Video.MaxWait = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Video.MaxWait },
	},
	{
		key: "media.backend", typ: kString, env: "DREAMHOUSE_MEDIA_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Media.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Media.Backend },
	},
	{
		key: "media.dir", typ: kString, env: "DREAMHOUSE_MEDIA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Media.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Media.Dir },
	},
	{
		key: "minio.endpoint", typ: kString, env: "DREAMHOUSE_MINIO_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.MinIO.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.MinIO.Endpoint },
	},
	{
		key: "minio.bucket", typ: kString, env: "DREAMHOUSE_MINIO_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.MinIO.Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.MinIO.Bucket },
	},
	{
		key: "minio.use_ssl", typ: kBool, env: "DREAMHOUSE_MINIO_USE_SSL",
		apply:   func(cfg *Config, v any) { cfg.MinIO.UseSSL = v.(bool) },
		extract: func(cfg Config) any { return cfg.MinIO.UseSSL },
	},
	{
		key: "minio.access_key", typ: kString, env: "DREAMHOUSE_MINIO_ACCESS_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.MinIO.AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.MinIO.AccessKey },
	},
	{
		key: "minio.secret_key", typ: kString, env: "DREAMHOUSE_MINIO_SECRET_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.MinIO.SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.MinIO.SecretKey },
	},
	{
		key: "activity.limit", typ: kInt, env: "DREAMHOUSE_ACTIVITY_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Activity.Limit = v.(int) },
		extract: func(cfg Config) any { return cfg.Activity.Limit },
	},
	{
		key: "log.level", typ: kString, env: "DREAMHOUSE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
