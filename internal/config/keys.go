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
		key: "server.port", typ: kInt, env: "INKWELL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "cloud.base_url", typ: kString, env: "INKWELL_CLOUD_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Cloud.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Cloud.BaseURL },
	},
	{
		key: "cloud.timeout", typ: kDuration, env: "INKWELL_CLOUD_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Cloud.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cloud.Timeout },
	},
	{
		key: "cloud.api_token", typ: kString, env: "INKWELL_CLOUD_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Cloud.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Cloud.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "INKWELL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.quota_mb", typ: kInt, env: "INKWELL_STORAGE_QUOTA_MB",
		apply:   func(cfg *Config, v any) { cfg.Storage.QuotaMB = v.(int) },
		extract: func(cfg Config) any { return cfg.Storage.QuotaMB },
	},
	{
		key: "sync.interval", typ: kDuration, env: "INKWELL_SYNC_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Sync.Interval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Sync.Interval },
	},
	{
		key: "log.level", typ: kString, env: "INKWELL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "auth.user_id", typ: kString, env: "INKWELL_AUTH_USER_ID",
		apply:   func(cfg *Config, v any) { cfg.Auth.UserID = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.UserID },
	},
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
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
