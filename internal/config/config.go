package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Cloud   CloudConfig
	Storage StorageConfig
	Sync    SyncConfig
	Log     LogConfig
	Auth    AuthConfig
}

type ServerConfig struct {
	Port int
}

type CloudConfig struct {
	BaseURL  string
	Timeout  time.Duration
	APIToken string
}

type StorageConfig struct {
	DataDir string
	QuotaMB int
}

type SyncConfig struct {
	Interval time.Duration
}

type LogConfig struct {
	Level string
}

type AuthConfig struct {
	UserID string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 8600,
		},
		Cloud: CloudConfig{
			BaseURL: "http://localhost:8600",
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
			QuotaMB: 200,
		},
		Sync: SyncConfig{
			Interval: 15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.inkwell.app) and the
// cloud API token falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/inkwell/config.json
// and the token falls back to a secrets file under $XDG_DATA_HOME.
//
// Environment variables (INKWELL_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for the cloud token if still empty.
	if cfg.Cloud.APIToken == "" {
		if token, err := kc.Get("inkwell", "cloud_api_token"); err == nil && token != "" {
			cfg.Cloud.APIToken = token
		}
	}

	if cfg.Auth.UserID == "" {
		msg := "missing required config: user id. " +
			"Set it via `inkwell config set auth.user_id <id>` " +
			"or environment variable INKWELL_AUTH_USER_ID"
		return Config{}, fmt.Errorf("%s", msg)
	}
	if !userIDPattern.MatchString(cfg.Auth.UserID) {
		return Config{}, fmt.Errorf("invalid auth.user_id %q: use letters, digits, and @._-", cfg.Auth.UserID)
	}

	return cfg, nil
}

// userIDPattern keeps user ids safe to embed in cache paths and HTTP headers.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9@._-]+$`)

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
