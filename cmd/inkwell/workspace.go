package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/calder/inkwell/internal/cloud"
	"github.com/calder/inkwell/internal/config"
	"github.com/calder/inkwell/internal/engine"
	"github.com/calder/inkwell/internal/storage"
	"github.com/calder/inkwell/internal/validate"
)

// workspace bundles the engine and its collaborators for one CLI invocation.
type workspace struct {
	cfg   config.Config
	store *storage.Store
	cloud *cloud.Client
	eng   *engine.Engine
}

// openWorkspace is a variable so tests can substitute an in-memory setup.
var openWorkspace = func() (*workspace, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	setupLogging(cfg.Log.Level)

	// One cache per user: switching accounts on a shared machine must not
	// leak records or pending writes across them.
	store, err := storage.Open(filepath.Join(cfg.Storage.DataDir, "cache", cfg.Auth.UserID))
	if err != nil {
		return nil, fmt.Errorf("opening local cache: %w", err)
	}

	cloudClient := cloud.New(cfg.Cloud.BaseURL, cfg.Cloud.APIToken, cfg.Auth.UserID)
	quota := validate.NewGuard(int64(cfg.Storage.QuotaMB)<<20, store.UsedBytes)
	eng := engine.New(cloudClient, store, quota, cfg.Auth.UserID, slog.Default())

	return &workspace{cfg: cfg, store: store, cloud: cloudClient, eng: eng}, nil
}

func (ws *workspace) Close() {
	if err := ws.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing cache: %v\n", err)
	}
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch {
	case strings.EqualFold(level, "debug"):
		logLevel = slog.LevelDebug
	case strings.EqualFold(level, "warn"):
		logLevel = slog.LevelWarn
	case strings.EqualFold(level, "error"):
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// reportWrite downgrades a queued-offline write to a warning. Everything the
// engine accepted is already in the cache and will reach the cloud on the
// next sync. Auth failures stay errors: the queue cannot drain until the
// user re-authenticates.
func reportWrite(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, cloud.ErrAuth) && errors.Is(err, engine.ErrPendingSync) {
		printWarning("change saved locally, but the cloud rejected your credentials; re-authenticate to sync")
		return err
	}
	if errors.Is(err, engine.ErrPendingSync) {
		printWarning("cloud unreachable; change saved locally and queued for sync")
		return nil
	}
	return err
}

// reportStale warns when a read came from the cache because the cloud was
// unreachable.
func reportStale(stale bool) {
	if stale {
		printWarning("cloud unreachable; showing locally cached data")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
