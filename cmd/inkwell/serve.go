package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/calder/inkwell/internal/api"
	"github.com/calder/inkwell/internal/config"
	"github.com/calder/inkwell/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference cloud server (foreground)",
	Long: `Run the reference cloud server in the foreground.

The server exposes the sync API under /api/v1 and stores records in its own
SQLite database under the data directory. Clients authenticate with the
bearer token from cloud.api_token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the workspace to assistant tooling over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

// storePool opens one record store per user id, lazily, under the server's
// data directory. The api layer validates ids before they get here.
type storePool struct {
	mu     sync.Mutex
	dir    string
	stores map[string]*storage.Store
}

func newStorePool(dir string) *storePool {
	return &storePool{dir: dir, stores: make(map[string]*storage.Store)}
}

func (p *storePool) get(userID string) (*storage.Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if store, ok := p.stores[userID]; ok {
		return store, nil
	}
	store, err := storage.Open(filepath.Join(p.dir, userID))
	if err != nil {
		return nil, err
	}
	p.stores[userID] = store
	return store, nil
}

func (p *storePool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for userID, store := range p.stores {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing store for %s: %v\n", userID, err)
		}
	}
	p.stores = make(map[string]*storage.Store)
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "inkwell.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "inkwell version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	setupLogging(cfg.Log.Level)

	if cfg.Cloud.APIToken == "" {
		return fmt.Errorf("missing cloud.api_token; set it via environment variable INKWELL_CLOUD_API_TOKEN")
	}

	// Refuse to start twice. The health endpoint answers without auth.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("inkwell is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("inkwell is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The server keeps its records apart from any client cache on the same
	// machine, one database per user.
	pool := newStorePool(filepath.Join(cfg.Storage.DataDir, "server"))
	defer pool.closeAll()

	handler := api.NewHandler(api.ServerDeps{
		Stores:     pool.get,
		Token:      cfg.Cloud.APIToken,
		QuotaBytes: int64(cfg.Storage.QuotaMB) << 20,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "inkwell listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("inkwell is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop inkwell (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to inkwell (PID %d)", pid)
	return nil
}

func runMCP() error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{Store: ws.eng})
	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}
