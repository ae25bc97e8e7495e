package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/kalambet/dreamhouse/internal/activity"
	"github.com/kalambet/dreamhouse/internal/api"
	"github.com/kalambet/dreamhouse/internal/capability"
	"github.com/kalambet/dreamhouse/internal/config"
	"github.com/kalambet/dreamhouse/internal/gemini"
	"github.com/kalambet/dreamhouse/internal/media"
	"github.com/kalambet/dreamhouse/internal/metrics"
	"github.com/kalambet/dreamhouse/internal/pipeline"
	"github.com/kalambet/dreamhouse/internal/project"
	"github.com/kalambet/dreamhouse/internal/recolor"
	"github.com/kalambet/dreamhouse/internal/storage"
	"github.com/kalambet/dreamhouse/internal/video"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dreamhouse server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running dreamhouse server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dreamhouse system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "dreamhouse.pid")
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

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func newMediaStore(cfg config.Config) (media.Store, string, error) {
	switch cfg.Media.Backend {
	case "minio":
		s, err := media.NewMinIOStore(media.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, "", err
		}
		return s, "", nil
	default:
		s, err := media.NewFileStore(cfg.Media.Dir, "/media")
		if err != nil {
			return nil, "", err
		}
		return s, s.Dir(), nil
	}
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "dreamhouse version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("dreamhouse is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("dreamhouse is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sessions are in-memory; nothing survives a restart.
	store, err := storage.Open(storage.Memory)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	metrics.Register()
	activityLog := activity.NewLog(store, cfg.Activity.Limit)

	granter := capability.NewSecretGranter(config.NewKeychain(), config.VideoKeyAccount)
	gate := capability.NewGate(granter)
	if state, err := gate.Probe(ctx); err != nil {
		slog.Warn("probing video capability failed", "error", err)
	} else {
		slog.Info("video capability", "state", state)
	}

	client := gemini.NewClient(gemini.Options{
		BaseURL:  cfg.Gemini.BaseURL,
		APIKey:   gemini.StaticKey(cfg.Gemini.APIKey),
		VideoKey: granter,
		Models: gemini.Models{
			Text:  cfg.Gemini.TextModel,
			Image: cfg.Gemini.ImageModel,
			Video: cfg.Gemini.VideoModel,
			Edit:  cfg.Gemini.EditModel,
		},
	})

	mediaStore, mediaDir, err := newMediaStore(cfg)
	if err != nil {
		return fmt.Errorf("opening media store: %w", err)
	}
	slog.Info("media store ready", "backend", cfg.Media.Backend)

	broker := project.NewBroker()
	projects := project.NewCollection(broker)
	projects.OnDelete(func(id string) {
		if err := store.DeleteVideoOperations(id); err != nil {
			slog.Warn("deleting video operations failed", "project_id", id, "error", err)
		}
	})

	controller := pipeline.NewController(client, projects, gate, pipeline.Options{
		Concurrency: cfg.Pipeline.ImageConcurrency,
		Activity:    activityLog,
	})
	poller := video.NewPoller(client, projects, gate, mediaStore, video.Options{
		Interval: cfg.Video.PollInterval,
		MaxWait:  cfg.Video.MaxWait,
		Activity: activityLog,
		Journal:  store,
	})

	deps := api.Deps{
		Controller: controller,
		Projects:   projects,
		Broker:     broker,
		Videos:     poller,
		Recolor:    recolor.New(client, projects, gate, activityLog),
		Gate:       gate,
		Activity:   activityLog,
		MediaDir:   mediaDir,
		Metrics:    metrics.Handler(),
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}
	srv := &http.Server{
		Handler: api.NewHandler(deps),
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "dreamhouse listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	poller.Close()
	controller.Close()
	return err
}

func stopServer() error {
	cfg, err := config.LoadSettings()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("dreamhouse is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop dreamhouse (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to dreamhouse (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.LoadSettings()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	ctx := context.Background()

	running := false
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Text model", "%s", cfg.Gemini.TextModel)
	printStatus("Image model", "%s", cfg.Gemini.ImageModel)
	printStatus("Video model", "%s", cfg.Gemini.VideoModel)
	printStatus("Media", "%s", mediaLabel(cfg))

	if running {
		if resp, err := client.get(ctx, "/capability"); err == nil {
			var state struct {
				State string `json:"state"`
			}
			if decodeJSON(resp, &state) == nil {
				printStatus("Video capability", "%s", state.State)
			}
		}
		if resp, err := client.get(ctx, "/projects?limit=100"); err == nil {
			var projects []struct {
				ID string `json:"id"`
			}
			if decodeJSON(resp, &projects) == nil {
				printStatus("Projects", "%s", countLabel(len(projects), 100))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func mediaLabel(cfg config.Config) string {
	if cfg.Media.Backend == "minio" {
		return fmt.Sprintf("minio %s/%s", cfg.MinIO.Endpoint, cfg.MinIO.Bucket)
	}
	return "file " + cfg.Media.Dir
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
