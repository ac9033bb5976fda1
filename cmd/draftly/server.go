package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mikelarin/draftly/internal/api"
	"github.com/mikelarin/draftly/internal/composer"
	"github.com/mikelarin/draftly/internal/config"
	"github.com/mikelarin/draftly/internal/convo"
	"github.com/mikelarin/draftly/internal/feedback"
	"github.com/mikelarin/draftly/internal/guardrail"
	"github.com/mikelarin/draftly/internal/knowledge"
	"github.com/mikelarin/draftly/internal/model"
	"github.com/mikelarin/draftly/internal/pipeline"
	"github.com/mikelarin/draftly/internal/platform"
	"github.com/mikelarin/draftly/internal/quota"
	"github.com/mikelarin/draftly/internal/storage"
	"github.com/mikelarin/draftly/internal/style"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the draftly server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running draftly server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show draftly system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "draftly.pid")
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
	fmt.Fprintf(os.Stderr, "draftly version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to double-start: probe the health endpoint before claiming
	// the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("draftly is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("draftly is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Quota ledger backend.
	var ledger quota.Ledger
	switch cfg.Quota.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Quota.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis at %s: %w", cfg.Quota.RedisAddr, err)
		}
		defer rdb.Close()
		ledger = quota.NewRedisLedger(rdb, cfg.Quota.IncludedUnits, cfg.Quota.OverageAllowance)
		slog.Info("quota ledger backend", "backend", "redis", "addr", cfg.Quota.RedisAddr)
	case "sqlite", "":
		ledger = quota.NewSQLiteLedger(store, cfg.Quota.IncludedUnits, cfg.Quota.OverageAllowance)
		slog.Info("quota ledger backend", "backend", "sqlite")
	default:
		return fmt.Errorf("unknown quota backend %q (expected sqlite or redis)", cfg.Quota.Backend)
	}
	quotaCtl := quota.NewController(ledger)

	// Clients and pipeline.
	platformClient := platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.BotToken)
	modelClient := model.NewClient(cfg.Model.BaseURL, cfg.Model.APIKey)

	embedder := knowledge.NewEmbedder(modelClient, cfg.Model.EmbedModel)
	vectors := knowledge.NewVectors(store.DB())
	retriever := knowledge.NewRetriever(embedder, vectors, cfg.Knowledge.TopK)

	recorder := feedback.NewRecorder(store)

	runner := &pipeline.Runner{
		Convo:      convo.NewAssembler(platformClient, time.Duration(cfg.Context.WindowMinutes)*time.Minute, cfg.Context.MaxMessages),
		Style:      style.NewResolver(store),
		Quota:      quotaCtl,
		Classifier: model.NewClassifier(modelClient, cfg.Model.ClassifierModel),
		Retriever:  retriever,
		Composer:   composer.New(cfg.Model.GenerationModel, cfg.Knowledge.MaxContextTokens),
		Generator:  pipeline.ModelGenerator{Client: modelClient},
		Checker:    guardrail.NewValidator(cfg.Guardrail.Phrases()),
		Store:      store,
		Auditor:    recorder,
		Poster:     platformClient,
	}

	handler := api.NewHandler(api.Deps{
		Store:     store,
		Runner:    runner,
		Recorder:  recorder,
		Quota:     quotaCtl,
		Sender:    platformClient,
		Vectors:   vectors,
		Ephemeral: platformClient,
		Token:     cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Background workers: snippet embedding and feedback/audit drain.
	embedWorker := knowledge.NewWorker(store, embedder, vectors, 500*time.Millisecond)
	go embedWorker.Run(ctx)
	feedbackWorker := feedback.NewWorker(store, 500*time.Millisecond)
	go feedbackWorker.Run(ctx)

	// MCP server on stdio transport.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:  store,
		Runner: runner,
		Quota:  quotaCtl,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "draftly listening on %s\n", addr)
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
		printError("draftly is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop draftly (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to draftly (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Generation model", "%s", cfg.Model.GenerationModel)
	printStatus("Classifier model", "%s", cfg.Model.ClassifierModel)
	printStatus("Embed model", "%s", cfg.Model.EmbedModel)
	printStatus("Quota backend", "%s", cfg.Quota.Backend)
	printStatus("Quota plan", "%d included + %d overage per month", cfg.Quota.IncludedUnits, cfg.Quota.OverageAllowance)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
