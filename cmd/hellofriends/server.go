package main

import (
	"context"
	"errors"
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
	"github.com/spf13/cobra"

	"github.com/hellofriends/hellofriends/internal/api"
	"github.com/hellofriends/hellofriends/internal/assistant"
	"github.com/hellofriends/hellofriends/internal/classify"
	"github.com/hellofriends/hellofriends/internal/config"
	"github.com/hellofriends/hellofriends/internal/generator"
	"github.com/hellofriends/hellofriends/internal/ingest"
	"github.com/hellofriends/hellofriends/internal/kb"
	"github.com/hellofriends/hellofriends/internal/llm"
	"github.com/hellofriends/hellofriends/internal/retrieval"
	"github.com/hellofriends/hellofriends/internal/session"
	"github.com/hellofriends/hellofriends/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hellofriends server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running hellofriends server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show hellofriends system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "hellofriends.pid")
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
	fmt.Fprintf(os.Stderr, "hellofriends version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	logger := slog.Default()

	// Refuse to start twice. The health endpoint doubles as the liveness probe.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("hellofriends is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("hellofriends is already running on port %d", cfg.Server.Port)
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

	// With an API key the model embeds and generates; without one the local
	// embedder and the deterministic fallback keep the assistant usable.
	var llmClient *llm.Client
	var embedder retrieval.Embedder
	if cfg.OpenAI.APIKey != "" {
		llmClient = llm.NewClient(cfg.OpenAI.APIKey)
		embedder = retrieval.NewAPIEmbedder(llmClient, cfg.OpenAI.EmbedModel)
		logger.Info("model configured", "model", cfg.OpenAI.Model, "embed_model", cfg.OpenAI.EmbedModel)
	} else {
		embedder = retrieval.NewLocalEmbedder()
		logger.Warn("no API key configured, running in offline fallback mode")
	}

	vectorStore := retrieval.NewSQLiteStore(store.DB())
	retriever := retrieval.NewRetriever(embedder, vectorStore, logger)
	kbStore := kb.NewStore(cfg.KB.Path)
	gen := generator.New(llmClient, cfg.OpenAI.Model, cfg.OpenAI.MaxTokens, cfg.OpenAI.Temperature, logger)
	asst := assistant.New(classify.New(), kbStore, retriever, gen, cfg.Retrieval.TopK, logger)
	sessions := session.NewManager()
	processor := ingest.NewProcessor(ingest.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap), logger)

	logger.Info("knowledge base ready", "entries", kbStore.Count(), "path", cfg.KB.Path)

	if err := indexUploadsIfEmpty(ctx, logger, retriever, processor, cfg.Ingest.UploadDir); err != nil {
		logger.Warn("initial document indexing failed", "error", err)
	}

	handler := api.NewHandler(api.Deps{
		Assistant: asst,
		Sessions:  sessions,
		Store:     store,
		Indexer:   retriever,
		Processor: processor,
		KB:        kbStore,
		UploadDir: cfg.Ingest.UploadDir,
		Token:     cfg.Server.APIToken,
		Logger:    logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server on stdio so agent clients can use the assistant directly.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Assistant: asst,
		Retriever: retriever,
		KB:        kbStore,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "hellofriends listening on %s\n", addr)
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

// indexUploadsIfEmpty seeds the index from the upload directory on a fresh
// database. Re-indexing on every start would be wasteful; operators trigger
// that explicitly via documents process.
func indexUploadsIfEmpty(ctx context.Context, logger *slog.Logger, retriever *retrieval.Retriever, processor *ingest.Processor, uploadDir string) error {
	info, err := retriever.Info()
	if err != nil {
		return err
	}
	if info.ChunkCount > 0 {
		return nil
	}
	if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
		return nil
	}

	report, err := processor.ProcessDir(uploadDir)
	if err != nil {
		return err
	}
	if len(report.Chunks) == 0 {
		return nil
	}

	indexed, err := retriever.Index(ctx, report.Chunks)
	if err != nil {
		return err
	}
	logger.Info("indexed uploaded documents", "files", len(report.Files), "chunks", indexed, "failed", len(report.Failed()))
	return nil
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
		printError("hellofriends is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop hellofriends (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to hellofriends (PID %d)", pid)
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

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.OpenAI.APIKey != "" {
		printStatus("Model", "%s", cfg.OpenAI.Model)
		printStatus("Embeddings", "%s", cfg.OpenAI.EmbedModel)
	} else {
		printStatus("Model", "not configured (offline fallback mode)")
		printStatus("Embeddings", "local")
	}

	kbStore := kb.NewStore(cfg.KB.Path)
	printStatus("Knowledge base", "%s", kbStore.Describe())

	if running {
		if apiClient, err := newAPIClient(); err == nil {
			if infoResp, err := apiClient.get("/index/info"); err == nil {
				var info struct {
					Chunks  int    `json:"chunks"`
					Backend string `json:"backend"`
				}
				if decodeJSON(infoResp, &info) == nil {
					printStatus("Index", "%d chunks (%s)", info.Chunks, info.Backend)
				}
			}
		}
	}

	printStatus("Upload dir", "%s", cfg.Ingest.UploadDir)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
