package main

import (
	"context"
	"encoding/json"
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
	"golang.org/x/sync/errgroup"

	"github.com/kazmin/rubrica/internal/api"
	"github.com/kazmin/rubrica/internal/config"
	"github.com/kazmin/rubrica/internal/evalstore"
	"github.com/kazmin/rubrica/internal/llm"
	"github.com/kazmin/rubrica/internal/ollama"
	"github.com/kazmin/rubrica/internal/runner"
	"github.com/kazmin/rubrica/internal/scoring"
	"github.com/kazmin/rubrica/internal/standard"
	"github.com/kazmin/rubrica/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the rubrica server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running rubrica server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show rubrica system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "rubrica.pid")
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
	fmt.Fprintf(os.Stderr, "rubrica version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to start twice. Probe the health endpoint instead of trusting a
	// stale PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("rubrica is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("rubrica is already running on port %d", cfg.Server.Port)
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

	// When the endpoint is a local Ollama, make sure the scoring model is
	// pulled and loaded before serving. Remote endpoints skip this.
	native := ollama.New(ollama.NativeBaseURL(cfg.LLM.BaseURL))
	if native.IsRunning(ctx) {
		if err := ollama.EnsureModel(ctx, native, cfg.LLM.Model, os.Stderr); err != nil {
			printWarning("model setup: %v", err)
		}
	} else {
		slog.Debug("no local model runtime detected, skipping model setup", "base_url", cfg.LLM.BaseURL)
	}

	// One completion client backs everything: scoring, rubric generation,
	// and the models listing.
	llmClient := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	evaluator := scoring.NewEvaluator(llmClient)

	standards := standard.NewRepository(store)
	generator := standard.NewGenerator(llmClient)
	evals := evalstore.New(store, slog.Default())
	registry := api.NewRunRegistry(evaluator, evals, slog.Default())

	handler := api.NewHandler(api.Deps{
		Standards: standards,
		Evals:     evals,
		Runs:      registry,
		Models:    llmClient,
		Generator: generator,
		LLM:       cfg.LLM,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Standards: standards,
		Evals:     evals,
		Runner:    runner.New(evaluator),
		LLM:       cfg.LLM,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "rubrica listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// MCP over stdio. A closed stdin only ends the MCP side; the HTTP server
	// keeps serving.
	g.Go(func() error {
		stdioSrv := server.NewStdioServer(mcpSrv)
		slog.Info("MCP server started (stdio transport)")
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
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
		printError("rubrica is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop rubrica (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to rubrica (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
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

	// Probe the scoring endpoint directly; the server does not have to be up.
	llmClient := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	if _, err := llmClient.ListModels(ctx); err != nil {
		printStatus("Scoring endpoint", "not reachable at %s", cfg.LLM.BaseURL)
	} else {
		printStatus("Scoring endpoint", "reachable at %s", cfg.LLM.BaseURL)
	}

	native := ollama.New(ollama.NativeBaseURL(cfg.LLM.BaseURL))
	if native.IsRunning(ctx) {
		if native.HasModel(ctx, cfg.LLM.Model) {
			printStatus("Model", "%s (pulled)", cfg.LLM.Model)
		} else {
			printStatus("Model", "%s (not pulled)", cfg.LLM.Model)
		}
	} else {
		printStatus("Model", "%s", cfg.LLM.Model)
	}

	if running {
		if stdResp, err := client.Get(serverURL + "/standards"); err == nil {
			var standards []json.RawMessage
			if json.NewDecoder(stdResp.Body).Decode(&standards) == nil {
				printStatus("Standards", "%d", len(standards))
			}
			stdResp.Body.Close()
		}
		if grpResp, err := client.Get(serverURL + "/groups"); err == nil {
			var groups []evalstore.Group
			if json.NewDecoder(grpResp.Body).Decode(&groups) == nil {
				printStatus("Groups", "%d", len(groups))
			}
			grpResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
