package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/botflow/config"
	botflowotel "github.com/petal-labs/botflow/otel"
	"github.com/petal-labs/botflow/server"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "Listen port (default from config: 8090)")
	cmd.Flags().String("host", "", "Listen host (default from config: 127.0.0.1)")
	cmd.Flags().String("cors-origin", "", "Allowed CORS origin")
	cmd.Flags().String("sqlite-path", "", "Path to SQLite database (default: ~/.botflow/botflow.db)")
	cmd.Flags().String("config", "", "Path to botflow.yaml")
	cmd.Flags().String("provider", "", "LLM provider for /api/flows/generate")
	cmd.Flags().String("model", "", "Model identifier for /api/flows/generate")
	cmd.Flags().Duration("timeout", 2*time.Minute, "Model call timeout")
	cmd.Flags().StringArray("provider-key", nil, "Set provider API key (repeatable)")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 3*time.Minute, "HTTP write timeout")
	cmd.Flags().Int64("max-body", 0, "Max request body size in bytes")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, &cfg.Server)
	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	writeTimeout, _ := cmd.Flags().GetDuration("write-timeout")
	logger := slog.Default()

	telemetry, err := botflowotel.Setup(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return exitError(exitRuntime, "initializing telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()
	observer, err := telemetry.Observer()
	if err != nil {
		return exitError(exitRuntime, "initializing observer: %v", err)
	}

	dsn, err := prepareSQLitePath(cfg.Server.SQLitePath)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	store, err := server.NewSQLiteStore(server.SQLiteStoreConfig{DSN: dsn})
	if err != nil {
		return exitError(exitRuntime, "opening sqlite run store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	// A missing provider key leaves generation disabled rather than
	// failing startup; /api/flows/generate then answers 503.
	var generator server.FlowGenerator
	if gen, err := buildGenerator(cmd, cfg); err != nil {
		logger.Warn("flow generation disabled", "error", err)
	} else {
		generator = gen
	}

	pruner, err := server.NewPruner(server.PrunerConfig{
		Store:    store,
		Schedule: cfg.Retention.Schedule,
		MaxAge:   cfg.Retention.MaxAge,
		Logger:   logger,
	})
	if err != nil {
		return exitError(exitInputParse, "retention: %v", err)
	}
	if err := pruner.Start(cmd.Context()); err != nil {
		return exitError(exitRuntime, "starting retention pruner: %v", err)
	}
	defer func() {
		_ = pruner.Stop(context.Background())
	}()

	apiServer := server.NewServer(server.ServerConfig{
		Store:      store,
		Generator:  generator,
		Observer:   observer,
		Options:    cfg.Normalize,
		CORSOrigin: cfg.Server.CORSOrigin,
		MaxBody:    cfg.Server.MaxBody,
		Logger:     logger,
	})

	addr := cfg.Server.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      apiServer.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "botflow listening on %s\n", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}

// applyServeFlags layers explicitly set flags over the configured server
// section.
func applyServeFlags(cmd *cobra.Command, sc *config.ServerConfig) {
	if cmd.Flags().Changed("host") {
		sc.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		sc.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("cors-origin") {
		sc.CORSOrigin, _ = cmd.Flags().GetString("cors-origin")
	}
	if cmd.Flags().Changed("sqlite-path") {
		sc.SQLitePath, _ = cmd.Flags().GetString("sqlite-path")
	}
	if cmd.Flags().Changed("max-body") {
		sc.MaxBody, _ = cmd.Flags().GetInt64("max-body")
	}
}

// prepareSQLitePath cleans a file path and creates its directory. DSNs in
// file: URI form are passed through untouched.
func prepareSQLitePath(path string) (string, error) {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = config.DefaultSQLitePath()
	}
	if strings.HasPrefix(strings.ToLower(dsn), "file:") {
		return dsn, nil
	}
	dsn = filepath.Clean(dsn)
	if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
		return "", fmt.Errorf("creating sqlite directory: %w", err)
	}
	return dsn, nil
}
