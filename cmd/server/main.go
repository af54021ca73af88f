package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"fileshare/internal/server/api"
	"fileshare/internal/server/config"
	"fileshare/internal/server/records"
	"fileshare/internal/server/service"
	"fileshare/internal/server/storage"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:          "fileshare-server",
		Short:        "Upload a file, get a link, share it",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.String(config.KeyConfigFile, "", "path to a config file (yaml, json or toml)")
	flags.String(config.KeyPort, "3000", "port to listen on")
	flags.String(config.KeyStoragePath, "./uploads", "directory uploaded files are written to")
	flags.String(config.KeyBaseURL, "", "public base URL used in share links (default: request host)")
	flags.String(config.KeyDatabaseURL, "", "postgres URL for file records (default: in-memory)")
	flags.Bool(config.KeyServeRawUploads, false, "also serve the storage directory under /uploads")
	flags.String(config.KeyLogLevel, "info", "log level: debug, info, warn, error")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	return cmd
}

func run(cfg *config.Config) error {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_path", cfg.StoragePath,
		"base_url", cfg.BaseURL,
		"serve_raw_uploads", cfg.ServeRawUploads,
	)

	ctx := context.Background()

	// Record store
	recordStore, closeStore, err := openRecordStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize record store", "error", err)
		return err
	}
	defer closeStore()
	slog.Info("record store initialized", "store", recordStore.Name())

	// File storage
	store := storage.NewFileSystemStore(cfg.StoragePath)
	if err := store.EnsureDir(); err != nil {
		slog.Error("failed to initialize storage", "error", err)
		return err
	}
	slog.Info("file storage initialized", "path", cfg.StoragePath)

	svc := service.NewFileService(recordStore, store)

	// Setup HTTP router
	handler := api.NewHandler(svc, cfg.BaseURL)
	e := api.SetupRouter(handler, cfg)

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			slog.Error("server failed", "error", err)
			return err
		}
	}

	// Stop accepting new requests, finish in-flight ones within the timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server exited cleanly")
	return nil
}

// openRecordStore picks Postgres when a database URL is configured and memory otherwise.
func openRecordStore(ctx context.Context, cfg *config.Config) (records.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		return records.NewMemoryStore(), func() {}, nil
	}

	pg, err := records.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	if err := pg.RunMigrations(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("database migrations complete")

	return pg, pg.Close, nil
}
