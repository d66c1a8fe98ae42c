// Command ascension serves the ascension pyramid planner API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/talgya/ascension/internal/api"
	"github.com/talgya/ascension/internal/ascension"
	"github.com/talgya/ascension/internal/persistence"
	"github.com/talgya/ascension/internal/settings"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("ASCENSION_DEBUG") != "" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	// Configuration from environment.
	port := envIntOrDefault("ASCENSION_PORT", 8080)
	dbPath := envOrDefault("ASCENSION_DB", "data/ascension.db")
	settingsPath := os.Getenv("ASCENSION_SETTINGS")

	slog.Info("Ascension Pyramid starting", "version", api.Version, "port", port, "db", dbPath)

	// ── Population settings ──────────────────────────────────────────
	cfg, err := settings.Load(settingsPath)
	if err != nil {
		slog.Error("failed to load population settings", "path", settingsPath, "error", err)
		os.Exit(1)
	}
	for _, chain := range ascension.Chains {
		keys := cfg.ChainKeys(chain)
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = cfg.Ascension[k].Name
		}
		slog.Info("tier chain", "chain", chain, "tiers", strings.Join(names, " → "))
	}

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	// ── HTTP API ──────────────────────────────────────────────────────
	owners, err := api.ParseOwnerTokens(os.Getenv("ASCENSION_OWNER_TOKENS"))
	if err != nil {
		slog.Error("invalid ASCENSION_OWNER_TOKENS", "error", err)
		os.Exit(1)
	}
	if len(owners) == 0 {
		slog.Warn("ASCENSION_OWNER_TOKENS not set — game creation will be disabled")
	}

	var origins []string
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		origins = strings.Split(env, ",")
	}

	apiServer := &api.Server{
		Settings:        cfg,
		DB:              db,
		Port:            port,
		Owners:          owners,
		Origins:         origins,
		WritesPerMinute: envIntOrDefault("ASCENSION_WRITES_PER_MINUTE", 120),
	}
	apiServer.Start()

	fmt.Printf("API: http://localhost:%d/api/v1/status\n", port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
	slog.Info("stopped")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("ignoring non-integer env value", "key", key, "value", v)
	}
	return defaultVal
}
