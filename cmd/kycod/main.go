// Command kycod is the KYCo daemon: it loads configuration, restores the
// job store, and serves the local control API until interrupted (spec.md
// §6.6 daemon lifecycle).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kyco/internal/agent"
	"kyco/internal/bridge"
	"kyco/internal/config"
	"kyco/internal/events"
	"kyco/internal/executor"
	"kyco/internal/group"
	"kyco/internal/store"
	"kyco/internal/worktree"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config.toml (default: KYCO_CONFIG or ~/.kyco/config.toml)")
		workspace  = flag.String("workspace", ".", "workspace root to orchestrate jobs in")
		bridgeURL  = flag.String("bridge-url", "http://127.0.0.1:8899", "base URL of the agent SDK bridge sidecar")
		debug      = flag.Bool("debug", false, "enable human-readable debug logging")
	)
	flag.Parse()

	logger := newLogger(*debug)
	slog.SetDefault(logger)

	if err := run(*configPath, *workspace, *bridgeURL, logger); err != nil {
		logger.Error("kycod: fatal", "err", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	if debug {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(configPath, workspace, bridgeURL string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	snapshot := config.NewSnapshot(cfg)

	if configPath == "" {
		configPath = config.ResolvePath()
	}
	watcher := config.NewWatcher(configPath, snapshot, logger.With("component", "config"))

	st, err := store.Load(workspace)
	if err != nil {
		return fmt.Errorf("load job store: %w", err)
	}

	registry := agent.NewRegistry()
	bridgeClient := bridge.NewClient(bridgeURL)
	wt := worktree.NewManager(workspace)
	bus := events.NewBus()

	exec := executor.New(st, snapshot, registry, bridgeClient, wt, bus, logger.With("component", "executor"))
	groups := group.NewCoordinator(st, wt)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := bridgeClient.Ping(ctx); err != nil {
		logger.Warn("kycod: bridge sidecar not reachable at startup, will retry lazily", "err", err)
	}

	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Error("config watcher stopped", "err", err)
		}
	}()

	go func() {
		if err := exec.Run(ctx); err != nil {
			logger.Error("executor stopped", "err", err)
		}
	}()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", snapshot.Get().Settings.HTTPPort),
		Handler: newControlHandler(snapshot, st, exec, groups, wt, bus),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("kycod: listening", "addr", httpServer.Addr, "workspace", workspace)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}

	return st.Save()
}
