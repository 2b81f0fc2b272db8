package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/victorarias/cclog/internal/config"
	"github.com/victorarias/cclog/internal/logging"
	"github.com/victorarias/cclog/internal/logs"
	"github.com/victorarias/cclog/internal/webserver"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("cclog-server %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
		return
	}

	cfgPath, err := config.Path()
	if err != nil {
		log.Fatalf("config path failed: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logger := logging.New(cfg.Server.LogLevel, os.Stdout).With("component", "server")

	lock, err := acquireLock(cfgPath)
	if err != nil {
		logger.Error("another cclog-server instance is already running", "error", err)
		os.Exit(1)
	}
	defer lock.Unlock()

	projectsDir, err := cfg.ProjectsPath()
	if err != nil {
		logger.Error("projects directory could not be resolved", "error", err)
		os.Exit(1)
	}
	if info, err := os.Stat(projectsDir); err != nil || !info.IsDir() {
		logger.Error("Claude projects directory not found", "dir", projectsDir)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	store := logs.NewStore(projectsDir, cfg.Cache.MaxSessions, logger)
	store.BuildIndex(logs.DiscoverSessions(projectsDir, logger))
	logger.Info("scan complete",
		"projects", store.ProjectCount(),
		"sessions", store.SessionCount(),
		"elapsed", time.Since(start).Round(time.Millisecond))

	search := logs.NewSearchIndex(cfg.Search.SnippetChars)
	store.PopulateSearchIndex(search)
	logger.Info("search index seeded", "entries", search.EntryCount())

	go logs.NewIndexer(store, search, logger).Run(ctx)

	manager := logs.NewConnectionManager(logger)

	var watcher *logs.SessionWatcher
	if cfg.Watch.Enabled {
		watcher = logs.NewSessionWatcher(projectsDir, store, manager, cfg.Watch.DebounceMS, logger)
		if err := watcher.Start(); err != nil {
			logger.Error("file watcher failed to start", "error", err)
			watcher = nil
		} else {
			defer watcher.Stop()
			logger.Info("file watcher started", "dir", projectsDir)
		}
	}

	srv := webserver.NewServer(cfg, store, search, manager, watcher, logger)
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	logger.Info("starting", "version", Version, "commit", Commit, "built", BuildTime)
	logger.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// acquireLock takes the single-instance lock next to the config file so two
// servers never watch and index the same tree at once.
func acquireLock(cfgPath string) (*flock.Flock, error) {
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, "server.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, errors.New("lock held by another process")
	}
	return lock, nil
}
