package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mkessler/quern/internal/api"
	"github.com/mkessler/quern/internal/config"
	"github.com/mkessler/quern/internal/events"
	"github.com/mkessler/quern/internal/journal"
	"github.com/mkessler/quern/internal/log"
	"github.com/mkessler/quern/internal/pool"
	"github.com/mkessler/quern/internal/session"
	"github.com/mkessler/quern/internal/store"
	"github.com/mkessler/quern/internal/tui"
	"github.com/mkessler/quern/internal/worker"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "watch":
		os.Exit(runWatch(args))
	case "version":
		fmt.Printf("quern version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`quern - bounded parallel content-processing pool

Usage:
  quern <command> [flags]

Commands:
  start     Start the service in foreground
  watch     Live terminal monitor over a running service
  version   Show version information
  help      Show this help message
`)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "./config.yaml", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("starting", "service", cfg.Service.Name, "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub(256)

	contentStore, err := store.NewFSStore(cfg.Store.Root)
	if err != nil {
		logger.Error("content store unavailable", "error", err)
		return 1
	}
	snapshots := store.NewBuilder(contentStore, log.Get())

	var watcher *store.Watcher
	if cfg.Store.Watch {
		watcher, err = store.NewWatcher(contentStore.Root(), snapshots, hub, log.Get())
		if err != nil {
			logger.Warn("store watcher disabled", "error", err)
		} else {
			go watcher.Run(ctx)
			defer watcher.Close()
		}
	}

	jnl, err := journal.Open(ctx, cfg.Journal.Path)
	if err != nil {
		logger.Error("journal unavailable", "error", err)
		return 1
	}
	defer jnl.Close()
	if n, err := jnl.Prune(ctx, cfg.Journal.Retention); err != nil {
		logger.Warn("journal prune failed", "error", err)
	} else if n > 0 {
		logger.Info("pruned journal entries", "count", n)
	}

	sessions := session.NewManager(cfg.Sessions, hub, log.Get())
	sessions.Start()
	defer sessions.Stop()

	workers := worker.NewPool(cfg.Pool.WorkerCount, log.Get())

	connPool := pool.New(cfg.Pool, workers, snapshots, hub, log.Get(),
		pool.WithSessions(sessions),
		pool.WithRecorder(jnl),
	)

	if cfg.API.Enabled {
		server := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.APIKey,
		}, connPool, sessions, jnl, hub, log.Get())

		if err := server.Start(ctx); err != nil {
			logger.Error("api server failed", "error", err)
			connPool.Shutdown()
			return 1
		}
	} else {
		<-ctx.Done()
	}

	logger.Info("shutting down")
	connPool.Shutdown()
	hub.Close()
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api", "http://127.0.0.1:8080", "base URL of a running quern API")
	apiKey := fs.String("api-key", "", "bearer token for the API")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	program := tea.NewProgram(tui.New(*apiURL, *apiKey))
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watch failed: %v\n", err)
		return 1
	}
	return 0
}
