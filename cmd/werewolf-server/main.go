package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/moonhollow/werewolf-server/internal/game"
	"github.com/moonhollow/werewolf-server/internal/server"
	"github.com/moonhollow/werewolf-server/internal/store"
)

var CLI struct {
	Config      string `short:"c" long:"config" default:"werewolf-server.hcl" help:"Path to HCL configuration file"`
	Addr        string `short:"a" long:"addr" help:"Server address to bind to (overrides config)"`
	LogLevel    string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	SnapshotDir string `short:"s" long:"snapshot-dir" help:"Directory for game snapshot files (disabled when empty)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	// Load configuration
	cfg, err := server.LoadServerConfig(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		kctx.Exit(1)
	}

	// Apply command line overrides
	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		kctx.Exit(1)
	}

	// Setup logging
	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	logger.Info("Starting Werewolf Server",
		"addr", cfg.GetServerAddress(),
		"games", len(cfg.Games),
		"bots", len(cfg.Bots))

	var subscribers []game.EventSubscriber
	if CLI.SnapshotDir != "" {
		fileStore, err := store.NewFileStore(CLI.SnapshotDir, logger)
		if err != nil {
			logger.Error("Failed to open snapshot store", "error", err)
			kctx.Exit(1)
		}
		subscribers = append(subscribers, store.NewPersister(fileStore, logger))
		logger.Info("Persisting snapshots", "dir", CLI.SnapshotDir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broadcaster := server.NewBroadcaster(logger)
	registry := server.NewRegistry(ctx, broadcaster, server.RegistryConfig{
		DecideTimeout: 30 * time.Second,
		MaxFailures:   3,
		Logger:        logger,
		Subscribers:   subscribers,
	})

	// Create games from configuration
	for _, gameCfg := range cfg.Games {
		if !gameCfg.AutoStart {
			continue
		}

		phaseTimeout, err := time.ParseDuration(gameCfg.PhaseTimeout)
		if err != nil {
			logger.Error("Invalid phase timeout", "game", gameCfg.Name, "error", err)
			kctx.Exit(1)
		}

		strategy := "heuristic"
		if botCfg := cfg.GetBotForGame(gameCfg.Name); botCfg != nil {
			strategy = botCfg.Strategy
		}

		entry, err := registry.CreateGame(server.CreateGameParams{
			Name:         gameCfg.Name,
			Seats:        gameCfg.SeatSpecs(),
			Roles:        gameCfg.RoleList(),
			Strategy:     strategy,
			Seed:         gameCfg.Seed,
			PhaseTimeout: phaseTimeout,
		})
		if err != nil {
			logger.Error("Failed to create game", "game", gameCfg.Name, "error", err)
			kctx.Exit(1)
		}

		logger.Info("Created game",
			"id", entry.ID,
			"name", gameCfg.Name,
			"seats", len(gameCfg.Roles),
			"humans", gameCfg.Humans,
			"strategy", strategy)
	}

	wsServer := server.NewServer(cfg.GetServerAddress(), registry, broadcaster, logger)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		logger.Info("Shutting down server...")
		_ = wsServer.Stop()
		cancel()
		_ = registry.Stop()
		os.Exit(0)
	}()

	// Start server (this blocks)
	if err := wsServer.Start(); err != nil {
		logger.Error("Server failed", "error", err)
		kctx.Exit(1)
	}
}
