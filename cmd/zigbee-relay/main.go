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
	"time"

	"zigbee-relay/internal/node"
	"zigbee-relay/internal/radio"
	"zigbee-relay/internal/relay"
	"zigbee-relay/internal/store"
	"zigbee-relay/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("zigbee-relay starting", "version", version)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func run(cfg *Config, logger *slog.Logger) error {
	journal, err := store.NewBoltJournal(cfg.Store.Path, cfg.Store.JournalLimit)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	xbee, err := radio.OpenXBee(cfg.Radio.Port, cfg.Radio.Baud, cfg.Radio.ATTimeout, logger.With("component", "radio"))
	if err != nil {
		return err
	}
	defer xbee.Close()

	driver, closeDriver, err := openDriver(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDriver()

	events := node.NewEventBus(logger)
	defer recordDiagnostics(events, journal, logger)()

	n, err := node.New(xbee, driver, events, cfg.nodeConfig(), logger.With("component", "node"))
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = n.Start(startCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	// Optional surfaces (no-ops when built with no_automation / no_mqtt).
	auto := initAutomation(n, cfg, logger)
	mqtt := initMQTT(n, cfg, logger)
	webServer, httpServer := startWeb(n, journal, cfg, logger)

	runErr := n.Run(ctx)
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	auto.Stop()
	mqtt.Stop()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", "err", err)
		}
		webServer.Stop()
	}
	return runErr
}

func openDriver(cfg *Config, logger *slog.Logger) (relay.Driver, func(), error) {
	if cfg.Relay.Bus == "none" {
		logger.Warn("relay bus disabled, board writes are only recorded")
		return &relay.Recorder{}, func() {}, nil
	}
	board, err := relay.OpenI2CBoard(cfg.Relay.Bus, cfg.Relay.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("open relay board: %w", err)
	}
	logger.Info("relay board opened", "bus", cfg.Relay.Bus, "address", fmt.Sprintf("0x%02X", cfg.Relay.Address))
	return board, func() { board.Close() }, nil
}

func startWeb(n *node.Node, journal store.Journal, cfg *Config, logger *slog.Logger) (*web.Server, *http.Server) {
	if cfg.Web.Listen == "" {
		return nil, nil
	}

	opts := []web.ServerOption{web.WithJournal(journal), web.WithVersion(version)}
	if cfg.Web.APIKey != "" {
		opts = append(opts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		opts = append(opts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webServer := web.NewServer(n, logger, opts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
		}
	}()
	return webServer, httpServer
}
