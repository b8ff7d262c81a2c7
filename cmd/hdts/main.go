package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rewired-gh/hdts/internal/config"
	"github.com/rewired-gh/hdts/internal/engine"
	"github.com/rewired-gh/hdts/internal/httpapi"
	"github.com/rewired-gh/hdts/internal/logger"
	"github.com/rewired-gh/hdts/internal/manual"
	"github.com/rewired-gh/hdts/internal/sensor"
	"github.com/rewired-gh/hdts/internal/session"
	"github.com/rewired-gh/hdts/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	meta, err := cfg.MetadataStore()
	if err != nil {
		logger.Fatal("Failed to build sensor metadata: %v", err)
	}

	poller, err := sensor.NewPoller(sensor.NewW1Bus(cfg.Poll.W1Dir), cfg.Poll.Interval)
	if err != nil {
		logger.Fatal("Failed to enumerate sensors in %s: %v", cfg.Poll.W1Dir, err)
	}
	if len(poller.Devices()) == 0 {
		logger.Warn("No 1-Wire temperature sensors found in %s", cfg.Poll.W1Dir)
	}

	opts := engine.Options{
		Interval:  cfg.Poll.Interval,
		ExportDir: cfg.Storage.ExportDir,
	}

	if cfg.Telegram.Enabled {
		telegramClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		opts.Notifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	sess := session.NewLogger(meta)
	eng := engine.New(poller, sess, meta, opts)
	recorder := manual.NewRecorder(meta, sess, cfg.Storage.CSVLogPath)
	server := httpapi.New(eng, recorder, meta)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if err := eng.Start(); err != nil {
		logger.Fatal("Failed to start data engine: %v", err)
	}
	defer eng.Stop()

	logger.Info("Manual readings are appended to %s, exports go to %s", cfg.Storage.CSVLogPath, cfg.Storage.ExportDir)

	if err := server.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout); err != nil {
		logger.Error("HTTP server error: %v", err)
		return
	}
	logger.Info("Service stopped")
}
