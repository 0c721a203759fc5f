package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-passing-data/internal/config"
	"github.com/woxQAQ/wasm-passing-data/internal/exchange"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to load configuration", zap.Error(err))
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// Initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", cfg.LogLevel, err)
		os.Exit(2)
	}
	defer logger.Sync()

	logger.Info("Starting passing-data",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Exchange failed", zap.Error(err))
	}

	logger.Info("Exchange finished")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	driver, err := exchange.NewDriver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer driver.Close(context.Background())

	payload := cfg.Exchange.Payload()
	fmt.Println(renderOriginal(payload))

	res, err := driver.Run(ctx, payload)
	if err != nil {
		return err
	}

	fmt.Println(renderResult(res))
	return nil
}

// newLogger builds a development logger for debug and a production
// logger otherwise.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = lvl
	return zc.Build()
}
