// Package main implements the perfstreams daemon. It hosts one performance
// reporter, feeds it from NATS, UDP and WebSocket producers and delivers
// flushed batches to NATS, rotating files and HTTP collectors.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/perfstreams/config"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "perfstreams"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, shouldExit, err := initializeCLI(args)
	if shouldExit || err != nil {
		return err
	}

	logger, logCloser := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat, cliCfg.LogFile)
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("Starting perfstreams",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := loadConfiguration(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	slog.Debug("Configuration loaded", "config", cfg.String())

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	p, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}
	return runWithSignalHandling(context.Background(), p, cliCfg.ShutdownTimeout)
}

// initializeCLI parses and validates flags. shouldExit is set when a flag
// such as -version was fully handled.
func initializeCLI(args []string) (*CLIConfig, bool, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s (%s)\n", appName, Version, BuildTime)
		return nil, true, nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(fs)
		return nil, true, nil
	}
	return cliCfg, false, nil
}

// loadConfiguration layers the optional file over the defaults, applies
// PERFSTREAMS_* overrides and validates the result.
func loadConfiguration(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader.AddLayer(path)
	}
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runWithSignalHandling(ctx context.Context, p *pipeline, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := p.start(signalCtx); err != nil {
		if stopErr := p.shutdown(shutdownTimeout); stopErr != nil {
			slog.Warn("Cleanup after failed start", "error", stopErr)
		}
		return fmt.Errorf("start pipeline: %w", err)
	}
	slog.Info("perfstreams started")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	start := time.Now()
	if err := p.shutdown(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("perfstreams shutdown complete", "duration", time.Since(start))
	return nil
}
