// Package main provides the entry point for the gateway server. It accepts
// OpenAI-compatible requests and re-expresses them against the Gemini API.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/lingyicute/openai-gemini/internal/api"
	"github.com/lingyicute/openai-gemini/internal/config"
	"github.com/lingyicute/openai-gemini/internal/logging"
	_ "github.com/lingyicute/openai-gemini/internal/translator/gemini/openai/chat-completions"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "configuration file path")
	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	if configPath == "" {
		configPath = filepath.Join(wd, "config.yaml")
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}
	if warnings, errValidate := cfg.Validate(); errValidate != nil {
		log.Errorf("invalid configuration: %v", errValidate)
		return
	} else {
		for _, w := range warnings {
			log.Warnf("config warning: %s", w)
		}
	}

	logging.SetDebug(cfg.Debug)
	if cfg.LoggingToFile {
		if err = logging.ConfigureLogOutput(logging.LogFileOptions{Path: cfg.LogFilePath()}); err != nil {
			log.Errorf("failed to configure log output: %v", err)
			return
		}
	}

	log.Infof("gateway version %s, commit %s, built %s", Version, Commit, BuildDate)

	srv := api.NewServer(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if errWatch := config.Watch(ctx, configPath, srv.UpdateConfig); errWatch != nil && !errors.Is(errWatch, context.Canceled) {
			log.WithError(errWatch).Warn("config watcher stopped")
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err = <-errCh:
		if err != nil {
			log.Errorf("server error: %v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), api.ShutdownTimeout)
		defer cancel()
		if err = srv.Stop(shutdownCtx); err != nil {
			log.Errorf("graceful shutdown failed: %v", err)
		}
	}
}
