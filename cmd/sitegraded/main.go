package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sitegrade/internal/config"
	"sitegrade/internal/daemon"
	"sitegrade/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(os.Getenv("SITEGRADE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("create directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	rt, err := daemon.NewRuntime(cfg, logger)
	if err != nil {
		logger.Error("create runtime", logging.Error(err))
		os.Exit(1)
	}

	d, err := daemon.New(rt)
	if err != nil {
		_ = rt.Close()
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("sitegraded shutting down")
}
