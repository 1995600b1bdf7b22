package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/crimson-sun/tally/internal/config"
	"github.com/crimson-sun/tally/internal/export"
	"github.com/crimson-sun/tally/internal/export/multi"
	"github.com/crimson-sun/tally/internal/logging"
	"github.com/crimson-sun/tally/internal/pipeline"
	"github.com/crimson-sun/tally/internal/revenue"
	"github.com/crimson-sun/tally/internal/titan"

	// Register export targets.
	_ "github.com/crimson-sun/tally/internal/export/excel"
	_ "github.com/crimson-sun/tally/internal/export/sheets"
)

func main() {
	// Load .env when present; CI provides real env vars and skips this.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("tally: %v", err)
	}

	closeLog, err := logging.Init(cfg.LogPath, logging.ParseLevel(os.Getenv("LOG_LEVEL")))
	if err != nil {
		log.Fatalf("tally: %v", err)
	}
	defer closeLog()

	tokens := titan.NewTokenProvider(cfg.AuthURL, cfg.ClientID, cfg.ClientSecret, cfg.RequestTimeout)
	client := titan.NewClient(cfg.BaseURL, cfg.AppKey, tokens, titan.WithTimeout(cfg.RequestTimeout))
	service := revenue.New(client, cfg.TenantID, cfg.StatePath, cfg.PageSize)

	// Set up graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nreceived %v, shutting down...\n", sig)
		cancel()
	}()

	writers := make([]export.Writer, 0, len(cfg.Targets))
	for _, target := range cfg.Targets {
		ctor, err := export.Get(target)
		if err != nil {
			slog.Error("failed to resolve export target", "target", target, "error", err)
			os.Exit(1)
		}
		w, err := ctor(ctx, cfg)
		if err != nil {
			slog.Error("failed to build export target", "target", target, "error", err)
			os.Exit(1)
		}
		writers = append(writers, w)
	}

	var writer export.Writer = writers[0]
	if len(writers) > 1 {
		writer = multi.New(writers...)
	}

	p := pipeline.New(service, writer, tokens)
	if err := p.Run(ctx); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}
