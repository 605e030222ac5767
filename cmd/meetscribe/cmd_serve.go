package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"meetscribe/internal/api"
	"meetscribe/internal/archive"
	"meetscribe/internal/audio"
	"meetscribe/internal/logging"
	"meetscribe/internal/registry"
	"meetscribe/internal/relay"
)

// serveCmd runs the capture daemon: registry, backend relay, operator
// API, all until SIGINT/SIGTERM.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture daemon",
	Long: `Starts the session registry, the backend relay and the operator HTTP
API, then serves until interrupted. Active sessions are drained on
shutdown: each one leaves its meeting and delivers its transcript.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Get(logging.CategoryBoot)
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var store *archive.Store
	if cfg.Archive.Enabled {
		var err error
		store, err = archive.Open(cfg.Archive.Path, cfg.Archive.Keep)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer func() { _ = store.Close() }()
	}

	backendRelay := relay.New(cfg.Backend)
	backendRelay.Start(ctx)
	defer backendRelay.Close()

	forwarder := audio.NewForwarder(backendRelay, 128, cfg.Capture.AudioChunkSeconds)
	forwarder.Start(ctx)
	defer forwarder.Close()

	var archiver registry.Archiver
	if store != nil {
		archiver = store
	}
	reg := registry.New(cfg, backendRelay, archiver, nil)

	server := api.NewServer(cfg.API, reg, store, forwarder)
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

	log.Infow("meetscribe daemon running",
		"version", cfg.Version,
		"listen", cfg.API.ListenAddr,
		"backend", cfg.Backend.BaseURL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Infow("signal received, draining sessions", "signal", sig.String())
	case <-ctx.Done():
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer drainCancel()
	if err := reg.Shutdown(drainCtx); err != nil {
		log.Warnw("shutdown incomplete", "error", err)
	}
	log.Infow("meetscribe daemon stopped")
	return nil
}
