package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CYBAI/substrate-telemetry/internal/api"
	"github.com/CYBAI/substrate-telemetry/internal/config"
	"github.com/CYBAI/substrate-telemetry/internal/feed"
	"github.com/CYBAI/substrate-telemetry/internal/ingest"
	"github.com/CYBAI/substrate-telemetry/internal/logging"
	"github.com/CYBAI/substrate-telemetry/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	reg := registry.New(logger, nil, cfg.DeniedChains)
	broadcaster := feed.NewBroadcaster(logger, cfg.FeedBuffer)
	submit := ingest.NewHandler(logger, reg, broadcaster, nil)

	srv := api.NewServer(logger, reg, submit, broadcaster)

	httpServer := &http.Server{
		Addr:        cfg.HTTPListenAddr,
		Handler:     srv,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting telemetry core")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
