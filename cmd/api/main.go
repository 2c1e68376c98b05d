package main

import (
	"context"
	"fmt"
	"github.com/jonhkr/payrelay/internal"
	"github.com/zoobzio/clockz"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	cfg, warnings := internal.LoadConfig()
	logger := internal.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	for _, w := range warnings {
		logger.Warn().Err(w).Msg("configuration fallback")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := internal.OpenCounterStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open counter store")
	}
	defer store.Close()

	relay, err := internal.NewRelay(ctx, cfg, store, clockz.RealClock, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build relay")
	}

	relayDone := make(chan error, 1)
	go func() {
		relayDone <- relay.Start(ctx)
	}()

	app := internal.NewApp(relay, logger)
	serveErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info().Str("addr", addr).Msg("listening")
		serveErr <- app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error().Err(err).Msg("http server stopped")
		stop()
	}

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := <-relayDone; err != nil {
		logger.Error().Err(err).Msg("relay shutdown")
	}
	logger.Info().Msg("bye")
}
