package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"bridgify/adapter/in/stdio"
	"bridgify/config"
	"bridgify/core/bridge"
	"bridgify/internal/bootstrap"
	"bridgify/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger.Init("info", false)
	log := logger.Component("main")

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	mode := flag.String("mode", "", "Run mode: api, stdio, all (defaults to BRIDGE_MODE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.LogLevel, cfg.IsDevelopment())

	runMode := *mode
	if runMode == "" {
		runMode = cfg.Mode
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, cleanup, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build bridge")
	}
	defer cleanup()

	if err := b.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start bridge")
	}

	var app *fiber.App
	if runMode == "api" || runMode == "all" {
		app = bootstrap.NewAPI(cfg, b)
	}

	go func() {
		<-ctx.Done()
		shutdown(log, b, app)
	}()

	switch runMode {
	case "api":
		runAPI(cfg, app)
	case "stdio":
		runStdio(ctx, b)
	case "all":
		go runStdio(ctx, b)
		runAPI(cfg, app)
	default:
		log.Fatal().Str("mode", runMode).Msg("unknown run mode")
	}
}

// shutdown drains the HTTP listener (if any) and the bridge's owned
// components within shutdownTimeout, mirroring the teacher's
// signal-then-context-with-timeout race in the original main.go.
func shutdown(log zerolog.Logger, b *bridge.Bridge, app *fiber.App) {
	log.Info().Dur("timeout", shutdownTimeout).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if app != nil {
		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Warn().Err(err).Msg("API server shutdown reported an error")
		}
	}

	if err := b.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("bridge shutdown reported an error")
	}
}

func runAPI(cfg *config.Config, app *fiber.App) {
	log := logger.Component("main")
	addr := cfg.ServerHost + ":" + cfg.ServerPort
	log.Info().Str("addr", addr).Msg("starting API server")
	if err := app.Listen(addr); err != nil {
		log.Warn().Err(err).Msg("API server stopped")
	}
}

func runStdio(ctx context.Context, b *bridge.Bridge) {
	log := logger.Component("main")
	log.Info().Msg("starting stdio transport")
	if err := stdio.Serve(ctx, b, os.Stdin, os.Stdout, "stdio-local"); err != nil {
		log.Warn().Err(err).Msg("stdio transport ended")
	}
}
