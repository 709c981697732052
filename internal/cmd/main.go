package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/internal/quiz/countdown"
	"github.com/quizwire/quizwire/internal/quiz/fanout"
	"github.com/quizwire/quizwire/internal/quiz/gateway"
	"github.com/quizwire/quizwire/internal/quiz/mirror"
	"github.com/quizwire/quizwire/internal/quiz/room"
	"github.com/quizwire/quizwire/internal/quiz/session"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	registry := room.NewRegistry()
	fan := fanout.NewFanout(registry)

	var pub *mirror.Publisher
	if cfg.Mirror.Enabled {
		pub, err = mirror.NewPublisher(cfg.mirrorConfig())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect event mirror")
		}
		defer pub.Close()
		fan.SetMirror(pub)
	}

	coordinator := countdown.NewCoordinator(fan)
	controller := session.NewController(registry, fan, coordinator)
	gw := gateway.NewGateway(controller, cfg.gatewayConfig())

	server := setupServer(cfg, gw)

	log.Info().
		Str("addr", server.Addr).
		Str("default_room", cfg.WebSocket.DefaultRoom).
		Bool("mirror", cfg.Mirror.Enabled).
		Msg("starting quiz relay")

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("quiz relay shutdown complete")
}
