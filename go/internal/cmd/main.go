package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/cardduel/go/internal/clientconfig"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := clientconfig.Load(os.Getenv("CLIENT_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logFile := setupLogging(cfg.Log)
	defer logFile.Close()

	display := newDisplay(os.Stdout)

	services, err := setupServices(cfg, display)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up client")
	}
	defer services.Close()

	log.Info().
		Str("endpoint", cfg.Endpoint).
		Str("username", cfg.Username).
		Str("session_id", services.SessionID).
		Msg("starting card duel client")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := setupStatusServer(cfg, services)
	if server != nil {
		go func() {
			log.Info().Str("addr", server.Addr).Msg("status API starting")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status API failed")
			}
		}()
	}

	auth := authFromConfig(cfg)
	if !auth.Authenticated {
		log.Warn().Msg("GAME_AUTH_TOKEN is not set, staying offline")
	}
	connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
	if err := services.Session.SetAuth(connectCtx, auth); err != nil {
		// not fatal: the user can retry from the prompt
		log.Error().Err(err).Msg("initial connect failed")
	}
	cancelConnect()

	display.Info("type help for commands")
	if err := runCommands(ctx, os.Stdin, cfg, services, display); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("command loop failed")
	}

	log.Info().Msg("shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("status API shutdown failed")
		}
	}
}
