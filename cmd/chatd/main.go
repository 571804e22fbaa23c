package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/takiindev/chat-private/internal/config"
	"github.com/takiindev/chat-private/internal/server"
	"github.com/takiindev/chat-private/internal/store"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Redis when configured, in-process store otherwise. Rate limiting
	// rides on the same Redis instance and is skipped without one.
	var st store.MessageStore
	var limiter *server.RateLimiter
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL, cfg.RoomID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		st = redisStore
		limiter = server.NewRateLimiter(redisStore.Client(), logger)
		logger.Info().Str("room", cfg.RoomID).Msg("connected to Redis")
	} else {
		st = store.NewMemoryStore()
		logger.Warn().Msg("REDIS_URL not set, using in-memory store")
	}
	defer st.Close()

	hub := server.NewHub()
	defer hub.Close()

	router := server.NewRouter(logger, st, hub, cfg, limiter)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chatd")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
