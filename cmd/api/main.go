package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/companionchat/backend/internal/api"
	"github.com/companionchat/backend/internal/cache"
	"github.com/companionchat/backend/internal/config"
	"github.com/companionchat/backend/internal/database"
	"github.com/companionchat/backend/internal/logger"
	"github.com/companionchat/backend/internal/repository"
)

// defaultCategories seeds the category table on startup.
var defaultCategories = []string{
	"Famous People", "Movies & TV", "Musicians", "Games",
	"Animals", "Philosophy", "Scientists",
}

func main() {
	// Load configuration
	cfg := config.Load()

	log := logger.New(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("starting companion chat API")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run schema migrations before opening the pool
	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Connect to database
	dbCfg := database.DefaultConfig(cfg.DatabaseURL)
	db, err := database.New(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to Redis
	redisCache, err := cache.NewRedisFromURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisCache.Close()

	// Seed companion categories
	if err := repository.NewCompanionRepository(db).SeedCategories(ctx, defaultCategories); err != nil {
		log.Warn().Err(err).Msg("failed to seed categories")
	}

	// Create router
	router, err := api.NewRouter(cfg, db, redisCache, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build router")
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Give outstanding requests time to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
