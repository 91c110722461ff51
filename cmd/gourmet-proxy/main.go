package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/gourmet-search/internal/config"
	"github.com/Sternrassler/gourmet-search/pkg/client"
	"github.com/Sternrassler/gourmet-search/pkg/logging"
	"github.com/Sternrassler/gourmet-search/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.Log.Level),
		Pretty:  cfg.Log.Pretty,
		Service: "gourmet-proxy",
		Output:  os.Stderr,
	})
	logger := logging.NewLogger("gourmet-proxy")

	clientCfg := client.Config{
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.API.Key,
		Timeout: cfg.API.Timeout,
	}

	// Redis is optional and only backs the daily quota
	srv := &server{logger: logger}
	if cfg.Redis.Address != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("address", cfg.Redis.Address).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("address", cfg.Redis.Address).Int("daily_quota", cfg.Quota.Daily).Msg("Connected to Redis, quota enabled")

		srv.redis = redisClient
		srv.quota = ratelimit.NewTracker(redisClient, ratelimit.Config{
			APIKey:     cfg.API.Key,
			DailyLimit: cfg.Quota.Daily,
		}, logging.NewLogger("quota"))
		clientCfg.Gate = srv.quota
	}

	searchClient, err := client.New(clientCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create search client")
	}
	defer searchClient.Close()

	srv.fetcher = searchClient
	srv.sessions = newSessionRegistry(searchClient, cfg.Session.TTL, cfg.Session.MaxSessions, logging.NewLogger("pagination"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go srv.sessions.Run(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.Router(cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.API.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Starting gourmet proxy server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down gourmet proxy server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}
	srv.sessions.CloseAll()

	logger.Info().Msg("Gourmet proxy server stopped")
}
