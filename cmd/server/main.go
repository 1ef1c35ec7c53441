package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "clipstream/searchservice/internal/api/http"
	"clipstream/searchservice/internal/app"
	"clipstream/searchservice/internal/metrics"
	"clipstream/searchservice/internal/providers/invidious"
	"clipstream/searchservice/internal/providers/suggestapi"
	"clipstream/searchservice/internal/providers/youtubeapi"
	"clipstream/searchservice/internal/search"
	"clipstream/searchservice/internal/telemetry"
)

const serviceName = "video-search"

func main() {
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	metrics.Register(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		logger.Warn("telemetry init failed", slog.String("error", err.Error()))
	}
	if shutdownTelemetry != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	httpClient := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	suggest := suggestapi.NewProvider(suggestapi.Config{
		Endpoint:  cfg.SuggestEndpoint,
		UserAgent: cfg.UserAgent,
		Client:    httpClient,
	})

	var (
		videos   search.VideoProvider
		comments search.CommentProvider
	)
	if cfg.YouTubeAPIKey != "" {
		provider, err := youtubeapi.NewProvider(youtubeapi.Config{
			APIKey:    cfg.YouTubeAPIKey,
			Endpoint:  cfg.YouTubeEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    httpClient,
		})
		if err != nil {
			logger.Error("youtube api provider init failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		videos = provider
		comments = provider
		logger.Info("using youtube data api provider")
	} else {
		provider := invidious.NewProvider(invidious.Config{
			Endpoint:  cfg.InvidiousEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    httpClient,
		})
		videos = provider
		comments = provider
		logger.Info("using invidious provider", slog.String("endpoint", cfg.InvidiousEndpoint))
	}

	serviceOptions := []search.ServiceOption{
		search.WithLogger(logger),
		search.WithCommentTimeout(cfg.CommentTimeout),
		search.WithCacheTTL(cfg.CacheTTL),
		search.WithCacheDisabled(cfg.CacheDisabled),
	}
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		backend := search.NewRedisCacheBackend(redis.NewClient(redisOpts))
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := backend.Ping(pingCtx); err != nil {
			logger.Warn("redis unavailable, falling back to in-memory cache only",
				slog.String("error", err.Error()),
			)
		} else {
			serviceOptions = append(serviceOptions, search.WithRedisCache(backend))
			logger.Info("redis cache enabled")
		}
		cancel()
	}

	service := search.NewService(suggest, videos, comments, serviceOptions...)
	service.StartBackground(ctx)

	server := apihttp.NewServer(service,
		apihttp.WithLogger(logger),
		apihttp.WithDevelopmentMode(cfg.IsDevelopment()),
	)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// SSE streams stay open for the life of a search; no write deadline.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("env", cfg.Env),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(cfg app.Config) *slog.Logger {
	options := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}
	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stdout, options)
	} else {
		handler = slog.NewTextHandler(os.Stdout, options)
	}
	return slog.New(handler).With(slog.String("service", serviceName))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
