package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Bryant-Tello/Entel/internal/config"
	dbRedis "github.com/Bryant-Tello/Entel/internal/db/redis"
	logpkg "github.com/Bryant-Tello/Entel/internal/logger"
	"github.com/Bryant-Tello/Entel/internal/metrics"
	"github.com/Bryant-Tello/Entel/internal/ratelimit"
	"github.com/Bryant-Tello/Entel/internal/repository/embcache"
	transcriptrepo "github.com/Bryant-Tello/Entel/internal/repository/transcript"
	usagerepo "github.com/Bryant-Tello/Entel/internal/repository/usage"
	chiTransport "github.com/Bryant-Tello/Entel/internal/transport/chi"
	openaiT "github.com/Bryant-Tello/Entel/internal/transport/openai"
	analysisuc "github.com/Bryant-Tello/Entel/internal/usecase/analysis"
	embeddinguc "github.com/Bryant-Tello/Entel/internal/usecase/embedding"
	healthuc "github.com/Bryant-Tello/Entel/internal/usecase/health"
	searchuc "github.com/Bryant-Tello/Entel/internal/usecase/search"
	uploaduc "github.com/Bryant-Tello/Entel/internal/usecase/upload"
	usageuc "github.com/Bryant-Tello/Entel/internal/usecase/usage"
	"github.com/Bryant-Tello/Entel/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting transcript API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	metrics.RegisterProviderMetrics()

	transcriptRepo := transcriptrepo.New(store, cfg.Storage.KeyPrefix)
	usageStore := usagerepo.New(store, cfg.Storage.KeyPrefix)

	baseEmbedder := openaiT.NewEmbedder(&openaiT.Config{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Model:      cfg.OpenAI.EmbeddingModel,
		Dimensions: cfg.OpenAI.EmbeddingDimensions,
		Logger:     logger,
	})
	cachedEmbedder := embcache.New(
		baseEmbedder, store, cfg.Storage.KeyPrefix, 0, metrics.EmbeddingCacheTotal, logger,
	)
	classifier := openaiT.NewClassifier(&openaiT.Config{
		APIKey:    cfg.OpenAI.APIKey,
		BaseURL:   cfg.OpenAI.BaseURL,
		ChatModel: cfg.OpenAI.ChatModel,
		Logger:    logger,
	})
	logger.Info("Provider clients created",
		zap.String("embedding_model", cfg.OpenAI.EmbeddingModel),
		zap.Int("dimensions", cfg.OpenAI.EmbeddingDimensions),
		zap.String("chat_model", cfg.OpenAI.ChatModel),
	)

	limiter := ratelimit.New(
		cfg.RateLimit.TokensPerMinute,
		cfg.RateLimit.RequestsPerMinute,
		cfg.RateLimit.TokensPerSecond,
		logger,
	)
	accessor := embeddinguc.New(
		cachedEmbedder, baseEmbedder, transcriptRepo, limiter, usageStore,
		cfg.OpenAI.EmbeddingDimensions, logger,
	)

	analysisSvc := analysisuc.New(transcriptRepo, classifier, logger)
	usageSvc := usageuc.New(
		usageStore,
		cfg.Budget.MonthlyUSDLimit,
		cfg.Budget.CostPerMillionTokens,
		cfg.Budget.Action,
		logger,
	)
	uploadSvc := uploaduc.New(transcriptRepo, accessor, analysisSvc, usageSvc, logger)
	// Query embeddings go through the accessor so they share the rate
	// limiter, retries and usage tracking with transcript embeddings; the
	// cache decorator still sits underneath.
	searchSvc := searchuc.New(
		transcriptRepo, accessor, cfg.OpenAI.EmbeddingDimensions,
		cfg.Search.SnippetContextChars, logger,
	).WithDefaults(cfg.Search.MaxResults, cfg.Search.SimilarityThreshold)
	healthSvc := healthuc.New(store, baseEmbedder)

	server := chiTransport.NewServer(uploadSvc, searchSvc, analysisSvc, usageSvc, healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
